// Package stateregistry checks charity registration with state regulators.
// Each jurisdiction has its own scraper; the orchestrator fans them out
// concurrently with per-jurisdiction caching and circuit breaking so one
// slow or broken registry never blocks or poisons the others.
package stateregistry

import (
	"context"
	"time"

	"github.com/sells-group/nonprofit-verify/internal/fetcher"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// Scraper checks a single state registry. Check returns (nil, nil) when the
// organization is confirmed absent from the registry, and an error only when
// the source itself failed. Confirmed absence is cacheable; failure is not.
type Scraper interface {
	// Jurisdiction returns the two-letter state code.
	Jurisdiction() string

	// CacheTTL returns how long this registry's answers stay fresh.
	CacheTTL() time.Duration

	// Check looks up the organization by its nine EIN digits.
	Check(ctx context.Context, einDigits string) (*model.StateRegistration, error)
}

// Option overrides a scraper's endpoint, used by tests.
type Option func(*options)

type options struct {
	searchURL string
}

// WithSearchURL points the scraper at an alternate endpoint.
func WithSearchURL(u string) Option {
	return func(o *options) { o.searchURL = u }
}

func applyOptions(defaultURL string, opts []Option) options {
	o := options{searchURL: defaultURL}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// DefaultScrapers returns the supported jurisdictions.
func DefaultScrapers(f *fetcher.HTTPFetcher) []Scraper {
	return []Scraper{
		NewCalifornia(f),
		NewNewYork(f),
		NewTexas(f),
	}
}
