// Package propublica provides a client for the ProPublica Nonprofit
// Explorer API, the primary registry for organization status and the filing
// index. The provider is unreliable and non-fatal: not-found, stub records,
// and transport failures all come back as an absent result, never an error
// the pipeline would surface.
package propublica

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://projects.propublica.org/nonprofits/api/v2"

// stubName is the placeholder the provider returns for EINs it has never
// seen. A record bearing it with no subsection code and no ruling date is
// not a real organization.
const stubName = "Unknown Organization"

// FlexInt unmarshals a JSON number or numeric string. The provider is not
// consistent about which it emits.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" {
		return nil
	}
	if len(s) >= 2 && s[0] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("propublica: parse int %q: %w", s, err)
	}
	*f = FlexInt(v)
	return nil
}

// StatusCode preserves the provider's raw exempt-organization status code,
// an integer for some organizations and a padded string for others. The two
// spellings are distinct values in the active-code set, so the raw text is
// kept.
type StatusCode string

func (s *StatusCode) UnmarshalJSON(b []byte) error {
	raw := string(b)
	if raw == "null" {
		return nil
	}
	if len(raw) >= 2 && raw[0] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	*s = StatusCode(raw)
	return nil
}

// Organization is the registry's organization fragment.
type Organization struct {
	Name           string      `json:"name"`
	SubsectionCode *FlexInt    `json:"subsection_code"`
	RulingDate     *string     `json:"ruling_date"`
	StatusCode     *StatusCode `json:"exempt_organization_status_code"`
	NTEECode       *string     `json:"ntee_code"`
	City           *string     `json:"city"`
	State          *string     `json:"state"`
	UpdatedAt      *string     `json:"updated_at"`
}

// Filing is one filing-index entry. The index carries top-line financials;
// detail comes from the e-file archive, not from here.
type Filing struct {
	TaxPeriodYear    *int64 `json:"tax_prd_yr"`
	TotalRevenue     *int64 `json:"totrevenue"`
	TotalExpenses    *int64 `json:"totfuncexpns"`
	TotalAssets      *int64 `json:"totassetsend"`
	TotalLiabilities *int64 `json:"totliabend"`
}

// Result is the registry fragment for one EIN.
type Result struct {
	Organization Organization `json:"organization"`
	Filings      []Filing     `json:"filings_with_data"`
}

// isStub reports whether the provider returned a placeholder record.
func (r *Result) isStub() bool {
	org := r.Organization
	return org.SubsectionCode == nil && org.RulingDate == nil && org.Name == stubName
}

// Client looks up an organization in the primary registry.
type Client interface {
	// Lookup fetches the registry fragment for a digits-only EIN.
	// Returns (nil, nil) when the provider reports not-found, returns a
	// stub record, or fails in any way.
	Lookup(ctx context.Context, einDigits string) (*Result, error)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a ProPublica client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Lookup(ctx context.Context, einDigits string) (*Result, error) {
	url := fmt.Sprintf("%s/organizations/%s.json", c.baseURL, einDigits)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil
	}

	resp, err := c.http.Do(req)
	if err != nil {
		zap.L().Warn("propublica request failed", zap.String("ein", einDigits), zap.Error(err))
		return nil, nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		zap.L().Warn("propublica non-ok status",
			zap.String("ein", einDigits),
			zap.Int("status", resp.StatusCode),
		)
		return nil, nil
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		zap.L().Warn("propublica decode failed", zap.String("ein", einDigits), zap.Error(err))
		return nil, nil
	}

	if result.isStub() {
		return nil, nil
	}

	return &result, nil
}

// OrganizationURL returns the human-facing profile URL for an EIN.
func OrganizationURL(einDigits string) string {
	return "https://projects.propublica.org/nonprofits/organizations/" + einDigits
}
