// Package filing locates and parses one year's 990 XML e-file for an EIN
// out of the IRS bulk archives. Each year has an index listing mapping EINs
// to object IDs and archive names; the archives themselves run to hundreds
// of megabytes, so only the matched member is fetched. Every failure here
// degrades to "no filing data"; nothing in this package fails a lookup.
package filing

import (
	"time"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// DefaultBaseURL is the IRS bulk e-file root.
const DefaultBaseURL = "https://apps.irs.gov/pub/epostcard/990/xml"

// DefaultCacheTTL covers both positive and confirmed-negative results.
// Filings change at most annually.
const DefaultCacheTTL = 30 * 24 * time.Hour

// ScheduleJEntry is one Schedule J compensation row, keyed for matching
// against officers by lower-cased name.
type ScheduleJEntry struct {
	Name                 string `json:"name"`
	BaseCompensation     *int64 `json:"base_compensation"`
	BonusAndIncentive    *int64 `json:"bonus_and_incentive"`
	OtherCompensation    *int64 `json:"other_compensation"`
	DeferredCompensation *int64 `json:"deferred_compensation"`
	NontaxableBenefits   *int64 `json:"nontaxable_benefits"`
	TotalCompensation    *int64 `json:"total_compensation"`
}

// Data is everything parsed from one e-file in a single pass.
type Data struct {
	Officers         []model.Officer         `json:"officers"`
	RevenueBreakdown *model.RevenueBreakdown `json:"revenue_breakdown,omitempty"`
	ExpenseBreakdown *model.ExpenseBreakdown `json:"expense_breakdown,omitempty"`
	ScheduleJ        []ScheduleJEntry        `json:"schedule_j"`
}

// ScheduleJByName builds the case-insensitive lookup used to attach
// compensation detail to officers.
func (d *Data) ScheduleJByName() map[string]ScheduleJEntry {
	m := make(map[string]ScheduleJEntry, len(d.ScheduleJ))
	for _, e := range d.ScheduleJ {
		m[lowerName(e.Name)] = e
	}
	return m
}

// indexMatch identifies one filing found in a yearly index listing.
type indexMatch struct {
	Year        int    `json:"year"`
	ObjectID    string `json:"object_id"`
	ZipFilename string `json:"zip_filename"`
	TaxPeriod   string `json:"tax_period"`
}
