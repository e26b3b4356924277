// Package enrich merges the primary registry, the 990 e-file archive, and
// the state charity registries into one organization record. The registry
// decides existence; everything else only adds detail, and a secondary
// source failing leaves its fields empty rather than failing the lookup.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/nonprofit-verify/internal/filing"
	"github.com/sells-group/nonprofit-verify/internal/model"
	"github.com/sells-group/nonprofit-verify/pkg/propublica"
)

// subsectionNames maps IRC subsection codes to their common labels. Codes
// outside the map still synthesize a "501(c)(N)" label.
var subsectionNames = map[int64]string{
	3:  "501(c)(3)",
	4:  "501(c)(4)",
	5:  "501(c)(5)",
	6:  "501(c)(6)",
	7:  "501(c)(7)",
	8:  "501(c)(8)",
	9:  "501(c)(9)",
	10: "501(c)(10)",
	13: "501(c)(13)",
	14: "501(c)(14)",
	19: "501(c)(19)",
}

// activeStatusCodes holds the exempt-organization status codes meaning the
// exemption is in good standing. The registry emits both padded and
// unpadded spellings.
var activeStatusCodes = map[propublica.StatusCode]bool{
	"1": true, "2": true, "01": true, "02": true,
}

// FilingSource supplies parsed 990 e-file detail for an EIN, nil when no
// filing could be found or parsed.
type FilingSource interface {
	Get(ctx context.Context, einDigits string) *filing.Data
}

// StateSource checks the state charity registries.
type StateSource interface {
	CheckAll(ctx context.Context, einDigits string) []model.StateRegistration
}

// Enricher aggregates all sources for one EIN.
type Enricher struct {
	registry propublica.Client
	filings  FilingSource
	states   StateSource
	now      func() time.Time
}

// Option configures the enricher.
type Option func(*Enricher)

// WithNow sets a fixed clock for testing provenance dates.
func WithNow(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

// New creates an Enricher over the three sources.
func New(registry propublica.Client, filings FilingSource, states StateSource, opts ...Option) *Enricher {
	e := &Enricher{
		registry: registry,
		filings:  filings,
		states:   states,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Aggregate builds the record for a normalized EIN. Returns (nil, nil) when
// the organization does not exist in the primary registry; secondary source
// outages never make an existing organization absent.
func (e *Enricher) Aggregate(ctx context.Context, ein string) (*model.OrganizationRecord, error) {
	digits := model.EINDigits(ein)

	result, err := e.registry.Lookup(ctx, digits)
	if err != nil || result == nil {
		return nil, err
	}

	// Secondary sources are independent of each other; fetch both at once.
	var (
		filingData *filing.Data
		stateRegs  []model.StateRegistration
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		filingData = e.filings.Get(gCtx, digits)
		return nil
	})
	g.Go(func() error {
		stateRegs = e.states.CheckAll(gCtx, digits)
		return nil
	})
	_ = g.Wait()

	org := result.Organization
	status, revoked := mapStatus(org.StatusCode)

	record := &model.OrganizationRecord{
		EIN:                ein,
		Status:             status,
		Revoked:            revoked,
		Subsection:         mapSubsection(org.SubsectionCode),
		RulingDate:         org.RulingDate,
		NTEECode:           org.NTEECode,
		City:               org.City,
		State:              org.State,
		Financials:         buildFinancials(result.Filings, filingData),
		Personnel:          buildPersonnel(filingData),
		StateRegistrations: stateRegs,
		DataSources:        e.buildProvenance(org.UpdatedAt, result.Filings),
	}
	if org.Name != "" {
		name := org.Name
		record.LegalName = &name
	}
	url := propublica.OrganizationURL(digits)
	record.ProPublicaURL = &url
	if record.StateRegistrations == nil {
		record.StateRegistrations = []model.StateRegistration{}
	}

	return record, nil
}

// mapStatus derives the exemption status and the revoked flag from the raw
// registry code. A present code outside the active set means revoked; an
// absent code means unknown, never revoked.
func mapStatus(code *propublica.StatusCode) (string, bool) {
	if code == nil || *code == "" {
		return model.StatusUnknown, false
	}
	if activeStatusCodes[*code] {
		return model.StatusActive, false
	}
	return model.StatusRevoked, true
}

func mapSubsection(code *propublica.FlexInt) *string {
	if code == nil {
		return nil
	}
	name, ok := subsectionNames[int64(*code)]
	if !ok {
		name = fmt.Sprintf("501(c)(%d)", int64(*code))
	}
	return &name
}

// buildFinancials takes top-line figures from the most recent filing-index
// entry and attaches the e-file breakdowns. With no index entries but parsed
// breakdowns, a breakdown-only summary is still emitted.
func buildFinancials(filings []propublica.Filing, data *filing.Data) *model.FinancialSummary {
	var revenue *model.RevenueBreakdown
	var expenses *model.ExpenseBreakdown
	if data != nil {
		revenue = data.RevenueBreakdown
		expenses = data.ExpenseBreakdown
	}

	if len(filings) > 0 {
		f := filings[0]
		return &model.FinancialSummary{
			TaxYear:          f.TaxPeriodYear,
			Revenue:          f.TotalRevenue,
			Expenses:         f.TotalExpenses,
			Assets:           f.TotalAssets,
			Liabilities:      f.TotalLiabilities,
			RevenueBreakdown: revenue,
			ExpenseBreakdown: expenses,
		}
	}
	if revenue != nil || expenses != nil {
		return &model.FinancialSummary{
			RevenueBreakdown: revenue,
			ExpenseBreakdown: expenses,
		}
	}
	return nil
}

// buildPersonnel copies the parsed officers and attaches Schedule J detail
// on a case-insensitive exact name match.
func buildPersonnel(data *filing.Data) []model.Officer {
	if data == nil || len(data.Officers) == 0 {
		return []model.Officer{}
	}

	byName := data.ScheduleJByName()
	personnel := make([]model.Officer, 0, len(data.Officers))
	for _, officer := range data.Officers {
		if entry, ok := byName[strings.ToLower(officer.Name)]; ok {
			officer.CompensationDetail = &model.CompensationDetail{
				BaseCompensation:     entry.BaseCompensation,
				BonusAndIncentive:    entry.BonusAndIncentive,
				OtherCompensation:    entry.OtherCompensation,
				DeferredCompensation: entry.DeferredCompensation,
				NontaxableBenefits:   entry.NontaxableBenefits,
				TotalCompensation:    entry.TotalCompensation,
			}
		}
		personnel = append(personnel, officer)
	}
	return personnel
}

func (e *Enricher) buildProvenance(updatedAt *string, filings []propublica.Filing) model.Provenance {
	today := e.now().UTC().Format("2006-01-02")
	prov := model.Provenance{ProPublica: &today}

	if updatedAt != nil && len(*updatedAt) >= 10 {
		bmf := (*updatedAt)[:10]
		prov.IRSBMF = &bmf
	}
	if len(filings) > 0 && filings[0].TaxPeriodYear != nil {
		year := fmt.Sprintf("%d", *filings[0].TaxPeriodYear)
		prov.IRS990 = &year
	}
	return prov
}
