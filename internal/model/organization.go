package model

// RevenueBreakdown holds the Part VIII revenue detail parsed from a 990
// e-file. Every field is independently optional.
type RevenueBreakdown struct {
	ContributionsAndGrants *int64 `json:"contributions_and_grants,omitempty"`
	ProgramServiceRevenue  *int64 `json:"program_service_revenue,omitempty"`
	InvestmentIncome       *int64 `json:"investment_income,omitempty"`
	OtherRevenue           *int64 `json:"other_revenue,omitempty"`
	TotalRevenue           *int64 `json:"total_revenue,omitempty"`
}

// ExpenseBreakdown holds the Part IX functional expense detail.
type ExpenseBreakdown struct {
	ProgramServices      *int64 `json:"program_services,omitempty"`
	ManagementAndGeneral *int64 `json:"management_and_general,omitempty"`
	Fundraising          *int64 `json:"fundraising,omitempty"`
	TotalExpenses        *int64 `json:"total_expenses,omitempty"`
}

// CompensationDetail is the Schedule J breakdown of one officer's pay.
type CompensationDetail struct {
	BaseCompensation     *int64 `json:"base_compensation,omitempty"`
	BonusAndIncentive    *int64 `json:"bonus_and_incentive,omitempty"`
	OtherCompensation    *int64 `json:"other_compensation,omitempty"`
	DeferredCompensation *int64 `json:"deferred_compensation,omitempty"`
	NontaxableBenefits   *int64 `json:"nontaxable_benefits,omitempty"`
	TotalCompensation    *int64 `json:"total_compensation,omitempty"`
}

// FinancialSummary combines top-line figures from the most recent filing
// index entry with optional detail breakdowns from the parsed e-file.
// Presence of one breakdown does not imply presence of the other.
type FinancialSummary struct {
	TaxYear          *int64            `json:"tax_year,omitempty"`
	Revenue          *int64            `json:"revenue,omitempty"`
	Expenses         *int64            `json:"expenses,omitempty"`
	Assets           *int64            `json:"assets,omitempty"`
	Liabilities      *int64            `json:"liabilities,omitempty"`
	RevenueBreakdown *RevenueBreakdown `json:"revenue_breakdown,omitempty"`
	ExpenseBreakdown *ExpenseBreakdown `json:"expense_breakdown,omitempty"`
}

// Officer is one Part VII Section A entry. Compensation is nil when the
// filing carried no compensation elements at all for the person, which is
// different from an explicit zero. CompensationDetail is attached only on a
// case-insensitive exact name match against Schedule J, never inferred.
type Officer struct {
	Name               string              `json:"name"`
	Title              *string             `json:"title,omitempty"`
	Compensation       *int64              `json:"compensation,omitempty"`
	HoursPerWeek       *float64            `json:"hours_per_week,omitempty"`
	CompensationDetail *CompensationDetail `json:"compensation_detail,omitempty"`
}

// StateRegistration is one jurisdiction's charity-registry row. Jurisdictions
// with no registration are omitted from the record, never emitted as
// explicit "not registered" entries.
type StateRegistration struct {
	State              string  `json:"state"`
	Status             *string `json:"status,omitempty"`
	RegistrationNumber *string `json:"registration_number,omitempty"`
}

// Provenance records which source last updated the record's fields and when.
type Provenance struct {
	IRSBMF     *string `json:"irs_bmf,omitempty"`
	IRS990     *string `json:"irs_990,omitempty"`
	ProPublica *string `json:"propublica,omitempty"`
}

// ExemptionStatus values derived from the primary registry status code.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
	StatusUnknown = "unknown"
)

// OrganizationRecord is the canonical aggregated result for one EIN. Built
// fresh per lookup, immutable once constructed, and serialized verbatim into
// the cache.
type OrganizationRecord struct {
	EIN                string              `json:"ein"`
	LegalName          *string             `json:"legal_name,omitempty"`
	Status             string              `json:"status"`
	Subsection         *string             `json:"subsection,omitempty"`
	RulingDate         *string             `json:"ruling_date,omitempty"`
	Revoked            bool                `json:"revoked"`
	NTEECode           *string             `json:"ntee_code,omitempty"`
	City               *string             `json:"city,omitempty"`
	State              *string             `json:"state,omitempty"`
	Financials         *FinancialSummary   `json:"financials,omitempty"`
	Personnel          []Officer           `json:"personnel"`
	StateRegistrations []StateRegistration `json:"state_registrations"`
	DataSources        Provenance          `json:"data_sources"`
	ProPublicaURL      *string             `json:"propublica_url,omitempty"`
}
