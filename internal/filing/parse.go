package filing

import (
	"bytes"
	"encoding/xml"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/language"

	"github.com/sells-group/nonprofit-verify/internal/model"
)

// return990 maps the e-file paths this package reads. Amount fields are
// *string so that an absent element is distinguishable from a present zero.
type return990 struct {
	Officers []officerGrp `xml:"ReturnData>IRS990>Form990PartVIISectionAGrp"`

	ContributionsAndGrants *string `xml:"ReturnData>IRS990>CYContributionsGrantsAmt"`
	ProgramServiceRevenue  *string `xml:"ReturnData>IRS990>CYProgramServiceRevenueAmt"`
	InvestmentIncome       *string `xml:"ReturnData>IRS990>CYInvestmentIncomeAmt"`
	OtherRevenue           *string `xml:"ReturnData>IRS990>CYOtherRevenueAmt"`
	TotalRevenue           *string `xml:"ReturnData>IRS990>CYTotalRevenueAmt"`

	FunctionalExpenses *functionalExpensesGrp `xml:"ReturnData>IRS990>TotalFunctionalExpensesGrp"`

	ScheduleJ []scheduleJGrp `xml:"ReturnData>IRS990ScheduleJ>RptCmpOrganizationGrp"`
}

type officerGrp struct {
	PersonName     *string `xml:"PersonNm"`
	BusinessName   *string `xml:"BusinessName>BusinessNameLine1Txt"`
	Title          *string `xml:"TitleTxt"`
	ReportableComp *string `xml:"ReportableCompFromOrgAmt"`
	OtherComp      *string `xml:"OtherCompensationAmt"`
	HoursPerWeek   *string `xml:"AverageHoursPerWeekRt"`
}

type functionalExpensesGrp struct {
	ProgramServices      *string `xml:"ProgramServicesAmt"`
	ManagementAndGeneral *string `xml:"ManagementAndGeneralAmt"`
	Fundraising          *string `xml:"FundraisingAmt"`
	Total                *string `xml:"TotalAmt"`
}

type scheduleJGrp struct {
	PersonName   *string `xml:"PersonNm"`
	BusinessName *string `xml:"BusinessName>BusinessNameLine1Txt"`
	Base         *string `xml:"BaseCompensationFilingOrgAmt"`
	Bonus        *string `xml:"BonusFilingOrganizationAmount"`
	Other        *string `xml:"OtherCompensationFilingOrgAmt"`
	Deferred     *string `xml:"DeferredCompensationFlngOrgAmt"`
	Nontaxable   *string `xml:"NontaxableBenefitsFilingOrgAmt"`
	Total        *string `xml:"TotalCompensationFilingOrgAmt"`
}

// parseReturn extracts officers, revenue and expense breakdowns, and the
// Schedule J table from e-file XML in a single pass.
func parseReturn(raw []byte) (*Data, error) {
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "filing: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var ret return990
	if err := decoder.Decode(&ret); err != nil {
		return nil, eris.Wrap(err, "filing: decode return xml")
	}

	data := &Data{
		Officers:         parseOfficers(ret.Officers),
		RevenueBreakdown: parseRevenue(&ret),
		ExpenseBreakdown: parseExpenses(ret.FunctionalExpenses),
		ScheduleJ:        parseScheduleJ(ret.ScheduleJ),
	}
	return data, nil
}

func parseOfficers(groups []officerGrp) []model.Officer {
	officers := make([]model.Officer, 0, len(groups))
	for _, g := range groups {
		name := firstName(g.PersonName, g.BusinessName)
		if name == "" {
			continue
		}

		o := model.Officer{Name: normalizeName(name)}
		if g.Title != nil {
			if title := strings.TrimSpace(*g.Title); title != "" {
				o.Title = &title
			}
		}

		// Both compensation elements absent means the filing reported no
		// compensation for this person, not that they earned zero.
		if g.ReportableComp != nil || g.OtherComp != nil {
			total := amountOrZero(g.ReportableComp) + amountOrZero(g.OtherComp)
			o.Compensation = &total
		}

		if g.HoursPerWeek != nil {
			if hours, err := strconv.ParseFloat(strings.TrimSpace(*g.HoursPerWeek), 64); err == nil {
				o.HoursPerWeek = &hours
			}
		}

		officers = append(officers, o)
	}
	return officers
}

func parseRevenue(ret *return990) *model.RevenueBreakdown {
	rb := model.RevenueBreakdown{
		ContributionsAndGrants: amount(ret.ContributionsAndGrants),
		ProgramServiceRevenue:  amount(ret.ProgramServiceRevenue),
		InvestmentIncome:       amount(ret.InvestmentIncome),
		OtherRevenue:           amount(ret.OtherRevenue),
		TotalRevenue:           amount(ret.TotalRevenue),
	}
	if rb.ContributionsAndGrants == nil && rb.ProgramServiceRevenue == nil &&
		rb.InvestmentIncome == nil && rb.OtherRevenue == nil && rb.TotalRevenue == nil {
		return nil
	}
	return &rb
}

func parseExpenses(grp *functionalExpensesGrp) *model.ExpenseBreakdown {
	if grp == nil {
		return nil
	}
	return &model.ExpenseBreakdown{
		ProgramServices:      amount(grp.ProgramServices),
		ManagementAndGeneral: amount(grp.ManagementAndGeneral),
		Fundraising:          amount(grp.Fundraising),
		TotalExpenses:        amount(grp.Total),
	}
}

func parseScheduleJ(groups []scheduleJGrp) []ScheduleJEntry {
	entries := make([]ScheduleJEntry, 0, len(groups))
	for _, g := range groups {
		name := firstName(g.PersonName, g.BusinessName)
		if name == "" {
			continue
		}
		entries = append(entries, ScheduleJEntry{
			Name:                 normalizeName(name),
			BaseCompensation:     amount(g.Base),
			BonusAndIncentive:    amount(g.Bonus),
			OtherCompensation:    amount(g.Other),
			DeferredCompensation: amount(g.Deferred),
			NontaxableBenefits:   amount(g.Nontaxable),
			TotalCompensation:    amount(g.Total),
		})
	}
	return entries
}

func firstName(person, business *string) string {
	if person != nil && strings.TrimSpace(*person) != "" {
		return strings.TrimSpace(*person)
	}
	if business != nil {
		return strings.TrimSpace(*business)
	}
	return ""
}

// amount parses an element's text as a whole-dollar amount. Absent elements
// and unparseable text yield nil.
func amount(s *string) *int64 {
	if s == nil {
		return nil
	}
	text := strings.TrimSpace(*s)
	if text == "" {
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}
	v := int64(f)
	return &v
}

// amountOrZero parses like amount but defaults to 0 for present-but-empty
// or malformed text.
func amountOrZero(s *string) int64 {
	if v := amount(s); v != nil {
		return *v
	}
	return 0
}

// normalizeName converts an all-uppercase source name to title case.
// Mixed-case names pass through unchanged. A cases.Caser is not safe for
// concurrent use, so one is built per call.
func normalizeName(name string) string {
	if name != "" && name == strings.ToUpper(name) {
		return cases.Title(language.AmericanEnglish).String(strings.ToLower(name))
	}
	return name
}

func lowerName(name string) string {
	return strings.ToLower(name)
}
