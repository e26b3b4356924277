package filing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const returnXML = `<?xml version="1.0" encoding="utf-8"?>
<Return xmlns="http://www.irs.gov/efile">
  <ReturnData>
    <IRS990>
      <CYContributionsGrantsAmt>500000</CYContributionsGrantsAmt>
      <CYProgramServiceRevenueAmt>250000</CYProgramServiceRevenueAmt>
      <CYTotalRevenueAmt>750000</CYTotalRevenueAmt>
      <TotalFunctionalExpensesGrp>
        <ProgramServicesAmt>400000</ProgramServicesAmt>
        <ManagementAndGeneralAmt>100000</ManagementAndGeneralAmt>
        <FundraisingAmt>50000</FundraisingAmt>
        <TotalAmt>550000</TotalAmt>
      </TotalFunctionalExpensesGrp>
      <Form990PartVIISectionAGrp>
        <PersonNm>JANE SMITH</PersonNm>
        <TitleTxt>CEO</TitleTxt>
        <AverageHoursPerWeekRt>40.00</AverageHoursPerWeekRt>
        <ReportableCompFromOrgAmt>185000</ReportableCompFromOrgAmt>
        <OtherCompensationAmt>15000</OtherCompensationAmt>
      </Form990PartVIISectionAGrp>
      <Form990PartVIISectionAGrp>
        <PersonNm>Robert di Marco</PersonNm>
        <TitleTxt>Director</TitleTxt>
        <AverageHoursPerWeekRt>2.5</AverageHoursPerWeekRt>
      </Form990PartVIISectionAGrp>
      <Form990PartVIISectionAGrp>
        <PersonNm>PAT LEE</PersonNm>
        <TitleTxt>Treasurer</TitleTxt>
        <ReportableCompFromOrgAmt>0</ReportableCompFromOrgAmt>
      </Form990PartVIISectionAGrp>
      <Form990PartVIISectionAGrp>
        <BusinessName>
          <BusinessNameLine1Txt>ACME MANAGEMENT LLC</BusinessNameLine1Txt>
        </BusinessName>
        <TitleTxt>Manager</TitleTxt>
        <ReportableCompFromOrgAmt>90000</ReportableCompFromOrgAmt>
      </Form990PartVIISectionAGrp>
    </IRS990>
    <IRS990ScheduleJ>
      <RptCmpOrganizationGrp>
        <PersonNm>JANE SMITH</PersonNm>
        <BaseCompensationFilingOrgAmt>150000</BaseCompensationFilingOrgAmt>
        <BonusFilingOrganizationAmount>25000</BonusFilingOrganizationAmount>
        <OtherCompensationFilingOrgAmt>10000</OtherCompensationFilingOrgAmt>
        <DeferredCompensationFlngOrgAmt>8000</DeferredCompensationFlngOrgAmt>
        <NontaxableBenefitsFilingOrgAmt>7000</NontaxableBenefitsFilingOrgAmt>
        <TotalCompensationFilingOrgAmt>200000</TotalCompensationFilingOrgAmt>
      </RptCmpOrganizationGrp>
    </IRS990ScheduleJ>
  </ReturnData>
</Return>`

func TestParseReturn_Officers(t *testing.T) {
	data, err := parseReturn([]byte(returnXML))
	require.NoError(t, err)
	require.Len(t, data.Officers, 4)

	ceo := data.Officers[0]
	assert.Equal(t, "Jane Smith", ceo.Name, "all-caps names are title-cased")
	assert.Equal(t, "CEO", *ceo.Title)
	require.NotNil(t, ceo.Compensation)
	assert.Equal(t, int64(200000), *ceo.Compensation, "reportable plus other compensation")
	assert.Equal(t, 40.0, *ceo.HoursPerWeek)

	director := data.Officers[1]
	assert.Equal(t, "Robert di Marco", director.Name, "mixed-case names pass through")
	assert.Nil(t, director.Compensation, "no compensation elements at all means absent, not zero")
	assert.Equal(t, 2.5, *director.HoursPerWeek)

	treasurer := data.Officers[2]
	require.NotNil(t, treasurer.Compensation)
	assert.Equal(t, int64(0), *treasurer.Compensation, "an explicit zero is reported as zero")

	business := data.Officers[3]
	assert.Equal(t, "Acme Management Llc", business.Name)
}

func TestParseReturn_RevenueBreakdown(t *testing.T) {
	data, err := parseReturn([]byte(returnXML))
	require.NoError(t, err)

	rb := data.RevenueBreakdown
	require.NotNil(t, rb)
	assert.Equal(t, int64(500000), *rb.ContributionsAndGrants)
	assert.Equal(t, int64(250000), *rb.ProgramServiceRevenue)
	assert.Equal(t, int64(750000), *rb.TotalRevenue)
	assert.Nil(t, rb.InvestmentIncome, "absent fields stay absent")
	assert.Nil(t, rb.OtherRevenue)
}

func TestParseReturn_ExpenseBreakdown(t *testing.T) {
	data, err := parseReturn([]byte(returnXML))
	require.NoError(t, err)

	eb := data.ExpenseBreakdown
	require.NotNil(t, eb)
	assert.Equal(t, int64(400000), *eb.ProgramServices)
	assert.Equal(t, int64(550000), *eb.TotalExpenses)
}

func TestParseReturn_ScheduleJ(t *testing.T) {
	data, err := parseReturn([]byte(returnXML))
	require.NoError(t, err)
	require.Len(t, data.ScheduleJ, 1)

	entry := data.ScheduleJ[0]
	assert.Equal(t, "Jane Smith", entry.Name)
	assert.Equal(t, int64(150000), *entry.BaseCompensation)
	assert.Equal(t, int64(200000), *entry.TotalCompensation)

	byName := data.ScheduleJByName()
	_, ok := byName["jane smith"]
	assert.True(t, ok, "lookup is keyed by lower-cased name")
}

func TestParseReturn_NoBreakdowns(t *testing.T) {
	minimal := `<Return xmlns="http://www.irs.gov/efile"><ReturnData><IRS990>
	  <Form990PartVIISectionAGrp><PersonNm>A B</PersonNm></Form990PartVIISectionAGrp>
	</IRS990></ReturnData></Return>`

	data, err := parseReturn([]byte(minimal))
	require.NoError(t, err)
	assert.Nil(t, data.RevenueBreakdown, "breakdown emitted only when at least one field is present")
	assert.Nil(t, data.ExpenseBreakdown, "breakdown emitted only when the expense group exists")
	assert.Len(t, data.Officers, 1)
	assert.Empty(t, data.ScheduleJ)
}

func TestParseReturn_Malformed(t *testing.T) {
	_, err := parseReturn([]byte("<Return><unclosed"))
	assert.Error(t, err)
}

func TestParseReturn_FractionalAmounts(t *testing.T) {
	doc := `<Return xmlns="http://www.irs.gov/efile"><ReturnData><IRS990>
	  <CYTotalRevenueAmt>1234.00</CYTotalRevenueAmt>
	</IRS990></ReturnData></Return>`

	data, err := parseReturn([]byte(doc))
	require.NoError(t, err)
	require.NotNil(t, data.RevenueBreakdown)
	assert.Equal(t, int64(1234), *data.RevenueBreakdown.TotalRevenue)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Jane Smith", normalizeName("JANE SMITH"))
	assert.Equal(t, "Jane Smith", normalizeName("Jane Smith"))
	assert.Equal(t, "Robert di Marco", normalizeName("Robert di Marco"))
}
