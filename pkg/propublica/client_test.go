package propublica

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orgJSON = `{
  "organization": {
    "name": "AMERICAN NATIONAL RED CROSS",
    "subsection_code": 3,
    "ruling_date": "1938-03-01",
    "exempt_organization_status_code": 1,
    "ntee_code": "P43",
    "city": "Washington",
    "state": "DC",
    "updated_at": "2025-11-02T00:12:44Z"
  },
  "filings_with_data": [
    {"tax_prd_yr": 2023, "totrevenue": 3100000000, "totfuncexpns": 3000000000, "totassetsend": 3500000000, "totliabend": 1200000000},
    {"tax_prd_yr": 2022, "totrevenue": 2900000000}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(WithBaseURL(srv.URL))
}

func TestLookup_OK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/organizations/530196605.json", r.URL.Path)
		_, _ = w.Write([]byte(orgJSON))
	})

	res, err := c.Lookup(context.Background(), "530196605")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, "AMERICAN NATIONAL RED CROSS", res.Organization.Name)
	require.NotNil(t, res.Organization.SubsectionCode)
	assert.Equal(t, FlexInt(3), *res.Organization.SubsectionCode)
	require.NotNil(t, res.Organization.StatusCode)
	assert.Equal(t, StatusCode("1"), *res.Organization.StatusCode)
	require.Len(t, res.Filings, 2)
	assert.Equal(t, int64(2023), *res.Filings[0].TaxPeriodYear)
	assert.Nil(t, res.Filings[1].TotalAssets)
}

func TestLookup_StringStatusCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organization":{"name":"X","subsection_code":"4","ruling_date":"1990-01-01","exempt_organization_status_code":"01"},"filings_with_data":[]}`))
	})

	res, err := c.Lookup(context.Background(), "112222333")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, StatusCode("01"), *res.Organization.StatusCode)
	assert.Equal(t, FlexInt(4), *res.Organization.SubsectionCode)
}

func TestLookup_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	res, err := c.Lookup(context.Background(), "000000000")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestLookup_StubRecordIsAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"organization":{"name":"Unknown Organization"},"filings_with_data":[]}`))
	})

	res, err := c.Lookup(context.Background(), "999999999")
	require.NoError(t, err)
	assert.Nil(t, res, "stub records must be treated as absent")
}

func TestLookup_ServerErrorIsAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	res, err := c.Lookup(context.Background(), "530196605")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestLookup_GarbageBodyIsAbsent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})

	res, err := c.Lookup(context.Background(), "530196605")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestOrganizationURL(t *testing.T) {
	assert.Equal(t,
		"https://projects.propublica.org/nonprofits/organizations/530196605",
		OrganizationURL("530196605"),
	)
}
