package stateregistry

import (
	"context"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/fetcher"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// California scrapes the Attorney General's Registry of Charitable Trusts.
// The site is an ASP.NET WebForms app, so each lookup first GETs the search
// page for fresh __VIEWSTATE and __EVENTVALIDATION tokens, then POSTs the
// form with the FEIN.
//
// Results table columns: Registration Number, Record Type, Organization Name,
// Registry Status, City, State, FEIN.
type California struct {
	fetcher   *fetcher.HTTPFetcher
	searchURL string
}

const caSearchURL = "https://rct.doj.ca.gov/Verification/Web/Search.aspx?facility=Y"

// NewCalifornia creates the CA registry scraper.
func NewCalifornia(f *fetcher.HTTPFetcher, opts ...Option) *California {
	o := applyOptions(caSearchURL, opts)
	return &California{fetcher: f, searchURL: o.searchURL}
}

// Jurisdiction returns "CA".
func (c *California) Jurisdiction() string { return "CA" }

// CacheTTL returns seven days.
func (c *California) CacheTTL() time.Duration { return 7 * 24 * time.Hour }

var aspTokenNames = []string{"__VIEWSTATE", "__VIEWSTATEGENERATOR", "__EVENTVALIDATION"}

// Check performs the two-step ASP.NET form search.
func (c *California) Check(ctx context.Context, einDigits string) (*model.StateRegistration, error) {
	session := c.fetcher.NewSession()

	body, err := session.Get(ctx, c.searchURL)
	if err != nil {
		return nil, eris.Wrap(err, "ca search page")
	}
	tokens, err := extractASPTokens(body)
	_ = body.Close()
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"t_web_lookup__federal_id":          {einDigits},
		"t_web_lookup__license_no":          {""},
		"t_web_lookup__charter_number":      {""},
		"t_web_lookup__full_name":           {""},
		"t_web_lookup__doing_business_as":   {""},
		"t_web_lookup__profession_name":     {""},
		"t_web_lookup__license_type_name":   {""},
		"t_web_lookup__license_status_name": {""},
		"sch_button":                        {"Search"},
	}
	for name, value := range tokens {
		form.Set(name, value)
	}

	results, err := session.PostForm(ctx, c.searchURL, form)
	if err != nil {
		return nil, eris.Wrap(err, "ca search submit")
	}
	defer results.Close() //nolint:errcheck

	return parseCAResults(results, einDigits)
}

// extractASPTokens pulls the hidden WebForms fields out of the search page.
func extractASPTokens(r io.Reader) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "parse ca search page")
	}
	tokens := make(map[string]string, len(aspTokenNames))
	for _, name := range aspTokenNames {
		value, ok := doc.Find(`input[name="` + name + `"]`).First().Attr("value")
		if !ok || value == "" {
			return nil, eris.Errorf("ca search page missing %s token", name)
		}
		tokens[name] = value
	}
	return tokens, nil
}

var (
	caDatagridID = regexp.MustCompile(`(?i)datagrid`)
	nonDigits    = regexp.MustCompile(`\D`)
)

// parseCAResults scans the results HTML for a row whose FEIN cell matches.
// Column positions drift between record types, so the FEIN is matched against
// every cell with punctuation stripped.
func parseCAResults(r io.Reader, einDigits string) (*model.StateRegistration, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "parse ca results")
	}

	table := findCAResultsTable(doc)
	if table == nil {
		return nil, nil
	}

	var reg *model.StateRegistration
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 || reg != nil {
			return
		}
		cells := row.Find("td")
		if cells.Length() < 4 {
			return
		}
		texts := cellTexts(cells)

		matched := false
		for _, text := range texts {
			if nonDigits.ReplaceAllString(text, "") == einDigits {
				matched = true
				break
			}
		}
		if !matched {
			return
		}

		reg = &model.StateRegistration{State: "CA"}
		if texts[0] != "" {
			reg.RegistrationNumber = &texts[0]
		}
		if texts[3] != "" {
			reg.Status = &texts[3]
		}
	})
	return reg, nil
}

func findCAResultsTable(doc *goquery.Document) *goquery.Selection {
	var table *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if id, ok := t.Attr("id"); ok && caDatagridID.MatchString(id) {
			table = t
			return false
		}
		return true
	})
	if table != nil {
		return table
	}

	// No datagrid id; fall back to header sniffing.
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		hasRegistration, hasStatus := false, false
		t.Find("th").Each(func(_ int, th *goquery.Selection) {
			h := strings.ToLower(strings.TrimSpace(th.Text()))
			if strings.Contains(h, "registration") {
				hasRegistration = true
			}
			if strings.Contains(h, "status") {
				hasStatus = true
			}
		})
		if hasRegistration && hasStatus {
			table = t
			return false
		}
		return true
	})
	return table
}

func cellTexts(cells *goquery.Selection) []string {
	texts := make([]string, cells.Length())
	cells.Each(func(i int, cell *goquery.Selection) {
		texts[i] = strings.TrimSpace(cell.Text())
	})
	return texts
}
