package stateregistry

import (
	"context"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/fetcher"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// NewYork scrapes the Charities Bureau registry search. A single POST with
// the EIN split into its 2+7 digit groups returns an HTML results table:
// Organization Name | NY_Reg#_ | EIN | Registrant Type | City | State.
type NewYork struct {
	fetcher   *fetcher.HTTPFetcher
	searchURL string
}

const nySearchURL = "https://www.charitiesnys.com/RegistrySearch/search_charities_action.jsp"

// NewNewYork creates the NY registry scraper.
func NewNewYork(f *fetcher.HTTPFetcher, opts ...Option) *NewYork {
	o := applyOptions(nySearchURL, opts)
	return &NewYork{fetcher: f, searchURL: o.searchURL}
}

// Jurisdiction returns "NY".
func (n *NewYork) Jurisdiction() string { return "NY" }

// CacheTTL returns seven days.
func (n *NewYork) CacheTTL() time.Duration { return 7 * 24 * time.Hour }

// Check submits the registry search form and parses the results table.
func (n *NewYork) Check(ctx context.Context, einDigits string) (*model.StateRegistration, error) {
	form := url.Values{
		"project":    {"Charities"},
		"reg1":       {""},
		"reg2":       {""},
		"reg3":       {""},
		"orgId":      {""},
		"num1":       {einDigits[:2]},
		"num2":       {einDigits[2:]},
		"ein":        {einDigits},
		"orgName":    {""},
		"searchType": {"contains"},
		"regType":    {"ALL"},
	}

	body, err := n.fetcher.NewSession().PostForm(ctx, n.searchURL, form)
	if err != nil {
		return nil, eris.Wrap(err, "ny search submit")
	}
	defer body.Close() //nolint:errcheck

	return parseNYResults(body, einDigits)
}

// parseNYResults scans the Bordered results table for a row whose EIN column
// matches. The search page shows no explicit status; presence in the registry
// means registered, qualified by the registrant type.
func parseNYResults(r io.Reader, einDigits string) (*model.StateRegistration, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "parse ny results")
	}

	table := doc.Find("table.Bordered").First()
	if table.Length() == 0 {
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

		rowEIN := strings.ReplaceAll(texts[2], "-", "")
		if rowEIN != einDigits {
			return
		}

		status := "Registered"
		if texts[3] != "" {
			status = "Registered (" + texts[3] + ")"
		}
		reg = &model.StateRegistration{State: "NY", Status: &status}
		if texts[1] != "" {
			reg.RegistrationNumber = &texts[1]
		}
	})
	return reg, nil
}
