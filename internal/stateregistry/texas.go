package stateregistry

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/nonprofit-verify/internal/fetcher"
	"github.com/sells-group/nonprofit-verify/internal/model"
)

// Texas queries the Comptroller's open-data exemption table. Texas keys its
// records by an 11-digit state taxpayer number rather than the federal EIN,
// and the endpoint has no server-side filtering, so this lookup is
// best-effort: it requests one page of records and matches them against the
// taxpayer numbers organizations commonly derive from their EIN.
type Texas struct {
	fetcher *fetcher.HTTPFetcher
	apiURL  string
}

const txAPIURL = "https://api.comptroller.texas.gov/open-data/v1/tables/exemption"

// NewTexas creates the TX exemption scraper.
func NewTexas(f *fetcher.HTTPFetcher, opts ...Option) *Texas {
	o := applyOptions(txAPIURL, opts)
	return &Texas{fetcher: f, apiURL: o.searchURL}
}

// Jurisdiction returns "TX".
func (t *Texas) Jurisdiction() string { return "TX" }

// CacheTTL returns three days. Shorter than CA/NY since the heuristic match
// misses organizations whose taxpayer number has no EIN inside it.
func (t *Texas) CacheTTL() time.Duration { return 3 * 24 * time.Hour }

type txResponse struct {
	Success bool       `json:"success"`
	Data    []txRecord `json:"data"`
}

type txRecord struct {
	TaxpayerID    string `json:"tp_id"`
	Name          string `json:"name"`
	Franchise     string `json:"franchise"`
	Sales         string `json:"sales"`
	Hotel         string `json:"hotel"`
	FranchiseDesc string `json:"franchise_desc"`
	SalesDesc     string `json:"sales_desc"`
}

// Check fetches a page of exemption records and matches candidate taxpayer
// numbers against it.
func (t *Texas) Check(ctx context.Context, einDigits string) (*model.StateRegistration, error) {
	body, err := t.fetcher.Download(ctx, t.apiURL+"?limit=200&start=0")
	if err != nil {
		return nil, eris.Wrap(err, "tx exemption api")
	}
	defer body.Close() //nolint:errcheck

	var resp txResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, eris.Wrap(err, "decode tx exemption response")
	}
	if !resp.Success || len(resp.Data) == 0 {
		return nil, nil
	}

	for _, tpID := range taxpayerCandidates(einDigits) {
		if reg := matchTXRecord(resp.Data, tpID); reg != nil {
			return reg, nil
		}
	}
	return nil, nil
}

// taxpayerCandidates lists the 11-digit taxpayer numbers an EIN most often
// maps to: a "1" or "3" entity prefix, the nine EIN digits, and a two-digit
// location suffix.
func taxpayerCandidates(einDigits string) []string {
	return []string{
		"1" + einDigits + "00",
		"1" + einDigits + "01",
		"3" + einDigits + "00",
	}
}

func matchTXRecord(records []txRecord, tpID string) *model.StateRegistration {
	for _, rec := range records {
		if rec.TaxpayerID != tpID {
			continue
		}

		var statuses []string
		if rec.Franchise == "FRANCHISE" {
			statuses = append(statuses, "Franchise Tax Exempt")
		}
		if rec.Sales == "SALES" {
			statuses = append(statuses, "Sales Tax Exempt")
		}
		if rec.Hotel == "HOTEL" {
			statuses = append(statuses, "Hotel Tax Exempt")
		}

		status := "Exempt"
		if len(statuses) > 0 {
			status = strings.Join(statuses, ", ")
		}
		if desc := firstNonEmpty(rec.FranchiseDesc, rec.SalesDesc); desc != "" {
			status += " (" + desc + ")"
		}

		id := tpID
		return &model.StateRegistration{
			State:              "TX",
			Status:             &status,
			RegistrationNumber: &id,
		}
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
