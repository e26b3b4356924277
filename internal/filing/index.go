package filing

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// indexReturnType restricts matches to full Form 990 filings; 990-EZ,
// 990-PF, and 990-T rows in the same index are skipped.
const indexReturnType = "990"

// Index listing columns:
// RETURN_ID,FILING_TYPE,EIN,TAX_PERIOD,SUB_DATE,NAME,RETURN_TYPE,DLN,OBJECT_ID,ZIP_FILE
const (
	colEIN        = 2
	colTaxPeriod  = 3
	colReturnType = 6
	colObjectID   = 8
	colZipFile    = 9
	minColumns    = 10
)

// searchYearIndex streams one year's index listing and returns the last
// matching row, or nil when the year has no match or the listing cannot be
// fetched. The whole file is scanned because a later row may reference a
// more recent filing. Listings run to hundreds of megabytes, so rows are
// prefiltered with a substring check before splitting.
func (s *Service) searchYearIndex(ctx context.Context, einDigits string, year int) *indexMatch {
	url := fmt.Sprintf("%s/%d/index_%d.csv", s.baseURL, year, year)

	body, err := s.fetcher.Download(ctx, url)
	if err != nil {
		zap.L().Warn("filing index fetch failed",
			zap.Int("year", year),
			zap.Error(err),
		)
		return nil
	}
	defer body.Close() //nolint:errcheck

	var best *indexMatch

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, einDigits) {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < minColumns {
			continue
		}

		if strings.TrimSpace(parts[colEIN]) != einDigits ||
			strings.TrimSpace(parts[colReturnType]) != indexReturnType {
			continue
		}

		best = &indexMatch{
			Year:        year,
			ObjectID:    strings.TrimSpace(parts[colObjectID]),
			ZipFilename: strings.TrimSpace(parts[colZipFile]),
			TaxPeriod:   strings.TrimSpace(parts[colTaxPeriod]),
		}
	}
	if err := scanner.Err(); err != nil {
		zap.L().Warn("filing index scan failed",
			zap.Int("year", year),
			zap.Error(err),
		)
		// A partial scan may still have found the filing; keep what we have.
	}

	return best
}
