package main

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/nonprofit-verify/internal/verify"
)

var batchFile string

var batchCmd = &cobra.Command{
	Use:   "batch [ein]...",
	Short: "Verify up to 50 nonprofits in one run",
	RunE: func(cmd *cobra.Command, args []string) error {
		eins := args
		if batchFile != "" {
			fromFile, err := readEINFile(batchFile)
			if err != nil {
				return err
			}
			eins = append(eins, fromFile...)
		}
		if len(eins) == 0 {
			return eris.New("no EINs given: pass them as arguments or via --file")
		}

		env, err := initService(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer env.Close()

		local := verify.Principal{ID: "cli", MonthlyLimit: 1 << 30}
		result, err := env.Verify.VerifyBatch(cmd.Context(), local, eins)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// readEINFile reads one EIN per line, skipping blanks and # comments.
func readEINFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var eins []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eins = append(eins, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return eins, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchFile, "file", "", "file with one EIN per line")
	rootCmd.AddCommand(batchCmd)
}
