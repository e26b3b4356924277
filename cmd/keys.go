package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	keyName  string
	keyPlan  string
	keyLimit int64
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Mint a new API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		if keyName == "" {
			return eris.New("--name is required")
		}

		limit := keyLimit
		if limit == 0 {
			limit = cfg.Quota.FreeTierMonthlyLimit
		}

		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		created, err := st.CreateAPIKey(cmd.Context(), keyName, keyPlan, limit)
		if err != nil {
			return err
		}

		fmt.Printf("Created API key %s (%s, %d lookups/month)\n", created.ID, created.Plan, created.MonthlyLimit)
		fmt.Printf("Key: %s\n", created.RawKey)
		fmt.Println("Store it now; only its hash is kept.")
		return nil
	},
}

func init() {
	keysCreateCmd.Flags().StringVar(&keyName, "name", "", "key owner name (required)")
	keysCreateCmd.Flags().StringVar(&keyPlan, "plan", "free", "plan label")
	keysCreateCmd.Flags().Int64Var(&keyLimit, "limit", 0, "monthly lookup limit (default from config)")
	keysCmd.AddCommand(keysCreateCmd)
	rootCmd.AddCommand(keysCmd)
}
