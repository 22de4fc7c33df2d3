package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lumenhq/lumen/secrets"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a credential encryption key",
	Long: `Prints a fresh 256-bit encryption key as 64 hex characters. Export it as
LUMEN_ENCRYPTION_KEY or write it to the key file in the data directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := secrets.GenerateKey()
		if err != nil {
			return fmt.Errorf("generating key: %w", err)
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
}
