package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lumen",
	Short: "Lumen is a home-automation control panel backend",
	Long: `Session and credential services for the Lumen control panel: Hue bridge
pairing and proxying, panel sessions, and Hive account authentication.
Complete documentation is available at https://github.com/lumenhq/lumen`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
