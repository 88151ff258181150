package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sentinel/internal/config"
)

var (
	appConfig *config.Config

	rootCmd = &cobra.Command{
		Use:          "sentinel [command]",
		SilenceUsage: true,
		Short:        "Sentinel scans a repository for vulnerabilities and heals them in place.",
		Long: `Sentinel orchestrates AI-assisted code remediation: it audits a repository
for security vulnerabilities, generates patches, applies them with
timestamped backups, and records a signed manifest of everything it did.`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(healCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
}

func initConfig() {
	var err error
	appConfig, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration failed: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
