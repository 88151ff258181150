package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sentinel/internal/app"
)

var auditCmd = &cobra.Command{
	Use:          "audit <path>",
	SilenceUsage: true,
	Short:        "Scan a repository and report vulnerabilities without patching.",
	Args:         cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := app.NewLogger("sentinel", appConfig.LogLevel)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, appConfig, log)
		if err != nil {
			return err
		}
		defer a.Close()

		units, err := a.Orchestrator.Collector.Collect(args[0])
		if err != nil {
			return err
		}

		report, err := a.Orchestrator.Auditor.Run(ctx, args[0], units)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(report.Result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
