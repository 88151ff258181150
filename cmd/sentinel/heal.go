package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sentinel/internal/app"
	"sentinel/internal/orchestrator"
)

var healShowThinking bool

var healCmd = &cobra.Command{
	Use:          "heal <path>",
	SilenceUsage: true,
	Short:        "Run a full healing cycle over a repository.",
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

		if healShowThinking {
			a.Orchestrator.Hooks.OnReasoning = func(e orchestrator.ReasoningEvent) {
				fmt.Fprint(os.Stderr, e.Text)
			}
		}

		summary, err := a.Orchestrator.Run(ctx, args[0])
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if summary.VulnerabilitiesFound > summary.VulnerabilitiesHealed {
			fmt.Fprintf(os.Stderr, "%d of %d vulnerabilities could not be healed\n",
				summary.VulnerabilitiesFound-summary.VulnerabilitiesHealed,
				summary.VulnerabilitiesFound)
		}
		return nil
	},
}

func init() {
	healCmd.Flags().BoolVar(&healShowThinking, "thinking", false, "stream model reasoning to stderr while patching")
}
