package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"sentinel/internal/app"
)

var historyCmd = &cobra.Command{
	Use:          "history [run_id]",
	SilenceUsage: true,
	Short:        "List past healing runs, or show one run's full manifest.",
	Args:         cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := app.NewHistory(appConfig)
		defer store.Close()

		if len(args) == 1 {
			m, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(m, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}

		records, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("no runs recorded")
			return nil
		}
		for _, r := range records {
			fmt.Printf("%s  %s  found=%d healed=%d  %s\n",
				r.RunID,
				r.RecordedAt.Format("2006-01-02 15:04:05"),
				r.VulnerabilitiesFound,
				r.VulnerabilitiesHealed,
				r.Repository)
		}
		return nil
	},
}
