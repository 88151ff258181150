package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sentinel/internal/manifest"
)

var verifyCmd = &cobra.Command{
	Use:          "verify <path>",
	SilenceUsage: true,
	Short:        "Check the integrity of a repository's run manifest.",
	Args:         cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(args[0])
		if err != nil {
			return err
		}

		problems := m.Verify()
		if len(problems) == 0 {
			fmt.Printf("manifest OK: run %s, %d entries, %d healed\n",
				m.RunID, len(m.Entries), m.Summary.VulnerabilitiesHealed)
			return nil
		}
		for _, p := range problems {
			fmt.Println(p.String())
		}
		return fmt.Errorf("manifest verification failed with %d problem(s)", len(problems))
	},
}
