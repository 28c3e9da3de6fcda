package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"triage-assistant/internal/vitals"
)

func vitalsCmd() *cobra.Command {
	var (
		profileName string
		count       int
		seed        int64
	)

	cmd := &cobra.Command{
		Use:   "vitals",
		Short: "Print synthetic vital samples as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, ok := vitals.ProfileByName(profileName)
			if !ok {
				return fmt.Errorf("unknown profile %q", profileName)
			}
			if seed == 0 {
				seed = time.Now().UnixNano()
			}

			gen := vitals.NewGenerator(profile, seed)
			enc := json.NewEncoder(cmd.OutOrStdout())
			for i := 0; i < count; i++ {
				if err := enc.Encode(gen.Next()); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profileName, "profile", vitals.MonitorProfile.Name, "monitor or home")
	cmd.Flags().IntVarP(&count, "count", "c", vitals.HistorySize, "number of samples")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed, 0 for time based")

	return cmd
}
