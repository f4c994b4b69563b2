package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reelsight/metrics-cli/internal/runner"
)

var runMode string

var runCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Start or resume processing a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		jobID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		blobs, err := initBlob(ctx)
		if err != nil {
			return err
		}
		defer blobs.Close()

		p, err := initProvider(runMode)
		if err != nil {
			return err
		}

		if err := runner.New(st, blobs).Run(ctx, jobID, p); err != nil {
			return err
		}

		job, err := st.GetJob(ctx, jobID)
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(job, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", "", "fetch mode override (synthetic, bulk, peritem)")
	rootCmd.AddCommand(runCmd)
}
