package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reelsight/metrics-cli/internal/runner"
)

var (
	submitRun  bool
	submitMode string
)

var submitCmd = &cobra.Command{
	Use:   "submit <spreadsheet.xlsx>",
	Short: "Upload a spreadsheet and create an annotation job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrapf(err, "read %s", args[0])
		}

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

		sourceRef := fmt.Sprintf("sources/%s.xlsx", uuid.New().String())
		if err := blobs.Upload(ctx, sourceRef, data); err != nil {
			return eris.Wrap(err, "upload source document")
		}

		job, err := st.CreateJob(ctx, sourceRef)
		if err != nil {
			return eris.Wrap(err, "create job")
		}
		zap.L().Info("job created", zap.String("job_id", job.ID), zap.String("source_ref", sourceRef))

		if submitRun {
			p, err := initProvider(submitMode)
			if err != nil {
				return err
			}
			if err := runner.New(st, blobs).Run(ctx, job.ID, p); err != nil {
				return err
			}
			job, err = st.GetJob(ctx, job.ID)
			if err != nil {
				return err
			}
		}

		out, _ := json.MarshalIndent(job, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	submitCmd.Flags().BoolVar(&submitRun, "run", false, "process the job immediately")
	submitCmd.Flags().StringVar(&submitMode, "mode", "", "fetch mode override (synthetic, bulk, peritem)")
	rootCmd.AddCommand(submitCmd)
}
