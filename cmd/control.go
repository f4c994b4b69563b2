package main

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/reelsight/metrics-cli/internal/model"
	"github.com/reelsight/metrics-cli/internal/runner"
	"github.com/reelsight/metrics-cli/internal/store"
)

var cancelReason string

var pauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Request a pause at the next checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.RequestPause(ctx, args[0]); err != nil {
			return eris.Wrap(err, "pause is only legal while processing")
		}
		fmt.Println("pause requested; takes effect at the next checkpoint")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused job from its last checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

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

		p, err := initProvider("")
		if err != nil {
			return err
		}

		return runner.New(st, blobs).Run(ctx, args[0], p)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a processing or paused job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cancelJob(cmd.Context(), args[0], cancelReason)
	},
}

// cancelJob opens the store and delegates to requestCancel.
func cancelJob(ctx context.Context, jobID, reason string) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	return requestCancel(ctx, st, jobID, reason)
}

// requestCancel cancels cooperatively when a runner is active and
// directly when the job sits paused with no runner observing its flags.
// Any partial output already uploaded stays retrievable either way.
func requestCancel(ctx context.Context, st store.Store, jobID, reason string) error {
	job, err := st.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case model.JobStatusProcessing:
		if err := st.RequestCancel(ctx, jobID, reason); err != nil {
			// The runner may have reached a terminal state since the
			// read above; report rather than guess.
			if eris.Is(err, store.ErrNotClaimable) {
				return eris.Errorf("job %s is no longer processing", jobID)
			}
			return err
		}
		zap.L().Info("cancel requested", zap.String("job_id", jobID))
		return nil
	case model.JobStatusPaused:
		return st.MarkFailed(ctx, jobID, fmt.Sprintf("cancelled: %s", reason))
	default:
		return eris.Errorf("job %s is %s; only processing or paused jobs can be cancelled", jobID, job.Status)
	}
}

func init() {
	cancelCmd.Flags().StringVar(&cancelReason, "reason", "cancelled by operator", "reason recorded on the job")
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cancelCmd)
}
