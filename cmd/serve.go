package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/reelsight/metrics-cli/internal/blob"
	"github.com/reelsight/metrics-cli/internal/runner"
	"github.com/reelsight/metrics-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job entrypoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

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

		mux, jobs := buildMux(ctx, st, blobs)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// In-flight job runs still need to reach a terminal or paused
		// record before the store closes.
		zap.L().Info("draining background jobs")
		if err := jobs.Wait(); err != nil {
			return eris.Wrap(err, "drain jobs")
		}

		return nil
	},
}

// buildMux wires the job entrypoint routes. Processing always happens in
// a background goroutine so every handler returns immediately; the job
// record is the externally observed contract. Runs are tracked in the
// returned group so the server can drain them before exiting.
func buildMux(ctx context.Context, st store.Store, blobs blob.Store) (*http.ServeMux, *errgroup.Group) {
	mux := http.NewServeMux()
	r := runner.New(st, blobs)
	g := new(errgroup.Group)

	startJob := func(jobID string) {
		p, err := initProvider("")
		if err != nil {
			zap.L().Error("provider init failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		g.Go(func() error {
			if err := r.Run(ctx, jobID, p); err != nil {
				// The failure is already recorded on the job; the group
				// only exists for draining.
				zap.L().Error("job run failed", zap.String("job_id", jobID), zap.Error(err))
			}
			return nil
		})
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /jobs", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			SourceRef string `json:"source_ref"`
			Run       bool   `json:"run"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if body.SourceRef == "" {
			http.Error(w, `{"error":"source_ref is required"}`, http.StatusBadRequest)
			return
		}

		job, err := st.CreateJob(req.Context(), body.SourceRef)
		if err != nil {
			http.Error(w, `{"error":"create job failed"}`, http.StatusInternalServerError)
			return
		}
		if body.Run {
			startJob(job.ID)
		}
		writeJSON(w, http.StatusAccepted, job)
	})

	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
		job, err := st.GetJob(req.Context(), req.PathValue("id"))
		if err != nil {
			if eris.Is(err, store.ErrNotFound) {
				http.Error(w, `{"error":"job not found"}`, http.StatusNotFound)
				return
			}
			http.Error(w, `{"error":"load job failed"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, job)
	})

	mux.HandleFunc("POST /jobs/{id}/run", func(w http.ResponseWriter, req *http.Request) {
		startJob(req.PathValue("id"))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	mux.HandleFunc("POST /jobs/{id}/pause", func(w http.ResponseWriter, req *http.Request) {
		if err := st.RequestPause(req.Context(), req.PathValue("id")); err != nil {
			http.Error(w, `{"error":"job is not processing"}`, http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pause requested"})
	})

	mux.HandleFunc("POST /jobs/{id}/resume", func(w http.ResponseWriter, req *http.Request) {
		startJob(req.PathValue("id"))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	mux.HandleFunc("POST /jobs/{id}/cancel", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(req.Body).Decode(&body)
		if body.Reason == "" {
			body.Reason = "cancelled via api"
		}

		if err := requestCancel(req.Context(), st, req.PathValue("id"), body.Reason); err != nil {
			http.Error(w, `{"error":"job cannot be cancelled"}`, http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel requested"})
	})

	return mux, g
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
