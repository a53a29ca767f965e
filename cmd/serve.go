package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/opportunity-cli/internal/model"
	"github.com/sells-group/opportunity-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job trigger and worker endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type", "X-Trigger-Secret"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Post("/jobs/trigger", func(w http.ResponseWriter, req *http.Request) {
			if cfg.Server.TriggerSecret != "" && req.Header.Get("X-Trigger-Secret") != cfg.Server.TriggerSecret {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid trigger secret"})
				return
			}

			id, err := e.Queue.EnqueueCoordinator(req.Context())
			if err != nil {
				zap.L().Error("trigger enqueue failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
		})

		r.Post("/jobs/work", func(w http.ResponseWriter, req *http.Request) {
			job, err := e.Worker.Process(req.Context())
			if job == nil && err == nil {
				writeJSON(w, http.StatusOK, map[string]string{"status": "idle"})
				return
			}
			if job == nil {
				zap.L().Error("work cycle failed", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "dequeue failed"})
				return
			}
			// A failed job is a handled outcome; the tick itself succeeded.
			writeJSON(w, http.StatusOK, map[string]string{
				"job_id": job.ID,
				"type":   string(job.Type),
				"status": string(job.Status),
			})
		})

		r.Get("/records", handleListRecords(e.Store))
		r.Get("/records/{id}", handleGetRecord(e.Store))

		r.Get("/jobs/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := chi.URLParam(req, "id")
			job, err := e.Queue.Status(req.Context(), id)
			if err != nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
				return
			}

			resp := map[string]any{"job": job}
			if pos, ok, posErr := e.Queue.QueuePosition(req.Context(), id); posErr == nil && ok {
				resp["queue_position"] = pos
			}
			writeJSON(w, http.StatusOK, resp)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// handleListRecords serves processed records, filterable by source document,
// minimum idea score, and limit.
func handleListRecords(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		filter := store.RecordFilter{SourceID: q.Get("source_id")}
		if v := q.Get("min_score"); v != "" {
			score, err := strconv.ParseFloat(v, 64)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid min_score"})
				return
			}
			filter.MinScore = score
		}
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			filter.Limit = n
		}

		recs, err := st.ListRecords(req.Context(), filter)
		if err != nil {
			zap.L().Error("list records failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list failed"})
			return
		}
		if recs == nil {
			recs = []model.Record{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": recs, "count": len(recs)})
	}
}

func handleGetRecord(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		rec, err := st.GetRecord(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
				return
			}
			zap.L().Error("get record failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
