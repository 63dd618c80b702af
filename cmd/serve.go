package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vnnovate/relations-cli/internal/catalog"
	"github.com/vnnovate/relations-cli/internal/model"
	"github.com/vnnovate/relations-cli/internal/relations"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the relation engine over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(requestLogger)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/api/status", func(w http.ResponseWriter, req *http.Request) {
			datasets := selectDatasets(env, req)
			readiness, err := env.Reindexer.Status(req.Context(), datasets)
			if err != nil {
				writeError(w, err)
				return
			}
			stats, err := env.Store.Stats(req.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"readiness": readiness,
				"stats":     stats,
				"datasets":  len(datasets),
			})
		})

		r.Get("/api/groups", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			page, _ := strconv.Atoi(q.Get("page"))

			result, err := env.Relations.ListGroups(req.Context(), relations.ListRequest{
				Datasets:        selectDatasets(env, req),
				Mode:            model.MatchMode(q.Get("mode")),
				CrossTenantOnly: q.Get("cross_tenant") == "true",
				Search:          q.Get("search"),
				Page:            page,
			})
			if err != nil {
				writeError(w, err)
				return
			}
			if !result.Readiness.Ready {
				// Known-stale index: tell the client to poll, never serve
				// stale groups.
				writeJSON(w, http.StatusAccepted, map[string]any{
					"indexing": true,
					"pending":  result.Readiness.Pending,
				})
				return
			}
			writeJSON(w, http.StatusOK, result)
		})

		r.Get("/api/records", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			records, err := env.Relations.LookupRecords(req.Context(), relations.LookupRequest{
				Datasets: selectDatasets(env, req),
				Phone:    q.Get("phone"),
				Email:    q.Get("email"),
			})
			if err != nil {
				writeError(w, err)
				return
			}
			if records == nil {
				records = []model.FileRecords{}
			}
			writeJSON(w, http.StatusOK, map[string]any{"file_groups": records})
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
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// selectDatasets applies the optional ?datasets=1,2,3 filter to the catalog.
func selectDatasets(e *env, req *http.Request) []model.Dataset {
	raw := req.URL.Query().Get("datasets")
	if raw == "" {
		return e.Datasets
	}
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err == nil {
			ids = append(ids, id)
		}
	}
	return catalog.Filter(e.Datasets, ids)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		reqID := uuid.New().String()
		start := time.Now()
		next.ServeHTTP(w, req)
		zap.L().Info("request",
			zap.String("request_id", reqID),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
