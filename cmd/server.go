package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/metrics"
	"github.com/sells-group/cdc-cli/internal/report"
	"github.com/sells-group/cdc-cli/internal/store"
)

// newRouter serves pipeline status over HTTP.
func newRouter(st store.Store, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Get("/runs", func(w http.ResponseWriter, r *http.Request) {
		filter := store.RunFilter{Pipeline: r.URL.Query().Get("pipeline")}
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
				return
			}
			filter.Limit = n
		}
		runs, err := st.ListRuns(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/versions/{key}", func(w http.ResponseWriter, r *http.Request) {
		key, err := strconv.ParseInt(chi.URLParam(r, "key"), 10, 64)
		if err != nil || key <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order key"})
			return
		}
		versions, err := st.History(r.Context(), key)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(versions) == 0 {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no versions"})
			return
		}
		writeJSON(w, http.StatusOK, report.NewLineage(key, versions))
	})

	r.Get("/integrity", func(w http.ResponseWriter, r *http.Request) {
		res, err := report.Verify(r.Context(), st)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusOK
		if !res.OK() {
			status = http.StatusConflict
		}
		writeJSON(w, status, res)
	})

	r.Get("/export.xlsx", func(w http.ResponseWriter, r *http.Request) {
		versions, err := st.ListVersions(r.Context(), store.VersionFilter{})
		if err != nil {
			writeError(w, err)
			return
		}
		stats, err := st.Summary(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="dim_orders_history.xlsx"`)
		if err := report.WriteXLSX(w, versions, stats); err != nil {
			zap.L().Error("export: write workbook", zap.Error(err))
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("status request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// serveStatus runs the status server until ctx is cancelled.
func serveStatus(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting status server", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}
