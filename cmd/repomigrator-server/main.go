// Command repomigrator-server exposes the migration engine over the thin
// HTTP API surface described in §4.H/§6: a health check, a one-shot
// migration endpoint, a periodic-schedule endpoint, and a status lookup.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jonhadfield/repomigrator"
)

func main() {
	cfg := migrator.LoadConfig()

	logger := log.New(os.Stdout, "[repomigrator-server] ", log.LstdFlags)

	engine, err := migrator.NewMigrationEngine(cfg)
	if err != nil {
		logger.Fatalf("failed to start migration engine: %v", err)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, engine)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Print("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = server.Shutdown(ctx)
	_ = engine.Shutdown(ctx)
}

func registerRoutes(mux *http.ServeMux, engine *migrator.MigrationEngine) {
	mux.HandleFunc("GET /", handleRoot)
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("POST /migrate", handleMigrate(engine))
	mux.HandleFunc("POST /schedule", handleSchedule(engine))
	mux.HandleFunc("GET /status/{job_id}", handleStatus(engine))
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "online",
		"service": "repomigrator",
	})
}

// handleHealthz is a supplemented liveness probe (SPEC_FULL.md §6); it
// reports process health only, not migration engine backlog.
func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleMigrate(engine *migrator.MigrationEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeMigrationRequest(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

			return
		}

		jobID, err := engine.SubmitManual(req)
		if err != nil {
			writeJSON(w, statusForSubmitError(err), map[string]string{"error": err.Error()})

			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id":  jobID,
			"message": "migration job accepted",
		})
	}
}

func handleSchedule(engine *migrator.MigrationEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeMigrationRequest(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})

			return
		}

		intervalMinutes, err := strconv.Atoi(r.URL.Query().Get("interval_minutes"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "interval_minutes must be an integer"})

			return
		}

		jobID, err := engine.SubmitScheduled(req, intervalMinutes)
		if err != nil {
			writeJSON(w, statusForSubmitError(err), map[string]string{"error": err.Error()})

			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id":  jobID,
			"message": "periodic migration scheduled",
		})
	}
}

func handleStatus(engine *migrator.MigrationEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		record := engine.Status(r.PathValue("job_id"))
		writeJSON(w, http.StatusOK, record)
	}
}

// statusForSubmitError maps engine validation failures to 400 and the
// shutdown-in-progress case to 503; everything else is treated as a client
// error since SubmitManual/SubmitScheduled only ever return one of
// InvalidURLError, UnsupportedProviderError, InvalidIntervalError, or an
// InternalError for a draining engine.
func statusForSubmitError(err error) int {
	var internalErr *migrator.InternalError
	if errors.As(err, &internalErr) {
		return http.StatusServiceUnavailable
	}

	return http.StatusBadRequest
}

func decodeMigrationRequest(r *http.Request) (migrator.MigrationRequest, error) {
	var req migrator.MigrationRequest

	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return migrator.MigrationRequest{}, err
	}

	return req, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
