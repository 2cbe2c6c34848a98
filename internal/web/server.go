// Package web serves the read-only status API: connection health, the
// vessel-state snapshot, recent safety events, and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"helmlink/internal/bus"
	"helmlink/internal/metrics"
	"helmlink/internal/safety"
	"helmlink/internal/state"
)

// StatusSource is the slice of the safety manager the server reads.
type StatusSource interface {
	Health() map[string]safety.HealthSnapshot
	QueueDepth() int
}

type statusPayload struct {
	Time       time.Time                        `json:"time"`
	Transports map[string]safety.HealthSnapshot `json:"transports"`
	QueueDepth int                              `json:"queue_depth"`
	Stale      int                              `json:"stale_channels"`
}

func Handler(src StatusSource, store *state.Store, b *bus.Bus, met *metrics.Set) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, statusPayload{
			Time:       time.Now().UTC(),
			Transports: src.Health(),
			QueueDepth: src.QueueDepth(),
			Stale:      store.StaleCount(),
		})
	})

	mux.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, store.Snapshot())
	})

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		evs := b.Recent(100)
		if evs == nil {
			evs = []bus.SafetyEvent{}
		}
		writeJSON(w, evs)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(met.Registry, promhttp.HandlerOpts{}))

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, src StatusSource, store *state.Store, b *bus.Bus, met *metrics.Set) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(src, store, b, met),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
