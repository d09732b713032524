package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcourtman/podsmon/internal/monitor"
	"github.com/rcourtman/podsmon/internal/websocket"
	"github.com/rs/zerolog/log"
)

var (
	httpShutdownTimeout = 5 * time.Second
)

func newMux(gatherer prometheus.Gatherer, hub *websocket.Hub, state func() monitor.State) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	mux.HandleFunc("/healthz", healthHandler(state))
	return mux
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
}

type healthResponse struct {
	Status        string    `json:"status"`
	Engine        string    `json:"engine"`
	PodsSupported bool      `json:"podsSupported"`
	LastRefresh   time.Time `json:"lastRefresh"`
	LastError     string    `json:"lastError,omitempty"`
}

// healthHandler reports 200 once a refresh has succeeded and the latest one
// did not fail, 503 otherwise.
func healthHandler(state func() monitor.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := state()
		resp := healthResponse{
			Status:        "ok",
			Engine:        s.Engine,
			PodsSupported: s.PodsSupported,
			LastRefresh:   s.LastRefresh,
			LastError:     s.LastError,
		}
		code := http.StatusOK
		if !s.Healthy() {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Debug().Err(err).Msg("Failed to write health response")
		}
	}
}

// serveHTTP serves until ctx is cancelled, then shuts down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn().Err(err).Msg("Failed to shut down HTTP server cleanly")
	}
	return nil
}
