package servers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// LatestState lets the listener expose the newest MarketState for
// debugging. The product API is a separate collaborator; this listener is
// observability only.
type LatestState interface {
	Latest(ctx context.Context) (interface{}, error)
}

// HTTP serves /metrics and /healthz.
type HTTP struct {
	logger *logger.Logger
	server *http.Server
}

func NewHTTP(logger *logger.Logger, port int, latest LatestState) *HTTP {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("/state/latest", func(w http.ResponseWriter, r *http.Request) {
		if latest == nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		state, err := latest.Latest(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(state)
	})

	return &HTTP{
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

func (h *HTTP) Start() {
	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("[HTTP] listener failed", zap.Error(err))
		}
	}()
}

func (h *HTTP) Stop(ctx context.Context) {
	if err := h.server.Shutdown(ctx); err != nil {
		h.logger.Error("[HTTP] shutdown failed", zap.Error(err))
	}
}
