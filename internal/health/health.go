package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StatsFunc returns the current job stats for the /health payload.
type StatsFunc func() map[string]any

// Server exposes /health, /ready, /live and Prometheus /metrics for
// long-running jobs (the enrichment worker pool).
type Server struct {
	jobName   string
	port      string
	stats     StatsFunc
	startTime time.Time
	logger    zerolog.Logger
}

// NewServer creates a health server.
func NewServer(jobName, port string, stats StatsFunc, logger zerolog.Logger) *Server {
	return &Server{
		jobName:   jobName,
		port:      port,
		stats:     stats,
		startTime: time.Now(),
		logger:    logger,
	}
}

// Start serves until the process exits. Run it in a goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleOK)
	mux.HandleFunc("/live", s.handleOK)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + s.port
	s.logger.Info().Str("addr", addr).Msg("health server listening")
	return http.ListenAndServe(addr, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":         "healthy",
		"job":            s.jobName,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	}
	if s.stats != nil {
		payload["stats"] = s.stats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleOK(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
