package issuer

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/enesunal-m/livevoice"
	"github.com/enesunal-m/livevoice/credentials"
)

// Server hands out credentials.Params for the configured upstream.
type Server struct {
	cfg      Config
	verifier Verifier
	logger   *livevoice.Logger
	registry *prometheus.Registry
	metrics  *metrics
}

// New creates a Server. With a nil verifier /token is served anonymously when
// cfg.AllowAnonymous is set and refused otherwise.
func New(cfg Config, verifier Verifier, logger *livevoice.Logger) *Server {
	if logger == nil {
		logger = livevoice.DefaultLogger
	}
	reg := prometheus.NewRegistry()
	return &Server{
		cfg:      cfg,
		verifier: verifier,
		logger:   logger.With(map[string]any{"component": "issuer"}),
		registry: reg,
		metrics:  newMetrics(reg),
	}
}

// Handler returns the issuer routes: /token, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/token", s.cors(s.auth(http.HandlerFunc(s.handleToken))))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			s.logger.Warn("healthz_write_failed", map[string]any{"err": err})
		}
	})
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.metrics.rejected.WithLabelValues("method").Inc()
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	up := s.cfg.Upstream
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	err := json.NewEncoder(w).Encode(credentials.Params{
		Endpoint:     up.Endpoint,
		AuthKey:      up.AuthKey,
		Model:        up.Model,
		VoiceName:    up.Voice,
		SystemPrompt: up.SystemPrompt,
	})
	if err != nil {
		s.metrics.failures.Inc()
		s.logger.Error("token_encode_failed", map[string]any{"err": err})
		return
	}
	s.metrics.issued.Inc()
	s.logger.Info("token_issued", map[string]any{"remote": r.RemoteAddr})
}

// auth requires a valid bearer token when a verifier is configured.
func (s *Server) auth(next http.Handler) http.Handler {
	if s.verifier == nil {
		if s.cfg.AllowAnonymous {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.metrics.rejected.WithLabelValues("no_verifier").Inc()
			http.Error(w, "caller authentication is not configured", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if len(h) < len("bearer ") || !strings.EqualFold(h[:len("bearer ")], "bearer ") {
			s.metrics.rejected.WithLabelValues("missing_bearer").Inc()
			http.Error(w, "missing bearer", http.StatusUnauthorized)
			return
		}
		raw := strings.TrimSpace(h[len("bearer "):])
		if err := s.verifier.Verify(r.Context(), raw); err != nil {
			s.metrics.rejected.WithLabelValues("invalid_token").Inc()
			s.logger.Warn("token_rejected", map[string]any{"err": err, "remote": r.RemoteAddr})
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors(next http.Handler) http.Handler {
	allowed := s.cfg.CORS.AllowedOrigins
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (slices.Contains(allowed, origin) || slices.Contains(allowed, "*")) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
