package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/dittodir/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PartitionStatus is the health snapshot of the partition served by the process.
type PartitionStatus struct {
	ID         string `json:"id"`
	Suffix     string `json:"suffix"`
	Open       bool   `json:"open"`
	Entries    int    `json:"entries"`
	StoreBytes int64  `json:"store_bytes"`
}

// StatusSource reports the current state of a partition. The partition
// engine implements it.
type StatusSource interface {
	Status(ctx context.Context) (PartitionStatus, error)
}

// healthReport is the /healthz response body.
type healthReport struct {
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	Partition *PartitionStatus `json:"partition,omitempty"`
}

// Server exposes the registry and the partition health over HTTP:
//
//   - GET /metrics: Prometheus exposition (503 while metrics are disabled)
//   - GET /healthz: JSON partition status; 503 until the partition is open
//   - GET /: the metric families currently registered
type Server struct {
	server *http.Server
	port   int

	mu     sync.RWMutex
	source StatusSource

	shutdownOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. Default: 9090
	Port int

	// HealthTimeout bounds one /healthz status query. Default: 2s
	HealthTimeout time.Duration
}

func (c *ServerConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 9090
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 2 * time.Second
	}
}

// NewServer creates a stopped server. Attach the partition with SetStatusSource
// and serve with Start.
func NewServer(config ServerConfig) *Server {
	config.applyDefaults()

	s := &Server{port: config.Port}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), config.HealthTimeout)
		defer cancel()
		s.serveHealth(ctx, w)
	})
	mux.HandleFunc("/", s.serveIndex)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func metricsHandler() http.Handler {
	if reg := GetRegistry(); reg != nil {
		return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	}
	logger.Debug("metrics: collection disabled, /metrics answers 503")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
	})
}

// SetStatusSource attaches the partition reported by /healthz.
func (s *Server) SetStatusSource(src StatusSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

func (s *Server) statusSource() StatusSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *Server) serveHealth(ctx context.Context, w http.ResponseWriter) {
	report := healthReport{Status: "unavailable"}
	code := http.StatusServiceUnavailable

	if src := s.statusSource(); src == nil {
		report.Error = "no partition attached"
	} else if st, err := src.Status(ctx); err != nil {
		report.Partition = &st
		report.Error = err.Error()
	} else {
		report.Partition = &st
		if st.Open {
			report.Status = "ok"
			code = http.StatusOK
		} else {
			report.Error = "partition is not open"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		logger.Debug("metrics: write /healthz response: %v", err)
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>dittodir</title></head>
<body>
<h1>dittodir</h1>
<p><a href="/metrics">/metrics</a> &middot; <a href="/healthz">/healthz</a></p>
{{if .Enabled}}<table>
<tr><th>family</th><th>type</th><th>series</th><th>help</th></tr>
{{range .Families}}<tr><td><code>{{.Name}}</code></td><td>{{.Type}}</td><td>{{.Series}}</td><td>{{.Help}}</td></tr>
{{end}}</table>
{{else}}<p>Metrics collection is disabled.</p>
{{end}}</body>
</html>
`))

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	families, err := Families()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Enabled  bool
		Families []Family
	}{IsEnabled(), families}
	if err := indexTemplate.Execute(w, data); err != nil {
		logger.Debug("metrics: render index: %v", err)
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// Returns:
//   - nil after a graceful shutdown
//   - error if the listener fails or shutdown does not complete in time
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics server listening on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		// ctx is already done; give in-flight scrapes their own deadline
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. It is safe to call more than once and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if err = s.server.Shutdown(ctx); err != nil {
			err = fmt.Errorf("metrics server shutdown error: %w", err)
			logger.Error("%v", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return err
}

// Handler returns the HTTP handler serving the endpoints.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.port
}
