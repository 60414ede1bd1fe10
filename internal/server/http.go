package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RaisinBrand/CedarsApp/internal/config"
	"github.com/RaisinBrand/CedarsApp/internal/metrics"
	"github.com/RaisinBrand/CedarsApp/internal/publish"
	"github.com/RaisinBrand/CedarsApp/internal/store"
)

const serviceName = "emg-bridge"

// HTTPServer serves the sample store as JSON plus monitoring endpoints
type HTTPServer struct {
	server    *http.Server
	listener  net.Listener
	logger    *slog.Logger
	config    *config.Config
	store     store.Reader
	udpServer *UDPServer
	publisher *publish.Publisher
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	version   string

	startTime time.Time
}

// NewHTTPServer creates a new HTTP server for the given store
func NewHTTPServer(appConfig *config.Config, logger *slog.Logger, s store.Reader,
	udpServer *UDPServer, m *metrics.Metrics, gatherer prometheus.Gatherer, version string) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		store:     s,
		udpServer: udpServer,
		metrics:   m,
		gatherer:  gatherer,
		version:   version,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         appConfig.HTTP.ListenAddress(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// SetPublisher attaches the MQTT mirror so its state is reported on /health and /stats
func (h *HTTPServer) SetPublisher(p *publish.Publisher) {
	h.publisher = p
}

// setupRoutes configures HTTP routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	samplesPath := h.config.HTTP.Path
	mux.HandleFunc(samplesPath, h.withMetrics(samplesPath, h.handleSamples))

	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (not instrumented itself)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	// Everything else, including "/"
	mux.HandleFunc("/", h.withMetrics("unmatched", h.handleNotFound))
}

// Handler returns the routed handler, mainly for tests
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		h.metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start binds the listener and serves in the background. A bind failure is
// returned to the caller.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}
	h.listener = ln

	h.logger.Info("HTTP server started",
		slog.String("address", ln.Addr().String()),
		slog.String("samples_path", h.config.HTTP.Path),
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start
func (h *HTTPServer) Addr() net.Addr {
	if h.listener == nil {
		return nil
	}
	return h.listener.Addr()
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleSamples returns the store contents as a JSON array followed by a newline
func (h *HTTPServer) handleSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body := h.store.AppendJSON(make([]byte, 0, 16*h.store.Cap()+2))
	body = append(body, '\n')

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)

	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(body); err != nil {
		h.logger.Debug("Failed to write samples response", slog.String("error", err.Error()))
	}
}

// handleNotFound answers every unregistered path
func (h *HTTPServer) handleNotFound(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not found", http.StatusNotFound)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpServer.GetStatistics()

	components := map[string]interface{}{
		"udp_server": map[string]interface{}{
			"status":           "running",
			"mode":             udpStats.Mode,
			"packets_received": udpStats.PacketsReceived,
			"packets_accepted": udpStats.PacketsAccepted,
			"length_errors":    udpStats.LengthErrors,
			"parse_errors":     udpStats.ParseErrors,
		},
		"store": map[string]interface{}{
			"length":   h.store.Len(),
			"capacity": h.store.Cap(),
		},
	}
	if h.publisher != nil {
		pubStats := h.publisher.GetStatistics()
		status := "disconnected"
		if pubStats.Connected {
			status = "connected"
		}
		components["mqtt"] = map[string]interface{}{
			"status":    status,
			"topic":     pubStats.Topic,
			"published": pubStats.Published,
		}
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": h.version,
		},
		"components": components,
	}

	h.writeJSON(w, health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"udp":       h.udpServer.GetStatistics(),
	}
	if h.publisher != nil {
		stats["mqtt"] = h.publisher.GetStatistics()
	}

	h.writeJSON(w, stats)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	effective := map[string]interface{}{
		"server": map[string]interface{}{
			"mode":         h.config.Server.Mode,
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"buffer_size":  h.config.Server.BufferSize,
			"byte_order":   h.config.Server.ByteOrder,
		},
		"store": map[string]interface{}{
			"capacity": h.config.Store.Capacity,
		},
		"http": map[string]interface{}{
			"address": h.config.HTTP.Address,
			"port":    h.config.HTTP.Port,
			"path":    h.config.HTTP.Path,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
		"mqtt": map[string]interface{}{
			"enabled":   h.config.MQTT.Enabled,
			"broker":    h.config.MQTT.BrokerURL(),
			"client_id": h.config.MQTT.ClientID,
			"topic":     h.config.MQTT.Topic,
			"qos":       h.config.MQTT.QoS,
			"retained":  h.config.MQTT.IsRetained(),
		},
	}

	h.writeJSON(w, effective)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", slog.String("error", err.Error()))
	}
}
