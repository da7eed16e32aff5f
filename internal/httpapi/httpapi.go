// Package httpapi implements the HTTP+SSE gateway: the DSL submission
// endpoint, the event stream, and the health/readiness surface.
//
// CORS handling (handlePreflight/setCORSHeaders/originAllowed) and the SSE
// framing loop (Flusher check, headers, WriteHeader+Flush, for-select loop
// over a channel, fmt.Fprintf "data: %s\n\n", flusher.Flush()) follow this
// module's established gateway idiom, with the stream driven by genuine
// broker fan-out rather than a polling ticker. Every handler is wrapped by
// observability.HTTPMiddleware.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/logline-motor/motor/internal/domain"
	"github.com/logline-motor/motor/internal/dslparse"
	"github.com/logline-motor/motor/internal/logging"
	"github.com/logline-motor/motor/internal/metrics"
	"github.com/logline-motor/motor/internal/observability"
	"github.com/logline-motor/motor/internal/runtime"
)

// Version is the product version reported by the health endpoint.
const Version = "0.1.0"

// Product names the running service in health responses.
const Product = "logline-motor"

// Checker reports whether a named dependency is reachable. Returning nil
// means healthy; a database-less deployment leaves it nil, which the
// handlers treat as healthy.
type Checker func(ctx context.Context) error

// Config controls the gateway's CORS and path-prefix behavior.
type Config struct {
	APIPrefix     string
	CORSOrigin    string // empty disables CORS headers entirely
	DatabaseCheck Checker
}

// DefaultConfig returns this package's documented defaults.
func DefaultConfig() Config {
	return Config{APIPrefix: "api"}
}

// Gateway wires a runtime.Runtime to its HTTP surface. The zero value is
// not usable; construct with New.
type Gateway struct {
	rt  *runtime.Runtime
	cfg Config
	mux *http.ServeMux
}

// New builds a Gateway serving rt under cfg's prefix and mounts every
// route on a fresh http.ServeMux.
func New(rt *runtime.Runtime, cfg Config) *Gateway {
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = DefaultConfig().APIPrefix
	}
	g := &Gateway{rt: rt, cfg: cfg, mux: http.NewServeMux()}
	g.routes()
	return g
}

func (g *Gateway) prefix(path string) string {
	p := strings.Trim(g.cfg.APIPrefix, "/")
	return "/" + p + path
}

func (g *Gateway) routes() {
	g.mux.Handle(g.prefix("/dsl"), observability.HTTPMiddleware("dsl", http.HandlerFunc(g.handleDSL)))
	g.mux.Handle(g.prefix("/stream"), observability.HTTPMiddleware("stream", http.HandlerFunc(g.handleStream)))
	g.mux.Handle(g.prefix("/health"), observability.HTTPMiddleware("health", http.HandlerFunc(g.handleHealth)))
	g.mux.Handle(g.prefix("/ready"), observability.HTTPMiddleware("ready", http.HandlerFunc(g.handleReady)))
	g.mux.Handle(g.prefix("/healthz/db"), observability.HTTPMiddleware("healthz_db", http.HandlerFunc(g.handleHealthzDB)))
	g.mux.Handle(g.prefix("/metrics"), metrics.PrometheusHandler())
}

// ServeHTTP lets Gateway be used directly as an http.Handler, applying CORS
// before dispatching to the mux.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.cfg.CORSOrigin != "" {
		if r.Method == http.MethodOptions {
			g.handlePreflight(w, r)
			return
		}
		g.setCORSHeaders(w, r)
	}
	g.mux.ServeHTTP(w, r)
}

func (g *Gateway) handlePreflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !originAllowed(g.cfg.CORSOrigin, origin) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID")
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || !originAllowed(g.cfg.CORSOrigin, origin) {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
}

func originAllowed(allowed, origin string) bool {
	return allowed == "*" || strings.EqualFold(allowed, origin)
}

type dslRequest struct {
	Command string `json:"command"`
}

type dslResponse struct {
	Result    string         `json:"result"`
	Events    []domain.Event `json:"events"`
	Timestamp time.Time      `json:"timestamp"`
}

type errorResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: message, Timestamp: time.Now()})
}

// handleDSL implements POST /{prefix}/dsl.
func (g *Gateway) handleDSL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req dslRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	commandID := uuid.NewString()
	start := time.Now()

	res, err := g.rt.ProcessCommand(r.Context(), req.Command)

	entry := &logging.CommandLog{
		CommandID:  commandID,
		TraceID:    observability.TraceID(r.Context()),
		SpanID:     observability.SpanID(r.Context()),
		Kind:       commandKindOf(req.Command),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    err == nil,
	}

	if err != nil {
		entry.Error = err.Error()
		var veto *runtime.PluginVetoError
		if isPluginVeto(err, &veto) {
			entry.PluginVeto = true
		}
		logging.Default().Log(entry)
		metrics.Global().RecordCommand(entry.Kind, entry.DurationMs, false)
		var syn *dslparse.SyntaxError
		if errors.As(err, &syn) {
			metrics.Global().RecordParseError()
		}

		status := http.StatusBadRequest
		if !isClientFault(err) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, clientMessage(err))
		return
	}
	logging.Default().Log(entry)
	metrics.Global().RecordCommand(entry.Kind, entry.DurationMs, true)

	resp := dslResponse{Result: res.Text, Events: res.Events, Timestamp: time.Now()}
	writeJSON(w, http.StatusOK, resp)

	// command_executed is a gateway-level notification distinct from the
	// timeline events ProcessCommand already appended; it carries the same
	// payload as the HTTP response and is published directly, picking up a
	// broker-assigned id.
	if pubErr := g.rt.Broker.Publish(domain.Event{
		Timestamp: time.Now(),
		Kind:      "command_executed",
		Channels:  []string{"commands", domain.DefaultChannel},
		Payload:   map[string]any{"result": resp.Result, "events": resp.Events, "timestamp": resp.Timestamp},
	}); pubErr != nil {
		logging.Op().Warn("command_executed publish failed", "error", pubErr)
	}
}

// clientMessage prefixes the error the caller sees: parse failures report
// a malformed command, everything else a processing failure.
func clientMessage(err error) string {
	var syn *dslparse.SyntaxError
	if errors.As(err, &syn) {
		return "Formato de comando inválido: " + err.Error()
	}
	return "Erro ao processar comando: " + err.Error()
}

func commandKindOf(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func isPluginVeto(err error, target **runtime.PluginVetoError) bool {
	if pv, ok := err.(*runtime.PluginVetoError); ok {
		*target = pv
		return true
	}
	return false
}

// isClientFault reports whether err is a parse, validation, or plugin-veto
// failure (400) as opposed to an unexpected internal error (500).
func isClientFault(err error) bool {
	switch err.(type) {
	case *dslparse.SyntaxError, *runtime.ValidationError, *runtime.PluginVetoError:
		return true
	default:
		return false
	}
}

// handleStream implements GET /{prefix}/stream.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	channels := r.URL.Query()["channel"]
	if len(channels) == 0 {
		channels = []string{domain.DefaultChannel}
	}

	var lastEventID uint64
	if raw := r.Header.Get("Last-Event-ID"); raw != "" {
		if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
			lastEventID = n
		}
	}

	sub := g.rt.Broker.Subscribe(channels, lastEventID)
	metrics.Global().SetActiveSubscribers(g.rt.Broker.ActiveSubscribers())
	defer func() {
		sub.Close()
		metrics.Global().SetActiveSubscribers(g.rt.Broker.ActiveSubscribers())
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			return
		case frame, ok := <-sub.Frames():
			if !ok {
				return
			}
			if frame.Heartbeat {
				fmt.Fprintf(w, "event: heartbeat\ndata: {}\n\n")
			} else {
				data, err := json.Marshal(frame.Event.Payload)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", frame.Event.ID, frame.Event.Kind, data)
			}
			flusher.Flush()
		}
	}
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Product   string    `json:"product"`
}

// handleHealth implements GET /{prefix}/health.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "UP",
		Timestamp: time.Now(),
		Version:   Version,
		Product:   Product,
	})
}

type readyResponse struct {
	Status string          `json:"status"`
	Checks map[string]bool `json:"checks"`
}

// handleReady implements GET /{prefix}/ready.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]bool{
		"parser":    true,
		"runtime":   g.rt != nil,
		"database":  true,
		"streaming": true,
	}
	if g.cfg.DatabaseCheck != nil {
		checks["database"] = g.cfg.DatabaseCheck(r.Context()) == nil
	}

	status := "UP"
	code := http.StatusOK
	for _, ok := range checks {
		if !ok {
			status = "DOWN"
			code = http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, code, readyResponse{Status: status, Checks: checks})
}

type dbHealthResponse struct {
	Database  string    `json:"database"`
	LatencyMs int64     `json:"latency_ms"`
	Timestamp time.Time `json:"timestamp"`
}

// handleHealthzDB implements GET /{prefix}/healthz/db.
func (g *Gateway) handleHealthzDB(w http.ResponseWriter, r *http.Request) {
	if g.cfg.DatabaseCheck == nil {
		writeJSON(w, http.StatusOK, dbHealthResponse{Database: "not configured", Timestamp: time.Now()})
		return
	}

	start := time.Now()
	err := g.cfg.DatabaseCheck(r.Context())
	latency := time.Since(start).Milliseconds()

	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, dbHealthResponse{
			Database:  "unreachable: " + err.Error(),
			LatencyMs: latency,
			Timestamp: time.Now(),
		})
		return
	}
	writeJSON(w, http.StatusOK, dbHealthResponse{Database: "reachable", LatencyMs: latency, Timestamp: time.Now()})
}
