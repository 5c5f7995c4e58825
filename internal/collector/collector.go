// Package collector is a reference server for the recorder's wire format.
// It accepts batches over HTTP or websocket envelopes and stores them in a
// storage.Backend.
package collector

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	ws "github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/opstrack/recorder/internal/storage"
	"github.com/opstrack/recorder/pkg/core"
	"github.com/opstrack/recorder/pkg/streaming"
)

const (
	routeEvents   = "/events"
	routeMissions = "/missions"

	maxBodyBytes    = 8 << 20
	shutdownTimeout = 5 * time.Second
)

// Server handles collector requests.
type Server struct {
	backend  storage.Backend
	apiKey   string
	logger   *slog.Logger
	now      func() time.Time
	upgrader ws.Upgrader

	requests metric.Int64Counter
}

// New creates a server. An empty apiKey disables the key check.
func New(backend storage.Backend, apiKey string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		backend: backend,
		apiKey:  apiKey,
		logger:  logger.With("component", "collector"),
		now:     time.Now,
		upgrader: ws.Upgrader{
			// the recorder is not a browser
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	var err error
	s.requests, err = meter().Int64Counter(
		"collector.requests",
		metric.WithDescription("Collector requests by route and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating requests counter: %w", err)
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthcheck", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST "+routeEvents, s.authorized(func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, routeEvents, s.readAnd(w, r, s.postEvents))
	}))
	mux.HandleFunc("POST "+routeMissions, s.authorized(func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, routeMissions, s.readAnd(w, r, s.postMission))
	}))
	mux.HandleFunc("POST "+routeMissions+"/{id}/end", s.authorized(func(w http.ResponseWriter, r *http.Request) {
		s.reply(w, routeLabel(r.URL.Path), s.endMission(r.PathValue("id")))
	}))
	mux.HandleFunc("GET /ws", s.authorized(s.serveWebsocket))
	return mux
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Collector listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("collector server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("collector shutdown: %w", err)
	}
	return nil
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Api-Key")), []byte(s.apiKey)) != 1 {
			s.logger.Warn("Rejected request with bad API key", "path", r.URL.Path, "remote", r.RemoteAddr)
			s.count(routeLabel(r.URL.Path), http.StatusUnauthorized)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}
		next(w, r)
	}
}

// outcome is a handled request: the status to answer with and, for
// failures, why.
type outcome struct {
	status int
	err    error
}

func (s *Server) readAnd(w http.ResponseWriter, r *http.Request, fn func([]byte) outcome) outcome {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return outcome{http.StatusBadRequest, fmt.Errorf("reading body: %w", err)}
	}
	return fn(body)
}

func (s *Server) reply(w http.ResponseWriter, route string, o outcome) {
	s.count(route, o.status)
	if o.err != nil {
		writeJSON(w, o.status, map[string]string{"error": o.err.Error()})
		return
	}
	writeJSON(w, o.status, map[string]string{"status": "ok"})
}

func (s *Server) count(route string, status int) {
	s.requests.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	))
}

// routeLabel keeps mission ids out of metric attributes.
func routeLabel(path string) string {
	if strings.HasPrefix(path, routeMissions+"/") {
		return routeMissions + "/{id}/end"
	}
	return path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// route dispatches a websocket envelope to the handler of its path.
func (s *Server) route(path string, body []byte) outcome {
	switch {
	case path == routeEvents:
		return s.postEvents(body)
	case path == routeMissions:
		return s.postMission(body)
	case strings.HasPrefix(path, routeMissions+"/") && strings.HasSuffix(path, "/end"):
		raw := strings.TrimSuffix(strings.TrimPrefix(path, routeMissions+"/"), "/end")
		id, err := url.PathUnescape(raw)
		if err != nil || id == "" || strings.Contains(raw, "/") {
			return outcome{http.StatusNotFound, fmt.Errorf("no route for %s", path)}
		}
		return s.endMission(id)
	default:
		return outcome{http.StatusNotFound, fmt.Errorf("no route for %s", path)}
	}
}

func (s *Server) postEvents(body []byte) outcome {
	var b core.Batch
	if err := json.Unmarshal(body, &b); err != nil {
		return outcome{http.StatusBadRequest, fmt.Errorf("malformed batch: %w", err)}
	}
	if err := storage.Validate(&b); err != nil {
		return outcome{http.StatusBadRequest, err}
	}
	if err := s.backend.IngestBatch(&b, s.now()); err != nil {
		return s.failed("ingest batch", err)
	}

	missionID := ""
	if b.MissionID != nil {
		missionID = *b.MissionID
	}
	s.logger.Debug("Batch stored", "missionId", missionID, "records", b.Len(),
		"states", len(b.States), "combat", len(b.CombatEvents))
	return outcome{status: http.StatusOK}
}

func (s *Server) postMission(body []byte) outcome {
	var ms core.MissionStart
	if err := json.Unmarshal(body, &ms); err != nil {
		return outcome{http.StatusBadRequest, fmt.Errorf("malformed mission: %w", err)}
	}
	if ms.MissionID == "" {
		return outcome{http.StatusBadRequest, errors.New("missionId is required")}
	}
	if err := s.backend.StartMission(ms, s.now()); err != nil {
		return s.failed("start mission", err)
	}
	return outcome{status: http.StatusCreated}
}

func (s *Server) endMission(id string) outcome {
	if err := s.backend.EndMission(id, s.now()); err != nil {
		return s.failed("end mission", err)
	}
	return outcome{status: http.StatusOK}
}

func (s *Server) failed(op string, err error) outcome {
	switch {
	case errors.Is(err, storage.ErrInvalidBatch):
		return outcome{http.StatusBadRequest, err}
	case errors.Is(err, storage.ErrUnknownMission):
		return outcome{http.StatusNotFound, err}
	case errors.Is(err, storage.ErrDuplicateMission):
		return outcome{http.StatusConflict, err}
	default:
		s.logger.Error("Storage failure", "op", op, "error", err)
		return outcome{http.StatusInternalServerError, fmt.Errorf("%s failed", op)}
	}
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("Recorder connected over websocket", "remote", r.RemoteAddr)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				s.logger.Warn("Websocket read failed", "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(msg, &env); err != nil || env.Type != streaming.TypePost {
			s.logger.Warn("Ignoring malformed envelope", "error", err)
			continue
		}

		o := s.route(env.Path, env.Payload)
		s.count(routeLabel(env.Path), o.status)
		if o.err != nil {
			s.logger.Debug("Envelope rejected", "path", env.Path, "status", o.status, "error", o.err)
		}

		ack, err := streaming.NewAck(env.ID, o.status)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(ws.TextMessage, ack); err != nil {
			s.logger.Warn("Websocket write failed", "error", err)
			return
		}
	}
}
