package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/morezero/plugin-registry/pkg/commsutil"
	"github.com/morezero/plugin-registry/pkg/dispatcher"
	"github.com/morezero/plugin-registry/pkg/registry"
	"github.com/morezero/plugin-registry/pkg/semtype"
)

const httpLogPrefix = "server:http"

// maxInvokeBody caps the JSON argument bag accepted over HTTP.
const maxInvokeBody = 8 << 20

// routes builds the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHome())
	mux.HandleFunc("GET /operation/{name}", s.handleOperationPage())
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /operations", s.handleDiscover)
	mux.HandleFunc("GET /operations/{name}", s.handleDescribe)
	mux.HandleFunc("POST /operations/{name}", s.handleInvoke)
	mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

// health combines registry health with the COMMS and database probes that are configured.
func (s *Server) health(ctx context.Context) *registry.HealthOutput {
	h := s.disp.Registry().Health(ctx)
	healthy := h.Checks.Registry
	if s.commsCheck != nil {
		ok := s.commsCheck()
		h.Checks.COMMS = &ok
		healthy = healthy && ok
	}
	if s.dbCheck != nil {
		ok := s.dbCheck(ctx) == nil
		h.Checks.Database = &ok
		healthy = healthy && ok
	}
	if !healthy {
		h.Status = "unhealthy"
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.health(ctx)
	status := http.StatusOK
	if h.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	input := &registry.DiscoverInput{
		Group:   q.Get("group"),
		Query:   q.Get("q"),
		Returns: semtype.Type(q.Get("returns")),
	}
	var err error
	if input.Page, err = optionalInt(q.Get("page")); err != nil {
		writeError(w, registry.Errorf(registry.KindInvalidArgument, "invalid page: %s", q.Get("page")))
		return
	}
	if input.Limit, err = optionalInt(q.Get("limit")); err != nil {
		writeError(w, registry.Errorf(registry.KindInvalidArgument, "invalid limit: %s", q.Get("limit")))
		return
	}
	writeJSON(w, http.StatusOK, s.disp.Registry().Discover(input))
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	resp := s.disp.Dispatch(r.Context(), &dispatcher.Request{
		ID:        r.Header.Get("X-Request-ID"),
		Method:    "describe",
		Operation: r.PathValue("name"),
	})
	writeResponse(w, resp)
}

// handleInvoke runs one operation. The body is the JSON argument bag; an empty
// body means no arguments. ?timeout= takes a Go duration.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var timeout time.Duration
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			writeError(w, registry.Errorf(registry.KindInvalidArgument, "invalid timeout: %s", raw))
			return
		}
		timeout = d
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInvokeBody))
	if err != nil {
		writeError(w, registry.Errorf(registry.KindInvalidArgument, "failed to read body: %v", err))
		return
	}
	var bag map[string]interface{}
	if len(body) > 0 {
		if err := commsutil.DecodePayload(body, &bag); err != nil {
			writeError(w, registry.NewRegistryError(registry.KindInvalidArgument, "request body must be a JSON object"))
			return
		}
	}

	req := &dispatcher.Request{
		ID:        r.Header.Get("X-Request-ID"),
		Method:    "invoke",
		Operation: r.PathValue("name"),
		Args:      bag,
		Ctx:       &dispatcher.InvocationContext{TimeoutMs: int(timeout / time.Millisecond)},
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	slog.Debug(fmt.Sprintf("%s - invoke %s timeout=%s", httpLogPrefix, req.Operation, timeout))
	writeResponse(w, s.disp.Dispatch(ctx, req))
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, http.StatusOK, buildOpenAPISpec(s.disp.Registry(), s.title(), s.version()))
}

// --- helpers ---

// statusFor maps an error code onto an HTTP status.
func statusFor(code string) int {
	switch registry.ErrorKind(code) {
	case registry.KindOperationNotFound, registry.KindMethodNotFound:
		return http.StatusNotFound
	case registry.KindMissingArgument, registry.KindTypeMismatch, registry.KindInvalidArgument:
		return http.StatusBadRequest
	case registry.KindTimeout:
		return http.StatusGatewayTimeout
	case registry.KindCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeResponse(w http.ResponseWriter, resp *dispatcher.Response) {
	status := http.StatusOK
	if !resp.Ok && resp.Error != nil {
		status = statusFor(resp.Error.Code)
	}
	writeJSON(w, status, resp)
}

func writeError(w http.ResponseWriter, err error) {
	writeResponse(w, &dispatcher.Response{Ok: false, Error: dispatcher.ToErrorDetail(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - response encode: %v", httpLogPrefix, err))
	}
}

func optionalInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
