package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"near-rpc-provider/internal/rpcerrors"
	"near-rpc-provider/internal/types"
	"near-rpc-provider/internal/utils"
)

// RequestIDHeader carries the id assigned to every relayed request.
const RequestIDHeader = "X-Request-Id"

// maxBodyBytes caps a relayed request body; signed transactions are far
// smaller.
const maxBodyBytes = 4 << 20

// JSON-RPC 2.0 error codes used by the relay.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeServerError    = -32000
)

type relayRequest struct {
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
	Jsonrpc string          `json:"jsonrpc"`
}

type relayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type relayErrorResponse struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Error   relayError      `json:"error"`
}

type endpointHealth struct {
	URL       string  `json:"url"`
	LatencyMs float64 `json:"latency_ms"`
}

type healthResponse struct {
	Available int              `json:"available"`
	UpdatedAt *time.Time       `json:"updated_at,omitempty"`
	Endpoints []endpointHealth `json:"endpoints"`
}

// Handler serves POST / as the JSON-RPC relay and GET /health as the
// current endpoint snapshot.
func (gw *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", gw.relay)
	mux.HandleFunc("GET /health", gw.health)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()
		ip := utils.GetRequestIP(r)
		requestID := uuid.NewString()
		w.Header().Set(RequestIDHeader, requestID)
		sr := utils.NewStatusRecorder(w)

		lg := gw.logger.With("request_id", requestID)
		lg.Debug("request received", "ip", ip, "method", r.Method, "path", r.URL.Path)

		mux.ServeHTTP(sr, r)

		duration := time.Since(startTime)
		statusCodeStr := strconv.Itoa(sr.StatusCode)
		gw.metrics.HttpRequestDuration.WithLabelValues(r.Method, statusCodeStr).Observe(duration.Seconds())
		gw.metrics.HttpRequestTotal.WithLabelValues(r.Method, statusCodeStr).Inc()

		lg.Info("request served", "ip", ip, "method", r.Method, "path", r.URL.Path, "status", sr.StatusCode, "duration", duration)
	})
}

func (gw *Gateway) relay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", "")
		return
	}

	var req relayRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "parse error", err.Error())
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid request", "method is required")
		return
	}

	resp, err := gw.dispatcher.CallRPCRequest(r.Context(), req.Method, req.Params, gw.requestTimeout)
	if err != nil {
		status := http.StatusBadGateway
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		case !errors.Is(err, rpcerrors.RpcUnavailable):
			status = http.StatusInternalServerError
		}
		gw.logger.Error("relay failed", "method", req.Method, "err", err)
		writeError(w, status, req.ID, codeServerError, "rpc not available", err.Error())
		return
	}

	// Upstream always answers for id "dontcare"; give the client its own id back.
	resp.ID = req.ID
	resp.Jsonrpc = types.JSONRPCVersion
	writeJSON(w, http.StatusOK, resp)
}

func (gw *Gateway) health(w http.ResponseWriter, r *http.Request) {
	ranked := gw.snapshot.Current()
	out := healthResponse{
		Available: len(ranked),
		Endpoints: make([]endpointHealth, len(ranked)),
	}
	if updatedAt := gw.snapshot.UpdatedAt(); !updatedAt.IsZero() {
		out.UpdatedAt = &updatedAt
	}
	for i, re := range ranked {
		out.Endpoints[i] = endpointHealth{
			URL:       re.Endpoint.String(),
			LatencyMs: float64(re.Latency) / float64(time.Millisecond),
		}
	}

	status := http.StatusOK
	if len(ranked) == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

func writeError(w http.ResponseWriter, status int, id json.RawMessage, code int, message, data string) {
	writeJSON(w, status, relayErrorResponse{
		Jsonrpc: types.JSONRPCVersion,
		ID:      id,
		Error:   relayError{Code: code, Message: message, Data: data},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
