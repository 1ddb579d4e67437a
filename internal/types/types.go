package types

import (
	"encoding/json"
	"net/url"
	"time"
)

// JSONRPCVersion and RequestID are fixed for every call.
const (
	JSONRPCVersion = "2.0"
	RequestID      = "dontcare"
)

// RpcEndpoint is one candidate RPC server. It is never mutated after the
// candidate list is built.
type RpcEndpoint struct {
	URL *url.URL
}

func (e *RpcEndpoint) String() string { return e.URL.String() }

// RankedEndpoint pairs an endpoint with the latency measured by the probe
// that admitted it into the snapshot.
type RankedEndpoint struct {
	Endpoint *RpcEndpoint
	Latency  time.Duration
}

// Request is the JSON-RPC envelope sent to every endpoint.
type Request struct {
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
	Jsonrpc string `json:"jsonrpc"`
}

// NewRequest builds the envelope for one call.
func NewRequest(method string, params any) Request {
	return Request{Method: method, Params: params, ID: RequestID, Jsonrpc: JSONRPCVersion}
}

// Response is a decoded JSON-RPC response body. Error stays raw so it can be
// classified and kept for diagnostics.
type Response struct {
	Jsonrpc string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// HasResult reports whether the body carries a non-null result member.
func (r *Response) HasResult() bool {
	return len(r.Result) > 0 && string(r.Result) != "null"
}

// HasError reports whether the body carries a non-null error member.
func (r *Response) HasError() bool {
	return len(r.Error) > 0 && string(r.Error) != "null"
}

// StatusResponse is the part of GET /status the health probe relies on.
// SyncInfo.Syncing is nil when the body does not report it.
type StatusResponse struct {
	ChainID string `json:"chain_id"`
	Version struct {
		Version string `json:"version"`
		Build   string `json:"build"`
	} `json:"version"`
	SyncInfo struct {
		LatestBlockHash   string `json:"latest_block_hash"`
		LatestBlockHeight uint64 `json:"latest_block_height"`
		LatestBlockTime   string `json:"latest_block_time"`
		Syncing           *bool  `json:"syncing"`
	} `json:"sync_info"`
}

// Synced reports whether the node said it is fully synced.
func (s *StatusResponse) Synced() bool {
	return s.SyncInfo.Syncing != nil && !*s.SyncInfo.Syncing
}
