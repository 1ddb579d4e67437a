package rpcerrors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// RPCError is a classified RPC-level failure. Body is the error body at the
// level the kind was matched; Envelope is the full error object the server
// sent.
type RPCError struct {
	Kind     Kind
	Cause    string
	Name     string
	Code     int
	Message  string
	Body     json.RawMessage
	Envelope json.RawMessage
}

func (e *RPCError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Kind.String())
	if e.Cause != "" {
		fmt.Fprintf(&sb, " (cause %s)", e.Cause)
	}
	if len(e.Body) > 0 {
		sb.WriteString(": ")
		sb.Write(compact(e.Body))
	} else if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	return sb.String()
}

// Is matches a target Kind.
func (e *RPCError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// TransportError is one failed attempt against one endpoint. It is recovered
// by trying the next endpoint and only surfaces inside an UnavailableError.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport error from %s: HTTP %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport error from %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == Transport }

// UnavailableError means no endpoint was reachable or none produced content.
type UnavailableError struct {
	Reason   string
	Attempts []*TransportError
}

func (e *UnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "rpc not available: " + e.Reason
	}
	return fmt.Sprintf("rpc not available: %s (%d attempts failed, last: %v)",
		e.Reason, len(e.Attempts), e.Attempts[len(e.Attempts)-1])
}

func (e *UnavailableError) Is(target error) bool { return target == RpcUnavailable }

// KindOf extracts the taxonomy kind carried by err.
func KindOf(err error) (Kind, bool) {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Kind, true
	}
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		return RpcUnavailable, true
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return Transport, true
	}
	var k Kind
	if errors.As(err, &k) {
		return k, true
	}
	return Internal, false
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
