package rpcerrors

import (
	"encoding/json"
)

// maxRefineDepth bounds the walk down a nested error body.
const maxRefineDepth = 32

type errorObject struct {
	Name  string `json:"name"`
	Cause *struct {
		Name string `json:"name"`
	} `json:"cause"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Classify turns the "error" member of a JSON-RPC response into a typed
// error. The cause name picks the provider kind, then the data body is
// walked one single-key level at a time and the kind is refined for every
// key that names a more specific action error.
func Classify(envelope json.RawMessage) *RPCError {
	e := &RPCError{Kind: Internal, Envelope: envelope}

	var obj errorObject
	if err := json.Unmarshal(envelope, &obj); err != nil {
		e.Body = envelope
		return e
	}
	e.Name = obj.Name
	e.Code = obj.Code
	e.Message = obj.Message
	if obj.Cause != nil {
		e.Cause = obj.Cause.Name
	}

	e.Kind = KindForCause(e.Cause)
	e.Kind, e.Body = refine(e.Kind, obj.Data)
	return e
}

// ClassifyActionFailure classifies the "kind" member of a receipt's
// Failure.ActionError status.
func ClassifyActionFailure(kind json.RawMessage) *RPCError {
	e := &RPCError{Kind: ActionError, Envelope: kind}
	e.Kind, e.Body = refine(ActionError, kind)
	return e
}

// refine returns the most specific kind reachable from body and the body at
// that level.
func refine(kind Kind, body json.RawMessage) (Kind, json.RawMessage) {
	matched := body
	cur := body
	for depth := 0; depth < maxRefineDepth; depth++ {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(cur, &fields); err != nil || len(fields) == 0 {
			break
		}

		if len(fields) > 1 {
			// {"index": 0, "kind": {...}} carries the detail under "kind".
			inner, ok := fields["kind"]
			if kind != ActionError || !ok {
				break
			}
			cur = inner
			continue
		}

		var key string
		var next json.RawMessage
		for key, next = range fields {
		}
		k, ok := KindForKey(key)
		if !ok {
			break
		}
		kind, matched, cur = k, next, next
	}
	return kind, matched
}
