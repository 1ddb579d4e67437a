package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"

	"near-rpc-provider/internal/rpcerrors"
)

const explorerTxURL = "https://nearblocks.io/txns/"

// ExecutionOutcome is the outcome of one transaction or receipt.
type ExecutionOutcome struct {
	Logs        []string        `json:"logs"`
	ReceiptIDs  []string        `json:"receipt_ids"`
	GasBurnt    uint64          `json:"gas_burnt"`
	TokensBurnt string          `json:"tokens_burnt"`
	ExecutorID  string          `json:"executor_id"`
	Status      json.RawMessage `json:"status"`
	Metadata    json.RawMessage `json:"metadata"`
}

// ReceiptOutcome is an execution outcome with the id and block it belongs to.
type ReceiptOutcome struct {
	ID        string           `json:"id"`
	BlockHash string           `json:"block_hash"`
	Outcome   ExecutionOutcome `json:"outcome"`
}

// Logs returns the outcome's logs.
func (o *ReceiptOutcome) Logs() []string { return o.Outcome.Logs }

// IsFailure reports whether the outcome status is a Failure.
func (o *ReceiptOutcome) IsFailure() bool {
	_, ok := statusMember(o.Outcome.Status, "Failure")
	return ok
}

// Failure classifies a Failure status, or returns nil for any other status.
func (o *ReceiptOutcome) Failure() *rpcerrors.RPCError {
	return failureOf(o.Outcome.Status)
}

// SuccessValue decodes a SuccessValue status.
func (o *ReceiptOutcome) SuccessValue() ([]byte, bool) {
	return successValueOf(o.Outcome.Status)
}

// TransactionResult is the decoded result of the tx and
// broadcast_tx_commit methods.
type TransactionResult struct {
	Status             json.RawMessage  `json:"status"`
	Transaction        TransactionData  `json:"transaction"`
	TransactionOutcome ReceiptOutcome   `json:"transaction_outcome"`
	ReceiptsOutcome    []ReceiptOutcome `json:"receipts_outcome"`
}

// DecodeTransactionResult decodes a raw result. A null or empty result
// decodes to nil without error.
func DecodeTransactionResult(raw json.RawMessage) (*TransactionResult, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	var r TransactionResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode transaction result: %w", err)
	}
	return &r, nil
}

// Logs returns the transaction outcome's logs followed by the logs of every
// receipt outcome, in receipt order.
func (r *TransactionResult) Logs() []string {
	n := len(r.TransactionOutcome.Outcome.Logs)
	for _, ro := range r.ReceiptsOutcome {
		n += len(ro.Outcome.Logs)
	}
	logs := make([]string, 0, n)
	logs = append(logs, r.TransactionOutcome.Outcome.Logs...)
	for _, ro := range r.ReceiptsOutcome {
		logs = append(logs, ro.Outcome.Logs...)
	}
	return logs
}

// IsFailure reports whether the final execution status is a Failure.
func (r *TransactionResult) IsFailure() bool {
	_, ok := statusMember(r.Status, "Failure")
	return ok
}

// Failure classifies the final execution status when it is a Failure.
func (r *TransactionResult) Failure() *rpcerrors.RPCError {
	return failureOf(r.Status)
}

// SuccessValue decodes the final SuccessValue status.
func (r *TransactionResult) SuccessValue() ([]byte, bool) {
	return successValueOf(r.Status)
}

// TransactionData is the signed transaction echoed back by the node.
type TransactionData struct {
	Hash       string          `json:"hash"`
	PublicKey  string          `json:"public_key"`
	ReceiverID string          `json:"receiver_id"`
	Signature  string          `json:"signature"`
	SignerID   string          `json:"signer_id"`
	Nonce      uint64          `json:"nonce"`
	Actions    []ReceiptAction `json:"actions"`
}

// HashBytes decodes the base58 transaction hash.
func (d *TransactionData) HashBytes() ([]byte, error) {
	return base58.Decode(d.Hash)
}

// URL links the transaction on the explorer.
func (d *TransactionData) URL() string {
	return explorerTxURL + d.Hash
}

// ValidateTxHash checks that hash is a base58-encoded 32 byte digest.
func ValidateTxHash(hash string) error {
	b, err := base58.Decode(hash)
	if err != nil {
		return fmt.Errorf("invalid transaction hash %q: %w", hash, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("invalid transaction hash %q: %d bytes, want 32", hash, len(b))
	}
	return nil
}

func statusMember(status json.RawMessage, name string) (json.RawMessage, bool) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(status, &m); err != nil {
		return nil, false
	}
	v, ok := m[name]
	return v, ok
}

func failureOf(status json.RawMessage) *rpcerrors.RPCError {
	failure, ok := statusMember(status, "Failure")
	if !ok {
		return nil
	}
	return rpcerrors.ClassifyActionFailure(failure)
}

func successValueOf(status json.RawMessage) ([]byte, bool) {
	v, ok := statusMember(status, "SuccessValue")
	if !ok {
		return nil, false
	}
	var encoded string
	if err := json.Unmarshal(v, &encoded); err != nil {
		return nil, false
	}
	b, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}
	return b, true
}

func isEmpty(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
