package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// YoctoPerNEAR is the number of decimal places in one NEAR.
const YoctoPerNEAR = 24

// Account is the result of a view_account query. Balances are in yoctoNEAR.
type Account struct {
	Amount        decimal.Decimal `json:"amount"`
	Locked        decimal.Decimal `json:"locked"`
	CodeHash      string          `json:"code_hash"`
	StorageUsage  uint64          `json:"storage_usage"`
	StoragePaidAt uint64          `json:"storage_paid_at"`
	BlockHeight   uint64          `json:"block_height"`
	BlockHash     string          `json:"block_hash"`
}

// AmountNEAR converts the liquid balance to NEAR.
func (a *Account) AmountNEAR() decimal.Decimal {
	return a.Amount.Shift(-YoctoPerNEAR)
}

type PermissionType string

const (
	PermissionFullAccess   PermissionType = "FullAccess"
	PermissionFunctionCall PermissionType = "FunctionCall"
)

// AccessKey is an access key with its permission flattened.
type AccessKey struct {
	Nonce          uint64
	PermissionType PermissionType
	// FunctionCall permission only. An empty Allowance means unlimited.
	Allowance   string
	ReceiverID  string
	MethodNames []string
}

func (k *AccessKey) UnmarshalJSON(data []byte) error {
	var aux struct {
		Nonce      uint64          `json:"nonce"`
		Permission json.RawMessage `json:"permission"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode access key: %w", err)
	}
	*k = AccessKey{Nonce: aux.Nonce}

	var name string
	if err := json.Unmarshal(aux.Permission, &name); err == nil {
		k.PermissionType = PermissionType(name)
		return nil
	}

	var perm struct {
		FunctionCall *struct {
			Allowance   *string  `json:"allowance"`
			ReceiverID  string   `json:"receiver_id"`
			MethodNames []string `json:"method_names"`
		} `json:"FunctionCall"`
	}
	if err := json.Unmarshal(aux.Permission, &perm); err != nil {
		return fmt.Errorf("decode access key permission: %w", err)
	}
	if perm.FunctionCall == nil {
		return fmt.Errorf("decode access key permission: unknown form %s", aux.Permission)
	}
	k.PermissionType = PermissionFunctionCall
	if perm.FunctionCall.Allowance != nil {
		k.Allowance = *perm.FunctionCall.Allowance
	}
	k.ReceiverID = perm.FunctionCall.ReceiverID
	k.MethodNames = perm.FunctionCall.MethodNames
	return nil
}

// AccessKeyView is the result of a view_access_key query.
type AccessKeyView struct {
	AccessKey
	BlockHash   string
	BlockHeight uint64
}

func (v *AccessKeyView) UnmarshalJSON(data []byte) error {
	var block struct {
		BlockHash   string `json:"block_hash"`
		BlockHeight uint64 `json:"block_height"`
	}
	if err := json.Unmarshal(data, &block); err != nil {
		return fmt.Errorf("decode access key view: %w", err)
	}
	if err := v.AccessKey.UnmarshalJSON(data); err != nil {
		return err
	}
	v.BlockHash = block.BlockHash
	v.BlockHeight = block.BlockHeight
	return nil
}

// PublicKey pairs a public key with its access key.
type PublicKey struct {
	PublicKey string    `json:"public_key"`
	AccessKey AccessKey `json:"access_key"`
}

// AccessKeyList is the result of a view_access_key_list query.
type AccessKeyList struct {
	Keys        []PublicKey `json:"keys"`
	BlockHash   string      `json:"block_hash"`
	BlockHeight uint64      `json:"block_height"`
}

// ViewFunctionResult is the result of a call_function query.
type ViewFunctionResult struct {
	Result      []byte
	Logs        []string
	BlockHash   string
	BlockHeight uint64
}

func (r *ViewFunctionResult) UnmarshalJSON(data []byte) error {
	// The node sends result as an array of byte values, not base64.
	var aux struct {
		Result      []int    `json:"result"`
		Logs        []string `json:"logs"`
		BlockHash   string   `json:"block_hash"`
		BlockHeight uint64   `json:"block_height"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode view result: %w", err)
	}
	*r = ViewFunctionResult{
		Result:      make([]byte, len(aux.Result)),
		Logs:        aux.Logs,
		BlockHash:   aux.BlockHash,
		BlockHeight: aux.BlockHeight,
	}
	for i, b := range aux.Result {
		if b < 0 || b > 255 {
			return fmt.Errorf("decode view result: byte %d out of range: %d", i, b)
		}
		r.Result[i] = byte(b)
	}
	return nil
}

// JSON decodes Result as JSON into v.
func (r *ViewFunctionResult) JSON(v any) error {
	return json.Unmarshal(r.Result, v)
}
