package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type ActionType string

const (
	ActionFunctionCall   ActionType = "FunctionCall"
	ActionTransfer       ActionType = "Transfer"
	ActionDeleteAccount  ActionType = "DeleteAccount"
	ActionCreateAccount  ActionType = "CreateAccount"
	ActionAddKey         ActionType = "AddKey"
	ActionStake          ActionType = "Stake"
	ActionDeleteKey      ActionType = "DeleteKey"
	ActionDeployContract ActionType = "DeployContract"
	ActionDelegate       ActionType = "Delegate"
)

// ReceiptAction is one action of a transaction. Only the fields relevant to
// Type are set.
type ReceiptAction struct {
	Type ActionType

	Deposit string
	Gas     uint64

	MethodName string
	// Args holds FunctionCall arguments when they decode to JSON; RawArgs
	// always holds the decoded bytes.
	Args    json.RawMessage
	RawArgs []byte

	BeneficiaryID string

	PublicKey string
	AccessKey *AccessKey

	Stake string

	Signature      string
	DelegateAction *DelegateAction
}

type actionFields struct {
	Deposit        string          `json:"deposit"`
	Gas            uint64          `json:"gas"`
	MethodName     string          `json:"method_name"`
	Args           string          `json:"args"`
	BeneficiaryID  string          `json:"beneficiary_id"`
	PublicKey      string          `json:"public_key"`
	AccessKey      *AccessKey      `json:"access_key"`
	Stake          string          `json:"stake"`
	Signature      string          `json:"signature"`
	DelegateAction *DelegateAction `json:"delegate_action"`
}

// UnmarshalJSON accepts the bare string form ("CreateAccount") and the
// single-key object form ({"Transfer": {...}}).
func (a *ReceiptAction) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*a = ReceiptAction{Type: ActionType(name)}
		return nil
	}

	var variant map[string]json.RawMessage
	if err := json.Unmarshal(data, &variant); err != nil {
		return fmt.Errorf("decode action: %w", err)
	}
	if len(variant) != 1 {
		return fmt.Errorf("decode action: expected one variant, got %d", len(variant))
	}

	var body json.RawMessage
	for k, v := range variant {
		*a = ReceiptAction{Type: ActionType(k)}
		body = v
	}

	var f actionFields
	if err := json.Unmarshal(body, &f); err != nil {
		return fmt.Errorf("decode %s action: %w", a.Type, err)
	}
	a.Deposit = f.Deposit
	a.Gas = f.Gas
	a.MethodName = f.MethodName
	a.BeneficiaryID = f.BeneficiaryID
	a.PublicKey = f.PublicKey
	a.AccessKey = f.AccessKey
	a.Stake = f.Stake
	a.Signature = f.Signature
	a.DelegateAction = f.DelegateAction

	if a.Type == ActionFunctionCall && f.Args != "" {
		// Arguments are opaque bytes; JSON is only the common case.
		if raw, err := base64.StdEncoding.DecodeString(f.Args); err == nil {
			a.RawArgs = raw
			if json.Valid(raw) {
				a.Args = raw
			}
		}
	}
	return nil
}

// DelegateAction is the inner action list of a meta transaction.
type DelegateAction struct {
	Actions        []ReceiptAction `json:"actions"`
	SenderID       string          `json:"sender_id"`
	ReceiverID     string          `json:"receiver_id"`
	PublicKey      string          `json:"public_key"`
	Nonce          uint64          `json:"nonce"`
	MaxBlockHeight uint64          `json:"max_block_height"`
}
