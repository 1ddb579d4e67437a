package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"near-rpc-provider/internal/rpcerrors"
)

// 32 zero bytes in base58.
const zeroHash = "11111111111111111111111111111111"

const txResultJSON = `{
  "status": {"SuccessValue": "eyJvayI6dHJ1ZX0="},
  "transaction": {
    "hash": "11111111111111111111111111111111",
    "public_key": "ed25519:abc",
    "receiver_id": "inscription.near",
    "signature": "ed25519:sig",
    "signer_id": "alice.near",
    "nonce": 42,
    "actions": [
      "CreateAccount",
      {"Transfer": {"deposit": "1000"}},
      {"FunctionCall": {"method_name": "inscribe", "args": "eyJwIjoibnJjLTIwIn0=", "gas": 30000000000000, "deposit": "0"}},
      {"AddKey": {"public_key": "ed25519:k", "access_key": {"nonce": 0, "permission": "FullAccess"}}}
    ]
  },
  "transaction_outcome": {
    "id": "tx-outcome",
    "block_hash": "b0",
    "outcome": {"logs": ["tx log"], "receipt_ids": ["r1"], "gas_burnt": 100, "tokens_burnt": "10", "executor_id": "alice.near", "status": {"SuccessReceiptId": "r1"}}
  },
  "receipts_outcome": [
    {"id": "r1", "block_hash": "b1", "outcome": {"logs": ["first", "second"], "receipt_ids": ["r2"], "gas_burnt": 5, "tokens_burnt": "1", "executor_id": "inscription.near", "status": {"SuccessValue": ""}}},
    {"id": "r2", "block_hash": "b2", "outcome": {"logs": ["third"], "receipt_ids": [], "gas_burnt": 1, "tokens_burnt": "0", "executor_id": "alice.near", "status": {"Failure": {"ActionError": {"index": 0, "kind": {"AccountDoesNotExist": {"account_id": "ghost.near"}}}}}}}
  ]
}`

func TestDecodeTransactionResult(t *testing.T) {
	r, err := DecodeTransactionResult(json.RawMessage(txResultJSON))
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, []string{"tx log", "first", "second", "third"}, r.Logs())
	// Logs must not alias the outcome slices.
	logs := r.Logs()
	logs[0] = "changed"
	assert.Equal(t, "tx log", r.TransactionOutcome.Outcome.Logs[0])
	assert.Equal(t, []string{"tx log", "first", "second", "third"}, r.Logs())

	assert.Equal(t, "alice.near", r.Transaction.SignerID)
	assert.Equal(t, uint64(42), r.Transaction.Nonce)
	assert.Equal(t, "https://nearblocks.io/txns/"+zeroHash, r.Transaction.URL())
	hash, err := r.Transaction.HashBytes()
	require.NoError(t, err)
	assert.Len(t, hash, 32)

	value, ok := r.SuccessValue()
	require.True(t, ok)
	assert.JSONEq(t, `{"ok":true}`, string(value))
	assert.False(t, r.IsFailure())
	assert.Nil(t, r.Failure())
}

func TestDecodeTransactionResult_Actions(t *testing.T) {
	r, err := DecodeTransactionResult(json.RawMessage(txResultJSON))
	require.NoError(t, err)

	actions := r.Transaction.Actions
	require.Len(t, actions, 4)

	assert.Equal(t, ActionCreateAccount, actions[0].Type)

	assert.Equal(t, ActionTransfer, actions[1].Type)
	assert.Equal(t, "1000", actions[1].Deposit)

	assert.Equal(t, ActionFunctionCall, actions[2].Type)
	assert.Equal(t, "inscribe", actions[2].MethodName)
	assert.Equal(t, uint64(30000000000000), actions[2].Gas)
	assert.JSONEq(t, `{"p":"nrc-20"}`, string(actions[2].Args))

	assert.Equal(t, ActionAddKey, actions[3].Type)
	require.NotNil(t, actions[3].AccessKey)
	assert.Equal(t, PermissionFullAccess, actions[3].AccessKey.PermissionType)
}

func TestReceiptOutcome_Failure(t *testing.T) {
	r, err := DecodeTransactionResult(json.RawMessage(txResultJSON))
	require.NoError(t, err)

	ok := r.ReceiptsOutcome[0]
	assert.False(t, ok.IsFailure())
	assert.Nil(t, ok.Failure())
	v, isValue := ok.SuccessValue()
	assert.True(t, isValue)
	assert.Empty(t, v)

	failed := r.ReceiptsOutcome[1]
	assert.True(t, failed.IsFailure())
	fe := failed.Failure()
	require.NotNil(t, fe)
	assert.Equal(t, rpcerrors.AccountDoesNotExist, fe.Kind)
	assert.JSONEq(t, `{"account_id":"ghost.near"}`, string(fe.Body))
}

func TestDecodeTransactionResult_Empty(t *testing.T) {
	for _, raw := range []string{"", "null"} {
		r, err := DecodeTransactionResult(json.RawMessage(raw))
		assert.NoError(t, err)
		assert.Nil(t, r)
	}

	_, err := DecodeTransactionResult(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestReceiptAction_NonJSONArgs(t *testing.T) {
	var a ReceiptAction
	// base64 of the bytes 0x00 0x01 0x02
	require.NoError(t, json.Unmarshal([]byte(`{"FunctionCall":{"method_name":"m","args":"AAEC"}}`), &a))
	assert.Nil(t, a.Args)
	assert.Equal(t, []byte{0, 1, 2}, a.RawArgs)
}

func TestReceiptAction_Invalid(t *testing.T) {
	var a ReceiptAction
	assert.Error(t, json.Unmarshal([]byte(`{"A":{},"B":{}}`), &a))
	assert.Error(t, json.Unmarshal([]byte(`42`), &a))
}

func TestReceiptAction_Delegate(t *testing.T) {
	var a ReceiptAction
	data := `{"Delegate":{"signature":"ed25519:s","delegate_action":{"actions":[{"Transfer":{"deposit":"5"}}],"sender_id":"a.near","receiver_id":"b.near","public_key":"ed25519:p","nonce":7,"max_block_height":99}}}`
	require.NoError(t, json.Unmarshal([]byte(data), &a))

	assert.Equal(t, ActionDelegate, a.Type)
	assert.Equal(t, "ed25519:s", a.Signature)
	require.NotNil(t, a.DelegateAction)
	assert.Equal(t, "a.near", a.DelegateAction.SenderID)
	require.Len(t, a.DelegateAction.Actions, 1)
	assert.Equal(t, "5", a.DelegateAction.Actions[0].Deposit)
}

func TestAccount(t *testing.T) {
	var acc Account
	data := `{"amount":"2500000000000000000000000","locked":"0","code_hash":"11111111111111111111111111111111","storage_usage":182,"storage_paid_at":0,"block_height":10,"block_hash":"h"}`
	require.NoError(t, json.Unmarshal([]byte(data), &acc))

	assert.True(t, acc.AmountNEAR().Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, uint64(182), acc.StorageUsage)
}

func TestAccessKeyView(t *testing.T) {
	var full AccessKeyView
	require.NoError(t, json.Unmarshal([]byte(`{"block_hash":"h","block_height":5,"nonce":9,"permission":"FullAccess"}`), &full))
	assert.Equal(t, PermissionFullAccess, full.PermissionType)
	assert.Equal(t, uint64(9), full.Nonce)
	assert.Equal(t, uint64(5), full.BlockHeight)
	assert.Equal(t, "h", full.BlockHash)

	var fc AccessKeyView
	data := `{"block_hash":"h","block_height":5,"nonce":1,"permission":{"FunctionCall":{"allowance":null,"receiver_id":"app.near","method_names":["a","b"]}}}`
	require.NoError(t, json.Unmarshal([]byte(data), &fc))
	assert.Equal(t, PermissionFunctionCall, fc.PermissionType)
	assert.Empty(t, fc.Allowance)
	assert.Equal(t, "app.near", fc.ReceiverID)
	assert.Equal(t, []string{"a", "b"}, fc.MethodNames)

	var bad AccessKeyView
	assert.Error(t, json.Unmarshal([]byte(`{"nonce":1,"permission":{"Other":{}}}`), &bad))
}

func TestAccessKeyList(t *testing.T) {
	var list AccessKeyList
	data := `{"block_hash":"h","block_height":1,"keys":[{"public_key":"ed25519:a","access_key":{"nonce":1,"permission":"FullAccess"}},{"public_key":"ed25519:b","access_key":{"nonce":2,"permission":{"FunctionCall":{"allowance":"100","receiver_id":"x.near","method_names":[]}}}}]}`
	require.NoError(t, json.Unmarshal([]byte(data), &list))

	require.Len(t, list.Keys, 2)
	assert.Equal(t, PermissionFullAccess, list.Keys[0].AccessKey.PermissionType)
	assert.Equal(t, "100", list.Keys[1].AccessKey.Allowance)
}

func TestViewFunctionResult(t *testing.T) {
	var r ViewFunctionResult
	// bytes of {"x":1}
	require.NoError(t, json.Unmarshal([]byte(`{"result":[123,34,120,34,58,49,125],"logs":["l"],"block_height":3,"block_hash":"h"}`), &r))

	var out map[string]int
	require.NoError(t, r.JSON(&out))
	assert.Equal(t, map[string]int{"x": 1}, out)
	assert.Equal(t, []string{"l"}, r.Logs)

	assert.Error(t, json.Unmarshal([]byte(`{"result":[256]}`), &r))
}

func TestValidateTxHash(t *testing.T) {
	assert.NoError(t, ValidateTxHash(zeroHash))
	assert.Error(t, ValidateTxHash("0OIl"))
	assert.Error(t, ValidateTxHash("111"))
}
