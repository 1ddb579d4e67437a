package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"near-rpc-provider/internal/models"
	"near-rpc-provider/internal/rpcerrors"
)

// Finality values accepted by query methods.
const (
	FinalityOptimistic = "optimistic"
	FinalityFinal      = "final"
)

// Light client proof outcome types.
const (
	OutcomeTransaction = "transaction"
	OutcomeReceipt     = "receipt"
)

func finalityOrDefault(finality string) string {
	if finality == "" {
		return FinalityOptimistic
	}
	return finality
}

func decode[T any](raw json.RawMessage, err error, what string) (*T, error) {
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Wrapf(err, "decode %s", what)
	}
	return &v, nil
}

// Query sends a raw query request.
func (p *Provider) Query(ctx context.Context, request any) (json.RawMessage, error) {
	return p.JSONRPC(ctx, "query", request)
}

// GetAccount views an account. An empty finality means optimistic.
func (p *Provider) GetAccount(ctx context.Context, accountID, finality string) (*models.Account, error) {
	raw, err := p.Query(ctx, map[string]any{
		"request_type": "view_account",
		"account_id":   accountID,
		"finality":     finalityOrDefault(finality),
	})
	return decode[models.Account](raw, err, "account")
}

// GetBalance returns the liquid balance of an account in yoctoNEAR.
func (p *Provider) GetBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	acc, err := p.GetAccount(ctx, accountID, FinalityOptimistic)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Amount, nil
}

// GetAccessKey views one access key of an account.
func (p *Provider) GetAccessKey(ctx context.Context, accountID, publicKey, finality string) (*models.AccessKeyView, error) {
	raw, err := p.Query(ctx, map[string]any{
		"request_type": "view_access_key",
		"account_id":   accountID,
		"public_key":   publicKey,
		"finality":     finalityOrDefault(finality),
	})
	return decode[models.AccessKeyView](raw, err, "access key")
}

// GetAccessKeyList views every access key of an account.
func (p *Provider) GetAccessKeyList(ctx context.Context, accountID, finality string) (*models.AccessKeyList, error) {
	raw, err := p.Query(ctx, map[string]any{
		"request_type": "view_access_key_list",
		"account_id":   accountID,
		"finality":     finalityOrDefault(finality),
	})
	return decode[models.AccessKeyList](raw, err, "access key list")
}

// ViewCall calls a view method of a contract. args are sent base64
// encoded. A non-nil blockID takes precedence over finality.
func (p *Provider) ViewCall(ctx context.Context, accountID, methodName string, args []byte, finality string, blockID *uint64) (*models.ViewFunctionResult, error) {
	body := map[string]any{
		"request_type": "call_function",
		"account_id":   accountID,
		"method_name":  methodName,
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}
	if blockID != nil {
		body["block_id"] = *blockID
	} else {
		body["finality"] = finalityOrDefault(finality)
	}
	raw, err := p.Query(ctx, body)
	return decode[models.ViewFunctionResult](raw, err, "view call result")
}

// SendTx broadcasts a base64 signed transaction without waiting for it to
// execute and returns its hash.
func (p *Provider) SendTx(ctx context.Context, signedTx string, timeout time.Duration) (string, error) {
	raw, err := p.JSONRPCWithTimeout(ctx, "broadcast_tx_async", []string{signedTx}, timeout)
	if err != nil {
		return "", err
	}
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", errors.Wrap(err, "decode transaction hash")
	}
	return hash, nil
}

// GetTx looks up a transaction's final outcome.
func (p *Provider) GetTx(ctx context.Context, txHash, recipientID string) (*models.TransactionResult, error) {
	if err := models.ValidateTxHash(txHash); err != nil {
		return nil, err
	}
	raw, err := p.JSONRPC(ctx, "tx", []string{txHash, recipientID})
	if err != nil {
		return nil, err
	}
	return models.DecodeTransactionResult(raw)
}

// GetBlock takes a block height or hash.
func (p *Provider) GetBlock(ctx context.Context, blockID any) (json.RawMessage, error) {
	return p.JSONRPC(ctx, "block", []any{blockID})
}

// GetChunk takes a chunk hash, or a [block id, shard id] pair.
func (p *Provider) GetChunk(ctx context.Context, chunkID any) (json.RawMessage, error) {
	return p.JSONRPC(ctx, "chunk", []any{chunkID})
}

// GetValidators returns the validators of the latest block.
func (p *Provider) GetValidators(ctx context.Context) (json.RawMessage, error) {
	return p.JSONRPC(ctx, "validators", []any{nil})
}

// GetValidatorsOrdered returns the ordered validator set at blockHash.
func (p *Provider) GetValidatorsOrdered(ctx context.Context, blockHash string) (json.RawMessage, error) {
	return p.JSONRPC(ctx, "EXPERIMENTAL_validators_ordered", []string{blockHash})
}

// GetLightClientProof builds the receipt form of the request when
// outcomeType is OutcomeReceipt and the transaction form otherwise.
func (p *Provider) GetLightClientProof(ctx context.Context, outcomeType, txOrReceiptID, senderOrReceiverID, lightClientHead string) (json.RawMessage, error) {
	var params map[string]string
	if outcomeType == OutcomeReceipt {
		params = map[string]string{
			"type":              OutcomeReceipt,
			"receipt_id":        txOrReceiptID,
			"receiver_id":       senderOrReceiverID,
			"light_client_head": lightClientHead,
		}
	} else {
		params = map[string]string{
			"type":              OutcomeTransaction,
			"transaction_hash":  txOrReceiptID,
			"sender_id":         senderOrReceiverID,
			"light_client_head": lightClientHead,
		}
	}
	return p.JSONRPC(ctx, "light_client_proof", params)
}

// GetNextLightClientBlock returns the light client block after lastBlockHash.
func (p *Provider) GetNextLightClientBlock(ctx context.Context, lastBlockHash string) (json.RawMessage, error) {
	return p.JSONRPC(ctx, "next_light_client_block", []string{lastBlockHash})
}

// GetChangesInBlock sends request as is, e.g. {"block_id": 1} or
// {"finality": "final"}.
func (p *Provider) GetChangesInBlock(ctx context.Context, request any) (json.RawMessage, error) {
	return p.JSONRPC(ctx, "EXPERIMENTAL_changes_in_block", request)
}

// GetStatus returns the raw /status of the first endpoint in the snapshot
// that reports itself synced.
func (p *Provider) GetStatus(ctx context.Context) (json.RawMessage, error) {
	ranked := p.tracker.Current()
	var attempts []*rpcerrors.TransportError
	for _, r := range ranked {
		raw, status, err := p.tracker.FetchStatus(ctx, r.Endpoint)
		if err != nil {
			p.logger.Error("rpc error", "endpoint", r.Endpoint.String(), "err", err)
			attempts = append(attempts, &rpcerrors.TransportError{Endpoint: r.Endpoint.String(), Err: err})
			continue
		}
		if status.Synced() {
			return raw, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, &rpcerrors.UnavailableError{Reason: "no synced RPC for status", Attempts: attempts}
}
