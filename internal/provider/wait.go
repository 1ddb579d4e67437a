package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"near-rpc-provider/internal/models"
	"near-rpc-provider/internal/rpcerrors"
)

// SendTxAndWait broadcasts signedTx with broadcast_tx_commit and waits for
// the outcome. When the node gives up with a timeout while the transaction
// is still being processed, and both txHash and receiverID are set, the
// outcome is polled with the tx method instead. If polling runs out of
// attempts the original timeout error is returned.
func (p *Provider) SendTxAndWait(ctx context.Context, signedTx string, timeout time.Duration, txHash, receiverID string) (*models.TransactionResult, error) {
	raw, err := p.JSONRPCWithTimeout(ctx, "broadcast_tx_commit", []string{signedTx}, timeout)
	if err == nil {
		return models.DecodeTransactionResult(raw)
	}
	if !errors.Is(err, rpcerrors.RpcTimeout) || txHash == "" || receiverID == "" {
		return nil, err
	}

	p.logger.Warn("broadcast timed out, polling for outcome", "tx", txHash, "receiver", receiverID)
	result, pollErr := p.pollTx(ctx, txHash, receiverID, timeout)
	if pollErr != nil {
		return nil, pollErr
	}
	if result == nil {
		return nil, err
	}
	return result, nil
}

// pollTx looks the transaction up every poll interval. It returns a nil
// result and nil error when the attempts ran out.
func (p *Provider) pollTx(ctx context.Context, txHash, receiverID string, timeout time.Duration) (*models.TransactionResult, error) {
	if timeout <= 0 {
		timeout = p.opts.RequestTimeout
	}
	interval := p.opts.PollInterval
	attempts := int(timeout / interval)
	if attempts < 1 {
		attempts = 1
	}

	// The first lookup also waits one interval.
	timer := time.NewTimer(interval)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return nil, ctx.Err()
	}

	var (
		result  *models.TransactionResult
		stopErr error
		attempt int
	)
	operation := func() error {
		attempt++
		p.metrics.PollAttemptsTotal.Inc()

		r, err := p.GetTx(ctx, txHash, receiverID)
		if err != nil {
			if !retryablePollError(err) {
				stopErr = err
				return backoff.Permanent(err)
			}
			return err
		}
		result = r
		return nil
	}
	notify := func(err error, next time.Duration) {
		p.logger.Debug("transaction not available yet", "tx", txHash, "attempt", attempt, "of", attempts, "err", err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(attempts-1)),
		ctx,
	)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if stopErr != nil {
			return nil, stopErr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		p.logger.Warn("transaction outcome not found", "tx", txHash, "attempts", attempts)
		return nil, nil
	}
	return result, nil
}

// retryablePollError reports whether a lookup failure means "not there
// yet" rather than a real failure.
func retryablePollError(err error) bool {
	kind, ok := rpcerrors.KindOf(err)
	if !ok {
		return false
	}
	switch kind {
	case rpcerrors.Internal,
		rpcerrors.UnknownTransaction,
		rpcerrors.RpcTimeout,
		rpcerrors.NotSyncedYet,
		rpcerrors.NoSyncedBlocks,
		rpcerrors.UnavailableShard,
		rpcerrors.RpcUnavailable,
		rpcerrors.Transport:
		return true
	}
	return false
}
