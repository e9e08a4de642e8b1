package chain

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

var errReceiptPending = errors.New("receipt pending")

// ReceiptFetcher returns a receipt, or ethereum.NotFound while pending.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// WaitReceipt polls every interval until hash is mined or ctx ends. A failed
// status is returned as a reverted TxError together with the receipt.
func WaitReceipt(ctx context.Context, fetcher ReceiptFetcher, hash common.Hash, interval time.Duration, logger *zap.Logger) (*types.Receipt, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var receipt *types.Receipt
	op := func() error {
		r, err := fetcher.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) || (err == nil && r == nil) {
			return errReceiptPending
		}
		if err != nil {
			logger.Warn("receipt poll failed", zap.String("hash", hash.Hex()), zap.Error(err))
			return err
		}
		receipt = r
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, NewRevertedError(hash)
	}
	return receipt, nil
}
