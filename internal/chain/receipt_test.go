package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type scriptedReceipts struct {
	pending int
	status  uint64
	calls   int
}

func (s *scriptedReceipts) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	s.calls++
	if s.calls <= s.pending {
		return nil, ethereum.NotFound
	}
	return &types.Receipt{Status: s.status}, nil
}

func TestWaitReceiptMined(t *testing.T) {
	fetcher := &scriptedReceipts{pending: 2, status: types.ReceiptStatusSuccessful}
	receipt, err := WaitReceipt(context.Background(), fetcher, common.Hash{1}, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt == nil || fetcher.calls != 3 {
		t.Fatalf("expected receipt after 3 polls, got %d", fetcher.calls)
	}
}

func TestWaitReceiptReverted(t *testing.T) {
	fetcher := &scriptedReceipts{status: types.ReceiptStatusFailed}
	hash := common.Hash{2}
	receipt, err := WaitReceipt(context.Background(), fetcher, hash, time.Millisecond, nil)
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("expected reverted error, got %v", err)
	}
	var txErr *TxError
	if !errors.As(err, &txErr) || txErr.Hash != hash {
		t.Fatalf("expected tx error with hash, got %v", err)
	}
	if receipt == nil {
		t.Fatalf("expected receipt alongside revert")
	}
}

func TestWaitReceiptContextCancelled(t *testing.T) {
	fetcher := &scriptedReceipts{pending: 1 << 30}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WaitReceipt(ctx, fetcher, common.Hash{3}, time.Millisecond, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
