package approval

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"zapScope/internal/chain"
	"zapScope/internal/dex"
	"zapScope/internal/model"
)

// State is the approval status of one (token, spender) pair.
type State int

const (
	StateUnknown State = iota
	StateChecking
	StateNotApproved
	StateApproving
	StateApproved
)

func (s State) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateNotApproved:
		return "not_approved"
	case StateApproving:
		return "approving"
	case StateApproved:
		return "approved"
	default:
		return "unknown"
	}
}

// DefaultPollInterval is the receipt polling period.
const DefaultPollInterval = 8 * time.Second

var (
	ErrApprovalInFlight = errors.New("approval already in flight")
	ErrNotChecked       = errors.New("approval state must be checked first")
	ErrAlreadyApproved  = errors.New("already approved")
)

var errPending = errors.New("transaction pending")

// Sender submits a transaction and returns its hash.
type Sender interface {
	SendTransaction(ctx context.Context, tx model.TxDescriptor) (common.Hash, error)
}

// ReceiptFetcher returns a receipt, or ethereum.NotFound while pending.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Options configures a Machine.
type Options struct {
	Owner        common.Address
	PollInterval time.Duration
	Logger       *zap.Logger
}

type entry struct {
	state State
	err   error
	hash  common.Hash
	done  chan struct{}
}

// Machine tracks approvals for one owner. Pairs are independent; at most one
// approval is in flight per pair.
type Machine struct {
	caller   dex.Caller
	sender   Sender
	receipts ReceiptFetcher
	owner    common.Address
	interval time.Duration
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entries map[string]*entry
}

func NewMachine(caller dex.Caller, sender Sender, receipts ReceiptFetcher, opts Options) *Machine {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		caller:   caller,
		sender:   sender,
		receipts: receipts,
		owner:    opts.Owner,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
	}
}

func tokenKey(token, spender string) string {
	return model.TokenKey(token) + "|" + model.TokenKey(spender)
}

func nftKey(manager string, id *big.Int, spender string) string {
	return "nft|" + model.TokenKey(manager) + "|" + id.String() + "|" + model.TokenKey(spender)
}

// State returns the current state of a token pair.
func (m *Machine) State(token, spender string) State {
	if model.IsNativeAddress(token) {
		return StateApproved
	}
	return m.stateOf(tokenKey(token, spender))
}

// NFTState returns the current state of a position approval.
func (m *Machine) NFTState(manager string, id *big.Int, spender string) State {
	return m.stateOf(nftKey(manager, id, spender))
}

// Err returns the last error recorded for a token pair.
func (m *Machine) Err(token, spender string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[tokenKey(token, spender)]; ok {
		return e.err
	}
	return nil
}

func (m *Machine) stateOf(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.state
	}
	return StateUnknown
}

// beginCheck moves key to Checking unless an approval is in flight.
func (m *Machine) beginCheck(key string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	if e.state == StateApproving {
		return e.state, false
	}
	e.state = StateChecking
	e.err = nil
	return e.state, true
}

func (m *Machine) finishCheck(key string, approved bool, err error) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	if e.state != StateChecking {
		return e.state
	}
	switch {
	case err != nil:
		e.state = StateUnknown
		e.err = err
	case approved:
		e.state = StateApproved
	default:
		e.state = StateNotApproved
	}
	m.logger.Debug("approval checked", zap.String("key", key), zap.Stringer("state", e.state), zap.Error(err))
	return e.state
}

// Check reads the allowance and compares it with amountNeeded. The native
// token is always approved.
func (m *Machine) Check(ctx context.Context, token, spender string, amountNeeded *big.Int) (State, error) {
	if model.IsNativeAddress(token) {
		return StateApproved, nil
	}
	if !common.IsHexAddress(token) || !common.IsHexAddress(spender) {
		return StateUnknown, fmt.Errorf("invalid token %q or spender %q", token, spender)
	}
	key := tokenKey(token, spender)
	if state, ok := m.beginCheck(key); !ok {
		return state, nil
	}

	allowance, err := dex.Allowance(ctx, m.caller, common.HexToAddress(token), m.owner, common.HexToAddress(spender))
	if err != nil {
		err = fmt.Errorf("read allowance: %w", err)
		return m.finishCheck(key, false, err), err
	}
	need := amountNeeded
	if need == nil {
		need = new(big.Int)
	}
	return m.finishCheck(key, allowance.Cmp(need) >= 0, nil), nil
}

// CheckNFT checks whether spender may move the position NFT.
func (m *Machine) CheckNFT(ctx context.Context, manager string, id *big.Int, spender string) (State, error) {
	if id == nil || !common.IsHexAddress(manager) || !common.IsHexAddress(spender) {
		return StateUnknown, fmt.Errorf("invalid position approval request")
	}
	key := nftKey(manager, id, spender)
	if state, ok := m.beginCheck(key); !ok {
		return state, nil
	}
	approved, err := dex.NFTApproved(ctx, m.caller, common.HexToAddress(manager), id, m.owner, common.HexToAddress(spender))
	if err != nil {
		err = fmt.Errorf("read nft approval: %w", err)
		return m.finishCheck(key, false, err), err
	}
	return m.finishCheck(key, approved, nil), nil
}

// Approve submits approve(spender, 2^256-1) and polls for the receipt in the
// background. Use Wait to block until it settles.
func (m *Machine) Approve(ctx context.Context, token, spender string) (common.Hash, error) {
	if model.IsNativeAddress(token) {
		return common.Hash{}, ErrAlreadyApproved
	}
	data, err := dex.PackApprove(common.HexToAddress(spender), dex.MaxUint256)
	if err != nil {
		return common.Hash{}, err
	}
	return m.approve(ctx, tokenKey(token, spender), token, data)
}

// ApproveNFT submits approve(spender, id) on the position manager.
func (m *Machine) ApproveNFT(ctx context.Context, manager string, id *big.Int, spender string) (common.Hash, error) {
	if id == nil {
		return common.Hash{}, fmt.Errorf("position id is required")
	}
	data, err := dex.PackNFTApprove(common.HexToAddress(spender), id)
	if err != nil {
		return common.Hash{}, err
	}
	return m.approve(ctx, nftKey(manager, id, spender), manager, data)
}

func (m *Machine) approve(ctx context.Context, key, to string, data []byte) (common.Hash, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	switch {
	case !ok || e.state == StateUnknown || e.state == StateChecking:
		m.mu.Unlock()
		return common.Hash{}, ErrNotChecked
	case e.state == StateApproving:
		m.mu.Unlock()
		return common.Hash{}, ErrApprovalInFlight
	case e.state == StateApproved:
		m.mu.Unlock()
		return common.Hash{}, ErrAlreadyApproved
	}
	e.state = StateApproving
	e.err = nil
	e.done = make(chan struct{})
	m.mu.Unlock()
	m.logger.Debug("approval started", zap.String("key", key))

	hash, err := m.sender.SendTransaction(ctx, model.TxDescriptor{
		From:  m.owner.Hex(),
		To:    to,
		Data:  data,
		Value: new(big.Int),
	})
	if err != nil {
		err = chain.ClassifyTxError(err)
		m.settle(key, StateNotApproved, err)
		return common.Hash{}, err
	}

	m.mu.Lock()
	e.hash = hash
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.poll(key, hash)
	}()
	return hash, nil
}

func (m *Machine) poll(key string, hash common.Hash) {
	op := func() error {
		receipt, err := m.receipts.TransactionReceipt(m.ctx, hash)
		if errors.Is(err, ethereum.NotFound) || (err == nil && receipt == nil) {
			return errPending
		}
		if err != nil {
			m.logger.Warn("receipt poll failed", zap.String("hash", hash.Hex()), zap.Error(err))
			return err
		}
		if receipt.Status == types.ReceiptStatusSuccessful {
			m.settle(key, StateApproved, nil)
		} else {
			m.settle(key, StateNotApproved, chain.NewRevertedError(hash))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.NewConstantBackOff(m.interval), m.ctx)
	if err := backoff.Retry(op, policy); err != nil {
		m.settle(key, StateUnknown, fmt.Errorf("approval polling stopped: %w", err))
	}
}

func (m *Machine) settle(key string, state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	if e.state != StateApproving {
		return
	}
	e.state = state
	e.err = err
	close(e.done)
	m.logger.Debug("approval settled", zap.String("key", key), zap.Stringer("state", state), zap.Error(err))
}

// Wait blocks until the in-flight approval of a token pair settles.
func (m *Machine) Wait(ctx context.Context, token, spender string) (State, error) {
	return m.wait(ctx, tokenKey(token, spender))
}

// WaitNFT is Wait for a position approval.
func (m *Machine) WaitNFT(ctx context.Context, manager string, id *big.Int, spender string) (State, error) {
	return m.wait(ctx, nftKey(manager, id, spender))
}

func (m *Machine) wait(ctx context.Context, key string) (State, error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		m.mu.Unlock()
		return StateUnknown, nil
	}
	if e.state != StateApproving {
		state, err := e.state, e.err
		m.mu.Unlock()
		return state, err
	}
	done := e.done
	m.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return StateApproving, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return e.state, e.err
}

// Close stops all receipt polling.
func (m *Machine) Close() {
	m.cancel()
	m.wg.Wait()
}
