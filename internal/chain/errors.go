package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
)

// TxErrorKind separates user rejections from every other transaction failure.
type TxErrorKind int

const (
	TxErrorOther TxErrorKind = iota
	TxErrorUserRejected
	TxErrorReverted
)

func (k TxErrorKind) String() string {
	switch k {
	case TxErrorUserRejected:
		return "user_rejected"
	case TxErrorReverted:
		return "reverted"
	default:
		return "other"
	}
}

// userRejectedCode is the EIP-1193 "user rejected request" code.
const userRejectedCode = 4001

var (
	ErrUserRejected = errors.New("transaction rejected by user")
	ErrReverted     = errors.New("transaction reverted")
)

// TxError is a classified transaction failure. Error returns the short
// user-facing message; Details returns the raw cause.
type TxError struct {
	Kind TxErrorKind
	Hash common.Hash
	Err  error
}

func (e *TxError) Error() string {
	switch e.Kind {
	case TxErrorUserRejected:
		return ErrUserRejected.Error()
	case TxErrorReverted:
		return ErrReverted.Error()
	default:
		return "transaction failed"
	}
}

func (e *TxError) Unwrap() error {
	return e.Err
}

func (e *TxError) Is(target error) bool {
	switch target {
	case ErrUserRejected:
		return e.Kind == TxErrorUserRejected
	case ErrReverted:
		return e.Kind == TxErrorReverted
	}
	return false
}

// Details is the raw error for a "show details" view.
func (e *TxError) Details() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// ClassifyTxError wraps err in a TxError. Errors already classified are
// returned unchanged.
func ClassifyTxError(err error) error {
	if err == nil {
		return nil
	}
	var txErr *TxError
	if errors.As(err, &txErr) {
		return err
	}
	return &TxError{Kind: classify(err), Err: err}
}

// NewRevertedError reports a mined transaction with a failed status.
func NewRevertedError(hash common.Hash) error {
	return &TxError{Kind: TxErrorReverted, Hash: hash, Err: fmt.Errorf("transaction %s reverted", hash.Hex())}
}

func classify(err error) TxErrorKind {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return TxErrorUserRejected
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied") {
		return TxErrorUserRejected
	}
	if strings.Contains(msg, "execution reverted") {
		return TxErrorReverted
	}
	return TxErrorOther
}
