package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"zapScope/internal/model"
)

// Backend is the RPC surface KeyWallet needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Gas estimates are padded by 20%.
const (
	gasHeadroomNum = 12
	gasHeadroomDen = 10
)

// KeyWallet signs and sends transactions with a local private key.
type KeyWallet struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	logger  *zap.Logger
}

// NewKeyWallet parses a hex private key (with or without 0x).
func NewKeyWallet(backend Backend, hexKey string, logger *zap.Logger) (*KeyWallet, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is nil")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyWallet{
		backend: backend,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		logger:  logger,
	}, nil
}

// Address is the wallet account.
func (w *KeyWallet) Address() common.Address {
	return w.address
}

// SendTransaction signs desc and broadcasts it. Failures come back as *TxError.
func (w *KeyWallet) SendTransaction(ctx context.Context, desc model.TxDescriptor) (common.Hash, error) {
	if desc.From != "" && !strings.EqualFold(desc.From, w.address.Hex()) {
		return common.Hash{}, ClassifyTxError(fmt.Errorf("sender %s does not match wallet %s", desc.From, w.address.Hex()))
	}
	if !common.IsHexAddress(desc.To) {
		return common.Hash{}, ClassifyTxError(fmt.Errorf("invalid recipient %q", desc.To))
	}
	to := common.HexToAddress(desc.To)
	value := desc.Value
	if value == nil {
		value = new(big.Int)
	}

	chainID, err := w.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, ClassifyTxError(fmt.Errorf("chain id: %w", err))
	}
	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, ClassifyTxError(fmt.Errorf("nonce: %w", err))
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, ClassifyTxError(fmt.Errorf("gas price: %w", err))
	}
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, Value: value, Data: desc.Data})
	if err != nil {
		return common.Hash{}, ClassifyTxError(fmt.Errorf("estimate gas: %w", err))
	}
	gas = gas * gasHeadroomNum / gasHeadroomDen

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     desc.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return common.Hash{}, ClassifyTxError(fmt.Errorf("sign: %w", err))
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, ClassifyTxError(fmt.Errorf("send: %w", err))
	}

	w.logger.Info("transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	return signed.Hash(), nil
}
