package model

import "math/big"

// TxDescriptor is a fully built transaction handed to the wallet.
type TxDescriptor struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Data  []byte   `json:"data"`
	Value *big.Int `json:"value"`
}

// BuildResult is the route service's encoded zap transaction.
type BuildResult struct {
	CallData      []byte   `json:"call_data"`
	RouterAddress string   `json:"router_address"`
	Value         *big.Int `json:"value"`
}

// Descriptor turns a build result into a wallet transaction from sender.
func (b BuildResult) Descriptor(sender string) TxDescriptor {
	value := b.Value
	if value == nil {
		value = new(big.Int)
	}
	return TxDescriptor{
		From:  sender,
		To:    b.RouterAddress,
		Data:  b.CallData,
		Value: value,
	}
}
