package model

import "strings"

// NativeTokenAddress is the placeholder address the route service uses for the
// chain's gas token.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Token captures ERC20 metadata plus display fields from the token service.
type Token struct {
	ChainID  uint64   `json:"chain_id"`
	Address  string   `json:"address"`
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Decimals uint8    `json:"decimals"`
	LogoURI  string   `json:"logo_uri,omitempty"`
	Price    *float64 `json:"price,omitempty"`
}

// Key is the token identity within a chain.
func (t Token) Key() string {
	return TokenKey(t.Address)
}

// IsNative reports whether the token is the chain's gas token.
func (t Token) IsNative() bool {
	return IsNativeAddress(t.Address)
}

// TokenKey normalizes an address for map lookups.
func TokenKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsNativeAddress reports whether address denotes the gas token.
func IsNativeAddress(address string) bool {
	key := TokenKey(address)
	return key == strings.ToLower(NativeTokenAddress) || key == zeroAddress
}
