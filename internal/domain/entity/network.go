package entity

// ZeroAddress is used as placeholder order owner/receiver in price quotes
// and to recognise native-asset balance entries.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Network describes one EVM network the fund holds positions on.
// Loaded once at startup from config and immutable for the whole run.
type Network struct {
	// Name is the internal identifier, e.g. "ethereum", "base".
	Name string `json:"name"`
	// ChainID of the network, e.g. 1 for Ethereum mainnet.
	ChainID int64 `json:"chain_id"`
	// RPCURL is the read endpoint. Resolved from environment variables
	// at load time, never serialized into snapshots.
	RPCURL string `json:"-"`
	// QuoteAPIName is the network segment of the quote API path.
	// CoW calls Ethereum mainnet "mainnet".
	QuoteAPIName string `json:"-"`

	NativeSymbol   string `json:"native_symbol"`
	NativeDecimals uint8  `json:"native_decimals"`
	// WrappedNativeAddress prices the native asset: native converts 1:1
	// to its wrapped form, which is then quoted like any ERC-20.
	WrappedNativeAddress string `json:"wrapped_native_address"`
	// ReferenceAddress is the reference asset (USDC) on this network.
	ReferenceAddress  string `json:"reference_address"`
	ReferenceDecimals uint8  `json:"reference_decimals"`
}
