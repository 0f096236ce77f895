// internal/swap/types.go
package swap

import "context"

// Quote is a priced route converting an exact input amount of one mint
// into another. The raw payload is carried opaquely so Execute can hand
// it back to the provider unchanged.
type Quote struct {
	InputMint            string  `json:"inputMint"`
	OutputMint           string  `json:"outputMint"`
	InAmount             string  `json:"inAmount"`
	OutAmount            string  `json:"outAmount"`
	OtherAmountThreshold string  `json:"otherAmountThreshold"`
	PriceImpactPct       float64 `json:"priceImpactPct,string"`
	SlippageBps          int     `json:"slippageBps"`

	raw []byte
}

// TokenValuation is one wallet holding valued in the base denomination.
type TokenValuation struct {
	Mint        string  `json:"mint"`
	Symbol      string  `json:"symbol"`
	RawAmount   string  `json:"rawAmount"`
	UIAmount    float64 `json:"uiAmount"`
	Decimals    uint8   `json:"decimals"`
	ValueInBase float64 `json:"valueInBase"`
	PriceInBase float64 `json:"priceInBase"`
	MarketCap   float64 `json:"marketCap,omitempty"`
}

// Provider is the swap/valuation collaborator boundary. Implementations
// must leave the ledger untouched; the engine owns all bookkeeping.
type Provider interface {
	// Quote prices the conversion of rawAmount units of inputMint into
	// outputMint. Returns ErrNoRoute when the provider cannot route it.
	Quote(ctx context.Context, inputMint, outputMint, rawAmount string, slippageBps int) (*Quote, error)

	// Execute submits the quoted swap and returns the transaction
	// signature once accepted.
	Execute(ctx context.Context, quote *Quote) (string, error)

	// WalletValuations returns all wallet holdings valued against the
	// base mint in a single call.
	WalletValuations(ctx context.Context, baseMint string) ([]TokenValuation, error)
}
