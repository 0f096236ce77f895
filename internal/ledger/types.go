// internal/ledger/types.go
package ledger

import "time"

// Position is an open, tracked holding of a mint with its recorded cost
// basis. A position exists iff there is unliquidated exposure: it is
// created on the first successful buy and deleted atomically on full sale.
type Position struct {
	Mint   string `json:"mint" bson:"mint"`
	Symbol string `json:"symbol" bson:"symbol"`

	// AmountRaw is the exact on-chain unit count as a decimal string.
	// Additions always use exact integer arithmetic.
	AmountRaw string `json:"amount_raw" bson:"amount_raw"`

	// AmountUI is the display quantity. It is accumulated by ordinary
	// float addition and is subject to precision drift.
	AmountUI float64 `json:"amount_ui" bson:"amount_ui"`

	BaseMint     string `json:"base_mint" bson:"base_mint"`
	BaseSymbol   string `json:"base_symbol" bson:"base_symbol"`
	BaseDecimals uint8  `json:"base_decimals" bson:"base_decimals"`

	// CostBase is the cumulative amount spent in the base denomination
	// across all buys of this mint. CostUSD tracks it one-to-one; the
	// configured base denomination is the currency of accounting.
	CostBase float64 `json:"cost_base" bson:"cost_base"`
	CostUSD  float64 `json:"cost_usd" bson:"cost_usd"`

	MarketCap           float64   `json:"market_cap,omitempty" bson:"market_cap,omitempty"`
	LastBuySignature    string    `json:"last_buy_signature,omitempty" bson:"last_buy_signature,omitempty"`
	TargetProfitPercent float64   `json:"target_profit_percent,omitempty" bson:"target_profit_percent,omitempty"`
	CreatedAt           time.Time `json:"created_at" bson:"created_at"`
	LastUpdatedAt       time.Time `json:"last_updated_at" bson:"last_updated_at"`
}

// BuyPatch carries the fields of a successful buy to merge into the book.
// Merge semantics per field: AmountRaw/AmountUI/CostBase add, the rest
// overwrite latest-wins when present.
type BuyPatch struct {
	Mint   string
	Symbol string

	AmountRaw string
	AmountUI  float64
	CostBase  float64

	BaseMint     string
	BaseSymbol   string
	BaseDecimals uint8

	MarketCap        float64
	HasMarketCap     bool
	LastBuySignature string

	TargetProfitPercent float64
	HasTargetProfit     bool
}

// EntryType distinguishes buy and sell history entries.
type EntryType string

const (
	EntryBuy  EntryType = "buy"
	EntrySell EntryType = "sell"
)

// HistoryEntry is an immutable audit record of a completed transition.
type HistoryEntry struct {
	ID            string    `json:"id" bson:"id"`
	Type          EntryType `json:"type" bson:"type"`
	Mint          string    `json:"mint" bson:"mint"`
	Symbol        string    `json:"symbol" bson:"symbol"`
	AmountUI      float64   `json:"amount_ui,omitempty" bson:"amount_ui,omitempty"`
	CostUSD       float64   `json:"cost_usd,omitempty" bson:"cost_usd,omitempty"`
	ReceivedUSD   float64   `json:"received_usd,omitempty" bson:"received_usd,omitempty"`
	ProfitUSD     float64   `json:"profit_usd,omitempty" bson:"profit_usd,omitempty"`
	ProfitPercent float64   `json:"profit_percent,omitempty" bson:"profit_percent,omitempty"`
	Signatures    []string  `json:"signatures,omitempty" bson:"signatures,omitempty"`
	At            time.Time `json:"at" bson:"at"`
}

// Summary aggregates realized results. TotalProfitUSD and
// TotalProfitPercent are derived fields, recomputed from invested/returned
// on every snapshot and never mutated directly. TotalOpenPositions always
// equals the live book size at snapshot time.
type Summary struct {
	BaseSymbol          string    `json:"base_symbol" bson:"base_symbol"`
	TotalInvestedUSD    float64   `json:"total_invested_usd" bson:"total_invested_usd"`
	TotalReturnedUSD    float64   `json:"total_returned_usd" bson:"total_returned_usd"`
	TotalProfitUSD      float64   `json:"total_profit_usd" bson:"total_profit_usd"`
	TotalProfitPercent  float64   `json:"total_profit_percent" bson:"total_profit_percent"`
	TotalClosedTrades   int       `json:"total_closed_trades" bson:"total_closed_trades"`
	TotalOpenPositions  int       `json:"total_open_positions" bson:"total_open_positions"`
	LastUpdatedAt       time.Time `json:"last_updated_at" bson:"last_updated_at"`
	LastUpdateReason    string    `json:"last_update_reason" bson:"last_update_reason"`
}

// Snapshot is the value copy of the book handed to the persistence
// adapter. It never aliases internal state.
type Snapshot struct {
	Positions []Position     `json:"positions" bson:"positions"`
	History   []HistoryEntry `json:"history" bson:"history"`
	Summary   Summary        `json:"summary" bson:"summary"`
}

// Stats holds aggregate counters computed from the in-memory history.
type Stats struct {
	BuyCount  int     `json:"buy_count"`
	SellCount int     `json:"sell_count"`
	WinCount  int     `json:"win_count"`
	WinRate   float64 `json:"win_rate"`
	AvgWinUSD float64 `json:"avg_win_usd"`
}
