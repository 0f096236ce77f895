// internal/engine/buy.go
package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-signalbot/internal/config"
	"github.com/rovshanmuradov/solana-signalbot/internal/ledger"
	"github.com/rovshanmuradov/solana-signalbot/internal/transport"
)

// BuyOutcome carries the result of an executed buy swap.
type BuyOutcome struct {
	Mint      string
	Symbol    string
	AmountRaw string
	AmountUI  float64
	CostBase  float64
	MarketCap float64
	Signature string
}

// Source identifies the originating message of a signal, used for
// best-effort permalinks in notifications.
type Source struct {
	ChannelID string
	MessageID string
}

// BuyInput is the buy transition input: the swap outcome plus the signal
// context it came from.
type BuyInput struct {
	Ticker  string
	Outcome BuyOutcome
	Header  string
	Source  Source
}

// HandleBuySignal acquires a position for an inbound buy signal: quote,
// execute, then apply the outcome to the book. Quote and execution
// failures propagate to the caller with the ledger untouched.
func (e *Engine) HandleBuySignal(ctx context.Context, sig transport.Signal) error {
	settings := e.settings.GetAll()

	if settings.BaseMint == "" {
		e.fanout.NotifyAll(ctx, fmt.Sprintf("⚠️ Cannot buy %s: no base currency configured", sig.Ticker))
		return config.ErrMissingBaseMint
	}

	amount := sig.Amount
	if amount <= 0 {
		amount = settings.BuyAmountBase
	}
	if amount <= 0 {
		e.fanout.NotifyAll(ctx, fmt.Sprintf("⚠️ Cannot buy %s: no buy amount configured", sig.Ticker))
		return fmt.Errorf("no buy amount for signal %q", sig.Ticker)
	}

	// Upstream signal filtering resolves free text to the mint address.
	mint := sig.Ticker
	rawIn := baseToRaw(amount, settings.BaseDecimals)

	e.logger.Info("🚀 Executing buy",
		zap.String("mint", mint),
		zap.Float64("amount_base", amount),
		zap.String("base_symbol", settings.BaseSymbol))

	quote, err := e.swap.Quote(ctx, settings.BaseMint, mint, rawIn, settings.SlippageBps)
	if err != nil {
		return fmt.Errorf("buy quote for %s: %w", mint, err)
	}

	signature, err := e.swap.Execute(ctx, quote)
	if err != nil {
		return fmt.Errorf("buy execution for %s: %w", mint, err)
	}

	outcome := BuyOutcome{
		Mint:      mint,
		AmountRaw: quote.OutAmount,
		CostBase:  amount,
		Signature: signature,
	}

	// Symbol, display amount and market cap come from a best-effort
	// post-buy valuation lookup; the buy stands without them.
	if valuations, err := e.swap.WalletValuations(ctx, settings.BaseMint); err == nil {
		for i := range valuations {
			if valuations[i].Mint == mint {
				outcome.Symbol = valuations[i].Symbol
				outcome.MarketCap = valuations[i].MarketCap
				if valuations[i].Decimals > 0 {
					if ui, ok := rawToUI(quote.OutAmount, valuations[i].Decimals); ok {
						outcome.AmountUI = ui
					}
				}
				break
			}
		}
	} else {
		e.logger.Debug("Post-buy valuation lookup failed", zap.Error(err))
	}

	e.fanout.Subscribe(sig.ChannelID)

	e.ApplyBuy(ctx, BuyInput{
		Ticker:  sig.Ticker,
		Outcome: outcome,
		Header:  "Buy signal",
		Source:  Source{ChannelID: sig.ChannelID, MessageID: sig.MessageID},
	})
	return nil
}

// ApplyBuy applies an executed buy to the book: merge the position,
// append history, persist best-effort, notify. The ledger mutation
// strictly precedes history, which precedes persistence and notification.
func (e *Engine) ApplyBuy(ctx context.Context, input BuyInput) ledger.Position {
	settings := e.settings.GetAll()
	out := input.Outcome

	patch := ledger.BuyPatch{
		Mint:             out.Mint,
		Symbol:           out.Symbol,
		AmountRaw:        out.AmountRaw,
		BaseMint:         settings.BaseMint,
		BaseSymbol:       settings.BaseSymbol,
		BaseDecimals:     settings.BaseDecimals,
		LastBuySignature: out.Signature,
	}
	// Non-finite numerics are treated as absent.
	if isFinite(out.AmountUI) {
		patch.AmountUI = out.AmountUI
	} else {
		patch.AmountUI = math.NaN()
	}
	if isFinite(out.CostBase) {
		patch.CostBase = out.CostBase
	} else {
		patch.CostBase = math.NaN()
	}
	if isFinite(out.MarketCap) && out.MarketCap > 0 {
		patch.MarketCap = out.MarketCap
		patch.HasMarketCap = true
	}
	if settings.ProfitTargetPercent > 0 {
		patch.TargetProfitPercent = settings.ProfitTargetPercent
		patch.HasTargetProfit = true
	}

	unlock := e.book.LockMint(out.Mint)
	pos := e.book.UpsertOnBuy(patch)
	e.book.AppendHistory(ledger.HistoryEntry{
		Type:       ledger.EntryBuy,
		Mint:       pos.Mint,
		Symbol:     pos.Symbol,
		AmountUI:   out.AmountUI,
		CostUSD:    out.CostBase,
		Signatures: []string{out.Signature},
	})
	unlock()

	e.persist(ctx, "buy")

	e.fanout.NotifyAll(ctx, e.buyMessage(input, pos))

	e.logger.Info("🟢 Position opened",
		zap.String("mint", pos.Mint),
		zap.String("symbol", pos.Symbol),
		zap.String("amount_raw", pos.AmountRaw),
		zap.Float64("cost_base", pos.CostBase),
		zap.String("signature", out.Signature))
	return pos
}

// buyMessage composes the human-readable buy notification, including a
// best-effort permalink to the originating message.
func (e *Engine) buyMessage(input BuyInput, pos ledger.Position) string {
	msg := fmt.Sprintf("🟢 %s: bought %s for %.4f %s",
		input.Header, displayName(pos.Symbol, pos.Mint), input.Outcome.CostBase, pos.BaseSymbol)
	if input.Outcome.AmountUI > 0 {
		msg += fmt.Sprintf(" (%.4f tokens)", input.Outcome.AmountUI)
	}
	if input.Outcome.Signature != "" {
		msg += "\nTx: " + input.Outcome.Signature
	}
	// Link resolution failure is swallowed; the link is simply omitted.
	if link, err := e.session.Permalink(input.Source.ChannelID, input.Source.MessageID); err == nil {
		msg += "\nSignal: " + link
	}
	return msg
}

// baseToRaw converts a base-denomination amount into raw units.
func baseToRaw(amount float64, decimals uint8) string {
	raw := amount * math.Pow10(int(decimals))
	return strconv.FormatInt(int64(math.Round(raw)), 10)
}

// rawToUI converts a raw unit string into a display quantity.
func rawToUI(raw string, decimals uint8) (float64, bool) {
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || !isFinite(value) {
		return 0, false
	}
	return value / math.Pow10(int(decimals)), true
}

// displayName prefers the symbol, falling back to a shortened mint.
func displayName(symbol, mint string) string {
	if symbol != "" {
		return symbol
	}
	if len(mint) >= 8 {
		return mint[:4] + "..." + mint[len(mint)-4:]
	}
	return mint
}
