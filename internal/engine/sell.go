// internal/engine/sell.go
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-signalbot/internal/ledger"
	"github.com/rovshanmuradov/solana-signalbot/internal/logger"
	"github.com/rovshanmuradov/solana-signalbot/internal/swap"
)

// SellPosition liquidates the entire current balance of a position into
// the base denomination, then removes it from the book and records the
// realized trade. Returns true only when the position was actually sold
// and removed. Failures before swap execution leave the ledger untouched;
// failures after execution are logged with the transaction signature so
// the books can be reconciled by hand.
func (e *Engine) SellPosition(ctx context.Context, pos ledger.Position, holding, baseHolding *swap.TokenValuation) bool {
	log := e.logger.With(
		zap.String("mint", pos.Mint),
		zap.String("symbol", pos.Symbol))

	if holding == nil || holding.RawAmount == "" || holding.RawAmount == "0" {
		log.Warn("Auto-sell skipped: no current balance to sell")
		return false
	}

	settings := e.settings.GetAll()
	if settings.BaseMint == "" {
		log.Warn("Auto-sell skipped: no base denomination mint configured")
		e.fanout.NotifyAll(ctx, fmt.Sprintf("⚠️ Cannot auto-sell %s: no base currency configured", displayName(pos.Symbol, pos.Mint)))
		return false
	}

	unlock := e.book.LockMint(pos.Mint)
	defer unlock()

	// Re-read under the lock; a concurrent transition may have closed it.
	current, exists := e.book.Get(pos.Mint)
	if !exists {
		log.Debug("Position already closed, skipping auto-sell")
		return false
	}
	pos = current

	quote, err := e.swap.Quote(ctx, pos.Mint, settings.BaseMint, holding.RawAmount, settings.SlippageBps)
	if err != nil {
		log.Error("❌ Auto-sell quote failed", zap.Error(err))
		return false
	}

	signature, err := e.swap.Execute(ctx, quote)
	if err != nil {
		log.Error("❌ Auto-sell execution failed", zap.Error(err))
		return false
	}
	log = logger.WithSignature(log, signature)

	// The swap has executed on-chain; everything below is accounting.
	baseDecimals := settings.BaseDecimals
	if pos.BaseDecimals > 0 {
		baseDecimals = pos.BaseDecimals
	}
	if baseHolding != nil && baseHolding.Decimals > 0 {
		baseDecimals = baseHolding.Decimals
	}
	received, haveReceived := rawToUI(quote.OutAmount, baseDecimals)

	prior, removed := e.book.RemoveOnSell(pos.Mint)
	if !removed {
		log.Error("Position vanished after swap execution; realized proceeds not recorded")
		return false
	}

	cost := prior.CostUSD
	var profitUSD, profitPercent float64
	if cost > 0 && haveReceived {
		profitUSD = received - cost
		profitPercent = profitUSD / cost * 100
	}

	e.book.ApplySellTotals(cost, received, haveReceived)

	e.book.AppendHistory(ledger.HistoryEntry{
		Type:          ledger.EntrySell,
		Mint:          prior.Mint,
		Symbol:        prior.Symbol,
		AmountUI:      prior.AmountUI,
		CostUSD:       cost,
		ReceivedUSD:   received,
		ProfitUSD:     profitUSD,
		ProfitPercent: profitPercent,
		Signatures:    []string{signature},
	})

	e.persist(ctx, "sell")

	msg := fmt.Sprintf("💰 Sold %s for %.4f %s (%+.2f%%, %+.4f %s)\nTx: %s",
		displayName(prior.Symbol, prior.Mint),
		received, settings.BaseSymbol,
		profitPercent, profitUSD, settings.BaseSymbol,
		signature)
	e.fanout.NotifyAll(ctx, msg)

	log.Info("✅ Position closed",
		zap.Float64("received_base", received),
		zap.Float64("profit_percent", profitPercent))
	return true
}
