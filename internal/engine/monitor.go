// internal/engine/monitor.go
package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-signalbot/internal/logger"
	"github.com/rovshanmuradov/solana-signalbot/internal/swap"
)

// PassResult summarizes one monitor pass over the open positions.
type PassResult struct {
	Evaluated int  // positions with a usable valuation and cost basis
	Skipped   int  // positions skipped (no valuation, bad cost, non-finite value)
	Triggered int  // positions whose profit reached the target
	Sold      int  // positions actually liquidated
	Disabled  bool // profit-taking disabled (target <= 0)
	Aborted   bool // pass ended early on a valuation error
}

// TriggerMonitorPass runs a monitor pass, or joins the pass already in
// flight: concurrent triggers observe the same result and no external
// call is duplicated. Ticks are never queued.
func (e *Engine) TriggerMonitorPass(ctx context.Context) PassResult {
	v, _, shared := e.flight.Do("monitor-pass", func() (interface{}, error) {
		return e.runMonitorPass(ctx), nil
	})
	result := v.(PassResult)
	if shared {
		e.logger.Debug("Monitor trigger joined in-flight pass")
	}
	return result
}

// runMonitorPass evaluates every open position against the profit target
// and liquidates the qualifying ones. Errors never propagate: the pass
// ends early and the next tick retries from scratch. Positions already
// sold before an error are retained progress.
func (e *Engine) runMonitorPass(ctx context.Context) PassResult {
	var result PassResult

	if e.book.Len() == 0 {
		return result
	}

	// Each pass gets its own correlation id so its log lines group together.
	log := logger.WithOperation(e.logger, "monitor_pass")

	settings := e.settings.GetAll()
	if settings.ProfitTargetPercent <= 0 {
		result.Disabled = true
		log.Debug("Profit-taking disabled, skipping monitor pass")
		return result
	}

	valuations, err := e.swap.WalletValuations(ctx, settings.BaseMint)
	if err != nil {
		result.Aborted = true
		log.Error("❌ Monitor pass aborted: valuation fetch failed", zap.Error(err))
		return result
	}

	byMint := make(map[string]*swap.TokenValuation, len(valuations))
	for i := range valuations {
		byMint[valuations[i].Mint] = &valuations[i]
	}
	baseHolding := byMint[settings.BaseMint]

	for _, pos := range e.book.Positions() {
		holding, ok := byMint[pos.Mint]
		if !ok {
			result.Skipped++
			continue
		}
		if pos.CostUSD <= 0 || !isFinite(holding.ValueInBase) {
			result.Skipped++
			continue
		}
		result.Evaluated++

		profitPercent := (holding.ValueInBase - pos.CostUSD) / pos.CostUSD * 100

		// A per-position target set at buy time overrides the global one.
		target := settings.ProfitTargetPercent
		if pos.TargetProfitPercent > 0 {
			target = pos.TargetProfitPercent
		}

		if profitPercent < target {
			continue
		}
		result.Triggered++

		log.Info("🎯 Profit target reached",
			zap.String("mint", pos.Mint),
			zap.String("symbol", pos.Symbol),
			zap.Float64("profit_percent", profitPercent),
			zap.Float64("target_percent", target))

		if e.SellPosition(ctx, pos, holding, baseHolding) {
			result.Sold++
		}
	}

	if result.Triggered > 0 || result.Skipped > 0 {
		log.Info("Monitor pass completed",
			zap.Int("evaluated", result.Evaluated),
			zap.Int("skipped", result.Skipped),
			zap.Int("triggered", result.Triggered),
			zap.Int("sold", result.Sold))
	}
	return result
}
