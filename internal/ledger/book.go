// internal/ledger/book.go
package ledger

import (
	"math"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// maxHistoryMemory caps the in-memory/notification log; oldest
	// entries are dropped on append.
	maxHistoryMemory = 100

	// maxHistoryPersist caps the persisted log.
	maxHistoryPersist = 200
)

// Book owns the mint→Position mapping, the bounded history log and the
// running Summary. All mutation goes through the buy/sell transition
// handlers of a single engine instance.
type Book struct {
	mu        sync.RWMutex
	positions map[string]*Position
	history   []HistoryEntry
	summary   Summary
	logger    *zap.Logger

	lockMu    sync.Mutex
	mintLocks map[string]*sync.Mutex
}

// NewBook creates an empty book.
func NewBook(logger *zap.Logger) *Book {
	return &Book{
		positions: make(map[string]*Position),
		mintLocks: make(map[string]*sync.Mutex),
		logger:    logger.Named("ledger"),
	}
}

// Restore replaces the book contents with a previously persisted snapshot.
func (b *Book) Restore(snap *Snapshot) {
	if snap == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.positions = make(map[string]*Position, len(snap.Positions))
	for i := range snap.Positions {
		p := snap.Positions[i]
		b.positions[p.Mint] = &p
	}

	history := snap.History
	if len(history) > maxHistoryMemory {
		history = history[len(history)-maxHistoryMemory:]
	}
	b.history = cloneHistory(history)
	b.summary = snap.Summary

	b.logger.Info("📒 Ledger restored from snapshot",
		zap.Int("positions", len(b.positions)),
		zap.Int("history", len(b.history)),
		zap.Int("closed_trades", b.summary.TotalClosedTrades))
}

// UpsertOnBuy merges a buy into the book. The first buy of a mint creates
// the position; subsequent buys add amounts and cost and overwrite the
// latest-wins fields. Returns a value copy of the resulting position.
func (b *Book) UpsertOnBuy(patch BuyPatch) Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	pos, exists := b.positions[patch.Mint]
	if !exists {
		pos = &Position{
			Mint:         patch.Mint,
			Symbol:       patch.Symbol,
			AmountRaw:    patch.AmountRaw,
			BaseMint:     patch.BaseMint,
			BaseSymbol:   patch.BaseSymbol,
			BaseDecimals: patch.BaseDecimals,
			CreatedAt:    now,
		}
		if isFinite(patch.AmountUI) {
			pos.AmountUI = patch.AmountUI
		}
		if isFinite(patch.CostBase) {
			pos.CostBase = patch.CostBase
		}
		b.positions[patch.Mint] = pos
	} else {
		pos.AmountRaw = b.addRawAmounts(pos.AmountRaw, patch.AmountRaw)
		if isFinite(patch.AmountUI) {
			pos.AmountUI += patch.AmountUI
		}
		if isFinite(patch.CostBase) {
			pos.CostBase += patch.CostBase
		}
		if patch.Symbol != "" {
			pos.Symbol = patch.Symbol
		}
	}

	// The base denomination is the currency of accounting, so the USD
	// figure tracks the base cost one-to-one.
	pos.CostUSD = pos.CostBase

	if patch.HasMarketCap {
		pos.MarketCap = patch.MarketCap
	}
	if patch.LastBuySignature != "" {
		pos.LastBuySignature = patch.LastBuySignature
	}
	if patch.HasTargetProfit {
		pos.TargetProfitPercent = patch.TargetProfitPercent
	}
	pos.LastUpdatedAt = now

	return *pos
}

// RemoveOnSell deletes the position for mint and returns its prior value.
// Absence is not an error.
func (b *Book) RemoveOnSell(mint string) (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, exists := b.positions[mint]
	if !exists {
		return Position{}, false
	}
	delete(b.positions, mint)
	return *pos, true
}

// Get returns a value copy of the position for mint.
func (b *Book) Get(mint string) (Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos, exists := b.positions[mint]
	if !exists {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns value copies of all open positions, ordered by mint.
func (b *Book) Positions() []Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		result = append(result, *pos)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Mint < result[j].Mint })
	return result
}

// Len returns the number of open positions.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.positions)
}

// AppendHistory appends an immutable entry, dropping the oldest once the
// in-memory cap is reached. Missing ids and timestamps are filled in.
func (b *Book) AppendHistory(entry HistoryEntry) HistoryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	if len(b.history) >= maxHistoryMemory {
		b.history = b.history[1:]
	}
	b.history = append(b.history, entry)
	return entry
}

// Recent returns up to limit most recent history entries, newest last.
func (b *Book) Recent(limit int) []HistoryEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	start := len(b.history) - limit
	return cloneHistory(b.history[start:])
}

// ApplySellTotals records a closed trade in the summary counters.
// Profit fields are not touched here; they are derived at snapshot time.
func (b *Book) ApplySellTotals(cost float64, received float64, haveReceived bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.summary.TotalClosedTrades++
	if cost > 0 && isFinite(cost) {
		b.summary.TotalInvestedUSD += cost
	}
	if haveReceived && isFinite(received) {
		b.summary.TotalReturnedUSD += received
	}
}

// SetBaseSymbol records the currency of accounting on the summary.
func (b *Book) SetBaseSymbol(symbol string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary.BaseSymbol = symbol
}

// Snapshot produces a value copy of the entire book for persistence,
// recomputing the derived summary fields. The returned document never
// aliases internal state.
func (b *Book) Snapshot(reason string) *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	positions := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		positions = append(positions, *pos)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Mint < positions[j].Mint })

	history := b.history
	if len(history) > maxHistoryPersist {
		history = history[len(history)-maxHistoryPersist:]
	}
	historyCopy := cloneHistory(history)

	b.summary.TotalOpenPositions = len(b.positions)
	b.summary.TotalProfitUSD = b.summary.TotalReturnedUSD - b.summary.TotalInvestedUSD
	if b.summary.TotalInvestedUSD > 0 {
		b.summary.TotalProfitPercent = b.summary.TotalProfitUSD / b.summary.TotalInvestedUSD * 100
	} else {
		b.summary.TotalProfitPercent = 0
	}
	b.summary.LastUpdatedAt = time.Now().UTC()
	b.summary.LastUpdateReason = reason

	return &Snapshot{
		Positions: positions,
		History:   historyCopy,
		Summary:   b.summary,
	}
}

// Summary returns a copy of the current summary.
func (b *Book) Summary() Summary {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.summary
}

// Statistics computes aggregate counters from the in-memory history.
func (b *Book) Statistics() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var stats Stats
	var totalWinUSD float64
	for _, entry := range b.history {
		switch entry.Type {
		case EntryBuy:
			stats.BuyCount++
		case EntrySell:
			stats.SellCount++
			if entry.ProfitUSD > 0 {
				stats.WinCount++
				totalWinUSD += entry.ProfitUSD
			}
		}
	}
	if stats.SellCount > 0 {
		stats.WinRate = float64(stats.WinCount) / float64(stats.SellCount) * 100
	}
	if stats.WinCount > 0 {
		stats.AvgWinUSD = totalWinUSD / float64(stats.WinCount)
	}
	return stats
}

// LockMint acquires the per-mint mutex serializing buy top-ups against
// monitor-triggered sells for the same mint. The caller must invoke the
// returned function to release it.
func (b *Book) LockMint(mint string) func() {
	b.lockMu.Lock()
	lock, exists := b.mintLocks[mint]
	if !exists {
		lock = &sync.Mutex{}
		b.mintLocks[mint] = lock
	}
	b.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// addRawAmounts adds two raw on-chain amounts with exact integer
// arithmetic. If either side fails to parse, the patch value is used
// verbatim and the discrepancy logged.
func (b *Book) addRawAmounts(current, add string) string {
	if add == "" {
		return current
	}
	x, okX := new(big.Int).SetString(current, 10)
	y, okY := new(big.Int).SetString(add, 10)
	if !okX || !okY {
		b.logger.Warn("⚠️  Raw amount parse failed, using patch value verbatim",
			zap.String("current", current),
			zap.String("patch", add))
		return add
	}
	return x.Add(x, y).String()
}

// cloneHistory copies entries including their Signatures slices, so the
// result shares no mutable state with the book.
func cloneHistory(entries []HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	for i := range out {
		if out[i].Signatures != nil {
			out[i].Signatures = append([]string(nil), out[i].Signatures...)
		}
	}
	return out
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
