package ledger

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestBook() *Book {
	return NewBook(zap.NewNop())
}

func TestUpsertOnBuyExactRawAccumulation(t *testing.T) {
	book := newTestBook()

	book.UpsertOnBuy(BuyPatch{Mint: "M1", Symbol: "TKN", AmountRaw: "1000000000", AmountUI: 1.0, CostBase: 5})
	pos := book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "2500000000", AmountUI: 2.5, CostBase: 7})

	assert.Equal(t, "3500000000", pos.AmountRaw, "raw amounts must add with exact integer arithmetic")
	assert.InDelta(t, 3.5, pos.AmountUI, 1e-9)
	assert.InDelta(t, 12, pos.CostBase, 1e-9)
	assert.InDelta(t, 12, pos.CostUSD, 1e-9)
	assert.Equal(t, 1, book.Len())
}

func TestUpsertOnBuyLargeAmountsNoFloatRounding(t *testing.T) {
	book := newTestBook()

	// Both values are above 2^53, where float64 arithmetic would round.
	book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "9007199254740993"})
	pos := book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "9007199254740993"})

	assert.Equal(t, "18014398509481986", pos.AmountRaw)
}

func TestUpsertOnBuyTwoBuysScenario(t *testing.T) {
	book := newTestBook()

	book.UpsertOnBuy(BuyPatch{Mint: "M2", AmountRaw: "500", CostBase: 5})
	pos := book.UpsertOnBuy(BuyPatch{Mint: "M2", AmountRaw: "500", CostBase: 7})

	assert.Equal(t, "1000", pos.AmountRaw)
	assert.InDelta(t, 12, pos.CostBase, 1e-9)
}

func TestUpsertOnBuyParseFallbackUsesPatchVerbatim(t *testing.T) {
	book := newTestBook()

	book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "not-a-number"})
	pos := book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "1000"})

	assert.Equal(t, "1000", pos.AmountRaw, "unparseable current amount falls back to the patch value")
}

func TestUpsertOnBuyLatestWinsFields(t *testing.T) {
	book := newTestBook()

	book.UpsertOnBuy(BuyPatch{
		Mint: "M1", AmountRaw: "1",
		MarketCap: 100000, HasMarketCap: true,
		LastBuySignature:    "sig1",
		TargetProfitPercent: 25, HasTargetProfit: true,
	})
	pos := book.UpsertOnBuy(BuyPatch{
		Mint: "M1", AmountRaw: "1",
		MarketCap: 200000, HasMarketCap: true,
		LastBuySignature: "sig2",
	})

	assert.InDelta(t, 200000, pos.MarketCap, 1e-9)
	assert.Equal(t, "sig2", pos.LastBuySignature)
	assert.InDelta(t, 25, pos.TargetProfitPercent, 1e-9, "target survives when absent from the patch")
}

func TestUpsertOnBuyNonFiniteFloatsIgnored(t *testing.T) {
	book := newTestBook()

	book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "10", AmountUI: 1, CostBase: 2})
	pos := book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "10", AmountUI: math.NaN(), CostBase: math.Inf(1)})

	assert.InDelta(t, 1, pos.AmountUI, 1e-9)
	assert.InDelta(t, 2, pos.CostBase, 1e-9)
}

func TestRemoveOnSell(t *testing.T) {
	book := newTestBook()
	book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "100", CostBase: 10})

	prior, ok := book.RemoveOnSell("M1")
	assert.True(t, ok)
	assert.Equal(t, "M1", prior.Mint)
	assert.InDelta(t, 10, prior.CostBase, 1e-9)
	assert.Equal(t, 0, book.Len())

	_, ok = book.RemoveOnSell("M1")
	assert.False(t, ok, "removing an absent position is not an error")
}

func TestSnapshotDerivedSummaryFields(t *testing.T) {
	book := newTestBook()
	book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "100", CostBase: 10})
	book.ApplySellTotals(10, 15, true)

	snap := book.Snapshot("test")

	assert.InDelta(t, 5, snap.Summary.TotalProfitUSD, 1e-9)
	assert.InDelta(t, 50, snap.Summary.TotalProfitPercent, 1e-9)
	assert.Equal(t, 1, snap.Summary.TotalClosedTrades)
	assert.Equal(t, 1, snap.Summary.TotalOpenPositions)
	assert.Equal(t, "test", snap.Summary.LastUpdateReason)
}

func TestSnapshotZeroInvestedYieldsZeroPercent(t *testing.T) {
	book := newTestBook()
	snap := book.Snapshot("startup")

	assert.InDelta(t, 0, snap.Summary.TotalProfitPercent, 1e-9)
	assert.Equal(t, 0, snap.Summary.TotalOpenPositions)
}

func TestSnapshotDoesNotAliasInternalState(t *testing.T) {
	book := newTestBook()
	book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "100", CostBase: 10})
	book.AppendHistory(HistoryEntry{Type: EntrySell, Mint: "M1", Signatures: []string{"sig-original"}})

	snap := book.Snapshot("test")
	snap.Positions[0].CostBase = 999
	snap.History[0].Mint = "mutated"
	snap.History[0].Signatures[0] = "sig-mutated"

	pos, _ := book.Get("M1")
	assert.InDelta(t, 10, pos.CostBase, 1e-9)
	assert.Equal(t, "M1", book.Recent(1)[0].Mint)
	assert.Equal(t, "sig-original", book.Recent(1)[0].Signatures[0],
		"signature slices must be copied, not aliased")
}

func TestRecentAndRestoreCopySignatures(t *testing.T) {
	book := newTestBook()
	book.AppendHistory(HistoryEntry{Type: EntrySell, Mint: "M1", Signatures: []string{"sig-1"}})

	recent := book.Recent(1)
	recent[0].Signatures[0] = "overwritten"
	assert.Equal(t, "sig-1", book.Recent(1)[0].Signatures[0])

	snap := book.Snapshot("test")
	restored := newTestBook()
	restored.Restore(snap)
	snap.History[0].Signatures[0] = "overwritten"
	assert.Equal(t, "sig-1", restored.Recent(1)[0].Signatures[0])
}

func TestHistoryMemoryCap(t *testing.T) {
	book := newTestBook()

	for i := 0; i < 150; i++ {
		book.AppendHistory(HistoryEntry{Type: EntryBuy, Mint: fmt.Sprintf("M%d", i)})
	}

	recent := book.Recent(0)
	assert.Len(t, recent, 100, "in-memory log capped at 100, oldest dropped")
	assert.Equal(t, "M50", recent[0].Mint)
	assert.Equal(t, "M149", recent[len(recent)-1].Mint)
}

func TestRestoreTruncatesOversizedHistory(t *testing.T) {
	book := newTestBook()

	history := make([]HistoryEntry, 250)
	for i := range history {
		history[i] = HistoryEntry{Type: EntryBuy, Mint: fmt.Sprintf("M%d", i)}
	}
	book.Restore(&Snapshot{History: history, Summary: Summary{TotalClosedTrades: 3}})

	assert.Len(t, book.Recent(0), 100)
	assert.Equal(t, 3, book.Summary().TotalClosedTrades)
}

func TestStatistics(t *testing.T) {
	book := newTestBook()
	book.AppendHistory(HistoryEntry{Type: EntryBuy, Mint: "M1"})
	book.AppendHistory(HistoryEntry{Type: EntrySell, Mint: "M1", ProfitUSD: 4})
	book.AppendHistory(HistoryEntry{Type: EntrySell, Mint: "M2", ProfitUSD: -1})

	stats := book.Statistics()
	assert.Equal(t, 1, stats.BuyCount)
	assert.Equal(t, 2, stats.SellCount)
	assert.Equal(t, 1, stats.WinCount)
	assert.InDelta(t, 50, stats.WinRate, 1e-9)
	assert.InDelta(t, 4, stats.AvgWinUSD, 1e-9)
}

func TestLockMintSerializesSameMint(t *testing.T) {
	book := newTestBook()

	var inCritical, maxInCritical int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := book.LockMint("M1")
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			book.UpsertOnBuy(BuyPatch{Mint: "M1", AmountRaw: "1"})

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical, "per-mint lock admits one holder at a time")
	pos, _ := book.Get("M1")
	assert.Equal(t, "8", pos.AmountRaw)
}

func TestConcurrentUpsertAndSnapshot(t *testing.T) {
	book := newTestBook()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				book.UpsertOnBuy(BuyPatch{Mint: fmt.Sprintf("M%d", n), AmountRaw: "1", CostBase: 1})
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = book.Snapshot("concurrent")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, book.Len())
	for _, pos := range book.Positions() {
		assert.Equal(t, "50", pos.AmountRaw)
	}
}
