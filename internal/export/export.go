// Package export writes the trade history to CSV or JSON files for
// offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-signalbot/internal/ledger"
)

// Format is the export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// Options selects which history entries to export and where.
type Options struct {
	Format    Format
	Since     time.Time // zero means unbounded
	Until     time.Time // zero means unbounded
	Mint      string    // filter by token mint
	Type      ledger.EntryType
	HasType   bool
	OutputDir string
}

// Exporter writes filtered history entries to disk.
type Exporter struct {
	logger *zap.Logger
}

func NewExporter(logger *zap.Logger) *Exporter {
	return &Exporter{logger: logger.Named("export")}
}

// Export writes the matching entries to a timestamped file in the output
// directory and returns its path. An export with no matching entries is
// an error so callers never mistake an empty file for a completed one.
func (e *Exporter) Export(entries []ledger.HistoryEntry, opts Options) (string, error) {
	filtered := filter(entries, opts)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no history entries match the export criteria")
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].At.Before(filtered[j].At)
	})

	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}
	outputPath := filepath.Join(opts.OutputDir, filename(opts))

	var err error
	switch opts.Format {
	case FormatCSV:
		err = writeCSV(filtered, outputPath)
	case FormatJSON:
		err = writeJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported export format %q", opts.Format)
	}
	if err != nil {
		return "", err
	}

	e.logger.Info("📊 Trade history exported",
		zap.String("file", outputPath),
		zap.Int("entries", len(filtered)),
		zap.String("format", string(opts.Format)))
	return outputPath, nil
}

func filter(entries []ledger.HistoryEntry, opts Options) []ledger.HistoryEntry {
	var out []ledger.HistoryEntry
	for _, entry := range entries {
		if !opts.Since.IsZero() && entry.At.Before(opts.Since) {
			continue
		}
		if !opts.Until.IsZero() && entry.At.After(opts.Until) {
			continue
		}
		if opts.Mint != "" && entry.Mint != opts.Mint {
			continue
		}
		if opts.HasType && entry.Type != opts.Type {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func filename(opts Options) string {
	prefix := "history_all"
	if opts.HasType {
		prefix = "history_" + string(opts.Type)
	}
	if len(opts.Mint) >= 8 {
		prefix += "_" + opts.Mint[:8]
	}
	return fmt.Sprintf("%s_%s.%s", prefix, time.Now().Format("20060102_150405"), opts.Format)
}

func writeCSV(entries []ledger.HistoryEntry, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	header := []string{"id", "at", "type", "mint", "symbol", "amount_ui",
		"cost_usd", "received_usd", "profit_usd", "profit_percent", "signatures"}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, entry := range entries {
		record := []string{
			entry.ID,
			entry.At.Format(time.RFC3339),
			string(entry.Type),
			entry.Mint,
			entry.Symbol,
			strconv.FormatFloat(entry.AmountUI, 'f', -1, 64),
			strconv.FormatFloat(entry.CostUSD, 'f', -1, 64),
			strconv.FormatFloat(entry.ReceivedUSD, 'f', -1, 64),
			strconv.FormatFloat(entry.ProfitUSD, 'f', -1, 64),
			strconv.FormatFloat(entry.ProfitPercent, 'f', -1, 64),
			strings.Join(entry.Signatures, " "),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}
	return w.Error()
}

func writeJSON(entries []ledger.HistoryEntry, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create JSON file: %w", err)
	}
	defer file.Close()

	doc := struct {
		ExportedAt time.Time             `json:"exported_at"`
		EntryCount int                   `json:"entry_count"`
		Summary    Summary               `json:"summary"`
		Entries    []ledger.HistoryEntry `json:"entries"`
	}{
		ExportedAt: time.Now().UTC(),
		EntryCount: len(entries),
		Summary:    Summarize(entries),
		Entries:    entries,
	}

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode JSON export: %w", err)
	}
	return nil
}

// Summary aggregates the exported entries.
type Summary struct {
	BuyCount       int       `json:"buy_count"`
	SellCount      int       `json:"sell_count"`
	UniqueMints    int       `json:"unique_mints"`
	TotalCostUSD   float64   `json:"total_cost_usd"`
	TotalReturnUSD float64   `json:"total_return_usd"`
	TotalProfitUSD float64   `json:"total_profit_usd"`
	WinCount       int       `json:"win_count"`
	LossCount      int       `json:"loss_count"`
	WinRatePercent float64   `json:"win_rate_percent"`
	First          time.Time `json:"first,omitempty"`
	Last           time.Time `json:"last,omitempty"`
}

// Summarize computes aggregate statistics over entries sorted by time.
func Summarize(entries []ledger.HistoryEntry) Summary {
	var summary Summary
	if len(entries) == 0 {
		return summary
	}
	summary.First = entries[0].At
	summary.Last = entries[len(entries)-1].At

	mints := make(map[string]struct{})
	for _, entry := range entries {
		mints[entry.Mint] = struct{}{}
		switch entry.Type {
		case ledger.EntryBuy:
			summary.BuyCount++
			summary.TotalCostUSD += entry.CostUSD
		case ledger.EntrySell:
			summary.SellCount++
			summary.TotalReturnUSD += entry.ReceivedUSD
			summary.TotalProfitUSD += entry.ProfitUSD
			if entry.ProfitUSD > 0 {
				summary.WinCount++
			} else if entry.ProfitUSD < 0 {
				summary.LossCount++
			}
		}
	}
	summary.UniqueMints = len(mints)
	if summary.SellCount > 0 {
		summary.WinRatePercent = float64(summary.WinCount) / float64(summary.SellCount) * 100
	}
	return summary
}
