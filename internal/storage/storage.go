// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/rovshanmuradov/solana-signalbot/internal/ledger"
)

// Adapter is the advisory persistence boundary. Saves happen after every
// ledger mutation and are best-effort; the engine loads exactly once at
// start and keeps running memory-only when the adapter is unavailable.
type Adapter interface {
	// IsActive probes availability. Adapters mark themselves inactive
	// after a failed save or load.
	IsActive() bool

	// Save performs an idempotent whole-document replace.
	Save(ctx context.Context, snapshot *ledger.Snapshot) error

	// Load returns the persisted snapshot, or nil when none exists.
	Load(ctx context.Context) (*ledger.Snapshot, error)

	// Close releases adapter resources.
	Close(ctx context.Context) error
}

// Noop is the in-memory-only adapter used when no database is configured.
type Noop struct{}

func (Noop) IsActive() bool                                  { return false }
func (Noop) Save(context.Context, *ledger.Snapshot) error    { return nil }
func (Noop) Load(context.Context) (*ledger.Snapshot, error)  { return nil, nil }
func (Noop) Close(context.Context) error                     { return nil }
