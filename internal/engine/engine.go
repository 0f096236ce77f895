// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/solana-signalbot/internal/config"
	"github.com/rovshanmuradov/solana-signalbot/internal/ledger"
	"github.com/rovshanmuradov/solana-signalbot/internal/notify"
	"github.com/rovshanmuradov/solana-signalbot/internal/storage"
	"github.com/rovshanmuradov/solana-signalbot/internal/swap"
	"github.com/rovshanmuradov/solana-signalbot/internal/transport"
)

// State is the engine lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Session is the messaging-transport boundary the engine drives.
type Session interface {
	Connect(ctx context.Context) error
	Close() error
	OnSignal(handler transport.SignalHandler)
	SendMessage(ctx context.Context, channelID, text string) error
	Permalink(channelID, messageID string) (string, error)
}

// Config wires the engine's collaborators.
type Config struct {
	Logger   *zap.Logger
	Settings *config.Provider
	Book     *ledger.Book
	Swap     swap.Provider
	Store    storage.Adapter
	Fanout   *notify.Fanout
	Session  Session
}

// Engine owns the position book and drives the buy/sell transitions and
// the monitor loop. A single logical instance mutates the book.
type Engine struct {
	logger   *zap.Logger
	settings *config.Provider
	book     *ledger.Book
	swap     swap.Provider
	store    storage.Adapter
	fanout   *notify.Fanout
	session  Session

	mu        sync.Mutex
	state     State
	stopCh    chan struct{}
	loopWg    sync.WaitGroup
	handlerWg sync.WaitGroup

	// flight serializes monitor passes: a tick that arrives mid-pass
	// joins the in-flight pass instead of queuing a new one.
	flight singleflight.Group
}

// New creates an engine in the Stopped state.
func New(cfg *Config) *Engine {
	return &Engine{
		logger:   cfg.Logger.Named("engine"),
		settings: cfg.Settings,
		book:     cfg.Book,
		swap:     cfg.Swap,
		store:    cfg.Store,
		fanout:   cfg.Fanout,
		session:  cfg.Session,
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start loads persisted state, establishes the transport session,
// registers the signal listener and starts the monitor timer. Calling
// Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateStopped {
		state := e.state
		e.mu.Unlock()
		e.logger.Info("Engine already running", zap.Stringer("state", state))
		return nil
	}
	e.state = StateStarting
	e.mu.Unlock()

	settings := e.settings.GetAll()
	e.book.SetBaseSymbol(settings.BaseSymbol)

	// Load is attempted exactly once, at start. Absence and failure both
	// degrade to an empty in-memory book.
	if e.store.IsActive() {
		snap, err := e.store.Load(ctx)
		switch {
		case err != nil:
			e.logger.Warn("⚠️  Snapshot load failed, starting with empty ledger", zap.Error(err))
		case snap != nil:
			e.book.Restore(snap)
		default:
			e.logger.Info("No persisted snapshot, starting with empty ledger")
		}
	}

	e.session.OnSignal(func(sig transport.Signal) {
		e.handlerWg.Add(1)
		go func() {
			defer e.handlerWg.Done()
			e.guard("buy_signal", func() {
				if err := e.HandleBuySignal(context.Background(), sig); err != nil {
					e.logger.Error("Buy signal handling failed",
						zap.String("ticker", sig.Ticker),
						zap.Error(err))
				}
			})
		}()
	})

	if err := e.session.Connect(ctx); err != nil {
		e.mu.Lock()
		e.state = StateStopped
		e.mu.Unlock()
		return fmt.Errorf("connect transport session: %w", err)
	}

	interval := time.Duration(settings.MonitorIntervalMs) * time.Millisecond

	e.mu.Lock()
	e.stopCh = make(chan struct{})
	e.state = StateRunning
	e.mu.Unlock()

	e.loopWg.Add(1)
	go e.runMonitorLoop(interval)

	e.logger.Info("🚀 Engine started",
		zap.Duration("monitor_interval", interval),
		zap.Int("open_positions", e.book.Len()),
		zap.Float64("profit_target_percent", settings.ProfitTargetPercent))
	return nil
}

// Stop cancels the monitor timer, deregisters the signal listener and
// closes the transport session. An in-flight monitor pass is not
// cancelled: it finishes naturally so an external swap is never left
// half-submitted.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		e.logger.Info("Engine not running, nothing to stop", zap.Stringer("state", state))
		return nil
	}
	e.state = StateStopping
	close(e.stopCh)
	e.mu.Unlock()

	e.session.OnSignal(nil)
	if err := e.session.Close(); err != nil {
		e.logger.Warn("Transport session close failed", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		e.loopWg.Wait()
		e.handlerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("Timeout waiting for in-flight work to finish")
	}

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	stats := e.book.Statistics()
	e.logger.Info("👋 Engine stopped",
		zap.Int("open_positions", e.book.Len()),
		zap.Int("buys", stats.BuyCount),
		zap.Int("sells", stats.SellCount),
		zap.Float64("win_rate", stats.WinRate))
	return nil
}

// runMonitorLoop fires a monitor pass on each tick until stopped.
func (e *Engine) runMonitorLoop(interval time.Duration) {
	defer e.loopWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Debug("Monitor loop started", zap.Duration("interval", interval))

	for {
		select {
		case <-e.stopCh:
			e.logger.Debug("Monitor loop stopped")
			return
		case <-ticker.C:
			e.guard("monitor_pass", func() {
				// Pass errors are logged inside; a failed pass is
				// retried from scratch on the next tick.
				_ = e.TriggerMonitorPass(context.Background())
			})
		}
	}
}

// persist saves a snapshot after a ledger mutation. Best-effort: failures
// are logged and the engine keeps running in memory.
func (e *Engine) persist(ctx context.Context, reason string) {
	if !e.store.IsActive() {
		return
	}
	if err := e.store.Save(ctx, e.book.Snapshot(reason)); err != nil {
		e.logger.Warn("⚠️  Snapshot save failed, continuing in memory",
			zap.String("reason", reason),
			zap.Error(err))
	}
}

// guard wraps an asynchronous entry point with a catch-and-log boundary.
func (e *Engine) guard(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("💥 Recovered panic in handler",
				zap.String("handler", name),
				zap.Any("panic", r))
		}
	}()
	fn()
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
