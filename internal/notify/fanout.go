// internal/notify/fanout.go
package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Transport delivers a message to a single channel. Implementations may
// fail per call; the fanout isolates those failures.
type Transport interface {
	SendMessage(ctx context.Context, channelID, text string) error
}

// Fanout dispatches messages to every registered subscriber channel plus
// a fixed outbound channel. Dispatch is best-effort: the call settles once
// every attempt has finished regardless of individual outcomes, and no
// per-channel failure is ever surfaced to the caller.
type Fanout struct {
	mu          sync.RWMutex
	subscribers map[string]struct{}
	outbound    string
	transport   Transport
	logger      *zap.Logger
}

// NewFanout creates a fanout over the given transport. outboundChannel is
// always notified in addition to subscribers.
func NewFanout(transport Transport, outboundChannel string, logger *zap.Logger) *Fanout {
	return &Fanout{
		subscribers: make(map[string]struct{}),
		outbound:    outboundChannel,
		transport:   transport,
		logger:      logger.Named("notify"),
	}
}

// Subscribe registers a channel for future notifications. Registering an
// already known channel is a no-op.
func (f *Fanout) Subscribe(channelID string) {
	if channelID == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.subscribers[channelID]; !exists {
		f.subscribers[channelID] = struct{}{}
		f.logger.Debug("Subscriber registered", zap.String("channel", channelID))
	}
}

// Subscribers returns the current subscriber channel ids.
func (f *Fanout) Subscribers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	result := make([]string, 0, len(f.subscribers))
	for id := range f.subscribers {
		result = append(result, id)
	}
	return result
}

// NotifyAll sends text to every subscriber and the outbound channel
// concurrently and waits for all attempts to settle.
func (f *Fanout) NotifyAll(ctx context.Context, text string) {
	targets := f.targets()
	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, channelID := range targets {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := f.transport.SendMessage(ctx, id, text); err != nil {
				f.logger.Warn("⚠️  Notification delivery failed",
					zap.String("channel", id),
					zap.Error(err))
			}
		}(channelID)
	}
	wg.Wait()
}

func (f *Fanout) targets() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	targets := make([]string, 0, len(f.subscribers)+1)
	seen := make(map[string]struct{}, len(f.subscribers)+1)
	for id := range f.subscribers {
		targets = append(targets, id)
		seen[id] = struct{}{}
	}
	if f.outbound != "" {
		if _, dup := seen[f.outbound]; !dup {
			targets = append(targets, f.outbound)
		}
	}
	return targets
}
