package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeTransport struct {
	mu       sync.Mutex
	sent     map[string][]string
	failures map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:     make(map[string][]string),
		failures: make(map[string]error),
	}
}

func (t *fakeTransport) SendMessage(_ context.Context, channelID, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err, ok := t.failures[channelID]; ok {
		return err
	}
	t.sent[channelID] = append(t.sent[channelID], text)
	return nil
}

func (t *fakeTransport) messages(channelID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent[channelID]...)
}

func TestNotifyAllReachesSubscribersAndOutbound(t *testing.T) {
	transport := newFakeTransport()
	fanout := NewFanout(transport, "outbound", zap.NewNop())
	fanout.Subscribe("chan-a")
	fanout.Subscribe("chan-b")

	fanout.NotifyAll(context.Background(), "position opened")

	for _, channel := range []string{"chan-a", "chan-b", "outbound"} {
		assert.Equal(t, []string{"position opened"}, transport.messages(channel))
	}
}

func TestNotifyAllIsolatesFailures(t *testing.T) {
	transport := newFakeTransport()
	transport.failures["chan-broken"] = errors.New("channel gone")

	fanout := NewFanout(transport, "outbound", zap.NewNop())
	fanout.Subscribe("chan-broken")
	fanout.Subscribe("chan-ok")

	// Must settle without panicking or surfacing the failure.
	fanout.NotifyAll(context.Background(), "hello")

	assert.Equal(t, []string{"hello"}, transport.messages("chan-ok"))
	assert.Equal(t, []string{"hello"}, transport.messages("outbound"))
	assert.Empty(t, transport.messages("chan-broken"))
}

func TestSubscribeIsIdempotent(t *testing.T) {
	transport := newFakeTransport()
	fanout := NewFanout(transport, "outbound", zap.NewNop())

	fanout.Subscribe("chan-a")
	fanout.Subscribe("chan-a")
	fanout.Subscribe("")

	assert.Equal(t, []string{"chan-a"}, fanout.Subscribers())
}

func TestOutboundNotDuplicatedWhenSubscribed(t *testing.T) {
	transport := newFakeTransport()
	fanout := NewFanout(transport, "outbound", zap.NewNop())
	fanout.Subscribe("outbound")

	fanout.NotifyAll(context.Background(), "once")

	assert.Equal(t, []string{"once"}, transport.messages("outbound"))
}

func TestConcurrentSubscribeAndNotify(t *testing.T) {
	transport := newFakeTransport()
	fanout := NewFanout(transport, "outbound", zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			fanout.Subscribe("chan")
		}(i)
		go func() {
			defer wg.Done()
			fanout.NotifyAll(context.Background(), "msg")
		}()
	}
	wg.Wait()
}
