// internal/transport/session.go
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when an operation requires an active session.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyConnected is returned when Connect is called on an active session.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrNoPermalink is returned when no permalink base is configured.
	ErrNoPermalink = errors.New("transport: permalink resolution unavailable")
)

// Signal is an inbound, already-filtered buy signal. Free-text parsing and
// eligibility checks happen upstream; the session only decodes the frame.
type Signal struct {
	Ticker       string  `json:"ticker"`
	Amount       float64 `json:"amount"`
	BaseCurrency string  `json:"base_currency"`
	MinMarketCap float64 `json:"min_market_cap"`
	ChannelID    string  `json:"channel_id"`
	MessageID    string  `json:"message_id"`
}

// SignalHandler processes one inbound signal.
type SignalHandler func(Signal)

type inboundFrame struct {
	Type string `json:"type"`
	Signal
}

type outboundFrame struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

// Session is a websocket messaging session: it delivers inbound signal
// events to a registered handler and sends outbound channel messages.
type Session struct {
	url           string
	permalinkBase string
	logger        *zap.Logger

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	handler SignalHandler
	wg      sync.WaitGroup
}

// NewSession creates a session for the given websocket URL. permalinkBase
// may be empty, in which case permalink resolution is unavailable.
func NewSession(wsURL, permalinkBase string, logger *zap.Logger) *Session {
	return &Session{
		url:           wsURL,
		permalinkBase: permalinkBase,
		logger:        logger.Named("transport"),
	}
}

// Connect dials the transport and starts the read loop.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return ErrAlreadyConnected
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("transport dial: %w", err)
	}

	s.conn = conn
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.readLoop()

	s.logger.Info("🔌 Transport session established", zap.String("url", s.url))
	return nil
}

// OnSignal registers the handler invoked for every inbound signal. Must be
// called before Connect; a nil handler deregisters.
func (s *Session) OnSignal(handler SignalHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// SendMessage delivers text to a channel over the session.
func (s *Session) SendMessage(ctx context.Context, channelID, text string) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	frame := outboundFrame{Type: "message", ChannelID: channelID, Text: text}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode message frame: %w", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Permalink returns a best-effort link to the originating message. Callers
// are expected to omit the link when this fails.
func (s *Session) Permalink(channelID, messageID string) (string, error) {
	if s.permalinkBase == "" {
		return "", ErrNoPermalink
	}
	if channelID == "" || messageID == "" {
		return "", fmt.Errorf("transport: incomplete message reference")
	}
	return fmt.Sprintf("%s/%s/%s", s.permalinkBase, channelID, messageID), nil
}

// Close shuts the session down and waits for the read loop to exit.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	done := s.done
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	close(done)
	err := conn.Close()
	s.wg.Wait()

	s.logger.Info("🔌 Transport session closed")
	return err
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	return conn, err
}

// readLoop reads inbound frames until the session is closed, reconnecting
// with exponential backoff on transient failures.
func (s *Session) readLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		conn := s.conn
		done := s.done
		s.mu.Unlock()

		if conn == nil {
			return
		}

		_, payload, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return
			default:
			}
			s.logger.Warn("Transport read failed, reconnecting", zap.Error(err))
			if !s.reconnect(done) {
				return
			}
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.logger.Warn("Dropping malformed frame", zap.Error(err))
			continue
		}
		if frame.Type != "signal" {
			continue
		}

		s.mu.Lock()
		handler := s.handler
		s.mu.Unlock()

		if handler != nil {
			handler(frame.Signal)
		}
	}
}

// reconnect re-dials until it succeeds or the session is closed.
func (s *Session) reconnect(done chan struct{}) bool {
	policy := backoff.NewExponentialBackOff()

	for {
		select {
		case <-done:
			return false
		case <-time.After(policy.NextBackOff()):
		}

		conn, err := s.dial(context.Background())
		if err != nil {
			s.logger.Warn("Reconnect attempt failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		closed := false
		select {
		case <-done:
			closed = true
		default:
			s.conn = conn
		}
		s.mu.Unlock()

		if closed {
			_ = conn.Close()
			return false
		}

		s.logger.Info("🔌 Transport session re-established")
		return true
	}
}
