package mastodon

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/bus"
)

// Stream is the Mastodon streaming listener. It converts push events into
// bus events carrying Universal records; the timeline layer feeds those
// through the same append/filter/dedup path as polled loads.
type Stream struct {
	accountName string
	instanceURL string
	accessToken string
	bus         *bus.Bus
	logger      *zap.Logger
	cancel      context.CancelFunc
}

// NewStream creates a streaming listener for the user stream.
func NewStream(accountName string, c *Client, b *bus.Bus, logger *zap.Logger) *Stream {
	return &Stream{
		accountName: accountName,
		instanceURL: c.instanceURL,
		accessToken: c.accessToken,
		bus:         b,
		logger:      logger,
	}
}

// Start connects and begins publishing events. Reconnects with backoff
// until Stop or context cancellation.
func (s *Stream) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop terminates the stream.
func (s *Stream) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Stream) run(ctx context.Context) {
	backoff := time.Second
	for ctx.Err() == nil {
		err := s.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("stream disconnected, reconnecting",
			zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}

func (s *Stream) streamURL() string {
	u := strings.Replace(s.instanceURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	q := url.Values{}
	q.Set("access_token", s.accessToken)
	q.Set("stream", "user")
	return u + "/api/v1/streaming?" + q.Encode()
}

// streamEvent is the streaming wire frame; payload is a JSON-encoded string.
type streamEvent struct {
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

func (s *Stream) listen(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.streamURL(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	// Unblock ReadMessage when the context ends.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	s.logger.Info("stream connected")
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var evt streamEvent
		if err := json.Unmarshal(message, &evt); err != nil {
			s.logger.Warn("stream: bad frame", zap.Error(err))
			continue
		}
		s.dispatch(evt)
	}
}

func (s *Stream) dispatch(evt streamEvent) {
	switch evt.Event {
	case "update", "status.update":
		var raw apiStatus
		if err := json.Unmarshal([]byte(evt.Payload), &raw); err != nil {
			s.logger.Warn("stream: bad status payload", zap.Error(err))
			return
		}
		kind := bus.KindStreamStatus
		if evt.Event == "status.update" {
			kind = bus.KindStreamEdit
		}
		s.bus.Publish(bus.Event{
			Kind:    kind,
			Account: s.accountName,
			Payload: toStatus(&raw),
		})
	case "notification":
		var raw apiNotification
		if err := json.Unmarshal([]byte(evt.Payload), &raw); err != nil {
			s.logger.Warn("stream: bad notification payload", zap.Error(err))
			return
		}
		s.bus.Publish(bus.Event{
			Kind:    bus.KindStreamNotification,
			Account: s.accountName,
			Payload: toNotification(&raw),
		})
	case "delete":
		s.bus.Publish(bus.Event{
			Kind:    bus.KindStreamDelete,
			Account: s.accountName,
			Payload: strings.TrimSpace(evt.Payload),
		})
	}
}
