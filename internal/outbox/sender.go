// Package outbox queues composed posts in the account database and delivers
// them in the background, so publishing survives transient network failures
// and the composer never blocks on the wire.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/bus"
	"github.com/fastsm/fastsm/internal/cache"
	"github.com/fastsm/fastsm/internal/models"
)

// Poster is the slice of the platform account the sender needs.
type Poster interface {
	Post(ctx context.Context, args backend.PostArgs) (*models.Status, error)
}

// Sender drains the outbox and publishes posts via the platform backend.
type Sender struct {
	db          *cache.DB
	accountName string
	poster      Poster
	bus         *bus.Bus
	logger      *zap.Logger
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewSender creates an outbox sender for one account.
func NewSender(db *cache.DB, accountName string, poster Poster, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:          db,
		accountName: accountName,
		poster:      poster,
		bus:         b,
		logger:      logger,
	}
}

// Queue adds a post to the outbox and returns its client id. The id makes
// re-delivery idempotent: queueing the same id twice fails on the unique
// constraint.
func (s *Sender) Queue(args backend.PostArgs) (string, error) {
	clientID := uuid.NewString()
	err := s.db.QueueOutbox(&cache.OutboxEntry{
		ClientID:    clientID,
		Body:        args.Text,
		InReplyToID: args.InReplyToID,
		Visibility:  args.Visibility,
		SpoilerText: args.SpoilerText,
	})
	if err != nil {
		return "", err
	}
	s.publish(bus.KindPostQueued, map[string]string{"client_id": clientID})
	return clientID, nil
}

// Start begins polling the outbox for queued posts.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for it to exit.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if err := s.db.MarkOutboxSending(entry.ClientID); err != nil {
			s.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_id", entry.ClientID))
			continue
		}

		posted, err := s.poster.Post(ctx, backend.PostArgs{
			Text:        entry.Body,
			InReplyToID: entry.InReplyToID,
			Visibility:  entry.Visibility,
			SpoilerText: entry.SpoilerText,
		})
		if err != nil {
			s.logger.Error("failed to publish post", zap.Error(err), zap.String("client_id", entry.ClientID))
			_ = s.db.MarkOutboxFailed(entry.ClientID, err.Error())
			s.publish(bus.KindPostFailed, map[string]string{
				"client_id": entry.ClientID,
				"error":     err.Error(),
			})
			continue
		}

		if err := s.db.MarkOutboxSent(entry.ClientID, posted.ID); err != nil {
			s.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_id", entry.ClientID))
		}
		s.logger.Info("post published",
			zap.String("client_id", entry.ClientID),
			zap.String("status_id", posted.ID))
		s.publish(bus.KindPostSent, posted)
	}
}

func (s *Sender) publish(kind string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(bus.Event{
		Kind:    kind,
		Account: s.accountName,
		Payload: payload,
	})
}
