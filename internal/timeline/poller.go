package timeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Poller is the periodic driver: every interval it sweeps each account's
// open timelines sequentially, batch-resolves queued unknown users and
// pushes the read marker if the user navigated. A slow backend call delays
// the rest of that account's sweep, never another account's.
type Poller struct {
	managers []*Manager
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller creates a poller over the given account managers.
func NewPoller(managers []*Manager, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Poller{
		managers: managers,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the periodic sweep loop.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx)
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Sweep(ctx)
		}
	}
}

// Sweep refreshes every open timeline once, account by account. Exposed so
// an explicit "refresh all" can reuse it.
func (p *Poller) Sweep(ctx context.Context) {
	for _, m := range p.managers {
		if ctx.Err() != nil {
			return
		}
		p.sweepAccount(ctx, m)
	}
}

func (p *Poller) sweepAccount(ctx context.Context, m *Manager) {
	for _, tl := range m.Timelines() {
		if ctx.Err() != nil {
			return
		}
		tl.Load(ctx, false, true, nil)
		tl.SyncPositionToServer(ctx)
	}
	p.resolveUnknown(ctx, m)
}

// resolveUnknown drains the user cache's queued unknown ids with one batch
// lookup. The queue is cleared regardless of the outcome; an unresolved id
// is re-queued the next time something references it.
func (p *Poller) resolveUnknown(ctx context.Context, m *Manager) {
	if m.deps.Users == nil {
		return
	}
	ids := m.deps.Users.DrainUnknown()
	if len(ids) == 0 {
		return
	}
	users, err := m.account.LookupUsers(ctx, ids)
	if err != nil {
		p.logger.Warn("batch user lookup failed",
			zap.String("account", m.accountName),
			zap.Int("ids", len(ids)),
			zap.Error(err))
		return
	}
	m.deps.Users.Hydrate(users)
}
