package timeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastsm/fastsm/internal/backend"
)

// Read-position sync applies to the home timeline only, on platforms with
// marker support, and only when the user opted in. Sync is last-write-wins
// in both directions; there is no conflict resolution.

func (t *Timeline) canSyncPosition() bool {
	t.mu.Lock()
	enabled := t.settings.SyncPosition
	t.mu.Unlock()
	return enabled && t.kind == backend.KindHome && t.account.Capabilities().Markers
}

// shouldSyncPosition gates the pull after a load: always on the first load,
// afterwards only while the user has not navigated since the last sync.
func (t *Timeline) shouldSyncPosition() bool {
	if !t.canSyncPosition() {
		return false
	}
	t.mu.Lock()
	moved := t.positionMoved
	t.mu.Unlock()
	return !moved
}

// SyncPositionFromServer pulls the server-side read marker and, if the
// marked item is present locally, jumps the cursor to it. List contents are
// never altered.
func (t *Timeline) SyncPositionFromServer(ctx context.Context) {
	if !t.canSyncPosition() {
		return
	}
	id, err := t.account.GetTimelineMarker(ctx, "home")
	if err != nil {
		t.deps.Logger.Debug("marker fetch failed", zap.Error(err))
		return
	}
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if pos := indexOf(t.items, id); pos >= 0 {
		t.index = pos
		t.lastSyncedID = id
	}
}

// SyncPositionToServer pushes the local cursor as the server marker. A no-op
// unless the user navigated since the last push, so the periodic sweep can
// call it unconditionally.
func (t *Timeline) SyncPositionToServer(ctx context.Context) {
	if !t.canSyncPosition() {
		return
	}
	t.mu.Lock()
	moved := t.positionMoved
	var id string
	if t.index >= 0 && t.index < len(t.items) {
		id = t.items[t.index].ItemID()
	}
	last := t.lastSyncedID
	t.mu.Unlock()

	if !moved || id == "" || id == last {
		return
	}
	if err := t.account.SetTimelineMarker(ctx, "home", id); err != nil {
		t.deps.Logger.Debug("marker push failed", zap.Error(err))
		return
	}
	t.mu.Lock()
	t.lastSyncedID = id
	t.positionMoved = false
	t.mu.Unlock()
}
