package timeline

import (
	"strings"

	"github.com/fastsm/fastsm/internal/models"
)

// SetFilter installs (or replaces) the client-side filter. The full item
// set moves to the unfiltered backing list; the visible list keeps only
// matching items. The cursor re-anchors to the selected item when it stays
// visible, else clamps.
func (t *Timeline) SetFilter(f Filter) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.filter == nil {
		t.unfiltered = t.items
	}
	t.filter = &f

	var anchor string
	if t.index >= 0 && t.index < len(t.items) {
		anchor = t.items[t.index].ItemID()
	}

	visible := make([]Item, 0, len(t.unfiltered))
	for _, it := range t.unfiltered {
		if t.passesLocked(it) {
			visible = append(visible, it)
		}
	}
	t.items = visible
	t.reanchorLocked(anchor)
	t.display = nil
}

// ClearFilter removes the filter, restoring the unfiltered set in its
// original order.
func (t *Timeline) ClearFilter() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.filter == nil {
		return
	}
	var anchor string
	if t.index >= 0 && t.index < len(t.items) {
		anchor = t.items[t.index].ItemID()
	}
	t.items = t.unfiltered
	t.unfiltered = nil
	t.filter = nil
	t.reanchorLocked(anchor)
	t.display = nil
}

// Filter returns the active filter, or nil.
func (t *Timeline) Filter() *Filter {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filter == nil {
		return nil
	}
	f := *t.filter
	return &f
}

func (t *Timeline) reanchorLocked(anchor string) {
	if anchor != "" {
		if pos := indexOf(t.items, anchor); pos >= 0 {
			t.index = pos
			return
		}
	}
	if t.index >= len(t.items) {
		t.index = len(t.items) - 1
	}
	if t.index < 0 {
		t.index = 0
	}
}

// passesLocked evaluates the filter against one item. Text matches
// substring-insensitively against the post body; Author matches the acct
// handle. An empty filter matches everything; Invert flips the result.
// Callers hold mu.
func (t *Timeline) passesLocked(it Item) bool {
	f := t.filter
	if f == nil {
		return true
	}
	match := f.Text == "" && f.Author == ""

	var s *models.Status
	switch v := it.(type) {
	case *models.Status:
		s = v.Original()
	case *models.Notification:
		if v.Status != nil {
			s = v.Status.Original()
		}
	}
	if s != nil {
		if f.Text != "" && strings.Contains(strings.ToLower(s.Text), strings.ToLower(f.Text)) {
			match = true
		}
		if f.Author != "" && s.Account != nil && strings.EqualFold(s.Account.Acct, f.Author) {
			match = true
		}
	}
	return match != f.Invert
}
