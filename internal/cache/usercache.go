package cache

import (
	"strings"
	"sync"

	"github.com/fastsm/fastsm/internal/models"
)

// UserCache is the per-account in-memory user store. Lookups that miss
// enqueue the id into an unknown-id queue; the poller periodically
// batch-resolves the queue against the backend. Upserts are
// most-recently-seen-wins, no field merging.
type UserCache struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	unknown map[string]bool
}

// NewUserCache creates an empty user cache.
func NewUserCache() *UserCache {
	return &UserCache{
		byID:    make(map[string]*models.User),
		unknown: make(map[string]bool),
	}
}

// AddUser upserts a user. The latest seen version wins.
func (c *UserCache) AddUser(u *models.User) {
	if u == nil || u.ID == "" {
		return
	}
	c.mu.Lock()
	c.byID[u.ID] = u
	delete(c.unknown, u.ID)
	c.mu.Unlock()
}

// AddUsersFromStatus registers every user embedded in a status: the author,
// the reblogged and quoted authors, and mention stubs we have full records
// for elsewhere are skipped (mentions carry no profile data).
func (c *UserCache) AddUsersFromStatus(s *models.Status) {
	if s == nil {
		return
	}
	c.AddUser(s.Account)
	if s.Reblog != nil {
		c.AddUsersFromStatus(s.Reblog)
	}
	if s.Quote != nil {
		c.AddUsersFromStatus(s.Quote)
	}
}

// AddUsersFromNotification registers the notifying user and any users on the
// embedded status.
func (c *UserCache) AddUsersFromNotification(n *models.Notification) {
	if n == nil {
		return
	}
	c.AddUser(n.Account)
	c.AddUsersFromStatus(n.Status)
}

// LookupByID returns the cached user or nil. A miss enqueues the id for the
// next batch resolution.
func (c *UserCache) LookupByID(id string) *models.User {
	if id == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if u, ok := c.byID[id]; ok {
		return u
	}
	c.unknown[id] = true
	return nil
}

// LookupByName finds a user whose acct, username or display name matches
// name (case-insensitive). On a miss, resolve is consulted if non-nil; its
// result is cached. Both platforms plug their own search in as resolve.
func (c *UserCache) LookupByName(name string, resolve func(string) *models.User) *models.User {
	lower := strings.ToLower(name)
	c.mu.RLock()
	for _, u := range c.byID {
		if strings.ToLower(u.Acct) == lower ||
			strings.ToLower(u.Username) == lower ||
			strings.ToLower(u.DisplayName) == lower {
			c.mu.RUnlock()
			return u
		}
	}
	c.mu.RUnlock()

	if resolve == nil {
		return nil
	}
	u := resolve(name)
	if u != nil {
		c.AddUser(u)
	}
	return u
}

// DrainUnknown returns the queued unknown ids and clears the queue
// unconditionally. Ids that fail to resolve are dropped rather than retried;
// they re-enqueue on the next natural lookup miss. This keeps the queue
// bounded.
func (c *UserCache) DrainUnknown() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.unknown) == 0 {
		return nil
	}
	ids := make([]string, 0, len(c.unknown))
	for id := range c.unknown {
		ids = append(ids, id)
	}
	c.unknown = make(map[string]bool)
	return ids
}

// Len reports how many users are cached.
func (c *UserCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// Hydrate preloads users, typically from the timeline cache on startup.
func (c *UserCache) Hydrate(users []*models.User) {
	for _, u := range users {
		c.AddUser(u)
	}
}
