// Package backend defines the contract platform clients implement. The
// timeline orchestrator talks only to this interface; Mastodon and Bluesky
// specifics (id-based vs. cursor-based pagination, streaming, markers) stay
// behind it.
package backend

import (
	"context"
	"errors"

	"github.com/fastsm/fastsm/internal/models"
)

// ErrUnsupported is returned for kind/platform combinations the backend
// cannot serve (e.g. lists on Bluesky). The timeline degrades to a hidden
// no-op rather than erroring.
var ErrUnsupported = errors.New("unsupported on this platform")

// Kind identifies which feed a timeline represents. Each kind maps to
// exactly one backend fetch.
type Kind string

const (
	KindHome          Kind = "home"
	KindMentions      Kind = "mentions"
	KindNotifications Kind = "notifications"
	KindConversations Kind = "conversations"
	KindFavourites    Kind = "favourites"
	KindBookmarks     Kind = "bookmarks"
	KindUser          Kind = "user"
	KindList          Kind = "list"
	KindSearch        Kind = "search"
	KindFeed          Kind = "feed"
	KindLocal         Kind = "local"
	KindFederated     Kind = "federated"
	KindInstance      Kind = "instance"
	KindRemoteUser    Kind = "remote_user"
	KindPinned        Kind = "pinned"
	KindScheduled     Kind = "scheduled"
	KindQuotes        Kind = "quotes"
	KindConversation  Kind = "conversation"
)

// NotificationKinds lists the kinds whose pages carry notifications rather
// than statuses.
func (k Kind) Notifications() bool {
	return k == KindMentions || k == KindNotifications
}

// Params are the pagination and selection arguments for a fetch. MaxID
// bounds backward (older) fetches and SinceID bounds forward (newer) ones;
// Bluesky backends carry opaque cursors through MaxID.
type Params struct {
	Data    string // list id, query, feed URI, instance URL... depending on Kind
	User    string // user id for KindUser / KindQuotes / KindConversation anchors
	MaxID   string
	SinceID string
	Limit   int
}

// Page is one fetched page of a timeline. Exactly one of Statuses or
// Notifications is populated, per Kind. NextMaxID is the cursor for the next
// older page; empty means end of data as far as the backend can tell.
type Page struct {
	Statuses      []*models.Status
	Notifications []*models.Notification
	NextMaxID     string
}

// Len returns the number of items on the page.
func (p *Page) Len() int {
	if len(p.Notifications) > 0 {
		return len(p.Notifications)
	}
	return len(p.Statuses)
}

// Capabilities reports which optional features a platform supports.
type Capabilities struct {
	Streaming bool // push events (Mastodon only)
	Markers   bool // server-side read position (Mastodon only)
	Lists     bool
	Feeds     bool // custom feed URIs (Bluesky only)

	// IDPaging means an item id is a valid max_id bound, so a lost
	// pagination cursor can be rebuilt from the oldest cached item.
	// False where cursors are opaque server tokens (Bluesky).
	IDPaging bool
}

// Context is the ancestors/descendants view around one status.
type Context struct {
	Ancestors   []*models.Status
	Descendants []*models.Status
}

// PostArgs are the arguments for publishing a status.
type PostArgs struct {
	Text        string
	InReplyToID string
	Visibility  string
	SpoilerText string
}

// Account is the narrow contract each platform backend implements.
type Account interface {
	Platform() string
	Me() *models.User
	Capabilities() Capabilities

	// FetchTimeline returns one page for the given kind. Implementations
	// return ErrUnsupported for kinds they cannot serve.
	FetchTimeline(ctx context.Context, kind Kind, p Params) (*Page, error)

	GetStatus(ctx context.Context, id string) (*models.Status, error)
	GetStatusContext(ctx context.Context, id string) (*Context, error)

	Post(ctx context.Context, args PostArgs) (*models.Status, error)
	Favourite(ctx context.Context, id string) error
	Unfavourite(ctx context.Context, id string) error
	Boost(ctx context.Context, id string) error
	Unboost(ctx context.Context, id string) error
	Bookmark(ctx context.Context, id string) error
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error

	// LookupUsers batch-resolves user ids queued by the user cache.
	LookupUsers(ctx context.Context, ids []string) ([]*models.User, error)
	SearchUsers(ctx context.Context, query string) ([]*models.User, error)

	// Timeline markers; only meaningful when Capabilities().Markers.
	GetTimelineMarker(ctx context.Context, timeline string) (string, error)
	SetTimelineMarker(ctx context.Context, timeline, id string) error
}
