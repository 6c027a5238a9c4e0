package bus

import "time"

// Event kinds published on the bus. Subscribers filter by namespace prefix,
// e.g. "stream." receives every streaming event.
const (
	KindStreamStatus       = "stream.status"
	KindStreamNotification = "stream.notification"
	KindStreamDelete       = "stream.delete"
	KindStreamEdit         = "stream.edit"

	KindTimelineLoaded          = "timeline.loaded"
	KindTimelineInitialComplete = "timeline.initial_complete"
	KindTimelineClosed          = "timeline.closed"

	KindAccountState = "account.state"

	KindPostQueued = "post.queued"
	KindPostSent   = "post.sent"
	KindPostFailed = "post.failed"
)

// Event represents a domain event published on the bus. Account carries the
// owning account's name so multi-account subscribers can route without
// inspecting the payload.
type Event struct {
	Kind      string
	Account   string
	Timestamp time.Time
	Payload   any
}
