package models

import (
	"fmt"
	"time"
)

// Notification types shared by both platforms. Not every platform emits
// every type; the adapters map what they have and leave the rest unused.
const (
	NotificationFollow    = "follow"
	NotificationFavourite = "favourite"
	NotificationReblog    = "reblog"
	NotificationMention   = "mention"
	NotificationPoll      = "poll"
	NotificationQuote     = "quote"
	NotificationUpdate    = "update"
)

// Notification is the platform-agnostic representation of a notification.
type Notification struct {
	ID        string
	Type      string
	Account   *User
	CreatedAt time.Time
	Status    *Status // nil for follow notifications
}

// ItemID returns the timeline identity of the notification.
func (n *Notification) ItemID() string { return n.ID }

// Render produces the spoken/displayed form of a notification.
func (n *Notification) Render(template string) string {
	name := ""
	if n.Account != nil {
		name = n.Account.Name()
	}
	switch n.Type {
	case NotificationFollow:
		return fmt.Sprintf("%s followed you", name)
	case NotificationFavourite:
		return fmt.Sprintf("%s favourited: %s", name, n.statusText())
	case NotificationReblog:
		return fmt.Sprintf("%s boosted: %s", name, n.statusText())
	case NotificationPoll:
		return fmt.Sprintf("poll ended: %s", n.statusText())
	case NotificationQuote:
		return fmt.Sprintf("%s quoted you: %s", name, n.statusText())
	default:
		if n.Status != nil {
			return n.Status.Render(template)
		}
		return fmt.Sprintf("%s: %s", name, n.Type)
	}
}

func (n *Notification) statusText() string {
	if n.Status == nil {
		return ""
	}
	return n.Status.Text
}
