package models

import "time"

// User is the platform-agnostic representation of an account on either
// service. Adapters in the platform packages are the only place that touches
// raw SDK/wire objects; everything past that boundary works with this struct.
type User struct {
	ID          string
	Acct        string // handle, host-qualified for remote accounts
	Username    string
	DisplayName string
	Note        string
	Avatar      string
	Header      string

	FollowersCount int64
	FollowingCount int64
	StatusesCount  int64

	CreatedAt time.Time
	Locked    bool
	Bot       bool

	Platform string // "mastodon" or "bluesky"
}

// Name returns the best human-readable name for the user.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Username != "" {
		return u.Username
	}
	return u.Acct
}
