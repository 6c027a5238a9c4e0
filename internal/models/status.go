package models

import (
	"fmt"
	"strings"
	"time"
)

// MediaAttachment is one piece of media on a status.
type MediaAttachment struct {
	ID          string
	Type        string // image, video, gifv, audio
	URL         string
	PreviewURL  string
	Description string
}

// Mention is a user referenced in a status body.
type Mention struct {
	ID       string
	Acct     string
	Username string
}

// Card is a link preview attached to a status.
type Card struct {
	URL         string
	Title       string
	Description string
}

// PollOption is a single poll choice with its vote count.
type PollOption struct {
	Title      string
	VotesCount int64
}

// Poll is a poll attached to a status.
type Poll struct {
	ID         string
	ExpiresAt  time.Time
	Expired    bool
	Multiple   bool
	VotesCount int64
	Voted      bool
	Options    []PollOption
}

// Status is the platform-agnostic representation of a post.
//
// ID is unique within a single timeline's backing list, but the same logical
// post can appear under different IDs across timelines (native id vs.
// notification id vs. remote-instance id). NotificationID, OriginalStatusID,
// InstanceURL and ResolvedID carry the explicit reconciliation state.
type Status struct {
	ID      string
	Account *User

	Content     string // raw HTML (Mastodon) or plain text wrapped by the adapter
	Text        string // HTML-stripped
	CreatedAt   time.Time
	URL         string
	Visibility  string // public, unlisted, private, direct
	SpoilerText string

	FavouritesCount int64
	BoostsCount     int64
	RepliesCount    int64

	InReplyToID string
	Reblog      *Status
	Quote       *Status

	MediaAttachments []MediaAttachment
	Mentions         []Mention
	Card             *Card
	Poll             *Poll

	Favourited bool
	Boosted    bool
	Bookmarked bool
	Pinned     bool

	// Reconciliation bookkeeping across notification-sourced,
	// remote-instance-sourced and native statuses.
	NotificationID   string
	OriginalStatusID string
	InstanceURL      string
	ResolvedID       string
}

// ItemID returns the timeline identity of the status.
func (s *Status) ItemID() string { return s.ID }

// Original follows the reblog chain to the underlying post.
func (s *Status) Original() *Status {
	if s.Reblog != nil {
		return s.Reblog
	}
	return s
}

// AuthorName returns the display name of the status author, or empty.
func (s *Status) AuthorName() string {
	if s.Account == nil {
		return ""
	}
	return s.Account.Name()
}

// Render produces the spoken/displayed form of a status. The template
// supports $name, $text and $time placeholders.
func (s *Status) Render(template string) string {
	text := s.Text
	if s.SpoilerText != "" {
		text = s.SpoilerText + ": " + text
	}
	if s.Reblog != nil {
		text = fmt.Sprintf("boosting %s: %s", s.Reblog.AuthorName(), s.Reblog.Text)
	}
	if len(s.MediaAttachments) > 0 {
		descs := make([]string, 0, len(s.MediaAttachments))
		for _, m := range s.MediaAttachments {
			if m.Description != "" {
				descs = append(descs, m.Description)
			}
		}
		if len(descs) > 0 {
			text += " " + strings.Join(descs, " ")
		}
	}
	r := strings.NewReplacer(
		"$name", s.AuthorName(),
		"$text", text,
		"$time", s.CreatedAt.Local().Format("Jan 2 15:04"),
	)
	return strings.TrimSpace(r.Replace(template))
}
