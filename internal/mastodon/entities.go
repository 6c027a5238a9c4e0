package mastodon

import (
	"time"

	"github.com/samber/lo"

	"github.com/fastsm/fastsm/internal/models"
)

// Wire entities for the Mastodon REST API. Defensive extraction happens
// here and nowhere else; everything leaving this package is a models.* record.

type apiAccount struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Acct           string    `json:"acct"`
	DisplayName    string    `json:"display_name"`
	Note           string    `json:"note"`
	Avatar         string    `json:"avatar"`
	Header         string    `json:"header"`
	FollowersCount int64     `json:"followers_count"`
	FollowingCount int64     `json:"following_count"`
	StatusesCount  int64     `json:"statuses_count"`
	CreatedAt      time.Time `json:"created_at"`
	Locked         bool      `json:"locked"`
	Bot            bool      `json:"bot"`
}

type apiMediaAttachment struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url"`
	Description string `json:"description"`
}

type apiMention struct {
	ID       string `json:"id"`
	Acct     string `json:"acct"`
	Username string `json:"username"`
}

type apiCard struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type apiPollOption struct {
	Title      string `json:"title"`
	VotesCount int64  `json:"votes_count"`
}

type apiPoll struct {
	ID         string          `json:"id"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Expired    bool            `json:"expired"`
	Multiple   bool            `json:"multiple"`
	VotesCount int64           `json:"votes_count"`
	Voted      bool            `json:"voted"`
	Options    []apiPollOption `json:"options"`
}

type apiStatus struct {
	ID               string               `json:"id"`
	CreatedAt        time.Time            `json:"created_at"`
	InReplyToID      string               `json:"in_reply_to_id"`
	SpoilerText      string               `json:"spoiler_text"`
	Visibility       string               `json:"visibility"`
	URL              string               `json:"url"`
	RepliesCount     int64                `json:"replies_count"`
	ReblogsCount     int64                `json:"reblogs_count"`
	FavouritesCount  int64                `json:"favourites_count"`
	Content          string               `json:"content"`
	Account          *apiAccount          `json:"account"`
	Reblog           *apiStatus           `json:"reblog"`
	Quote            *apiStatus           `json:"quote"`
	MediaAttachments []apiMediaAttachment `json:"media_attachments"`
	Mentions         []apiMention         `json:"mentions"`
	Card             *apiCard             `json:"card"`
	Poll             *apiPoll             `json:"poll"`
	Favourited       bool                 `json:"favourited"`
	Reblogged        bool                 `json:"reblogged"`
	Bookmarked       bool                 `json:"bookmarked"`
	Pinned           bool                 `json:"pinned"`
}

type apiNotification struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
	Account   *apiAccount `json:"account"`
	Status    *apiStatus  `json:"status"`
}

type apiContext struct {
	Ancestors   []*apiStatus `json:"ancestors"`
	Descendants []*apiStatus `json:"descendants"`
}

type apiConversation struct {
	ID         string     `json:"id"`
	LastStatus *apiStatus `json:"last_status"`
}

type apiMarker struct {
	LastReadID string `json:"last_read_id"`
}

type apiMarkers struct {
	Home *apiMarker `json:"home"`
}

func toUser(a *apiAccount) *models.User {
	if a == nil {
		return nil
	}
	return &models.User{
		ID:             a.ID,
		Acct:           a.Acct,
		Username:       a.Username,
		DisplayName:    a.DisplayName,
		Note:           models.StripHTML(a.Note),
		Avatar:         a.Avatar,
		Header:         a.Header,
		FollowersCount: a.FollowersCount,
		FollowingCount: a.FollowingCount,
		StatusesCount:  a.StatusesCount,
		CreatedAt:      a.CreatedAt,
		Locked:         a.Locked,
		Bot:            a.Bot,
		Platform:       "mastodon",
	}
}

func toStatus(s *apiStatus) *models.Status {
	if s == nil {
		return nil
	}
	out := &models.Status{
		ID:              s.ID,
		Account:         toUser(s.Account),
		Content:         s.Content,
		Text:            models.StripHTML(s.Content),
		CreatedAt:       s.CreatedAt,
		URL:             s.URL,
		Visibility:      s.Visibility,
		SpoilerText:     s.SpoilerText,
		FavouritesCount: s.FavouritesCount,
		BoostsCount:     s.ReblogsCount,
		RepliesCount:    s.RepliesCount,
		InReplyToID:     s.InReplyToID,
		Reblog:          toStatus(s.Reblog),
		Quote:           toStatus(s.Quote),
		Favourited:      s.Favourited,
		Boosted:         s.Reblogged,
		Bookmarked:      s.Bookmarked,
		Pinned:          s.Pinned,
	}
	out.MediaAttachments = lo.Map(s.MediaAttachments, func(m apiMediaAttachment, _ int) models.MediaAttachment {
		return models.MediaAttachment{
			ID:          m.ID,
			Type:        m.Type,
			URL:         m.URL,
			PreviewURL:  m.PreviewURL,
			Description: m.Description,
		}
	})
	out.Mentions = lo.Map(s.Mentions, func(m apiMention, _ int) models.Mention {
		return models.Mention{ID: m.ID, Acct: m.Acct, Username: m.Username}
	})
	if s.Card != nil {
		out.Card = &models.Card{URL: s.Card.URL, Title: s.Card.Title, Description: s.Card.Description}
	}
	if s.Poll != nil {
		out.Poll = &models.Poll{
			ID:         s.Poll.ID,
			ExpiresAt:  s.Poll.ExpiresAt,
			Expired:    s.Poll.Expired,
			Multiple:   s.Poll.Multiple,
			VotesCount: s.Poll.VotesCount,
			Voted:      s.Poll.Voted,
			Options: lo.Map(s.Poll.Options, func(o apiPollOption, _ int) models.PollOption {
				return models.PollOption{Title: o.Title, VotesCount: o.VotesCount}
			}),
		}
	}
	return out
}

func toStatuses(in []*apiStatus) []*models.Status {
	return lo.Map(in, func(s *apiStatus, _ int) *models.Status { return toStatus(s) })
}

func toNotification(n *apiNotification) *models.Notification {
	if n == nil {
		return nil
	}
	out := &models.Notification{
		ID:        n.ID,
		Type:      n.Type,
		Account:   toUser(n.Account),
		CreatedAt: n.CreatedAt,
		Status:    toStatus(n.Status),
	}
	// A status reached through a notification keeps the notification id so
	// actions against it can be reconciled with the native id later.
	if out.Status != nil {
		out.Status.NotificationID = n.ID
	}
	return out
}

func toNotifications(in []*apiNotification) []*models.Notification {
	return lo.Map(in, func(n *apiNotification, _ int) *models.Notification { return toNotification(n) })
}
