package bluesky

import (
	"time"

	"github.com/samber/lo"

	"github.com/fastsm/fastsm/internal/models"
)

// Wire entities for the Bluesky XRPC API. Statuses use the at:// record URI
// as their id; it is the only stable handle across views.

type apiProfile struct {
	DID            string    `json:"did"`
	Handle         string    `json:"handle"`
	DisplayName    string    `json:"displayName"`
	Description    string    `json:"description"`
	Avatar         string    `json:"avatar"`
	Banner         string    `json:"banner"`
	FollowersCount int64     `json:"followersCount"`
	FollowsCount   int64     `json:"followsCount"`
	PostsCount     int64     `json:"postsCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

type apiViewer struct {
	Like   string `json:"like"`
	Repost string `json:"repost"`
}

type apiImage struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Alt      string `json:"alt"`
}

type apiExternal struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type apiEmbed struct {
	Type     string       `json:"$type"`
	Images   []apiImage   `json:"images"`
	External *apiExternal `json:"external"`
	Record   *apiPost     `json:"record"` // quote posts
}

type apiRecordReplyRef struct {
	Parent struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	} `json:"parent"`
	Root struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	} `json:"root"`
}

type apiRecord struct {
	Text      string             `json:"text"`
	CreatedAt time.Time          `json:"createdAt"`
	Reply     *apiRecordReplyRef `json:"reply"`
}

type apiPost struct {
	URI         string      `json:"uri"`
	CID         string      `json:"cid"`
	Author      *apiProfile `json:"author"`
	Record      *apiRecord  `json:"record"`
	Value       *apiRecord  `json:"value"` // embedded quote views use "value"
	Embed       *apiEmbed   `json:"embed"`
	ReplyCount  int64       `json:"replyCount"`
	RepostCount int64       `json:"repostCount"`
	LikeCount   int64       `json:"likeCount"`
	Viewer      *apiViewer  `json:"viewer"`
	IndexedAt   time.Time   `json:"indexedAt"`
}

type apiReason struct {
	Type string      `json:"$type"`
	By   *apiProfile `json:"by"`
}

type apiFeedItem struct {
	Post   *apiPost   `json:"post"`
	Reason *apiReason `json:"reason"`
}

type apiNotification struct {
	URI           string      `json:"uri"`
	CID           string      `json:"cid"`
	Author        *apiProfile `json:"author"`
	Reason        string      `json:"reason"` // like, repost, follow, mention, reply, quote
	ReasonSubject string      `json:"reasonSubject"`
	Record        *apiRecord  `json:"record"`
	IndexedAt     time.Time   `json:"indexedAt"`
}

type apiThread struct {
	Post    *apiPost     `json:"post"`
	Parent  *apiThread   `json:"parent"`
	Replies []*apiThread `json:"replies"`
}

func toUser(p *apiProfile) *models.User {
	if p == nil {
		return nil
	}
	return &models.User{
		ID:             p.DID,
		Acct:           p.Handle,
		Username:       p.Handle,
		DisplayName:    p.DisplayName,
		Note:           p.Description,
		Avatar:         p.Avatar,
		Header:         p.Banner,
		FollowersCount: p.FollowersCount,
		FollowingCount: p.FollowsCount,
		StatusesCount:  p.PostsCount,
		CreatedAt:      p.CreatedAt,
		Platform:       "bluesky",
	}
}

func toStatus(p *apiPost) *models.Status {
	if p == nil {
		return nil
	}
	record := p.Record
	if record == nil {
		record = p.Value
	}
	s := &models.Status{
		ID:              p.URI,
		Account:         toUser(p.Author),
		URL:             postWebURL(p),
		Visibility:      "public",
		FavouritesCount: p.LikeCount,
		BoostsCount:     p.RepostCount,
		RepliesCount:    p.ReplyCount,
	}
	if record != nil {
		s.Content = record.Text
		s.Text = record.Text
		s.CreatedAt = record.CreatedAt
		if record.Reply != nil {
			s.InReplyToID = record.Reply.Parent.URI
		}
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = p.IndexedAt
	}
	if p.Viewer != nil {
		s.Favourited = p.Viewer.Like != ""
		s.Boosted = p.Viewer.Repost != ""
	}
	if p.Embed != nil {
		s.MediaAttachments = lo.Map(p.Embed.Images, func(img apiImage, _ int) models.MediaAttachment {
			return models.MediaAttachment{
				Type:        "image",
				URL:         img.Fullsize,
				PreviewURL:  img.Thumb,
				Description: img.Alt,
			}
		})
		if p.Embed.External != nil {
			s.Card = &models.Card{
				URL:         p.Embed.External.URI,
				Title:       p.Embed.External.Title,
				Description: p.Embed.External.Description,
			}
		}
		if p.Embed.Record != nil {
			s.Quote = toStatus(p.Embed.Record)
		}
	}
	return s
}

// toFeedStatus wraps reposts the way Mastodon boosts look: the reposting
// user owns a synthetic wrapper whose Reblog is the actual post.
func toFeedStatus(item *apiFeedItem) *models.Status {
	s := toStatus(item.Post)
	if s == nil {
		return nil
	}
	if item.Reason != nil && item.Reason.Type == "app.bsky.feed.defs#reasonRepost" && item.Reason.By != nil {
		wrapper := &models.Status{
			ID:         item.Reason.By.DID + ":repost:" + s.ID,
			Account:    toUser(item.Reason.By),
			CreatedAt:  s.CreatedAt,
			Visibility: "public",
			Reblog:     s,
		}
		return wrapper
	}
	return s
}

func toNotification(n *apiNotification) *models.Notification {
	if n == nil {
		return nil
	}
	out := &models.Notification{
		ID:        n.URI,
		Type:      notificationType(n.Reason),
		Account:   toUser(n.Author),
		CreatedAt: n.IndexedAt,
	}
	// For mention/reply/quote the notification record IS the post.
	if n.Record != nil && (n.Reason == "mention" || n.Reason == "reply" || n.Reason == "quote") {
		out.Status = &models.Status{
			ID:             n.URI,
			Account:        out.Account,
			Content:        n.Record.Text,
			Text:           n.Record.Text,
			CreatedAt:      n.Record.CreatedAt,
			Visibility:     "public",
			NotificationID: n.URI,
		}
		if n.Record.Reply != nil {
			out.Status.InReplyToID = n.Record.Reply.Parent.URI
		}
	}
	return out
}

func notificationType(reason string) string {
	switch reason {
	case "like":
		return models.NotificationFavourite
	case "repost":
		return models.NotificationReblog
	case "follow":
		return models.NotificationFollow
	case "mention", "reply":
		return models.NotificationMention
	case "quote":
		return models.NotificationQuote
	default:
		return reason
	}
}

// flattenThread walks a getPostThread result into ancestors, anchor,
// descendants order.
func flattenThread(t *apiThread) (ancestors, descendants []*models.Status, anchor *models.Status) {
	if t == nil {
		return nil, nil, nil
	}
	for p := t.Parent; p != nil; p = p.Parent {
		if s := toStatus(p.Post); s != nil {
			ancestors = append([]*models.Status{s}, ancestors...)
		}
	}
	anchor = toStatus(t.Post)
	var walk func(replies []*apiThread)
	walk = func(replies []*apiThread) {
		for _, r := range replies {
			if s := toStatus(r.Post); s != nil {
				descendants = append(descendants, s)
			}
			walk(r.Replies)
		}
	}
	walk(t.Replies)
	return ancestors, descendants, anchor
}
