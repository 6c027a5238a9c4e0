package bluesky

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/models"
)

// FetchTimeline implements backend.Account. Bluesky pages with opaque
// cursors; the incoming cursor arrives in p.MaxID and the next one leaves in
// Page.NextMaxID. There is no since_id — forward loads refetch the head and
// lean on the caller's dedup.
func (c *Client) FetchTimeline(ctx context.Context, kind backend.Kind, p backend.Params) (*backend.Page, error) {
	params := map[string]string{"cursor": p.MaxID}
	if p.Limit > 0 {
		params["limit"] = strconv.Itoa(p.Limit)
	}

	switch kind {
	case backend.KindHome:
		return c.feedPage(ctx, "app.bsky.feed.getTimeline", params)
	case backend.KindUser:
		params["actor"] = p.User
		return c.feedPage(ctx, "app.bsky.feed.getAuthorFeed", params)
	case backend.KindFavourites:
		c.mu.Lock()
		params["actor"] = c.did
		c.mu.Unlock()
		return c.feedPage(ctx, "app.bsky.feed.getActorLikes", params)
	case backend.KindFeed:
		params["feed"] = p.Data
		return c.feedPage(ctx, "app.bsky.feed.getFeed", params)
	case backend.KindMentions:
		return c.notificationPage(ctx, params, true)
	case backend.KindNotifications:
		return c.notificationPage(ctx, params, false)
	case backend.KindSearch:
		return c.searchPage(ctx, p.Data, params)
	case backend.KindQuotes:
		params["uri"] = p.Data
		return c.quotesPage(ctx, params)
	case backend.KindConversation:
		return c.threadPage(ctx, p.Data)
	default:
		// lists, local/federated, instance, remote_user, conversations,
		// pinned and scheduled have no Bluesky equivalent.
		return nil, backend.ErrUnsupported
	}
}

func (c *Client) feedPage(ctx context.Context, nsid string, params map[string]string) (*backend.Page, error) {
	var result struct {
		Feed   []*apiFeedItem `json:"feed"`
		Cursor string         `json:"cursor"`
	}
	if err := c.get(ctx, nsid, params, &result); err != nil {
		return nil, err
	}
	page := &backend.Page{NextMaxID: result.Cursor}
	for _, item := range result.Feed {
		c.remember(item.Post)
		if s := toFeedStatus(item); s != nil {
			page.Statuses = append(page.Statuses, s)
		}
	}
	return page, nil
}

// notificationPage lists notifications; mentionsOnly keeps the reasons that
// carry a post addressed at the viewer.
func (c *Client) notificationPage(ctx context.Context, params map[string]string, mentionsOnly bool) (*backend.Page, error) {
	var result struct {
		Notifications []*apiNotification `json:"notifications"`
		Cursor        string             `json:"cursor"`
	}
	if err := c.get(ctx, "app.bsky.notification.listNotifications", params, &result); err != nil {
		return nil, err
	}
	page := &backend.Page{NextMaxID: result.Cursor}
	for _, n := range result.Notifications {
		if mentionsOnly {
			switch n.Reason {
			case "mention", "reply", "quote":
			default:
				continue
			}
		}
		if out := toNotification(n); out != nil {
			page.Notifications = append(page.Notifications, out)
		}
	}
	return page, nil
}

func (c *Client) searchPage(ctx context.Context, query string, params map[string]string) (*backend.Page, error) {
	params["q"] = query
	var result struct {
		Posts  []*apiPost `json:"posts"`
		Cursor string     `json:"cursor"`
	}
	if err := c.get(ctx, "app.bsky.feed.searchPosts", params, &result); err != nil {
		return nil, err
	}
	return c.postsToPage(result.Posts, result.Cursor), nil
}

func (c *Client) quotesPage(ctx context.Context, params map[string]string) (*backend.Page, error) {
	var result struct {
		Posts  []*apiPost `json:"posts"`
		Cursor string     `json:"cursor"`
	}
	if err := c.get(ctx, "app.bsky.feed.getQuotes", params, &result); err != nil {
		return nil, err
	}
	return c.postsToPage(result.Posts, result.Cursor), nil
}

func (c *Client) threadPage(ctx context.Context, uri string) (*backend.Page, error) {
	thread, err := c.getThread(ctx, uri)
	if err != nil {
		return nil, err
	}
	ancestors, descendants, anchor := flattenThread(thread)
	page := &backend.Page{}
	page.Statuses = append(page.Statuses, ancestors...)
	if anchor != nil {
		page.Statuses = append(page.Statuses, anchor)
	}
	page.Statuses = append(page.Statuses, descendants...)
	return page, nil
}

func (c *Client) postsToPage(posts []*apiPost, cursor string) *backend.Page {
	page := &backend.Page{NextMaxID: cursor}
	for _, p := range posts {
		c.remember(p)
		if s := toStatus(p); s != nil {
			page.Statuses = append(page.Statuses, s)
		}
	}
	return page
}

func (c *Client) getThread(ctx context.Context, uri string) (*apiThread, error) {
	var result struct {
		Thread *apiThread `json:"thread"`
	}
	if err := c.get(ctx, "app.bsky.feed.getPostThread", map[string]string{"uri": uri}, &result); err != nil {
		return nil, err
	}
	var walk func(t *apiThread)
	walk = func(t *apiThread) {
		if t == nil {
			return
		}
		c.remember(t.Post)
		walk(t.Parent)
		for _, r := range t.Replies {
			walk(r)
		}
	}
	walk(result.Thread)
	return result.Thread, nil
}

// GetStatus implements backend.Account.
func (c *Client) GetStatus(ctx context.Context, id string) (*models.Status, error) {
	var result struct {
		Posts []*apiPost `json:"posts"`
	}
	if err := c.get(ctx, "app.bsky.feed.getPosts", map[string]string{"uris": id}, &result); err != nil {
		return nil, err
	}
	if len(result.Posts) == 0 {
		return nil, fmt.Errorf("bluesky: post not found: %s", id)
	}
	c.remember(result.Posts[0])
	return toStatus(result.Posts[0]), nil
}

// GetStatusContext implements backend.Account.
func (c *Client) GetStatusContext(ctx context.Context, id string) (*backend.Context, error) {
	thread, err := c.getThread(ctx, id)
	if err != nil {
		return nil, err
	}
	ancestors, descendants, _ := flattenThread(thread)
	return &backend.Context{Ancestors: ancestors, Descendants: descendants}, nil
}
