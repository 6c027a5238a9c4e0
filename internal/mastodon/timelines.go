package mastodon

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/models"
)

// FetchTimeline implements backend.Account. Each kind maps to exactly one
// endpoint; unsupported kinds return backend.ErrUnsupported.
func (c *Client) FetchTimeline(ctx context.Context, kind backend.Kind, p backend.Params) (*backend.Page, error) {
	params := map[string]string{
		"max_id":   p.MaxID,
		"since_id": p.SinceID,
	}
	if p.Limit > 0 {
		params["limit"] = strconv.Itoa(p.Limit)
	}

	switch kind {
	case backend.KindHome:
		return c.statusPage(ctx, "/api/v1/timelines/home", params)
	case backend.KindLocal:
		params["local"] = "true"
		return c.statusPage(ctx, "/api/v1/timelines/public", params)
	case backend.KindFederated:
		return c.statusPage(ctx, "/api/v1/timelines/public", params)
	case backend.KindList:
		return c.statusPage(ctx, "/api/v1/timelines/list/"+p.Data, params)
	case backend.KindFavourites:
		return c.statusPage(ctx, "/api/v1/favourites", params)
	case backend.KindBookmarks:
		return c.statusPage(ctx, "/api/v1/bookmarks", params)
	case backend.KindUser:
		return c.statusPage(ctx, "/api/v1/accounts/"+p.User+"/statuses", params)
	case backend.KindPinned:
		if c.me == nil {
			return nil, fmt.Errorf("mastodon: not verified")
		}
		params["pinned"] = "true"
		return c.statusPage(ctx, "/api/v1/accounts/"+c.me.ID+"/statuses", params)
	case backend.KindMentions:
		params["types[]"] = "mention"
		return c.notificationPage(ctx, params)
	case backend.KindNotifications:
		return c.notificationPage(ctx, params)
	case backend.KindSearch:
		return c.searchPage(ctx, p.Data, params)
	case backend.KindConversations:
		return c.conversationPage(ctx, params)
	case backend.KindConversation:
		return c.threadPage(ctx, p.Data)
	case backend.KindInstance:
		return c.instancePage(ctx, p.Data, params)
	case backend.KindRemoteUser:
		return c.remoteUserPage(ctx, p.Data, p.User, params)
	case backend.KindScheduled:
		return c.scheduledPage(ctx, params)
	default:
		// feed and quotes have no Mastodon equivalent.
		return nil, backend.ErrUnsupported
	}
}

func (c *Client) statusPage(ctx context.Context, path string, params map[string]string) (*backend.Page, error) {
	var raw []*apiStatus
	link, err := c.getWithLink(ctx, path, params, &raw)
	if err != nil {
		return nil, err
	}
	page := statusesToPage(toStatuses(raw))
	// The server's own next-page bound wins over the last status id. On
	// id-paginated endpoints they agree; on marker-paginated ones
	// (favourites, bookmarks) only the header value is valid.
	if next := linkNextMaxID(link); next != "" {
		page.NextMaxID = next
	}
	return page, nil
}

// linkNextMaxID extracts the max_id value from the rel="next" entry of a
// Link pagination header. Empty when the header is absent or malformed.
func linkNextMaxID(header string) string {
	for _, part := range strings.Split(header, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start < 0 || end < start {
			return ""
		}
		u, err := url.Parse(part[start+1 : end])
		if err != nil {
			return ""
		}
		return u.Query().Get("max_id")
	}
	return ""
}

func (c *Client) notificationPage(ctx context.Context, params map[string]string) (*backend.Page, error) {
	var raw []*apiNotification
	if err := c.get(ctx, "/api/v1/notifications", params, &raw); err != nil {
		return nil, err
	}
	page := &backend.Page{Notifications: toNotifications(raw)}
	if n := len(page.Notifications); n > 0 {
		page.NextMaxID = page.Notifications[n-1].ID
	}
	return page, nil
}

func (c *Client) searchPage(ctx context.Context, query string, params map[string]string) (*backend.Page, error) {
	var result struct {
		Statuses []*apiStatus `json:"statuses"`
	}
	params["q"] = query
	params["type"] = "statuses"
	if err := c.get(ctx, "/api/v2/search", params, &result); err != nil {
		return nil, err
	}
	return statusesToPage(toStatuses(result.Statuses)), nil
}

func (c *Client) conversationPage(ctx context.Context, params map[string]string) (*backend.Page, error) {
	var raw []*apiConversation
	if err := c.get(ctx, "/api/v1/conversations", params, &raw); err != nil {
		return nil, err
	}
	page := &backend.Page{}
	for _, conv := range raw {
		if s := toStatus(conv.LastStatus); s != nil {
			page.Statuses = append(page.Statuses, s)
		}
	}
	if n := len(raw); n > 0 {
		page.NextMaxID = raw[n-1].ID
	}
	return page, nil
}

// threadPage returns ancestors, the anchor status and descendants as one
// page, oldest first. Threads do not paginate.
func (c *Client) threadPage(ctx context.Context, statusID string) (*backend.Page, error) {
	anchor, err := c.GetStatus(ctx, statusID)
	if err != nil {
		return nil, err
	}
	sctx, err := c.GetStatusContext(ctx, statusID)
	if err != nil {
		return nil, err
	}
	page := &backend.Page{}
	page.Statuses = append(page.Statuses, sctx.Ancestors...)
	page.Statuses = append(page.Statuses, anchor)
	page.Statuses = append(page.Statuses, sctx.Descendants...)
	return page, nil
}

// instancePage reads another instance's public timeline anonymously.
func (c *Client) instancePage(ctx context.Context, instanceURL string, params map[string]string) (*backend.Page, error) {
	var raw []*apiStatus
	req := c.r(ctx).SetResult(&raw).SetAuthToken("")
	for k, v := range params {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}
	res, err := req.Get(instanceURL + "/api/v1/timelines/public")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("mastodon: instance %s: %s", instanceURL, res.Status())
	}
	page := statusesToPage(toStatuses(raw))
	for _, s := range page.Statuses {
		s.InstanceURL = instanceURL
	}
	return page, nil
}

// remoteUserPage reads a user's statuses directly off their home instance.
// Ids on the page are remote-local; InstanceURL marks them for resolution.
func (c *Client) remoteUserPage(ctx context.Context, instanceURL, username string, params map[string]string) (*backend.Page, error) {
	var acct apiAccount
	res, err := c.r(ctx).
		SetResult(&acct).
		SetAuthToken("").
		SetQueryParam("acct", username).
		Get(instanceURL + "/api/v1/accounts/lookup")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("mastodon: lookup %s on %s: %s", username, instanceURL, res.Status())
	}

	var raw []*apiStatus
	req := c.r(ctx).SetResult(&raw).SetAuthToken("")
	for k, v := range params {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}
	res, err = req.Get(instanceURL + "/api/v1/accounts/" + acct.ID + "/statuses")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("mastodon: remote statuses: %s", res.Status())
	}
	page := statusesToPage(toStatuses(raw))
	for _, s := range page.Statuses {
		s.InstanceURL = instanceURL
	}
	return page, nil
}

func (c *Client) scheduledPage(ctx context.Context, params map[string]string) (*backend.Page, error) {
	var raw []*struct {
		ID          string `json:"id"`
		ScheduledAt string `json:"scheduled_at"`
		Params      struct {
			Text string `json:"text"`
		} `json:"params"`
	}
	if err := c.get(ctx, "/api/v1/scheduled_statuses", params, &raw); err != nil {
		return nil, err
	}
	page := &backend.Page{}
	for _, sched := range raw {
		page.Statuses = append(page.Statuses, &models.Status{
			ID:      sched.ID,
			Text:    sched.Params.Text,
			Content: sched.Params.Text,
			Account: c.me,
		})
	}
	return page, nil
}

func statusesToPage(statuses []*models.Status) *backend.Page {
	page := &backend.Page{Statuses: statuses}
	if n := len(statuses); n > 0 {
		page.NextMaxID = statuses[n-1].ID
	}
	return page
}
