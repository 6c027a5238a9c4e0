// Package mastodon implements the backend contract over the Mastodon REST
// and streaming APIs. Pagination is id-based: since_id bounds forward
// fetches, max_id bounds backward ones.
package mastodon

import (
	"context"
	"fmt"

	"resty.dev/v3"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/models"
)

// Client is a Mastodon account backend.
type Client struct {
	client      *resty.Client
	instanceURL string
	accessToken string
	me          *models.User
}

// New creates a client for the given instance. Verify must be called before
// the client is used so Me() is populated.
func New(instanceURL, accessToken string) *Client {
	client := resty.New().
		SetBaseURL(instanceURL).
		SetAuthToken(accessToken)

	return &Client{
		client:      client,
		instanceURL: instanceURL,
		accessToken: accessToken,
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) r(ctx context.Context) *resty.Request {
	return c.client.R().WithContext(ctx)
}

// get issues a GET and decodes the response into result.
func (c *Client) get(ctx context.Context, path string, params map[string]string, result any) error {
	_, err := c.getWithLink(ctx, path, params, result)
	return err
}

// getWithLink is get plus the response's Link header. Favourites and
// bookmarks paginate by an internal marker only exposed there, not by
// status id.
func (c *Client) getWithLink(ctx context.Context, path string, params map[string]string, result any) (string, error) {
	req := c.r(ctx).SetResult(result)
	for k, v := range params {
		if v != "" {
			req.SetQueryParam(k, v)
		}
	}
	res, err := req.Get(path)
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", fmt.Errorf("mastodon: GET %s: %s", path, res.Status())
	}
	return res.Header().Get("Link"), nil
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	req := c.r(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}
	res, err := req.Post(path)
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("mastodon: POST %s: %s", path, res.Status())
	}
	return nil
}

// Verify fetches the authenticated account and caches it.
func (c *Client) Verify(ctx context.Context) error {
	var acct apiAccount
	if err := c.get(ctx, "/api/v1/accounts/verify_credentials", nil, &acct); err != nil {
		return err
	}
	c.me = toUser(&acct)
	return nil
}

// Platform implements backend.Account.
func (c *Client) Platform() string { return "mastodon" }

// Me implements backend.Account. Nil until Verify succeeds.
func (c *Client) Me() *models.User { return c.me }

// Capabilities implements backend.Account.
func (c *Client) Capabilities() backend.Capabilities {
	return backend.Capabilities{
		Streaming: true,
		Markers:   true,
		Lists:     true,
		IDPaging:  true,
	}
}

// GetStatus implements backend.Account.
func (c *Client) GetStatus(ctx context.Context, id string) (*models.Status, error) {
	var s apiStatus
	if err := c.get(ctx, "/api/v1/statuses/"+id, nil, &s); err != nil {
		return nil, err
	}
	return toStatus(&s), nil
}

// GetStatusContext implements backend.Account.
func (c *Client) GetStatusContext(ctx context.Context, id string) (*backend.Context, error) {
	var apiCtx apiContext
	if err := c.get(ctx, "/api/v1/statuses/"+id+"/context", nil, &apiCtx); err != nil {
		return nil, err
	}
	return &backend.Context{
		Ancestors:   toStatuses(apiCtx.Ancestors),
		Descendants: toStatuses(apiCtx.Descendants),
	}, nil
}

// LookupUsers implements backend.Account. Mastodon has no batch account
// endpoint, so this loops; the user cache keeps batches small.
func (c *Client) LookupUsers(ctx context.Context, ids []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		var acct apiAccount
		if err := c.get(ctx, "/api/v1/accounts/"+id, nil, &acct); err != nil {
			continue // partial results are fine, the queue drops misses
		}
		users = append(users, toUser(&acct))
	}
	return users, nil
}

// SearchUsers implements backend.Account.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]*models.User, error) {
	var accts []*apiAccount
	if err := c.get(ctx, "/api/v1/accounts/search", map[string]string{"q": query}, &accts); err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(accts))
	for _, a := range accts {
		users = append(users, toUser(a))
	}
	return users, nil
}

// GetTimelineMarker implements backend.Account.
func (c *Client) GetTimelineMarker(ctx context.Context, timeline string) (string, error) {
	var markers apiMarkers
	if err := c.get(ctx, "/api/v1/markers", map[string]string{"timeline[]": timeline}, &markers); err != nil {
		return "", err
	}
	if markers.Home == nil {
		return "", nil
	}
	return markers.Home.LastReadID, nil
}

// SetTimelineMarker implements backend.Account.
func (c *Client) SetTimelineMarker(ctx context.Context, timeline, id string) error {
	body := map[string]map[string]string{
		timeline: {"last_read_id": id},
	}
	return c.post(ctx, "/api/v1/markers", body, nil)
}
