// Package bluesky implements the backend contract over the Bluesky XRPC
// API. Pagination is cursor-based: the opaque cursor rides in the Page's
// NextMaxID so the orchestrator stays cursor-agnostic.
package bluesky

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"resty.dev/v3"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/models"
)

const defaultServiceURL = "https://bsky.social"

// Client is a Bluesky account backend authenticated with an app password.
type Client struct {
	client     *resty.Client
	identifier string
	password   string

	mu         sync.Mutex
	did        string
	accessJwt  string
	refreshJwt string
	me         *models.User

	// Viewer-state bookkeeping: unlike needs the like record's URI and
	// like/repost need the post's CID, neither of which the at:// post id
	// carries. Populated as posts flow through the adapters.
	cids       map[string]string
	likeURIs   map[string]string
	repostURIs map[string]string
}

// New creates a client for the default bsky.social entryway.
func New(identifier, appPassword string) *Client {
	return &Client{
		client:     resty.New().SetBaseURL(defaultServiceURL),
		identifier: identifier,
		password:   appPassword,
		cids:       make(map[string]string),
		likeURIs:   make(map[string]string),
		repostURIs: make(map[string]string),
	}
}

// Close releases the underlying HTTP client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Verify creates a session and loads the authenticated profile.
func (c *Client) Verify(ctx context.Context) error {
	var session struct {
		DID        string `json:"did"`
		Handle     string `json:"handle"`
		AccessJwt  string `json:"accessJwt"`
		RefreshJwt string `json:"refreshJwt"`
	}
	res, err := c.client.R().WithContext(ctx).
		SetBody(map[string]string{
			"identifier": c.identifier,
			"password":   c.password,
		}).
		SetResult(&session).
		Post("/xrpc/com.atproto.server.createSession")
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("bluesky: createSession: %s", res.Status())
	}

	c.mu.Lock()
	c.did = session.DID
	c.accessJwt = session.AccessJwt
	c.refreshJwt = session.RefreshJwt
	c.mu.Unlock()

	profiles, err := c.getProfiles(ctx, []string{session.DID})
	if err != nil {
		return err
	}
	if len(profiles) > 0 {
		c.me = toUser(profiles[0])
	}
	return nil
}

// refreshSession swaps the refresh token for a new access token.
func (c *Client) refreshSession(ctx context.Context) error {
	c.mu.Lock()
	refresh := c.refreshJwt
	c.mu.Unlock()

	var session struct {
		AccessJwt  string `json:"accessJwt"`
		RefreshJwt string `json:"refreshJwt"`
	}
	res, err := c.client.R().WithContext(ctx).
		SetAuthToken(refresh).
		SetResult(&session).
		Post("/xrpc/com.atproto.server.refreshSession")
	if err != nil {
		return err
	}
	if res.IsError() {
		return fmt.Errorf("bluesky: refreshSession: %s", res.Status())
	}
	c.mu.Lock()
	c.accessJwt = session.AccessJwt
	c.refreshJwt = session.RefreshJwt
	c.mu.Unlock()
	return nil
}

func (c *Client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessJwt
}

// get issues an authenticated query, retrying once through a token refresh
// on 401.
func (c *Client) get(ctx context.Context, nsid string, params map[string]string, result any) error {
	for attempt := 0; ; attempt++ {
		req := c.client.R().WithContext(ctx).
			SetAuthToken(c.token()).
			SetResult(result)
		for k, v := range params {
			if v != "" {
				req.SetQueryParam(k, v)
			}
		}
		res, err := req.Get("/xrpc/" + nsid)
		if err != nil {
			return err
		}
		if res.StatusCode() == 401 && attempt == 0 {
			if err := c.refreshSession(ctx); err != nil {
				return err
			}
			continue
		}
		if res.IsError() {
			return fmt.Errorf("bluesky: %s: %s", nsid, res.Status())
		}
		return nil
	}
}

func (c *Client) procedure(ctx context.Context, nsid string, body any, result any) error {
	for attempt := 0; ; attempt++ {
		req := c.client.R().WithContext(ctx).
			SetAuthToken(c.token()).
			SetBody(body)
		if result != nil {
			req.SetResult(result)
		}
		res, err := req.Post("/xrpc/" + nsid)
		if err != nil {
			return err
		}
		if res.StatusCode() == 401 && attempt == 0 {
			if err := c.refreshSession(ctx); err != nil {
				return err
			}
			continue
		}
		if res.IsError() {
			return fmt.Errorf("bluesky: %s: %s", nsid, res.Status())
		}
		return nil
	}
}

func (c *Client) getProfiles(ctx context.Context, actors []string) ([]*apiProfile, error) {
	// max 25 per call per the API.
	var out []*apiProfile
	for len(actors) > 0 {
		batch := actors
		if len(batch) > 25 {
			batch = batch[:25]
		}
		actors = actors[len(batch):]

		var result struct {
			Profiles []*apiProfile `json:"profiles"`
		}
		res, err := c.client.R().WithContext(ctx).
			SetAuthToken(c.token()).
			SetResult(&result).
			SetQueryParamsFromValues(url.Values{"actors": batch}).
			Get("/xrpc/app.bsky.actor.getProfiles")
		if err != nil {
			return nil, err
		}
		if res.IsError() {
			return nil, fmt.Errorf("bluesky: getProfiles: %s", res.Status())
		}
		out = append(out, result.Profiles...)
	}
	return out, nil
}

// remember records viewer bookkeeping for a post and its nested views.
func (c *Client) remember(p *apiPost) {
	if p == nil || p.URI == "" {
		return
	}
	c.mu.Lock()
	if p.CID != "" {
		c.cids[p.URI] = p.CID
	}
	if p.Viewer != nil {
		if p.Viewer.Like != "" {
			c.likeURIs[p.URI] = p.Viewer.Like
		} else {
			delete(c.likeURIs, p.URI)
		}
		if p.Viewer.Repost != "" {
			c.repostURIs[p.URI] = p.Viewer.Repost
		} else {
			delete(c.repostURIs, p.URI)
		}
	}
	c.mu.Unlock()
	if p.Embed != nil {
		c.remember(p.Embed.Record)
	}
}

// Platform implements backend.Account.
func (c *Client) Platform() string { return "bluesky" }

// Me implements backend.Account. Nil until Verify succeeds.
func (c *Client) Me() *models.User { return c.me }

// Capabilities implements backend.Account. No streaming, no markers, no
// lists; custom feeds instead.
func (c *Client) Capabilities() backend.Capabilities {
	return backend.Capabilities{Feeds: true}
}

// LookupUsers implements backend.Account.
func (c *Client) LookupUsers(ctx context.Context, ids []string) ([]*models.User, error) {
	profiles, err := c.getProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(profiles))
	for _, p := range profiles {
		users = append(users, toUser(p))
	}
	return users, nil
}

// SearchUsers implements backend.Account.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]*models.User, error) {
	var result struct {
		Actors []*apiProfile `json:"actors"`
	}
	if err := c.get(ctx, "app.bsky.actor.searchActors", map[string]string{"q": query}, &result); err != nil {
		return nil, err
	}
	users := make([]*models.User, 0, len(result.Actors))
	for _, a := range result.Actors {
		users = append(users, toUser(a))
	}
	return users, nil
}

// GetTimelineMarker implements backend.Account; Bluesky has no markers.
func (c *Client) GetTimelineMarker(context.Context, string) (string, error) {
	return "", backend.ErrUnsupported
}

// SetTimelineMarker implements backend.Account; Bluesky has no markers.
func (c *Client) SetTimelineMarker(context.Context, string, string) error {
	return backend.ErrUnsupported
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
