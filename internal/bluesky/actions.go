package bluesky

import (
	"context"
	"fmt"
	"strings"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/models"
)

type recordRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type createRecordResult struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

func (c *Client) createRecord(ctx context.Context, collection string, record any) (*createRecordResult, error) {
	c.mu.Lock()
	repo := c.did
	c.mu.Unlock()
	var result createRecordResult
	err := c.procedure(ctx, "com.atproto.repo.createRecord", map[string]any{
		"repo":       repo,
		"collection": collection,
		"record":     record,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) deleteRecord(ctx context.Context, uri string) error {
	// at://did/collection/rkey
	rest := strings.TrimPrefix(uri, "at://")
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 {
		return fmt.Errorf("bluesky: malformed record uri: %s", uri)
	}
	return c.procedure(ctx, "com.atproto.repo.deleteRecord", map[string]any{
		"repo":       parts[0],
		"collection": parts[1],
		"rkey":       parts[2],
	}, nil)
}

// subjectRef builds the strong ref for a post; the CID comes from the
// bookkeeping maps filled during fetches.
func (c *Client) subjectRef(uri string) (*recordRef, error) {
	c.mu.Lock()
	cid, ok := c.cids[uri]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("bluesky: no cid known for %s", uri)
	}
	return &recordRef{URI: uri, CID: cid}, nil
}

// Post implements backend.Account. Replies resolve the parent's thread root
// so the post threads correctly.
func (c *Client) Post(ctx context.Context, args backend.PostArgs) (*models.Status, error) {
	record := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      args.Text,
		"createdAt": nowRFC3339(),
	}
	if args.InReplyToID != "" {
		parent, err := c.subjectRef(args.InReplyToID)
		if err != nil {
			return nil, err
		}
		root := parent
		if thread, err := c.getThread(ctx, args.InReplyToID); err == nil {
			top := thread
			for top != nil && top.Parent != nil {
				top = top.Parent
			}
			if top != nil && top.Post != nil && top.Post.URI != parent.URI {
				root = &recordRef{URI: top.Post.URI, CID: top.Post.CID}
			}
		}
		record["reply"] = map[string]any{"parent": parent, "root": root}
	}
	created, err := c.createRecord(ctx, "app.bsky.feed.post", record)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cids[created.URI] = created.CID
	c.mu.Unlock()
	return c.GetStatus(ctx, created.URI)
}

// Favourite implements backend.Account via an app.bsky.feed.like record.
func (c *Client) Favourite(ctx context.Context, id string) error {
	subject, err := c.subjectRef(id)
	if err != nil {
		return err
	}
	created, err := c.createRecord(ctx, "app.bsky.feed.like", map[string]any{
		"$type":     "app.bsky.feed.like",
		"subject":   subject,
		"createdAt": nowRFC3339(),
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.likeURIs[id] = created.URI
	c.mu.Unlock()
	return nil
}

// Unfavourite implements backend.Account by deleting the like record.
func (c *Client) Unfavourite(ctx context.Context, id string) error {
	c.mu.Lock()
	likeURI, ok := c.likeURIs[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("bluesky: no like record known for %s", id)
	}
	if err := c.deleteRecord(ctx, likeURI); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.likeURIs, id)
	c.mu.Unlock()
	return nil
}

// Boost implements backend.Account via an app.bsky.feed.repost record.
func (c *Client) Boost(ctx context.Context, id string) error {
	subject, err := c.subjectRef(id)
	if err != nil {
		return err
	}
	created, err := c.createRecord(ctx, "app.bsky.feed.repost", map[string]any{
		"$type":     "app.bsky.feed.repost",
		"subject":   subject,
		"createdAt": nowRFC3339(),
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.repostURIs[id] = created.URI
	c.mu.Unlock()
	return nil
}

// Unboost implements backend.Account by deleting the repost record.
func (c *Client) Unboost(ctx context.Context, id string) error {
	c.mu.Lock()
	repostURI, ok := c.repostURIs[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("bluesky: no repost record known for %s", id)
	}
	if err := c.deleteRecord(ctx, repostURI); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.repostURIs, id)
	c.mu.Unlock()
	return nil
}

// Bookmark implements backend.Account; Bluesky has no bookmarks.
func (c *Client) Bookmark(context.Context, string) error {
	return backend.ErrUnsupported
}

// Follow implements backend.Account via an app.bsky.graph.follow record.
func (c *Client) Follow(ctx context.Context, userID string) error {
	_, err := c.createRecord(ctx, "app.bsky.graph.follow", map[string]any{
		"$type":     "app.bsky.graph.follow",
		"subject":   userID,
		"createdAt": nowRFC3339(),
	})
	return err
}

// Unfollow implements backend.Account. The follow record's URI comes from
// the profile's viewer state.
func (c *Client) Unfollow(ctx context.Context, userID string) error {
	var result struct {
		Viewer struct {
			Following string `json:"following"`
		} `json:"viewer"`
	}
	if err := c.get(ctx, "app.bsky.actor.getProfile", map[string]string{"actor": userID}, &result); err != nil {
		return err
	}
	if result.Viewer.Following == "" {
		return fmt.Errorf("bluesky: not following %s", userID)
	}
	return c.deleteRecord(ctx, result.Viewer.Following)
}
