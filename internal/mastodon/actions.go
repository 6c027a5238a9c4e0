package mastodon

import (
	"context"

	"github.com/fastsm/fastsm/internal/backend"
	"github.com/fastsm/fastsm/internal/models"
)

// Post implements backend.Account.
func (c *Client) Post(ctx context.Context, args backend.PostArgs) (*models.Status, error) {
	body := map[string]string{
		"status": args.Text,
	}
	if args.InReplyToID != "" {
		body["in_reply_to_id"] = args.InReplyToID
	}
	if args.Visibility != "" {
		body["visibility"] = args.Visibility
	}
	if args.SpoilerText != "" {
		body["spoiler_text"] = args.SpoilerText
	}
	var s apiStatus
	if err := c.post(ctx, "/api/v1/statuses", body, &s); err != nil {
		return nil, err
	}
	return toStatus(&s), nil
}

// Favourite implements backend.Account.
func (c *Client) Favourite(ctx context.Context, id string) error {
	return c.post(ctx, "/api/v1/statuses/"+id+"/favourite", nil, nil)
}

// Unfavourite implements backend.Account.
func (c *Client) Unfavourite(ctx context.Context, id string) error {
	return c.post(ctx, "/api/v1/statuses/"+id+"/unfavourite", nil, nil)
}

// Boost implements backend.Account.
func (c *Client) Boost(ctx context.Context, id string) error {
	return c.post(ctx, "/api/v1/statuses/"+id+"/reblog", nil, nil)
}

// Unboost implements backend.Account.
func (c *Client) Unboost(ctx context.Context, id string) error {
	return c.post(ctx, "/api/v1/statuses/"+id+"/unreblog", nil, nil)
}

// Bookmark implements backend.Account.
func (c *Client) Bookmark(ctx context.Context, id string) error {
	return c.post(ctx, "/api/v1/statuses/"+id+"/bookmark", nil, nil)
}

// Follow implements backend.Account.
func (c *Client) Follow(ctx context.Context, userID string) error {
	return c.post(ctx, "/api/v1/accounts/"+userID+"/follow", nil, nil)
}

// Unfollow implements backend.Account.
func (c *Client) Unfollow(ctx context.Context, userID string) error {
	return c.post(ctx, "/api/v1/accounts/"+userID+"/unfollow", nil, nil)
}
