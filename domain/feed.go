package domain

import "context"

// Feed is the computed list of posts authored by the users someone follows.
// TotalCount is the number of matching posts before offset and limit were applied.
type Feed struct {
	Posts      []*Post `json:"news"`
	TotalCount int     `json:"totalCount"`
}

// FeedService is a set of read only methods composing lists of Posts.
type FeedService interface {
	Feed(ctx context.Context, identity *Identity, limit *int, offset int) (*Feed, error)
	GlobalFeed(ctx context.Context) ([]*Post, error)
	Post(ctx context.Context, id string) (*Post, error)
	UserPosts(ctx context.Context, identity *Identity) ([]*Post, error)
}
