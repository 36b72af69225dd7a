package crud

import (
	"context"

	"github.com/sirupsen/logrus"

	"wtfGram/domain"
	"wtfGram/errs"
)

// FeedService composes lists of Posts for reading. It never takes locks: every Post is
// read as one record, so its counts always match its lists, but a feed computed while
// someone follows or posts may be slightly behind. It implements domain.FeedService.
type FeedService struct {
	store domain.Store
	log   logrus.FieldLogger
}

// NewFeedService returns an instance of FeedService.
func NewFeedService(store domain.Store, log logrus.FieldLogger) *FeedService {
	return &FeedService{store: store, log: log}
}

// Ensure the FeedService struct properly implements the domain.FeedService interface.
var _ domain.FeedService = &FeedService{}

// Feed returns the posts of the users the caller follows, newest first. A nil limit returns
// everything from offset on. A caller who follows nobody, or whose followings have not
// posted yet, gets an errs.EEMPTY error rather than an empty list.
func (fs *FeedService) Feed(ctx context.Context, identity *domain.Identity, limit *int, offset int) (*domain.Feed, error) {
	if identity == nil {
		return nil, errs.Errorf(errs.EUNAUTHENTICATED, "You must be signed in to see your feed.")
	}
	if offset < 0 || (limit != nil && *limit < 0) {
		return nil, errs.Errorf(errs.EINVALID, "Offset and limit must not be negative.")
	}
	user, err := fs.store.UserByID(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	if len(user.Followings) == 0 {
		return nil, errs.Errorf(errs.EEMPTY, "You are not following anyone yet.")
	}

	posts, err := fs.store.FindPosts(ctx, domain.PostFilter{AuthorIDs: user.Followings})
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, errs.Errorf(errs.EEMPTY, "The users you follow have not posted anything yet.")
	}

	total := len(posts)
	posts = page(posts, limit, offset)
	if err := fs.enrich(ctx, posts); err != nil {
		return nil, err
	}
	return &domain.Feed{Posts: posts, TotalCount: total}, nil
}

// GlobalFeed returns every post, newest first, each with its author.
func (fs *FeedService) GlobalFeed(ctx context.Context) ([]*domain.Post, error) {
	posts, err := fs.store.FindPosts(ctx, domain.PostFilter{})
	if err != nil {
		return nil, err
	}
	if err := fs.enrich(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// Post returns a single post with its author.
func (fs *FeedService) Post(ctx context.Context, id string) (*domain.Post, error) {
	post, err := fs.store.PostByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fs.enrich(ctx, []*domain.Post{post}); err != nil {
		return nil, err
	}
	return post, nil
}

// UserPosts returns the caller's own posts, newest first.
func (fs *FeedService) UserPosts(ctx context.Context, identity *domain.Identity) ([]*domain.Post, error) {
	if identity == nil {
		return nil, errs.Errorf(errs.EUNAUTHENTICATED, "You must be signed in.")
	}
	user, err := fs.store.UserByID(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	posts, err := fs.store.FindPosts(ctx, domain.PostFilter{AuthorIDs: []string{user.ID}})
	if err != nil {
		return nil, err
	}
	for _, p := range posts {
		p.Author = user
	}
	return posts, nil
}

// enrich sets the Author of every post, loading all authors with one lookup.
func (fs *FeedService) enrich(ctx context.Context, posts []*domain.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, 0, len(posts))
	seen := map[string]bool{}
	for _, p := range posts {
		id := domain.CanonicalID(p.AuthorID)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	authors, err := fs.store.FindUsers(ctx, domain.UserFilter{IDs: ids})
	if err != nil {
		return err
	}
	byID := make(map[string]*domain.User, len(authors))
	for _, a := range authors {
		byID[domain.CanonicalID(a.ID)] = a
	}
	for _, p := range posts {
		p.Author = byID[domain.CanonicalID(p.AuthorID)]
		if p.Author == nil {
			fs.log.WithField("post", p.ID).Warn("post author does not exist")
		}
	}
	return nil
}

// page returns posts[offset:offset+limit], clamped to the bounds of posts.
func page(posts []*domain.Post, limit *int, offset int) []*domain.Post {
	if offset >= len(posts) {
		return []*domain.Post{}
	}
	end := len(posts)
	if limit != nil && offset+*limit < end {
		end = offset + *limit
	}
	return posts[offset:end]
}
