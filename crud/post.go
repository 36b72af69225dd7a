package crud

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"wtfGram/domain"
	"wtfGram/errs"
)

// PostService manages Posts along with their likes and comments.
// It implements the domain.PostService interface.
type PostService struct {
	postValidator
}

// postValidator runs validations on incoming Post data.
// On success, it passes the data on to postStore.
// Otherwise, it returns the error of the validation that has failed.
type postValidator struct {
	postStore
}

// postStore runs CRUD operations on the store using incoming Post data. Mutations of
// one post are serialized by the post's stripe lock.
type postStore struct {
	store domain.Store
	pub   domain.Publisher
	locks *stripedLocker
	log   logrus.FieldLogger
	now   func() time.Time
}

// NewPostService returns an instance of PostService. New posts are published through pub.
func NewPostService(store domain.Store, pub domain.Publisher, log logrus.FieldLogger) *PostService {
	return &PostService{
		postValidator{
			postStore{
				store: store,
				pub:   pub,
				locks: newStripedLocker(defaultStripes),
				log:   log,
				now:   time.Now,
			},
		},
	}
}

// Ensure the PostService struct properly implements the domain.PostService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.PostService = &PostService{}

// postChange is a mutation request on a post, filled in by the validations.
type postChange struct {
	identity  *domain.Identity
	postID    string
	body      string
	commentID string

	actor *domain.User
	post  *domain.Post
}

// Create publishes a new post for the caller. The stored post carries the caption as given.
// Once it is persisted it is sent to every subscriber of domain.TopicNewPost, and to the
// author's followers on domain.TopicNewPostFromFollowings.
func (pv *postValidator) Create(ctx context.Context, identity *domain.Identity, caption, image string) (*domain.Post, error) {
	c := &postChange{identity: identity, body: caption}
	err := runPostValFns(ctx, c,
		pv.identityRequired,
		pv.bodyRequired("A caption is required."),
		pv.actorExists)
	if err != nil {
		return nil, err
	}
	post := &domain.Post{
		ID:           uuid.NewString(),
		AuthorID:     domain.CanonicalID(c.actor.ID),
		AuthorHandle: c.actor.Handle,
		Caption:      caption,
		Image:        image,
		CreatedAt:    pv.now().UTC(),
		Comments:     []domain.Comment{},
		Likes:        []domain.Like{},
	}
	if err := pv.store.CreatePost(ctx, post); err != nil {
		return nil, err
	}
	post.Author = c.actor
	pv.publish(ctx, post, c.actor.Followers)
	return post, nil
}

// publish fans a new post out on both topics. A failed publish doesn't undo the post.
func (ps *postStore) publish(ctx context.Context, post *domain.Post, followers []string) {
	if ps.pub == nil {
		return
	}
	log := ps.log.WithField("post", post.ID)
	if err := ps.pub.Publish(ctx, domain.TopicNewPost, post, nil); err != nil {
		log.WithError(err).WithField("topic", domain.TopicNewPost).Error("publishing new post")
	}
	audience := append([]string{}, followers...)
	if err := ps.pub.Publish(ctx, domain.TopicNewPostFromFollowings, post, audience); err != nil {
		log.WithError(err).WithField("topic", domain.TopicNewPostFromFollowings).Error("publishing new post")
	}
}

// Delete permanently removes a post. Only its author may do that.
func (pv *postValidator) Delete(ctx context.Context, identity *domain.Identity, postID string) error {
	c := &postChange{identity: identity, postID: postID}
	unlock := pv.locks.Lock(c.postID)
	defer unlock()

	err := runPostValFns(ctx, c,
		pv.identityRequired,
		pv.postExists,
		pv.actorIsAuthor)
	if err != nil {
		return err
	}
	if err := pv.store.DeletePost(ctx, c.post.ID); err != nil {
		return err
	}
	pv.log.WithFields(logrus.Fields{"post": c.post.ID, "user": c.identity.ID}).Info("deleted post")
	return nil
}

// Like makes the caller like a post.
func (pv *postValidator) Like(ctx context.Context, identity *domain.Identity, postID string) (*domain.Post, error) {
	c := &postChange{identity: identity, postID: postID}
	unlock := pv.locks.Lock(c.postID)
	defer unlock()

	err := runPostValFns(ctx, c,
		pv.identityRequired,
		pv.actorExists,
		pv.postExists,
		pv.notAlreadyLiked)
	if err != nil {
		return nil, err
	}
	c.post.Likes = append(c.post.Likes, domain.Like{
		ID:        uuid.NewString(),
		UserID:    domain.CanonicalID(c.actor.ID),
		Handle:    c.actor.Handle,
		CreatedAt: pv.now().UTC(),
	})
	return pv.save(ctx, c.post)
}

// Unlike removes the caller's like from a post.
func (pv *postValidator) Unlike(ctx context.Context, identity *domain.Identity, postID string) (*domain.Post, error) {
	c := &postChange{identity: identity, postID: postID}
	unlock := pv.locks.Lock(c.postID)
	defer unlock()

	err := runPostValFns(ctx, c,
		pv.identityRequired,
		pv.postExists,
		pv.alreadyLiked)
	if err != nil {
		return nil, err
	}
	likes := make([]domain.Like, 0, len(c.post.Likes))
	for _, l := range c.post.Likes {
		if !domain.SameID(l.UserID, c.identity.ID) {
			likes = append(likes, l)
		}
	}
	c.post.Likes = likes
	return pv.save(ctx, c.post)
}

// Comment adds the caller's comment to a post.
func (pv *postValidator) Comment(ctx context.Context, identity *domain.Identity, postID, body string) (*domain.Post, error) {
	c := &postChange{identity: identity, postID: postID, body: body}
	unlock := pv.locks.Lock(c.postID)
	defer unlock()

	err := runPostValFns(ctx, c,
		pv.identityRequired,
		pv.bodyRequired("A comment must not be empty."),
		pv.actorExists,
		pv.postExists)
	if err != nil {
		return nil, err
	}
	c.post.Comments = append([]domain.Comment{{
		ID:        uuid.NewString(),
		UserID:    domain.CanonicalID(c.actor.ID),
		Handle:    c.actor.Handle,
		Body:      strings.TrimSpace(body),
		CreatedAt: pv.now().UTC(),
	}}, c.post.Comments...)
	return pv.save(ctx, c.post)
}

// DeleteComment removes a comment from a post. Only the comment's author may do that.
func (pv *postValidator) DeleteComment(ctx context.Context, identity *domain.Identity, postID, commentID string) (*domain.Post, error) {
	c := &postChange{identity: identity, postID: postID, commentID: commentID}
	unlock := pv.locks.Lock(c.postID)
	defer unlock()

	err := runPostValFns(ctx, c,
		pv.identityRequired,
		pv.postExists,
		pv.commentOwned)
	if err != nil {
		return nil, err
	}
	comments := make([]domain.Comment, 0, len(c.post.Comments))
	for _, cm := range c.post.Comments {
		if !domain.SameID(cm.ID, c.commentID) {
			comments = append(comments, cm)
		}
	}
	c.post.Comments = comments
	return pv.save(ctx, c.post)
}

// save writes the post with its counts matching its lists, then loads its author.
func (ps *postStore) save(ctx context.Context, post *domain.Post) (*domain.Post, error) {
	post.LikesCount = len(post.Likes)
	post.CommentsCount = len(post.Comments)
	if err := ps.store.UpdatePost(ctx, post); err != nil {
		return nil, err
	}
	author, err := ps.store.UserByID(ctx, post.AuthorID)
	if err != nil && !errs.Is(err, errs.ENOTFOUND) {
		return nil, err
	}
	post.Author = author
	return post, nil
}

// runPostValFns runs any number of functions of type postValFn on the passed in postChange.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runPostValFns(ctx context.Context, c *postChange, fns ...postValFn) error {
	for _, fn := range fns {
		if err := fn(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// A postValFn is any function that takes in a pointer to a postChange and returns an error.
type postValFn func(ctx context.Context, c *postChange) error

// identityRequired makes sure the caller is signed in.
func (pv *postValidator) identityRequired(ctx context.Context, c *postChange) error {
	if c.identity == nil || domain.CanonicalID(c.identity.ID) == "" {
		return errs.Errorf(errs.EUNAUTHENTICATED, "You must be signed in.")
	}
	return nil
}

// bodyRequired makes sure the caption or comment body isn't blank.
func (pv *postValidator) bodyRequired(message string) postValFn {
	return func(ctx context.Context, c *postChange) error {
		if strings.TrimSpace(c.body) == "" {
			return errs.Errorf(errs.EINVALID, "%s", message)
		}
		return nil
	}
}

// actorExists resolves the caller to a User. A caller whose account is gone is not
// signed in anymore, whatever the token says.
func (pv *postValidator) actorExists(ctx context.Context, c *postChange) error {
	actor, err := pv.store.UserByID(ctx, c.identity.ID)
	if err != nil {
		if errs.Is(err, errs.ENOTFOUND) {
			return errs.Wrap(errs.EUNAUTHENTICATED, err, "Your account does not exist.")
		}
		return err
	}
	c.actor = actor
	return nil
}

// postExists loads the post.
func (pv *postValidator) postExists(ctx context.Context, c *postChange) error {
	if domain.CanonicalID(c.postID) == "" {
		return errs.Errorf(errs.EINVALID, "A post id is required.")
	}
	post, err := pv.store.PostByID(ctx, c.postID)
	if err != nil {
		return err
	}
	c.post = post
	return nil
}

// actorIsAuthor makes sure the caller wrote the post. Handles are not unique over time,
// only ids are compared.
func (pv *postValidator) actorIsAuthor(ctx context.Context, c *postChange) error {
	if !domain.SameID(c.post.AuthorID, c.identity.ID) {
		return errs.Errorf(errs.EFORBIDDEN, "You are not allowed to delete this post.")
	}
	return nil
}

// notAlreadyLiked makes sure that the user doesn't already like the post.
func (pv *postValidator) notAlreadyLiked(ctx context.Context, c *postChange) error {
	if c.post.LikedBy(c.identity.ID) {
		return errs.Errorf(errs.ECONFLICT, "You already like this post.")
	}
	return nil
}

// alreadyLiked makes sure that the user likes the post.
func (pv *postValidator) alreadyLiked(ctx context.Context, c *postChange) error {
	if !c.post.LikedBy(c.identity.ID) {
		return errs.Errorf(errs.ECONFLICT, "You cannot unlike a post you have not liked.")
	}
	return nil
}

// commentOwned makes sure the comment exists and was written by the caller.
func (pv *postValidator) commentOwned(ctx context.Context, c *postChange) error {
	for _, cm := range c.post.Comments {
		if domain.SameID(cm.ID, c.commentID) {
			if !domain.SameID(cm.UserID, c.identity.ID) {
				return errs.Errorf(errs.EFORBIDDEN, "You are not allowed to delete this comment.")
			}
			return nil
		}
	}
	return errs.Errorf(errs.ENOTFOUND, "The comment does not exist.")
}
