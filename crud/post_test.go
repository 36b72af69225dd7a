package crud

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wtfGram/domain"
	"wtfGram/errs"
)

func newTestPostService(t *testing.T) (*PostService, *recordingPublisher, domain.Store) {
	t.Helper()
	store := newTestStore(t)
	pub := &recordingPublisher{}
	ps := NewPostService(store, pub, nullLogger())
	ps.now = fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return ps, pub, store
}

func TestCreatePost(t *testing.T) {
	ctx := context.Background()
	ps, pub, store := newTestPostService(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	require.NoError(t, NewFollowService(store, nullLogger()).Follow(ctx, bob.ID, alice.ID))

	post, err := ps.Create(ctx, identityOf(alice), "  hello world ", "img.png")
	require.NoError(t, err)
	assert.NotEmpty(t, post.ID)
	assert.Equal(t, "  hello world ", post.Caption)
	assert.Equal(t, "img.png", post.Image)
	assert.Equal(t, alice.ID, post.AuthorID)
	assert.Equal(t, "alice", post.AuthorHandle)
	assert.Zero(t, post.LikesCount)
	assert.Zero(t, post.CommentsCount)
	require.NotNil(t, post.Author)
	assert.Equal(t, alice.ID, post.Author.ID)

	stored, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Caption, stored.Caption)

	msgs := pub.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.TopicNewPost, msgs[0].topic)
	assert.Nil(t, msgs[0].audience)
	assert.Equal(t, domain.TopicNewPostFromFollowings, msgs[1].topic)
	assert.Equal(t, []string{bob.ID}, msgs[1].audience)
	assert.Same(t, post, msgs[1].payload)
}

func TestCreatePostValidation(t *testing.T) {
	ctx := context.Background()
	ps, pub, store := newTestPostService(t)
	alice := seedUser(t, store, "alice")

	_, err := ps.Create(ctx, identityOf(alice), " \n\t", "")
	assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))

	_, err = ps.Create(ctx, nil, "hello", "")
	assert.Equal(t, errs.EUNAUTHENTICATED, errs.ErrorCode(err))

	_, err = ps.Create(ctx, &domain.Identity{ID: uuid.NewString()}, "hello", "")
	assert.Equal(t, errs.EUNAUTHENTICATED, errs.ErrorCode(err))

	assert.Empty(t, pub.messages(), "nothing is published for rejected posts")
}

func TestCreatePostPublishFailureKeepsPost(t *testing.T) {
	ctx := context.Background()
	ps, pub, store := newTestPostService(t)
	pub.err = errors.New("hub closed")
	alice := seedUser(t, store, "alice")

	post, err := ps.Create(ctx, identityOf(alice), "hello", "")
	require.NoError(t, err)
	_, err = store.PostByID(ctx, post.ID)
	assert.NoError(t, err)
}

func TestDeletePost(t *testing.T) {
	ctx := context.Background()
	ps, _, store := newTestPostService(t)
	alice := seedUser(t, store, "alice")
	mallory := seedUser(t, store, "mallory")

	post, err := ps.Create(ctx, identityOf(alice), "hello", "")
	require.NoError(t, err)

	// Same handle, different account.
	impostor := &domain.Identity{ID: mallory.ID, Handle: "alice"}
	err = ps.Delete(ctx, impostor, post.ID)
	assert.Equal(t, errs.EFORBIDDEN, errs.ErrorCode(err))

	err = ps.Delete(ctx, identityOf(alice), uuid.NewString())
	assert.Equal(t, errs.ENOTFOUND, errs.ErrorCode(err))

	require.NoError(t, ps.Delete(ctx, &domain.Identity{ID: strings.ToUpper(alice.ID)}, post.ID))
	_, err = store.PostByID(ctx, post.ID)
	assert.Equal(t, errs.ENOTFOUND, errs.ErrorCode(err))
}

func TestLikeAndUnlike(t *testing.T) {
	ctx := context.Background()
	ps, _, store := newTestPostService(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	post, err := ps.Create(ctx, identityOf(alice), "hello", "")
	require.NoError(t, err)

	liked, err := ps.Like(ctx, identityOf(bob), post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, liked.LikesCount)
	assert.True(t, liked.LikedBy(bob.ID))

	_, err = ps.Like(ctx, identityOf(bob), post.ID)
	assert.Equal(t, errs.ECONFLICT, errs.ErrorCode(err))

	unliked, err := ps.Unlike(ctx, identityOf(bob), post.ID)
	require.NoError(t, err)
	assert.Zero(t, unliked.LikesCount)
	assert.Empty(t, unliked.Likes)

	_, err = ps.Unlike(ctx, identityOf(bob), post.ID)
	assert.Equal(t, errs.ECONFLICT, errs.ErrorCode(err))

	_, err = ps.Like(ctx, identityOf(bob), uuid.NewString())
	assert.Equal(t, errs.ENOTFOUND, errs.ErrorCode(err))
}

func TestConcurrentLikesKeepCountsInSync(t *testing.T) {
	ctx := context.Background()
	ps, _, store := newTestPostService(t)
	alice := seedUser(t, store, "alice")
	post, err := ps.Create(ctx, identityOf(alice), "hello", "")
	require.NoError(t, err)

	var likers []*domain.User
	for i := 0; i < 8; i++ {
		likers = append(likers, seedUser(t, store, "liker"+uuid.NewString()[:8]))
	}
	var wg sync.WaitGroup
	for _, u := range likers {
		wg.Add(1)
		go func(u *domain.User) {
			defer wg.Done()
			_, err := ps.Like(ctx, identityOf(u), post.ID)
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	stored, err := store.PostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Likes, len(likers))
	assert.Equal(t, len(stored.Likes), stored.LikesCount)
}

func TestComments(t *testing.T) {
	ctx := context.Background()
	ps, _, store := newTestPostService(t)
	alice := seedUser(t, store, "alice")
	bob := seedUser(t, store, "bob")
	post, err := ps.Create(ctx, identityOf(alice), "hello", "")
	require.NoError(t, err)

	_, err = ps.Comment(ctx, identityOf(bob), post.ID, "   ")
	assert.Equal(t, errs.EINVALID, errs.ErrorCode(err))

	_, err = ps.Comment(ctx, identityOf(bob), post.ID, "first")
	require.NoError(t, err)
	commented, err := ps.Comment(ctx, identityOf(alice), post.ID, "second")
	require.NoError(t, err)
	assert.Equal(t, 2, commented.CommentsCount)
	require.Len(t, commented.Comments, 2)
	assert.Equal(t, "second", commented.Comments[0].Body, "newest first")
	bobs := commented.Comments[1]
	assert.Equal(t, bob.ID, bobs.UserID)

	_, err = ps.DeleteComment(ctx, identityOf(alice), post.ID, bobs.ID)
	assert.Equal(t, errs.EFORBIDDEN, errs.ErrorCode(err))

	_, err = ps.DeleteComment(ctx, identityOf(bob), post.ID, uuid.NewString())
	assert.Equal(t, errs.ENOTFOUND, errs.ErrorCode(err))

	after, err := ps.DeleteComment(ctx, identityOf(bob), post.ID, bobs.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, after.CommentsCount)
	require.Len(t, after.Comments, 1)
	assert.Equal(t, "second", after.Comments[0].Body)
}
