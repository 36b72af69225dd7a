package domain

import (
	"context"
	"time"
)

// Post is owned by its author. Any authenticated user may like or comment on it,
// only the author may delete it. LikesCount and CommentsCount always match the
// lengths of Likes and Comments, since they are written together.
type Post struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	AuthorID      string    `json:"-" gorm:"not null;index;size:36"`
	AuthorHandle  string    `json:"userName" gorm:"not null;size:50"`
	Caption       string    `json:"caption" gorm:"not null"`
	Image         string    `json:"image"`
	CreatedAt     time.Time `json:"createdAt" gorm:"index"`
	Comments      []Comment `json:"comments" gorm:"type:text;serializer:json"`
	Likes         []Like    `json:"likes" gorm:"type:text;serializer:json"`
	LikesCount    int       `json:"likesCount" gorm:"not null;default:0"`
	CommentsCount int       `json:"commentsCount" gorm:"not null;default:0"`
	Version       int       `json:"-" gorm:"not null;default:0"`

	// Author is the read side join of AuthorID, filled in by the feed.
	Author *User `json:"user" gorm:"-"`
}

// Comment is a remark left on a Post.
type Comment struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"userId"`
	Handle    string    `json:"userName"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// Like records that a user likes a Post.
type Like struct {
	ID        string    `json:"_id"`
	UserID    string    `json:"userId"`
	Handle    string    `json:"userName"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostFilter narrows down a post lookup. Results are always ordered newest first.
// A nil AuthorIDs slice means "any author", an empty one matches nothing.
type PostFilter struct {
	AuthorIDs []string
}

// LikedBy reports whether the user with the given id likes the post.
func (p *Post) LikedBy(userID string) bool {
	for _, l := range p.Likes {
		if SameID(l.UserID, userID) {
			return true
		}
	}
	return false
}

// PostService is a set of methods to create, delete and interact with Posts.
type PostService interface {
	Create(ctx context.Context, identity *Identity, caption, image string) (*Post, error)
	Delete(ctx context.Context, identity *Identity, postID string) error
	Like(ctx context.Context, identity *Identity, postID string) (*Post, error)
	Unlike(ctx context.Context, identity *Identity, postID string) (*Post, error)
	Comment(ctx context.Context, identity *Identity, postID, body string) (*Post, error)
	DeleteComment(ctx context.Context, identity *Identity, postID, commentID string) (*Post, error)
}
