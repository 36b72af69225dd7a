package domain

import (
	"context"
	"time"
)

// User represents a registered account. Followers holds the IDs of the users following
// this user, Followings the IDs of the users this user follows, both newest first.
// A user never appears in its own lists, and B is in A's Followings exactly when A is
// in B's Followers. The FollowService is the only place that mutates these lists.
type User struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Handle       string    `json:"userName" gorm:"uniqueIndex;not null;size:50"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null;size:255"`
	PasswordHash string    `json:"-" gorm:"not null"`
	PhotoURL     string    `json:"photoUrl"`
	Followers    []string  `json:"followers" gorm:"type:text;serializer:json"`
	Followings   []string  `json:"followings" gorm:"type:text;serializer:json"`
	CreatedAt    time.Time `json:"createdAt" gorm:"index"`
	// Version is bumped on every update. An update carrying a stale version fails
	// with a conflict instead of overwriting a concurrent write.
	Version int `json:"-" gorm:"not null;default:0"`

	// Password is only used for registration input and never stored.
	Password string `json:"-" gorm:"-"`
}

// UserFilter narrows down a user lookup. A nil IDs slice means "any id",
// an empty one matches nothing.
type UserFilter struct {
	IDs     []string
	Handle  *string
	Email   *string
	Keyword *string

	Offset int
	Limit  int
}

// RegisterInput holds everything needed to create an account.
type RegisterInput struct {
	Handle          string `json:"userName"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Session is what register and login hand back: the account and a token for it.
type Session struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// UserService is a set of methods to register, authenticate and look up Users.
type UserService interface {
	Register(ctx context.Context, input RegisterInput) (*Session, error)
	Login(ctx context.Context, handleOrEmail, password string) (*Session, error)
	ByID(ctx context.Context, id string) (*User, error)
	All(ctx context.Context) ([]*User, error)
	Search(ctx context.Context, keyword string) ([]*User, error)
	Following(ctx context.Context, identity *Identity) ([]*User, error)
}
