package domain

import "context"

// Store is the persistence layer for Users and Posts.
// Lookups by id fail with errs.ENOTFOUND, updates carrying a stale Version
// fail with errs.ECONFLICT. A successful update bumps the entity's Version.
type Store interface {
	UserByID(ctx context.Context, id string) (*User, error)
	FindUsers(ctx context.Context, filter UserFilter) ([]*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error

	PostByID(ctx context.Context, id string) (*Post, error)
	FindPosts(ctx context.Context, filter PostFilter) ([]*Post, error)
	CreatePost(ctx context.Context, post *Post) error
	UpdatePost(ctx context.Context, post *Post) error
	DeletePost(ctx context.Context, id string) error
}

// Transactor is implemented by stores that can run several writes as one unit.
// If fn returns an error, none of the writes made through the Store it was given persist.
type Transactor interface {
	WithTx(ctx context.Context, fn func(Store) error) error
}
