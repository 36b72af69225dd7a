package database

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"wtfGram/domain"
	"wtfGram/errs"
)

// Store persists Users and Posts with gorm. It implements domain.Store and domain.Transactor.
type Store struct {
	db *gorm.DB
}

// NewStore returns a Store working on the given connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Ensure the Store struct properly implements the domain interfaces.
var (
	_ domain.Store      = &Store{}
	_ domain.Transactor = &Store{}
)

// Models lists every table the Store works with, in migration order.
func Models() []interface{} {
	return []interface{}{
		&domain.User{},
		&domain.Post{},
	}
}

// AutoMigrate creates or updates the tables of all Models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// WithTx runs fn inside a database transaction. The Store handed to fn writes through the
// transaction, which is committed when fn returns nil and rolled back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(domain.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// UserByID retrieves a User record by its ID.
func (s *Store) UserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", domain.CanonicalID(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Errorf(errs.ENOTFOUND, "The user does not exist.")
		}
		return nil, err
	}
	return &user, nil
}

// FindUsers retrieves all User records matching the filter, newest first.
func (s *Store) FindUsers(ctx context.Context, filter domain.UserFilter) ([]*domain.User, error) {
	users := []*domain.User{}
	if filter.IDs != nil && len(filter.IDs) == 0 {
		return users, nil
	}
	db := s.db.WithContext(ctx).Model(&domain.User{})
	if filter.IDs != nil {
		db = db.Where("id IN ?", canonicalIDs(filter.IDs))
	}
	if filter.Handle != nil {
		db = db.Where("handle = ?", *filter.Handle)
	}
	if filter.Email != nil {
		db = db.Where("email = ?", strings.ToLower(strings.TrimSpace(*filter.Email)))
	}
	if filter.Keyword != nil {
		db = db.Where("LOWER(handle) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(*filter.Keyword))+"%")
	}
	if filter.Offset > 0 {
		db = db.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		db = db.Limit(filter.Limit)
	}
	if err := db.Order("created_at desc, id desc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser stores a new User record. Handle and email must be unique.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	err := s.db.WithContext(ctx).Create(user).Error
	if isDuplicate(err) {
		return errs.Wrap(errs.ECONFLICT, err, "The user name or email address is already taken.")
	}
	return err
}

// UpdateUser saves all fields of an existing User record, given its Version is current.
// On success the Version of user is bumped.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	next := *user
	next.ID = domain.CanonicalID(user.ID)
	next.Version = user.Version + 1
	if err := s.update(ctx, &domain.User{}, &next, user.Version); err != nil {
		return err
	}
	user.Version = next.Version
	return nil
}

// PostByID retrieves a Post record by its ID.
func (s *Store) PostByID(ctx context.Context, id string) (*domain.Post, error) {
	var post domain.Post
	err := s.db.WithContext(ctx).First(&post, "id = ?", domain.CanonicalID(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
		}
		return nil, err
	}
	return &post, nil
}

// FindPosts retrieves all Post records matching the filter, newest first.
func (s *Store) FindPosts(ctx context.Context, filter domain.PostFilter) ([]*domain.Post, error) {
	posts := []*domain.Post{}
	if filter.AuthorIDs != nil && len(filter.AuthorIDs) == 0 {
		return posts, nil
	}
	db := s.db.WithContext(ctx).Model(&domain.Post{})
	if filter.AuthorIDs != nil {
		db = db.Where("author_id IN ?", canonicalIDs(filter.AuthorIDs))
	}
	if err := db.Order("created_at desc, id desc").Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// CreatePost stores a new Post record.
func (s *Store) CreatePost(ctx context.Context, post *domain.Post) error {
	return s.db.WithContext(ctx).Create(post).Error
}

// UpdatePost saves all fields of an existing Post record, given its Version is current.
// On success the Version of post is bumped.
func (s *Store) UpdatePost(ctx context.Context, post *domain.Post) error {
	next := *post
	next.Author = nil
	next.Version = post.Version + 1
	if err := s.update(ctx, &domain.Post{}, &next, post.Version); err != nil {
		return err
	}
	post.Version = next.Version
	return nil
}

// DeletePost permanently removes a Post record.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&domain.Post{}, "id = ?", domain.CanonicalID(id))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
	}
	return nil
}

// update writes every column of next except its primary key and creation time, but only
// if the stored row still carries version. model is an empty value of the same type as next.
func (s *Store) update(ctx context.Context, model, next interface{}, version int) error {
	res := s.db.WithContext(ctx).
		Model(next).
		Where("version = ?", version).
		Select("*").
		Omit("id", "created_at").
		Updates(next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// Nothing matched. Either the row is gone or somebody else updated it first.
	var count int64
	err := s.db.WithContext(ctx).Model(model).Where("id = ?", primaryKey(next)).Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return errs.Errorf(errs.ENOTFOUND, "The record does not exist.")
	}
	return errs.VersionConflict
}

func primaryKey(v interface{}) string {
	switch e := v.(type) {
	case *domain.User:
		return e.ID
	case *domain.Post:
		return e.ID
	}
	return ""
}

// isDuplicate reports whether err is a unique constraint violation. Drivers without
// error translation are recognized by their message.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "Duplicate entry")
}

func canonicalIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = domain.CanonicalID(id)
	}
	return out
}

// escapeLike makes user input match literally inside a LIKE pattern using '!' as escape character.
func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
