package crud

import (
	"github.com/sirupsen/logrus"

	"wtfGram/domain"
)

// A ServicesConfig is any function that takes in a pointer to a Services
// object and returns an error. It's basically just wrapping the constructor
// method of any given crud service. It exists to be able to easily create
// the crud services using functional options in main.go.
type ServicesConfig func(*Services) error

// Services is a container object holding pointers to all the crud services.
// The crud services all share the store and the logger provided by Services.
type Services struct {
	store  domain.Store
	log    logrus.FieldLogger
	User   *UserService
	Follow *FollowService
	Feed   *FeedService
	Post   *PostService
}

// NewServices returns a new Services object, containing any crud services
// it's told to create by one of the passed in ServicesConfig functions.
func NewServices(store domain.Store, log logrus.FieldLogger, cfgs ...ServicesConfig) (*Services, error) {
	s := Services{
		store: store,
		log:   log,
	}
	for _, cfg := range cfgs {
		if err := cfg(&s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// WithUser wraps the constructor of UserService, NewUserService.
func WithUser(tokens domain.IdentityVerifier, pepper string) ServicesConfig {
	return func(s *Services) error {
		s.User = NewUserService(s.store, tokens, pepper, s.log.WithField("service", "user"))
		return nil
	}
}

// WithFollow wraps the constructor of FollowService, NewFollowService.
func WithFollow() ServicesConfig {
	return func(s *Services) error {
		s.Follow = NewFollowService(s.store, s.log.WithField("service", "follow"))
		return nil
	}
}

// WithFeed wraps the constructor of FeedService, NewFeedService.
func WithFeed() ServicesConfig {
	return func(s *Services) error {
		s.Feed = NewFeedService(s.store, s.log.WithField("service", "feed"))
		return nil
	}
}

// WithPost wraps the constructor of PostService, NewPostService.
func WithPost(pub domain.Publisher) ServicesConfig {
	return func(s *Services) error {
		s.Post = NewPostService(s.store, pub, s.log.WithField("service", "post"))
		return nil
	}
}
