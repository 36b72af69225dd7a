package crud

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"wtfGram/database"
	"wtfGram/domain"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	db, err := database.Open(database.SQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return database.NewStore(db)
}

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

// seedUser stores a user directly, bypassing registration.
func seedUser(t *testing.T, s domain.Store, handle string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:           uuid.NewString(),
		Handle:       handle,
		Email:        handle + "@example.com",
		PasswordHash: "not-a-real-hash",
		Followers:    []string{},
		Followings:   []string{},
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func reload(t *testing.T, s domain.Store, id string) *domain.User {
	t.Helper()
	u, err := s.UserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func identityOf(u *domain.User) *domain.Identity {
	return &domain.Identity{ID: u.ID, Handle: u.Handle, Email: u.Email}
}

// fixedClock returns a clock starting at start that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

var errInjected = errors.New("injected write failure")

// faultStore hides the Transactor of the wrapped store and fails the next fails
// updates of the user with id failUser.
type faultStore struct {
	domain.Store

	mu       sync.Mutex
	failUser string
	fails    int
}

func (f *faultStore) UpdateUser(ctx context.Context, u *domain.User) error {
	f.mu.Lock()
	fail := f.fails > 0 && domain.SameID(u.ID, f.failUser)
	if fail {
		f.fails--
	}
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.UpdateUser(ctx, u)
}

// txFaultStore is a transactional store whose transactions fail updates of failUser.
type txFaultStore struct {
	*database.Store
	failUser string
}

func (s *txFaultStore) WithTx(ctx context.Context, fn func(domain.Store) error) error {
	return s.Store.WithTx(ctx, func(tx domain.Store) error {
		return fn(&faultStore{Store: tx, failUser: s.failUser, fails: 1})
	})
}

type published struct {
	topic    string
	payload  interface{}
	audience []string
}

// recordingPublisher remembers every publish.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, payload interface{}, audience []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic: topic, payload: payload, audience: audience})
	return p.err
}

func (p *recordingPublisher) messages() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published{}, p.msgs...)
}
