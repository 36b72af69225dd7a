package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"wtfGram/auth"
	"wtfGram/crud"
	"wtfGram/database"
	"wtfGram/domain"
	"wtfGram/errs"
	"wtfGram/pubsub"
)

type testApp struct {
	server *Server
	ts     *httptest.Server
	hub    *pubsub.Hub
}

// newTestApp starts a server on a fresh database. configure runs before the server
// accepts requests.
func newTestApp(t *testing.T, configure ...func(*Server)) *testApp {
	t.Helper()
	log, _ := test.NewNullLogger()

	db, err := database.Open(database.SQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared", false)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	reg := prometheus.NewRegistry()
	hub := pubsub.NewHub(log, pubsub.NewMetrics(reg))
	tokens := auth.NewJWT("test-secret", time.Hour)
	services, err := crud.NewServices(database.NewStore(db), log,
		crud.WithUser(tokens, "test-pepper"),
		crud.WithFollow(),
		crud.WithFeed(),
		crud.WithPost(hub),
	)
	require.NoError(t, err)

	s := NewServer(false, "", services, tokens, hub, reg, log)
	s.authLimiter = newRateLimiter(rate.Inf, 0)
	for _, fn := range configure {
		fn(s)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	t.Cleanup(hub.Close)
	return &testApp{server: s, ts: ts, hub: hub}
}

// do sends a request with an optional bearer token and json body.
func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req, err := http.NewRequest(method, a.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// expectError checks status and code of a failed request.
func expectError(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	assert.Equal(t, status, resp.StatusCode)
	var body errs.ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, code, body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
}

func (a *testApp) register(t *testing.T, handle string) *domain.Session {
	t.Helper()
	resp := a.do(t, "POST", "/register", "", domain.RegisterInput{
		Handle:          handle,
		Email:           handle + "@example.com",
		Password:        "correct horse",
		ConfirmPassword: "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var session domain.Session
	decode(t, resp, &session)
	require.NotEmpty(t, session.Token)
	return &session
}

func (a *testApp) dial(t *testing.T, path string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(a.ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func TestRegisterFollowPostFeed(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "alice")
	bob := app.register(t, "bob")

	// Login works with the handle or the email.
	resp := app.do(t, "POST", "/login", "", map[string]string{"userName": "bob", "password": "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = app.do(t, "POST", "/login", "", map[string]string{"userName": "BOB@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = app.do(t, "POST", "/follow/"+alice.User.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msg message
	decode(t, resp, &msg)
	assert.Equal(t, "followed user successfully", msg.Message)

	resp = app.do(t, "POST", "/posts", alice.Token, map[string]string{"caption": "first light", "image": "sunrise.jpg"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var post domain.Post
	decode(t, resp, &post)
	assert.Equal(t, "first light", post.Caption)
	assert.Equal(t, "alice", post.AuthorHandle)

	resp = app.do(t, "GET", "/feed?first=10&offset=0", bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var feed domain.Feed
	decode(t, resp, &feed)
	assert.Equal(t, 1, feed.TotalCount)
	require.Len(t, feed.Posts, 1)
	assert.Equal(t, post.ID, feed.Posts[0].ID)
	require.NotNil(t, feed.Posts[0].Author)
	assert.Equal(t, "alice", feed.Posts[0].Author.Handle)

	resp = app.do(t, "GET", "/following", bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var following []*domain.User
	decode(t, resp, &following)
	require.Len(t, following, 1)
	assert.Equal(t, alice.User.ID, following[0].ID)

	resp = app.do(t, "POST", "/posts/"+post.ID+"/like", bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = app.do(t, "POST", "/posts/"+post.ID+"/comments", bob.Token, map[string]string{"body": "nice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = app.do(t, "GET", "/posts/"+post.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got domain.Post
	decode(t, resp, &got)
	assert.Equal(t, 1, got.LikesCount)
	assert.Equal(t, 1, got.CommentsCount)

	resp = app.do(t, "DELETE", "/unfollow/"+alice.User.ID, bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &msg)
	assert.Equal(t, "unfollowed user successfully", msg.Message)

	resp = app.do(t, "DELETE", "/posts/"+post.ID, bob.Token, nil)
	expectError(t, resp, http.StatusForbidden, errs.EFORBIDDEN)
	resp = app.do(t, "DELETE", "/posts/"+post.ID, alice.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorStatusMapping(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "alice")
	bob := app.register(t, "bob")

	expectError(t, app.do(t, "GET", "/feed", "", nil), http.StatusUnauthorized, errs.EUNAUTHENTICATED)
	expectError(t, app.do(t, "GET", "/feed", "not-a-token", nil), http.StatusUnauthorized, errs.EUNAUTHENTICATED)
	expectError(t, app.do(t, "GET", "/feed", bob.Token, nil), http.StatusNotFound, errs.EEMPTY)
	expectError(t, app.do(t, "GET", "/feed?first=abc", bob.Token, nil), http.StatusBadRequest, errs.EINVALID)
	expectError(t, app.do(t, "GET", "/feed?offset=-1", bob.Token, nil), http.StatusBadRequest, errs.EINVALID)

	expectError(t, app.do(t, "POST", "/follow/"+bob.User.ID, bob.Token, nil), http.StatusBadRequest, errs.EINVALID)
	expectError(t, app.do(t, "POST", "/follow/"+uuid.NewString(), bob.Token, nil), http.StatusNotFound, errs.ENOTFOUND)
	expectError(t, app.do(t, "DELETE", "/unfollow/"+alice.User.ID, bob.Token, nil), http.StatusConflict, errs.ECONFLICT)
	require.Equal(t, http.StatusOK, app.do(t, "POST", "/follow/"+alice.User.ID, bob.Token, nil).StatusCode)
	expectError(t, app.do(t, "POST", "/follow/"+alice.User.ID, bob.Token, nil), http.StatusConflict, errs.ECONFLICT)

	expectError(t, app.do(t, "POST", "/posts", alice.Token, "{"), http.StatusBadRequest, errs.EINVALID)
	expectError(t, app.do(t, "POST", "/posts", alice.Token, map[string]string{"caption": "  "}), http.StatusBadRequest, errs.EINVALID)
	expectError(t, app.do(t, "GET", "/posts/"+uuid.NewString(), "", nil), http.StatusNotFound, errs.ENOTFOUND)

	expectError(t, app.do(t, "POST", "/login", "", map[string]string{"userName": "alice", "password": "wrong password"}),
		http.StatusUnauthorized, errs.EUNAUTHENTICATED)
	expectError(t, app.do(t, "POST", "/login", "", map[string]string{"userName": "nobody", "password": "whatever1"}),
		http.StatusNotFound, errs.ENOTFOUND)
	expectError(t, app.do(t, "POST", "/register", "", domain.RegisterInput{
		Handle: "alice", Email: "new@example.com", Password: "correct horse", ConfirmPassword: "correct horse",
	}), http.StatusConflict, errs.ECONFLICT)
}

func TestUserLookups(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "alice")
	app.register(t, "alicia")
	app.register(t, "bob")

	resp := app.do(t, "GET", "/users", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var users []*domain.User
	decode(t, resp, &users)
	assert.Len(t, users, 3)

	resp = app.do(t, "GET", "/users/"+alice.User.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var user domain.User
	decode(t, resp, &user)
	assert.Equal(t, "alice", user.Handle)
	assert.Empty(t, user.PasswordHash)

	resp = app.do(t, "GET", "/search/profiles/ALI", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &users)
	assert.Len(t, users, 2)
}

func TestAuthRoutesAreRateLimited(t *testing.T) {
	app := newTestApp(t, func(s *Server) {
		s.authLimiter = newRateLimiter(rate.Every(time.Hour), 1)
	})

	creds := map[string]string{"userName": "nobody", "password": "whatever1"}
	expectError(t, app.do(t, "POST", "/login", "", creds), http.StatusNotFound, errs.ENOTFOUND)
	expectError(t, app.do(t, "POST", "/login", "", creds), http.StatusTooManyRequests, errs.ETOOMANY)

	// Other routes are not throttled.
	assert.Equal(t, http.StatusOK, app.do(t, "GET", "/users", "", nil).StatusCode)
}

func TestNewPostSubscriptions(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "alice")
	bob := app.register(t, "bob")
	carol := app.register(t, "carol")
	require.Equal(t, http.StatusOK, app.do(t, "POST", "/follow/"+alice.User.ID, bob.Token, nil).StatusCode)

	// Anonymous clients may not subscribe to follower notifications.
	_, resp, err := app.dial(t, "/subscriptions/new-post-from-followings", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bobConn, _, err := app.dial(t, "/subscriptions/new-post-from-followings",
		http.Header{"Authorization": {"Bearer " + bob.Token}})
	require.NoError(t, err)
	carolConn, _, err := app.dial(t, "/subscriptions/new-post-from-followings?token="+carol.Token, nil)
	require.NoError(t, err)
	anonConn, _, err := app.dial(t, "/subscriptions/new-post", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return app.hub.Subscribers(domain.TopicNewPostFromFollowings) == 2 &&
			app.hub.Subscribers(domain.TopicNewPost) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp = app.do(t, "POST", "/posts", alice.Token, map[string]string{"caption": "hello followers"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, conn := range []*websocket.Conn{bobConn, anonConn} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var post domain.Post
		require.NoError(t, conn.ReadJSON(&post))
		assert.Equal(t, "hello followers", post.Caption)
	}

	// Bob gets exactly one event, carol doesn't follow alice and gets none.
	assertNoMessage(t, bobConn)
	assertNoMessage(t, carolConn)

	// Closing the connection removes the subscription from the hub.
	require.NoError(t, anonConn.Close())
	assert.Eventually(t, func() bool {
		return app.hub.Subscribers(domain.TopicNewPost) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func assertNoMessage(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, data, err := conn.ReadMessage()
	var netErr net.Error
	if assert.True(t, errors.As(err, &netErr), "unexpected message %q", data) {
		assert.True(t, netErr.Timeout())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	alice := app.register(t, "alice")
	require.Equal(t, http.StatusCreated,
		app.do(t, "POST", "/posts", alice.Token, map[string]string{"caption": "counted"}).StatusCode)

	resp := app.do(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `wtfgram_hub_published_total{topic="NEW_POST"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	app := newTestApp(t)
	req, err := http.NewRequest("OPTIONS", app.ts.URL+"/posts", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	resp, err := app.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
