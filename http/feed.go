package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"wtfGram/auth"
	"wtfGram/errs"
)

func (s *Server) registerFeedRoutes(r *mux.Router) {
	// Every post, newest first.
	r.HandleFunc("/posts", s.handleGlobalFeed).Methods("GET")
	r.HandleFunc("/posts/{id}", s.handleGetPost).Methods("GET")

	// The posts of the users the authed user follows.
	r.HandleFunc("/feed", s.requireAuth(s.handleFeed)).Methods("GET")

	// The authed user's own posts.
	r.HandleFunc("/me/posts", s.requireAuth(s.handleMyPosts)).Methods("GET")
}

// handleFeed handles the route "GET /feed?first=&offset=".
// first limits the page size, without it the whole rest of the feed is returned.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	// Parse the paging parameters.
	query := r.URL.Query()
	var limit *int
	if first := query.Get("first"); first != "" {
		n, err := strconv.Atoi(first)
		if err != nil {
			errs.ReturnError(s.log, w, r, errs.Errorf(errs.EINVALID, "Invalid first parameter."))
			return
		}
		limit = &n
	}
	offset := 0
	if o := query.Get("offset"); o != "" {
		n, err := strconv.Atoi(o)
		if err != nil {
			errs.ReturnError(s.log, w, r, errs.Errorf(errs.EINVALID, "Invalid offset parameter."))
			return
		}
		offset = n
	}

	// Compose the feed.
	feed, err := s.feed.Feed(r.Context(), auth.GetIdentity(r.Context()), limit, offset)
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}

	// Return the page and the total count.
	s.writeJSON(w, r, http.StatusOK, feed)
}

// handleGlobalFeed handles the route "GET /posts".
func (s *Server) handleGlobalFeed(w http.ResponseWriter, r *http.Request) {
	posts, err := s.feed.GlobalFeed(r.Context())
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, posts)
}

// handleGetPost handles the route "GET /posts/{id}".
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.feed.Post(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, post)
}

// handleMyPosts handles the route "GET /me/posts".
func (s *Server) handleMyPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.feed.UserPosts(r.Context(), auth.GetIdentity(r.Context()))
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, posts)
}
