package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"wtfGram/auth"
	"wtfGram/errs"
)

// registerPostRoutes is a helper for registering all routes that change posts.
func (s *Server) registerPostRoutes(r *mux.Router) {
	// Create and delete posts.
	r.HandleFunc("/posts", s.requireAuth(s.handleCreatePost)).Methods("POST")
	r.HandleFunc("/posts/{id}", s.requireAuth(s.handleDeletePost)).Methods("DELETE")

	// Like and unlike a post.
	r.HandleFunc("/posts/{id}/like", s.requireAuth(s.handleLikePost)).Methods("POST")
	r.HandleFunc("/posts/{id}/like", s.requireAuth(s.handleUnlikePost)).Methods("DELETE")

	// Comment on a post and remove a comment again.
	r.HandleFunc("/posts/{id}/comments", s.requireAuth(s.handleCreateComment)).Methods("POST")
	r.HandleFunc("/posts/{id}/comments/{comment_id}", s.requireAuth(s.handleDeleteComment)).Methods("DELETE")
}

type postInput struct {
	Caption string `json:"caption"`
	Image   string `json:"image"`
}

type commentInput struct {
	Body string `json:"body"`
}

// handleCreatePost handles the route "POST /posts".
// It reads the caption and image reference from the json body and creates a post
// authored by the authed user. Followers get notified by the post service.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	// Parse the request's json body.
	var input postInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		errs.ReturnError(s.log, w, r, errs.Errorf(errs.EINVALID, "Invalid json body."))
		return
	}

	// Create the post.
	post, err := s.ps.Create(r.Context(), auth.GetIdentity(r.Context()), input.Caption, input.Image)
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}

	// Return the created post.
	s.writeJSON(w, r, http.StatusCreated, post)
}

// handleDeletePost handles the route "DELETE /posts/{id}". Only the author may delete a post.
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	if err := s.ps.Delete(r.Context(), auth.GetIdentity(r.Context()), mux.Vars(r)["id"]); err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, message{Message: "Post deleted successfully"})
}

// handleLikePost handles the route "POST /posts/{id}/like".
func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	post, err := s.ps.Like(r.Context(), auth.GetIdentity(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, post)
}

// handleUnlikePost handles the route "DELETE /posts/{id}/like".
func (s *Server) handleUnlikePost(w http.ResponseWriter, r *http.Request) {
	post, err := s.ps.Unlike(r.Context(), auth.GetIdentity(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, post)
}

// handleCreateComment handles the route "POST /posts/{id}/comments".
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var input commentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		errs.ReturnError(s.log, w, r, errs.Errorf(errs.EINVALID, "Invalid json body."))
		return
	}

	post, err := s.ps.Comment(r.Context(), auth.GetIdentity(r.Context()), mux.Vars(r)["id"], input.Body)
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusCreated, post)
}

// handleDeleteComment handles the route "DELETE /posts/{id}/comments/{comment_id}".
// Only the author of the comment may remove it.
func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	post, err := s.ps.DeleteComment(r.Context(), auth.GetIdentity(r.Context()), vars["id"], vars["comment_id"])
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, post)
}
