package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"wtfGram/auth"
	"wtfGram/errs"
)

func (s *Server) registerFollowRoutes(r *mux.Router) {
	r.HandleFunc("/follow/{user_id}", s.requireAuth(s.handleCreateFollow)).Methods("POST")
	r.HandleFunc("/unfollow/{user_id}", s.requireAuth(s.handleDeleteFollow)).Methods("DELETE")
}

// handleCreateFollow handles the route "POST /follow/{user_id}".
// The authed user starts following the user in the url.
func (s *Server) handleCreateFollow(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetIdentity(r.Context())
	if err := s.fs.Follow(r.Context(), actor.ID, mux.Vars(r)["user_id"]); err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, message{Message: "followed user successfully"})
}

// handleDeleteFollow handles the route "DELETE /unfollow/{user_id}".
func (s *Server) handleDeleteFollow(w http.ResponseWriter, r *http.Request) {
	actor := auth.GetIdentity(r.Context())
	if err := s.fs.Unfollow(r.Context(), actor.ID, mux.Vars(r)["user_id"]); err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, message{Message: "unfollowed user successfully"})
}
