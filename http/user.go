package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"wtfGram/auth"
	"wtfGram/errs"
)

func (s *Server) registerUserRoutes(r *mux.Router) {
	// List all users.
	r.HandleFunc("/users", s.handleGetUsers).Methods("GET")

	// Get the profile data of a specific user.
	r.HandleFunc("/users/{user_id}", s.handleGetUser).Methods("GET")

	// Search for users.
	r.HandleFunc("/search/profiles/{term}", s.handleSearchProfiles).Methods("GET")

	// List the users the authed user follows.
	r.HandleFunc("/following", s.requireAuth(s.handleGetFollowing)).Methods("GET")
}

// handleGetUsers handles the route "GET /users".
func (s *Server) handleGetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.us.All(r.Context())
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, users)
}

// handleGetUser handles the route "GET /users/{user_id}".
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	// Fetch the user from the database.
	user, err := s.us.ByID(r.Context(), mux.Vars(r)["user_id"])
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}

	// Return the user.
	s.writeJSON(w, r, http.StatusOK, user)
}

// handleSearchProfiles handles the route "GET /search/profiles/{term}".
// It returns the users whose handle contains the term, an empty list if there are none.
func (s *Server) handleSearchProfiles(w http.ResponseWriter, r *http.Request) {
	users, err := s.us.Search(r.Context(), mux.Vars(r)["term"])
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, users)
}

// handleGetFollowing handles the route "GET /following".
func (s *Server) handleGetFollowing(w http.ResponseWriter, r *http.Request) {
	users, err := s.us.Following(r.Context(), auth.GetIdentity(r.Context()))
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, users)
}
