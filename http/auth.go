package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"wtfGram/auth"
	"wtfGram/domain"
	"wtfGram/errs"
)

func (s *Server) registerAuthRoutes(r *mux.Router) {
	r.HandleFunc("/register", s.limitAuth(s.handleRegister)).Methods("POST")
	r.HandleFunc("/login", s.limitAuth(s.handleLogin)).Methods("POST")
}

// loginInput is the json body of a login request. UserName may hold a handle or an email.
type loginInput struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// handleRegister handles the route "POST /register".
// It creates a new account and returns it together with a session token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	// Parse the request's json body.
	var input domain.RegisterInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		errs.ReturnError(s.log, w, r, errs.Errorf(errs.EINVALID, "Invalid json body."))
		return
	}

	// Create the account.
	session, err := s.us.Register(r.Context(), input)
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}

	// Return the new user and their token.
	s.writeJSON(w, r, http.StatusCreated, session)
}

// handleLogin handles the route "POST /login".
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var input loginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		errs.ReturnError(s.log, w, r, errs.Errorf(errs.EINVALID, "Invalid json body."))
		return
	}

	session, err := s.us.Login(r.Context(), input.UserName, input.Password)
	if err != nil {
		errs.ReturnError(s.log, w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, session)
}

// checkUser verifies the token of the request, if there is one, and puts the
// resulting identity into the request context. Requests without a valid token
// pass through anonymously, requireAuth decides whether that is enough.
// Browsers can't set headers on websocket requests, so the token may also come
// as the "token" query parameter.
func (s *Server) checkUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if strings.TrimSpace(token) == "" {
			next.ServeHTTP(w, r)
			return
		}
		identity, err := s.tokens.Verify(r.Context(), token)
		if err != nil {
			s.log.WithError(err).WithField("path", r.URL.Path).Debug("ignoring invalid token")
			next.ServeHTTP(w, r)
			return
		}
		r = r.WithContext(auth.SetIdentity(r.Context(), identity))
		next.ServeHTTP(w, r)
	})
}

// requireAuth rejects requests that carry no verified identity.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if auth.GetIdentity(r.Context()) == nil {
			errs.ReturnError(s.log, w, r, errs.Errorf(errs.EUNAUTHENTICATED, "You need to be logged in."))
			return
		}
		next(w, r)
	}
}

// writeJSON writes v as the json body of a response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs.LogError(s.log, r, err)
	}
}

// message is the body of responses that only confirm an action.
type message struct {
	Message string `json:"message"`
}
