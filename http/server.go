package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"wtfGram/crud"
	"wtfGram/domain"
	"wtfGram/pubsub"
)

// Server provides the http functionality of this app, namely routing, request
// handling, and middleware. It authenticates the caller before handing things
// over to one of the crud services.
type Server struct {
	router  *mux.Router
	handler http.Handler
	log     logrus.FieldLogger

	us     domain.UserService
	fs     domain.FollowService
	feed   domain.FeedService
	ps     domain.PostService
	tokens domain.IdentityVerifier
	hub    *pubsub.Hub

	upgrader    websocket.Upgrader
	authLimiter *rateLimiter
}

// NewServer returns a new instance of the server, registers all necessary
// routes and gives their handlers access to the services passed in.
// Metrics registered with gatherer are served on /metrics.
func NewServer(
	isProd bool,
	clientURL string,
	services *crud.Services,
	tokens domain.IdentityVerifier,
	hub *pubsub.Hub,
	gatherer prometheus.Gatherer,
	log logrus.FieldLogger,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		log:         log,
		us:          services.User,
		fs:          services.Follow,
		feed:        services.Feed,
		ps:          services.Post,
		tokens:      tokens,
		hub:         hub,
		authLimiter: newRateLimiter(defaultAuthRate, defaultAuthBurst),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(isProd, clientURL),
	}

	// Register routes of the auth system.
	s.registerAuthRoutes(s.router)

	// Register routes of the crud system.
	s.registerUserRoutes(s.router)
	s.registerFollowRoutes(s.router)
	s.registerPostRoutes(s.router)
	s.registerFeedRoutes(s.router)

	// Register the realtime routes.
	s.registerSubscriptionRoutes(s.router)

	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Set up middleware that needs to run on every request.
	s.router.Use(s.checkUser)

	// In dev the client runs on its own port, in production only the client url is allowed.
	origins := []string{"*"}
	if isProd {
		origins = []string{clientURL}
	}
	s.handler = cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: isProd,
		MaxAge:           300,
	})(s.router)
	return s
}

// checkOrigin restricts websocket upgrades to the client url in production.
func checkOrigin(isProd bool, clientURL string) func(r *http.Request) bool {
	if !isProd {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == clientURL
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Run listens and serves on the specified port until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("listening")
		errc <- srv.ListenAndServe()
	}()

	// Forget limiters of clients that stayed away for a while.
	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()

	for {
		select {
		case err := <-errc:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cleanup.C:
			s.authLimiter.cleanup(10 * time.Minute)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}
