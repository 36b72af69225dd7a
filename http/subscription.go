package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"wtfGram/auth"
	"wtfGram/domain"
	"wtfGram/errs"
	"wtfGram/pubsub"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Subscribers don't send anything but control frames.
	maxMessageSize = 512
)

func (s *Server) registerSubscriptionRoutes(r *mux.Router) {
	// Every new post, anonymous subscribers are fine.
	r.HandleFunc("/subscriptions/new-post", s.handleSubscribe(domain.TopicNewPost)).Methods("GET")

	// New posts of the users the authed user follows.
	r.HandleFunc("/subscriptions/new-post-from-followings",
		s.requireAuth(s.handleSubscribe(domain.TopicNewPostFromFollowings))).Methods("GET")
}

// handleSubscribe returns the handler that upgrades the request to a websocket and
// streams the payload of every message published on topic to it. The subscription
// lives exactly as long as the connection.
func (s *Server) handleSubscribe(topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var identity string
		if caller := auth.GetIdentity(r.Context()); caller != nil {
			identity = caller.ID
		}

		sub, err := s.hub.Subscribe(topic, identity)
		if err != nil {
			errs.ReturnError(s.log, w, r, errs.Wrap(errs.EINTERNAL, err, "Subscriptions are not available."))
			return
		}

		// Upgrade writes the error response itself.
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			sub.Close()
			return
		}

		log := s.log.WithFields(logrus.Fields{"topic": topic, "identity": sub.Identity()})
		log.Debug("websocket subscription opened")
		s.pump(conn, sub, log)
		log.Debug("websocket subscription closed")
	}
}

// pump writes the messages of sub to conn until either side goes away.
func (s *Server) pump(conn *websocket.Conn, sub *pubsub.Subscription, log logrus.FieldLogger) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer conn.Close()
	defer sub.Close()

	// The read side only exists to notice a disconnect and to process pongs.
	go func() {
		defer cancel()
		conn.SetReadLimit(maxMessageSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	// Control frames may be written concurrently with data frames.
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		msg, err := sub.Next(ctx)
		if errors.Is(err, pubsub.ErrClosed) {
			// The hub shut down, tell the client instead of just dropping the connection.
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
		if err != nil {
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg.Payload); err != nil {
			log.WithError(err).Debug("writing to websocket")
			return
		}
	}
}
