package domain

import "context"

const (
	// TopicNewPost carries every new post to every subscriber.
	TopicNewPost = "NEW_POST"
	// TopicNewPostFromFollowings carries new posts to the author's followers only.
	TopicNewPostFromFollowings = "NEW_POST_TO_FOLLOWERS"
)

// Publisher pushes payloads to the subscribers of a topic. A nil audience reaches every
// subscriber, otherwise only those whose identity is a member.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{}, audience []string) error
}
