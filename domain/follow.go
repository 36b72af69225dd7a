package domain

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// A follow is not stored on its own. It exists when the followed user's ID is in the
// follower's Followings and the follower's ID is in the followed user's Followers.
// IDs can reach us as strings with different casing or braces, as uuid.UUID values
// or as anything printable, so every comparison goes through CanonicalID.

// CanonicalID returns the normalized string form of an id. UUIDs are parsed and printed
// in their lower case hyphenated form, anything else is trimmed.
func CanonicalID(id interface{}) string {
	var s string
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		s = v
	case uuid.UUID:
		return v.String()
	case []byte:
		s = string(v)
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	if u, err := uuid.Parse(s); err == nil {
		return u.String()
	}
	return s
}

// SameID reports whether a and b refer to the same entity.
func SameID(a, b interface{}) bool {
	ca := CanonicalID(a)
	return ca != "" && ca == CanonicalID(b)
}

// ContainsID reports whether ids holds id.
func ContainsID(ids []string, id interface{}) bool {
	for _, candidate := range ids {
		if SameID(candidate, id) {
			return true
		}
	}
	return false
}

// PrependID returns ids with id in front, unless ids already holds it.
func PrependID(ids []string, id interface{}) []string {
	if ContainsID(ids, id) {
		return ids
	}
	return append([]string{CanonicalID(id)}, ids...)
}

// RemoveID returns ids without any occurrence of id.
func RemoveID(ids []string, id interface{}) []string {
	out := make([]string, 0, len(ids))
	for _, candidate := range ids {
		if !SameID(candidate, id) {
			out = append(out, candidate)
		}
	}
	return out
}

// Follows reports whether follower follows followed. Both sides must agree.
func Follows(follower, followed *User) bool {
	return ContainsID(follower.Followings, followed.ID) && ContainsID(followed.Followers, follower.ID)
}

// FollowService is a set of methods to manipulate and work with the follow graph.
type FollowService interface {
	Follow(ctx context.Context, actorID, targetID string) error
	Unfollow(ctx context.Context, actorID, targetID string) error
	Repair(ctx context.Context, actorID, targetID string) (bool, error)
	ReconcileAll(ctx context.Context) (int, error)
}
