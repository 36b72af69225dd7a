package auth

import (
	"context"

	"wtfGram/domain"
)

const (
	identityKey privateKey = "identity"
)

type privateKey string

// SetIdentity returns a copy of ctx carrying the verified caller.
func SetIdentity(ctx context.Context, identity *domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// GetIdentity returns the verified caller stored in ctx, or nil.
func GetIdentity(ctx context.Context) *domain.Identity {
	if temp := ctx.Value(identityKey); temp != nil {
		if identity, ok := temp.(*domain.Identity); ok {
			return identity
		}
	}
	return nil
}
