package domain

import "context"

// Identity is the verified caller of a request.
type Identity struct {
	ID     string `json:"id"`
	Handle string `json:"userName"`
	Email  string `json:"email"`
}

// IdentityVerifier issues and verifies session tokens.
type IdentityVerifier interface {
	Issue(user *User) (string, error)
	Verify(ctx context.Context, token string) (*Identity, error)
}
