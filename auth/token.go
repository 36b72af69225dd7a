package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"wtfGram/domain"
	"wtfGram/errs"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = time.Hour

// Claims is the payload of a session token.
type Claims struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	UserName string `json:"userName"`
	jwt.RegisteredClaims
}

// JWT issues and verifies HS256 signed session tokens. It implements domain.IdentityVerifier.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Ensure the JWT struct properly implements the domain.IdentityVerifier interface.
var _ domain.IdentityVerifier = &JWT{}

// NewJWT returns a JWT signing with secret. A ttl of zero means DefaultTokenTTL.
func NewJWT(secret string, ttl time.Duration) *JWT {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWT{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a signed token for user.
func (j *JWT) Issue(user *domain.User) (string, error) {
	now := j.now()
	claims := Claims{
		ID:       domain.CanonicalID(user.ID),
		Email:    user.Email,
		UserName: user.Handle,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   domain.CanonicalID(user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// Verify parses token and returns the identity it was issued for.
// Any malformed, expired or foreign token yields an errs.EUNAUTHENTICATED error.
func (j *JWT) Verify(ctx context.Context, token string) (*domain.Identity, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, errs.Errorf(errs.EUNAUTHENTICATED, "Authentication token is required.")
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.Wrap(errs.EUNAUTHENTICATED, err, "Authentication token has expired.")
		}
		return nil, errs.Wrap(errs.EUNAUTHENTICATED, err, "Invalid authentication token.")
	}
	if claims.ID == "" {
		return nil, errs.Errorf(errs.EUNAUTHENTICATED, "Invalid authentication token.")
	}
	return &domain.Identity{
		ID:     domain.CanonicalID(claims.ID),
		Handle: claims.UserName,
		Email:  claims.Email,
	}, nil
}
