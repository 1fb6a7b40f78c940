// Package auth issues and verifies bearer tokens and hashes passwords.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/imrishuroy/go-campus-orderflow/internal/accounts"
	"github.com/imrishuroy/go-campus-orderflow/internal/cache"
)

// ErrInvalidToken is returned for malformed, expired or revoked tokens.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims issued at login. Subject is the account id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, nowFunc: time.Now}
}

// Issue returns a signed token for the account.
func (t *Tokens) Issue(accountID string, role accounts.Role) (string, error) {
	now := t.nowFunc()
	claims := &Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (t *Tokens) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.nowFunc))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revocations remembers logged-out token ids until they expire.
type Revocations struct {
	cache   cache.Cache
	nowFunc func() time.Time
}

// NewRevocations stores revoked ids in c. With a cache.Noop logout is a no-op.
func NewRevocations(c cache.Cache) *Revocations {
	if c == nil {
		c = cache.Noop{}
	}
	return &Revocations{cache: c, nowFunc: time.Now}
}

func revokedKey(id string) string { return "auth:revoked:" + id }

// Revoke blocks the token described by claims for the rest of its lifetime.
func (r *Revocations) Revoke(ctx context.Context, claims *Claims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(r.nowFunc())
	if ttl <= 0 {
		return nil
	}
	return r.cache.SetJSON(ctx, revokedKey(claims.ID), true, ttl)
}

// Revoked reports whether the token id was revoked.
func (r *Revocations) Revoked(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var v bool
	return r.cache.GetJSON(ctx, revokedKey(id), &v)
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (h BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
