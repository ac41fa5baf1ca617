// package auth validates the bearer tokens the platform's identity
// service issues. Users and workers carry distinct roles; the worker
// callback surface rejects user tokens outright.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role separates end users from trusted pipeline workers.
type Role string

const (
	RoleUser   Role = "user"
	RoleWorker Role = "worker"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrWrongRole    = errors.New("auth: wrong role for this surface")
)

// Claims is the token payload.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens against the shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the subject id and role.
func (v *Verifier) Verify(tokenString string) (uuid.UUID, Role, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, "", ErrInvalidToken
	}
	if claims.Role != RoleUser && claims.Role != RoleWorker {
		return uuid.Nil, "", ErrInvalidToken
	}
	return subject, claims.Role, nil
}

// Issue mints a token. Workers get their identity this way at deploy time;
// user tokens normally come from the external identity service and this
// path exists for tests and local development.
func (v *Verifier) Issue(subject uuid.UUID, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
