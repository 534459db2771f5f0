// Package auth reads the identity carried by the API's access tokens.
//
// Tokens are issued and verified by the award API; this server only needs
// the subject id to address the nominee endpoints, so signatures are not
// checked here.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken is returned for an empty token.
	ErrNoToken = errors.New("no access token")
	// ErrNoSubject is returned when a token names no subject.
	ErrNoSubject = errors.New("access token has no subject")
	// ErrExpired is returned when a token's exp claim has passed.
	ErrExpired = errors.New("access token expired")
)

// Identity is what the server knows about a signed-in user.
type Identity struct {
	SubjectID string
	Email     string
	ExpiresAt time.Time // zero when the token carries no exp
}

// accessClaims is the internal claims type used for JWT parsing. The API
// has used "sub", "id" and "userId" for the subject.
type accessClaims struct {
	jwt.RegisteredClaims
	LegacyID any    `json:"id,omitempty"`
	UserID   any    `json:"userId,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Parse extracts the identity from token without verifying its signature.
func Parse(token string, now time.Time) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrNoToken
	}

	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("parse access token: %w", err)
	}

	id := Identity{Email: claims.Email}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
		if !id.ExpiresAt.After(now) {
			return Identity{}, ErrExpired
		}
	}

	for _, v := range []any{claims.Subject, claims.LegacyID, claims.UserID} {
		if s := claimString(v); s != "" {
			id.SubjectID = s
			return id, nil
		}
	}
	return Identity{}, ErrNoSubject
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return ""
	}
}
