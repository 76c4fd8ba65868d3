// Package identity turns an Authorization header into a user id.
//
// A missing, rejected or unverifiable token yields the anonymous user (empty
// id). Callers then see a missing-credential error rather than an
// authentication error. In strict mode auth-service faults surface as
// ErrBackendUnavailable instead.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ErrInvalidToken indicates the auth service rejected the token.
var ErrInvalidToken = errors.New("invalid token")

// ErrBackendUnavailable indicates the auth service could not be reached or misbehaved.
var ErrBackendUnavailable = errors.New("auth service unavailable")

// User is a verified caller.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Verifier exchanges a bearer token for a user.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// Resolver applies the soft-fail policy on top of a Verifier.
type Resolver struct {
	verifier Verifier
	strict   bool
}

// NewResolver builds a resolver. A nil verifier treats every caller as anonymous.
func NewResolver(v Verifier, strict bool) *Resolver {
	return &Resolver{verifier: v, strict: strict}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	header = strings.TrimSpace(header)
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Resolve returns the caller's user id, or "" for anonymous callers.
func (r *Resolver) Resolve(ctx context.Context, authorization string) (string, error) {
	token := BearerToken(authorization)
	if token == "" || r.verifier == nil {
		return "", nil
	}

	user, err := r.verifier.Verify(ctx, token)
	switch {
	case err == nil && user != nil && user.ID != "":
		return user.ID, nil
	case err == nil:
		slog.WarnContext(ctx, "auth service returned no user id, continuing anonymously")
		return "", nil
	case r.strict && errors.Is(err, ErrBackendUnavailable):
		return "", err
	default:
		slog.WarnContext(ctx, "token verification failed, continuing anonymously", "err", err)
		return "", nil
	}
}
