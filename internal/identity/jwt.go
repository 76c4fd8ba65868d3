package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt"
)

// JWTVerifier checks HS256-signed access tokens locally; the subject claim is the user id.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier builds a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTVerifier{secret: []byte(secret)}, nil
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (*User, error) {
	claims := &jwt.StandardClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &User{ID: claims.Subject}, nil
}
