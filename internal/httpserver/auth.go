package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Authenticator resolves the viewing account from an HS256 bearer token.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator. An empty secret makes every
// request anonymous.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Subject returns the sub claim of the request's bearer token, or "" for an
// anonymous request. A token that is present but invalid is an error.
func (a *Authenticator) Subject(r *http.Request) (string, error) {
	if a == nil || len(a.secret) == 0 {
		return "", nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || raw == "" {
		return "", errors.New("authorization header is not a bearer token")
	}

	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
