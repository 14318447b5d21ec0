// Package auth supplies the bearer credentials a client presents in its AUTH
// request after the HELLO handshake.
package auth

import (
	"context"
	"errors"
	"strings"
)

// MethodBearer is the only authentication method rstmdb servers accept.
const MethodBearer = "bearer"

// ErrEmptyToken is returned when a provider has no token to offer.
var ErrEmptyToken = errors.New("auth: empty token")

// Provider defines the interface for authentication providers.
type Provider interface {
	// Token returns the bearer token to present to the server.
	Token(ctx context.Context) (string, error)

	// Close releases any resources held by the provider.
	Close() error
}

// FromToken returns a static provider for a non-blank token, or nil when the
// token is blank so callers can skip authentication entirely.
func FromToken(token string) Provider {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return NewStaticTokenProvider(token)
}
