// Package auth implements the shared-secret check guarding the API.
package auth

import (
	"crypto/subtle"
)

// Authenticator decides whether a request secret matches the configured key.
type Authenticator interface {
	Authenticate(secret string) bool
}

// SharedSecret compares request secrets against a key fixed at construction.
// An empty key rejects every request, including an empty secret.
type SharedSecret struct {
	key []byte
}

// NewSharedSecret creates an authenticator for key.
func NewSharedSecret(key string) *SharedSecret {
	return &SharedSecret{key: []byte(key)}
}

// Configured reports whether a non-empty key is set.
func (s *SharedSecret) Configured() bool {
	return len(s.key) > 0
}

// Authenticate implements Authenticator.
func (s *SharedSecret) Authenticate(secret string) bool {
	if !s.Configured() {
		return false
	}
	return subtle.ConstantTimeCompare(s.key, []byte(secret)) == 1
}
