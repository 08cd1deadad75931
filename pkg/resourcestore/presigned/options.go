package presigned

import (
	"strings"
	"time"
)

// Option is a functional option for configuring a Signer
type Option func(*Signer)

// WithSecretKey sets the secret key used for HMAC signing
func WithSecretKey(key string) Option {
	return func(s *Signer) {
		s.secretKey = []byte(key)
	}
}

// WithDefaultExpiration sets the lifetime used when SignKey is given a zero TTL
func WithDefaultExpiration(d time.Duration) Option {
	return func(s *Signer) {
		s.defaultExpiration = d
	}
}

// WithPathPrefix sets the route under which signed keys are served.
// Default is "/download/".
func WithPathPrefix(prefix string) Option {
	return func(s *Signer) {
		s.pathPrefix = "/" + strings.Trim(prefix, "/") + "/"
	}
}

// WithBaseURL sets the scheme and host prepended to signed links
func WithBaseURL(base string) Option {
	return func(s *Signer) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}
