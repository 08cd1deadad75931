package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates HMAC-signed download links
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	pathPrefix        string
	baseURL           string
	now               func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		defaultExpiration: time.Hour,
		pathPrefix:        "/download/",
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsEnabled returns true if a secret key is set
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// PathPrefix returns the route under which signed keys are served
func (s *Signer) PathPrefix() string {
	return s.pathPrefix
}

// SignKey returns a GET link for key valid for ttl.
//
//	link, _ := signer.SignKey("resources/42/a.pdf", time.Hour)
//	// https://host/download/resources/42/a.pdf?signature=...&expires=1696789012
func (s *Signer) SignKey(key string, ttl time.Duration) (string, error) {
	return s.SignURL(http.MethodGet, s.pathPrefix+strings.TrimLeft(key, "/"), ttl)
}

// SignURL signs method and path and returns the escaped link with its
// signature and expires query parameters.
func (s *Signer) SignURL(method, path string, ttl time.Duration) (string, error) {
	if !s.IsEnabled() {
		return "", ErrNoSecretKey
	}
	if ttl <= 0 {
		ttl = s.defaultExpiration
	}

	expiresAt := s.now().Add(ttl).Unix()
	signature := s.generateSignature(s.createPayload(method, path, expiresAt))

	query := url.Values{}
	query.Set("signature", signature)
	query.Set("expires", strconv.FormatInt(expiresAt, 10))

	u := url.URL{Path: path, RawQuery: query.Encode()}
	return s.baseURL + u.String(), nil
}

// ValidateRequest checks the signature and expiry carried by r
func (s *Signer) ValidateRequest(r *http.Request) error {
	if !s.IsEnabled() {
		return ErrNoSecretKey
	}

	query := r.URL.Query()
	signature := query.Get("signature")
	expiresStr := query.Get("expires")

	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}

	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	return s.Validate(r.Method, r.URL.Path, signature, expiresAt)
}

// Validate checks signature and expiry for method and the unescaped path
func (s *Signer) Validate(method, path, signature string, expiresAt int64) error {
	if s.now().Unix() > expiresAt {
		return ErrExpired
	}

	expected := s.generateSignature(s.createPayload(method, path, expiresAt))
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// ExtractKey returns the object key of a path under the signer's prefix
func (s *Signer) ExtractKey(path string) (string, error) {
	key, ok := strings.CutPrefix(path, s.pathPrefix)
	if !ok || key == "" {
		return "", fmt.Errorf("path %q is not under %q", path, s.pathPrefix)
	}
	return key, nil
}

// createPayload builds the signed string: METHOD|PATH|EXPIRES
func (s *Signer) createPayload(method, path string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%d", method, path, expiresAt)
}

func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
