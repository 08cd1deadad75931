package presigned

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
)

type contextKey string

// KeyContextKey is the context key holding the verified object key
const KeyContextKey contextKey = "presigned:object_key"

// ValidateMiddleware rejects requests whose link is unsigned, tampered with
// or expired, and passes the verified object key to next through the context.
func ValidateMiddleware(signer *Signer, logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := signer.ValidateRequest(r); err != nil {
			if IsAuthError(err) {
				logger.Warn("Rejected download link", "path", r.URL.Path, "error", err)
			} else {
				logger.Error("Failed to validate download link", "path", r.URL.Path, "error", err)
			}
			handleValidationError(w, err)
			return
		}

		key, err := signer.ExtractKey(r.URL.Path)
		if err != nil {
			logger.Warn("Failed to extract object key from download link", "path", r.URL.Path, "error", err)
			http.Error(w, "Invalid download URL", http.StatusBadRequest)
			return
		}

		ctx := context.WithValue(r.Context(), KeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// KeyFromContext returns the verified object key, or "" if there is none
func KeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(KeyContextKey).(string); ok {
		return key
	}
	return ""
}

func handleValidationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrMissingSignature):
		http.Error(w, "Missing signature parameter", http.StatusUnauthorized)
	case errors.Is(err, ErrMissingExpiration):
		http.Error(w, "Missing expires parameter", http.StatusUnauthorized)
	case errors.Is(err, ErrInvalidExpiration):
		http.Error(w, "Invalid expires parameter", http.StatusBadRequest)
	case errors.Is(err, ErrExpired):
		http.Error(w, "Download link has expired", http.StatusForbidden)
	case errors.Is(err, ErrInvalidSignature):
		http.Error(w, "Invalid signature", http.StatusForbidden)
	case IsAuthError(err):
		http.Error(w, "Authentication failed", http.StatusForbidden)
	default:
		http.Error(w, "Download links are not available", http.StatusInternalServerError)
	}
}
