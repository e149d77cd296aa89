// Package middleware provides webhook verification middleware.
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// VerifyMetrics receives verification outcomes. Skipped verifications are
// counted separately from failures so an unset production secret stays
// visible in metrics.
type VerifyMetrics interface {
	VerifySkipped(platform string)
	Unauthorized(platform string)
}

// VerifySignature checks a GitHub-style HMAC-SHA256 signature over the raw
// request body. The header value carries a "sha256=" prefix which is
// stripped before the hex decode. Comparison is constant-time.
func VerifySignature(body []byte, signature, secret string) bool {
	sig := strings.TrimPrefix(signature, "sha256=")
	sigBytes, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	return hmac.Equal(sigBytes, expected)
}

// VerifyToken checks a GitLab-style static shared secret in constant time.
func VerifyToken(token, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}

// GitHubSignature returns middleware that validates the X-Hub-Signature-256
// header. An empty secret disables verification entirely (local development
// mode); this is logged and counted, never silent.
func GitHubSignature(secret string, metrics VerifyMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				slog.Warn("webhook signature verification skipped: no secret configured", "platform", "github")
				if metrics != nil {
					metrics.VerifySkipped("github")
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, `{"error":"failed to read body"}`, http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sig := r.Header.Get("X-Hub-Signature-256")
			if sig == "" || !VerifySignature(body, sig, secret) {
				slog.Warn("webhook signature verification failed", "platform", "github")
				if metrics != nil {
					metrics.Unauthorized("github")
				}
				http.Error(w, `{"error":"invalid webhook signature"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GitLabToken returns middleware that validates the X-Gitlab-Token header.
// An empty secret disables verification, same as GitHubSignature.
func GitLabToken(secret string, metrics VerifyMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				slog.Warn("webhook token verification skipped: no secret configured", "platform", "gitlab")
				if metrics != nil {
					metrics.VerifySkipped("gitlab")
				}
				next.ServeHTTP(w, r)
				return
			}

			if !VerifyToken(r.Header.Get("X-Gitlab-Token"), secret) {
				slog.Warn("webhook token verification failed", "platform", "gitlab")
				if metrics != nil {
					metrics.Unauthorized("gitlab")
				}
				http.Error(w, `{"error":"invalid webhook token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
