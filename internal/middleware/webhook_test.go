package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// recordingMetrics counts verification outcomes per platform.
type recordingMetrics struct {
	skipped      map[string]int
	unauthorized map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		skipped:      map[string]int{},
		unauthorized: map[string]int{},
	}
}

func (m *recordingMetrics) VerifySkipped(platform string) { m.skipped[platform]++ }
func (m *recordingMetrics) Unauthorized(platform string)  { m.unauthorized[platform]++ }

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"action":"opened"}`)
	secret := "s3cret"

	if !VerifySignature(body, sign(body, secret), secret) {
		t.Fatal("valid signature rejected")
	}

	// Flip one byte of the body; the signature no longer matches.
	tampered := append([]byte{}, body...)
	tampered[0] ^= 0xFF
	if VerifySignature(tampered, sign(body, secret), secret) {
		t.Fatal("tampered body accepted")
	}

	if VerifySignature(body, sign(body, "wrong"), secret) {
		t.Fatal("signature under wrong secret accepted")
	}

	if VerifySignature(body, "sha256=nothex", secret) {
		t.Fatal("undecodable signature accepted")
	}
}

func TestVerifyToken(t *testing.T) {
	if !VerifyToken("tok", "tok") {
		t.Fatal("matching token rejected")
	}
	if VerifyToken("tok", "other") {
		t.Fatal("mismatched token accepted")
	}
	if VerifyToken("", "tok") {
		t.Fatal("empty token accepted")
	}
}

func TestGitHubSignatureMiddleware(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"action":"opened"}`)

	var sawBody string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := make([]byte, len(body))
		n, _ := r.Body.Read(data)
		sawBody = string(data[:n])
		w.WriteHeader(http.StatusOK)
	})

	metrics := newRecordingMetrics()
	handler := GitHubSignature(secret, metrics)(next)

	t.Run("valid signature passes with body intact", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(string(body)))
		req.Header.Set("X-Hub-Signature-256", sign(body, secret))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if sawBody != string(body) {
			t.Fatalf("handler saw body %q, want %q", sawBody, body)
		}
	})

	t.Run("invalid signature rejected with 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(string(body)))
		req.Header.Set("X-Hub-Signature-256", sign(body, "wrong-secret"))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if metrics.unauthorized["github"] != 1 {
			t.Fatalf("unauthorized count = %d, want 1", metrics.unauthorized["github"])
		}
	})

	t.Run("missing signature rejected with 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader(string(body)))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})
}

func TestGitHubSignatureSkippedWithoutSecret(t *testing.T) {
	metrics := newRecordingMetrics()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := GitHubSignature("", metrics)(next)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", strings.NewReader("{}"))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if metrics.skipped["github"] != 1 {
		t.Fatalf("skipped count = %d, want 1", metrics.skipped["github"])
	}
}

func TestGitLabTokenMiddleware(t *testing.T) {
	secret := "gitlab-token"
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	metrics := newRecordingMetrics()
	handler := GitLabToken(secret, metrics)(next)

	t.Run("valid token passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", strings.NewReader("{}"))
		req.Header.Set("X-Gitlab-Token", secret)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("wrong token rejected with 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", strings.NewReader("{}"))
		req.Header.Set("X-Gitlab-Token", "wrong")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
		if metrics.unauthorized["gitlab"] != 1 {
			t.Fatalf("unauthorized count = %d, want 1", metrics.unauthorized["gitlab"])
		}
	})
}
