package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sustainabot/sustainabot/internal/adapter/github"
)

func testPrivateKeyPEM(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	return key, pemBytes
}

// memoryCache is a map-backed cache.Cache for tests. TTL is recorded but not
// enforced; expiry behaviour is exercised through the manager's own margin
// check.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.entries[key]
	return data, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func TestGenerateJWT(t *testing.T) {
	key, pemBytes := testPrivateKeyPEM(t)

	m := NewCredentialManager("12345", pemBytes, nil, newMemoryCache())
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return issued }

	token, err := m.GenerateJWT()
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("jwt has %d segments, want 3", len(parts))
	}
	for _, p := range parts {
		if strings.ContainsAny(p, "=+/") {
			t.Errorf("segment %q is not base64url without padding", p)
		}
	}

	headerJSON, err := base64URLDecode(parts[0])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}
	var header struct {
		Alg string `json:"alg"`
		Typ string `json:"typ"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if header.Alg != "RS256" || header.Typ != "JWT" {
		t.Errorf("header = %+v", header)
	}

	claimsJSON, err := base64URLDecode(parts[1])
	if err != nil {
		t.Fatalf("decode claims: %v", err)
	}
	var claims jwtClaims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		t.Fatalf("parse claims: %v", err)
	}
	if claims.Iss != "12345" {
		t.Errorf("iss = %q", claims.Iss)
	}
	if claims.Iat != issued.Add(-60*time.Second).Unix() {
		t.Errorf("iat = %d, want issuance minus 60s", claims.Iat)
	}
	if claims.Exp-claims.Iat != 660 {
		t.Errorf("exp-iat = %d, want 660", claims.Exp-claims.Iat)
	}

	// The signature must verify under the public key.
	digest := sha256.Sum256([]byte(parts[0] + "." + parts[1]))
	sig, err := base64URLDecode(parts[2])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if err := rsa.VerifyPKCS1v15(&key.PublicKey, crypto.SHA256, digest[:], sig); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestGenerateJWTUnconfigured(t *testing.T) {
	m := NewCredentialManager("", nil, nil, newMemoryCache())
	if m.Configured() {
		t.Fatal("empty manager reports configured")
	}
	if _, err := m.GenerateJWT(); err == nil {
		t.Fatal("expected error without credentials")
	}
}

func TestInstallationTokenCaching(t *testing.T) {
	_, pemBytes := testPrivateKeyPEM(t)

	var exchanges int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app/installations/777/access_tokens" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.Count(strings.TrimPrefix(auth, "Bearer "), ".") != 2 {
			t.Errorf("expected a JWT bearer, got %q", auth)
		}
		exchanges++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token":"ghs_test%d","expires_at":%q}`,
			exchanges, time.Now().Add(time.Hour).Format(time.RFC3339))
	}))
	defer srv.Close()

	m := NewCredentialManager("12345", pemBytes, github.NewClient(srv.URL), newMemoryCache())

	tok1, err := m.InstallationToken(context.Background(), "777")
	if err != nil {
		t.Fatalf("first InstallationToken: %v", err)
	}
	tok2, err := m.InstallationToken(context.Background(), "777")
	if err != nil {
		t.Fatalf("second InstallationToken: %v", err)
	}

	if exchanges != 1 {
		t.Fatalf("exchanges = %d, want 1 (second call must hit cache)", exchanges)
	}
	if tok1 != tok2 || tok1 != "ghs_test1" {
		t.Fatalf("tokens = %q, %q", tok1, tok2)
	}
}

func TestInstallationTokenRefreshNearExpiry(t *testing.T) {
	_, pemBytes := testPrivateKeyPEM(t)

	var exchanges int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		exchanges++
		// 30s of validity is inside the 60s refresh margin.
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token":"ghs_short%d","expires_at":%q}`,
			exchanges, time.Now().Add(30*time.Second).Format(time.RFC3339))
	}))
	defer srv.Close()

	m := NewCredentialManager("12345", pemBytes, github.NewClient(srv.URL), newMemoryCache())

	if _, err := m.InstallationToken(context.Background(), "777"); err != nil {
		t.Fatalf("first InstallationToken: %v", err)
	}
	tok, err := m.InstallationToken(context.Background(), "777")
	if err != nil {
		t.Fatalf("second InstallationToken: %v", err)
	}

	if exchanges != 2 {
		t.Fatalf("exchanges = %d, want 2 (near-expiry token must refresh)", exchanges)
	}
	if tok != "ghs_short2" {
		t.Fatalf("token = %q, want the refreshed one", tok)
	}
}

func TestAuthTokenExtractsInstallation(t *testing.T) {
	_, pemBytes := testPrivateKeyPEM(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app/installations/99/access_tokens" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"token":"ghs_ok","expires_at":%q}`,
			time.Now().Add(time.Hour).Format(time.RFC3339))
	}))
	defer srv.Close()

	m := NewCredentialManager("12345", pemBytes, github.NewClient(srv.URL), newMemoryCache())

	tok, err := m.AuthToken(context.Background(), json.RawMessage(`{"installation":{"id":99}}`))
	if err != nil {
		t.Fatalf("AuthToken: %v", err)
	}
	if tok != "ghs_ok" {
		t.Fatalf("token = %q", tok)
	}

	if _, err := m.AuthToken(context.Background(), json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error for payload without installation id")
	}
}

func TestParseRSAPrivateKeyPKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	parsed, err := parseRSAPrivateKey(pemBytes)
	if err != nil {
		t.Fatalf("parseRSAPrivateKey: %v", err)
	}
	if parsed.N.Cmp(key.N) != 0 {
		t.Fatal("parsed key differs from original")
	}

	if _, err := parseRSAPrivateKey([]byte("not pem")); err == nil {
		t.Fatal("expected error for non-PEM input")
	}
}
