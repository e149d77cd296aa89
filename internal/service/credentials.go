package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sustainabot/sustainabot/internal/adapter/github"
	"github.com/sustainabot/sustainabot/internal/domain"
	"github.com/sustainabot/sustainabot/internal/port/cache"
)

// refreshMargin is the minimum remaining validity for a cached installation
// token. A token closer to expiry than this is refreshed rather than
// returned, so callers never hold a credential that dies mid-request.
const refreshMargin = 60 * time.Second

// jwtIATSkew backdates the issued-at claim to tolerate clock drift between
// this process and GitHub's validator.
const jwtIATSkew = 60 * time.Second

// jwtTTL is how far in the future the expiry claim sits relative to the
// (un-skewed) issuance time.
const jwtTTL = 600 * time.Second

// CredentialManager issues short-lived GitHub App JWTs and exchanges them
// for installation tokens. The token cache is the only mutable state shared
// outside the runtime loop; the cache port implementation must be
// concurrency-safe (ristretto is).
type CredentialManager struct {
	appID         string
	privateKeyPEM []byte
	gh            *github.Client
	tokens        cache.Cache
	now           func() time.Time // for testing
}

// NewCredentialManager creates a credential manager. appID and
// privateKeyPEM may be empty when the deployment has no GitHub App; in that
// case AuthToken returns ErrCredential and the pipeline skips comment
// posting.
func NewCredentialManager(appID string, privateKeyPEM []byte, gh *github.Client, tokens cache.Cache) *CredentialManager {
	return &CredentialManager{
		appID:         appID,
		privateKeyPEM: privateKeyPEM,
		gh:            gh,
		tokens:        tokens,
		now:           time.Now,
	}
}

// Configured reports whether App credentials are present.
func (m *CredentialManager) Configured() bool {
	return m.appID != "" && len(m.privateKeyPEM) > 0
}

// jwtHeader is the fixed base64url-encoded header for RS256.
var jwtHeader = base64URLEncode([]byte(`{"alg":"RS256","typ":"JWT"}`))

type jwtClaims struct {
	Iss string `json:"iss"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
}

// GenerateJWT builds and signs a GitHub App JWT: header.payload.signature,
// each segment base64url-encoded without padding, signed with
// RSASSA-PKCS1-v1_5/SHA-256 over the ASCII bytes of "header.payload".
// The claims backdate iat by 60s and set exp 600s out, per GitHub's
// clock-drift guidance. JWTs are cheap to regenerate and never cached.
func (m *CredentialManager) GenerateJWT() (string, error) {
	if !m.Configured() {
		return "", fmt.Errorf("%w: github app id or private key not configured", domain.ErrCredential)
	}

	key, err := parseRSAPrivateKey(m.privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("%w: parse private key: %v", domain.ErrCredential, err)
	}

	now := m.now()
	claims := jwtClaims{
		Iss: m.appID,
		Iat: now.Add(-jwtIATSkew).Unix(),
		Exp: now.Add(jwtTTL).Unix(),
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("%w: marshal claims: %v", domain.ErrCredential, err)
	}

	signingInput := jwtHeader + "." + base64URLEncode(payload)
	digest := sha256.Sum256([]byte(signingInput))

	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: sign jwt: %v", domain.ErrCredential, err)
	}

	return signingInput + "." + base64URLEncode(sig), nil
}

// cachedToken is the JSON shape stored in the token cache.
type cachedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InstallationToken returns a valid installation token for the given
// installation, from cache when one with at least 60s of validity remains,
// otherwise via a fresh JWT exchange. The exchange result is cached keyed by
// installation id with a TTL matching the token's own lifetime; tokens are
// never persisted beyond the process.
func (m *CredentialManager) InstallationToken(ctx context.Context, installationID string) (string, error) {
	cacheKey := "installation:" + installationID

	if data, ok, err := m.tokens.Get(ctx, cacheKey); err == nil && ok {
		var entry cachedToken
		if err := json.Unmarshal(data, &entry); err == nil {
			if entry.ExpiresAt.Sub(m.now()) >= refreshMargin {
				return entry.Token, nil
			}
		}
	}

	appJWT, err := m.GenerateJWT()
	if err != nil {
		return "", err
	}

	tok, err := m.gh.CreateInstallationToken(ctx, appJWT, installationID)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", domain.ErrCredential, err)
	}

	entry, err := json.Marshal(cachedToken{Token: tok.Token, ExpiresAt: tok.ExpiresAt})
	if err == nil {
		if ttl := tok.ExpiresAt.Sub(m.now()); ttl > 0 {
			_ = m.tokens.Set(ctx, cacheKey, entry, ttl)
		}
	}

	return tok.Token, nil
}

// AuthToken is the single entry point for the pipeline: it extracts the
// installation id from the webhook payload and composes JWT generation with
// the token exchange. Missing configuration or a missing installation id is
// a typed error, never a silent empty token.
func (m *CredentialManager) AuthToken(ctx context.Context, payload json.RawMessage) (string, error) {
	if !m.Configured() {
		return "", fmt.Errorf("%w: github app id or private key not configured", domain.ErrCredential)
	}

	var raw struct {
		Installation struct {
			ID int64 `json:"id"`
		} `json:"installation"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return "", fmt.Errorf("%w: parse payload: %v", domain.ErrCredential, err)
	}
	if raw.Installation.ID == 0 {
		return "", fmt.Errorf("%w: payload has no installation id", domain.ErrCredential)
	}

	return m.InstallationToken(ctx, strconv.FormatInt(raw.Installation.ID, 10))
}

// parseRSAPrivateKey decodes a PEM-encoded RSA private key, accepting both
// PKCS#8 and PKCS#1 encodings.
func parseRSAPrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PKCS#8 key is %T, expected RSA", key)
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse PKCS#1: %w", err)
	}
	return key, nil
}

// --- base64url helpers (no padding) ---

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(s string) ([]byte, error) {
	// Add padding back
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}
