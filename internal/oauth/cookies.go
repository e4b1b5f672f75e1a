package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// StateCookieName carries the CSRF state across the provider redirect.
	StateCookieName = "oauth_state"
	// VerifierCookieName carries the PKCE code verifier.
	VerifierCookieName = "oauth_code_verifier"
	// CookieMaxAge bounds how long the authorization hop may take.
	CookieMaxAge = 600 * time.Second
)

type cookiePayload struct {
	Value     string `json:"v"`
	UserID    string `json:"u"`
	ExpiresAt int64  `json:"exp"`
}

// CookieSigner mints and verifies the tamper-evident cookie values that
// carry authorization state across the browser redirect. Each value is a
// time-boxed token: base64url(payload) + "." + base64url(HMAC-SHA256). The
// hop crosses an untrusted client, so nothing in the cookie is trusted until
// the MAC and expiry check out.
type CookieSigner struct {
	secret []byte
}

// NewCookieSigner wires the signer with the server-held secret.
func NewCookieSigner(secret string) (*CookieSigner, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("state signing secret must be at least 32 bytes")
	}
	return &CookieSigner{secret: []byte(secret)}, nil
}

// Sign produces the cookie value for one session field.
func (s *CookieSigner) Sign(value, userID string, now time.Time) (string, error) {
	payload := cookiePayload{
		Value:     value,
		UserID:    userID,
		ExpiresAt: now.Add(CookieMaxAge).Unix(),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode cookie payload: %w", err)
	}
	body := base64.RawURLEncoding.EncodeToString(encoded)
	return body + "." + s.mac(body), nil
}

// Verify checks the MAC and expiry and returns the embedded value and user
// id. Any malformed, forged, or expired token fails.
func (s *CookieSigner) Verify(token string, now time.Time) (value, userID string, err error) {
	var body, sig string
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			body, sig = token[:i], token[i+1:]
			break
		}
	}
	if body == "" || sig == "" {
		return "", "", fmt.Errorf("malformed cookie token")
	}
	if !hmac.Equal([]byte(sig), []byte(s.mac(body))) {
		return "", "", fmt.Errorf("cookie signature mismatch")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return "", "", fmt.Errorf("decode cookie payload: %w", err)
	}
	var payload cookiePayload
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return "", "", fmt.Errorf("unmarshal cookie payload: %w", err)
	}
	if now.Unix() > payload.ExpiresAt {
		return "", "", fmt.Errorf("cookie token expired")
	}
	return payload.Value, payload.UserID, nil
}

func (s *CookieSigner) mac(body string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
