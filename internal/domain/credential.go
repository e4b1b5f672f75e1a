package domain

import "time"

// SocialCredential is the durable, encrypted OAuth credential for one
// (user, platform) pair. Token columns hold ciphertext only; the plaintext
// never touches storage or logs.
type SocialCredential struct {
	ID                    int64
	UserID                string
	Platform              Platform
	EncryptedAccessToken  string
	EncryptedRefreshToken string
	TokenExpiresAt        *time.Time
	Scopes                []string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Expired reports whether the stored access token is past its provider expiry.
func (c SocialCredential) Expired(now time.Time) bool {
	return c.TokenExpiresAt != nil && !c.TokenExpiresAt.After(now)
}

// Connection is the dashboard-facing view of a credential: which platform is
// linked and when it expires, with no token material.
type Connection struct {
	Platform  Platform   `json:"platform"`
	Scopes    []string   `json:"scopes,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
