package domain

import "time"

// AuthorizationSession is the transient state spanning the authorization
// redirect: a CSRF state nonce and the PKCE code verifier, plus the app user
// the flow belongs to. It travels only inside signed, short-lived cookies
// and is never written to durable storage.
type AuthorizationSession struct {
	State        string
	CodeVerifier string
	UserID       string
	IssuedAt     time.Time
}

// ProviderTokenResponse models the response from a provider token endpoint.
type ProviderTokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	Scope        string
	Raw          map[string]any
}

// ProviderIdentity is the minimal profile fetched after token exchange. ID is
// the provider's stable member id ("sub" for LinkedIn's userinfo, data.id for
// Twitter) and is required to complete the flow.
type ProviderIdentity struct {
	ID   string
	Name string
}
