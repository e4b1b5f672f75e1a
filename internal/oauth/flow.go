package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NickKasten/posture/internal/adapter/provider"
	"github.com/NickKasten/posture/internal/apperr"
	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/crypto"
	"github.com/NickKasten/posture/internal/domain"
	"github.com/NickKasten/posture/internal/repository"
)

// Flow runs the authorization-code + PKCE grant against a platform provider.
// Phase one (Start) hands the browser to the provider with signed session
// cookies; phase two (HandleCallback) validates the redirect, exchanges the
// code, and persists the encrypted credential. The two phases share no
// in-process state.
type Flow struct {
	cfg      config.Config
	signer   *CookieSigner
	provider provider.Client
	cipher   *crypto.Cipher
	creds    repository.CredentialRepository
	logger   *zap.Logger
	now      func() time.Time
}

// NewFlow wires the authorization flow.
func NewFlow(
	cfg config.Config,
	signer *CookieSigner,
	providerClient provider.Client,
	cipher *crypto.Cipher,
	creds repository.CredentialRepository,
	logger *zap.Logger,
) *Flow {
	if logger == nil {
		logger = zap.L()
	}
	return &Flow{
		cfg:      cfg,
		signer:   signer,
		provider: providerClient,
		cipher:   cipher,
		creds:    creds,
		logger:   logger,
		now:      time.Now,
	}
}

// StartResult carries the provider redirect target and the two signed cookie
// values the handler must set.
type StartResult struct {
	AuthorizationURL string
	StateCookie      string
	VerifierCookie   string
}

// Start builds the PKCE challenge, the CSRF state, and the provider
// authorization URL for the given user and platform.
func (f *Flow) Start(ctx context.Context, userID, platformName string) (*StartResult, error) {
	platform, ok := domain.ParsePlatform(platformName)
	if !ok {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("unsupported platform %q", platformName))
	}
	cfg, _ := f.cfg.Provider(platform.String())
	if !cfg.Configured() {
		return nil, apperr.New(apperr.Configuration, fmt.Sprintf("%s OAuth client is not configured", platform))
	}

	codeVerifier, err := secureRandomString(64)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "generate pkce verifier", err)
	}
	state, err := secureRandomString(32)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "generate state", err)
	}
	session := domain.AuthorizationSession{
		State:        state,
		CodeVerifier: codeVerifier,
		UserID:       userID,
		IssuedAt:     f.now(),
	}

	authURL, err := url.Parse(cfg.AuthURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "parse authorization url", err)
	}
	params := authURL.Query()
	params.Set("client_id", cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", f.redirectURI(platform))
	params.Set("scope", strings.Join(cfg.Scopes, " "))
	params.Set("state", session.State)
	params.Set("code_challenge", pkceChallenge(session.CodeVerifier))
	params.Set("code_challenge_method", "S256")
	authURL.RawQuery = params.Encode()

	stateCookie, err := f.signer.Sign(session.State, session.UserID, session.IssuedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "sign state cookie", err)
	}
	verifierCookie, err := f.signer.Sign(session.CodeVerifier, session.UserID, session.IssuedAt)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, "sign verifier cookie", err)
	}

	return &StartResult{
		AuthorizationURL: authURL.String(),
		StateCookie:      stateCookie,
		VerifierCookie:   verifierCookie,
	}, nil
}

// CallbackInput captures everything the provider redirect delivered: query
// parameters plus the two session cookies.
type CallbackInput struct {
	Platform       string
	Code           string
	State          string
	ProviderError  string
	ProviderErrMsg string
	StateCookie    string
	VerifierCookie string
}

// CallbackResult identifies the credential that was linked.
type CallbackResult struct {
	Platform domain.Platform
	UserID   string
}

// HandleCallback validates the redirect in strict order (provider error,
// CSRF state, PKCE verifier, code), exchanges the code for tokens, resolves
// the provider identity, and upserts the encrypted credential.
func (f *Flow) HandleCallback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	platform, ok := domain.ParsePlatform(in.Platform)
	if !ok {
		return nil, apperr.New(apperr.Validation, fmt.Sprintf("unsupported platform %q", in.Platform))
	}

	if in.ProviderError != "" {
		message := in.ProviderErrMsg
		if message == "" {
			message = in.ProviderError
		}
		if in.ProviderError == "access_denied" {
			return nil, apperr.New(apperr.Authorization, message)
		}
		return nil, apperr.New(apperr.ExternalAPI, fmt.Sprintf("provider returned %s: %s", in.ProviderError, message))
	}

	userID, err := f.validateState(in)
	if err != nil {
		return nil, err
	}

	codeVerifier, verifierUser, err := f.verifyCookie(in.VerifierCookie)
	if err != nil || verifierUser != userID {
		return nil, apperr.New(apperr.PKCE, "code verifier cookie missing or invalid")
	}

	if strings.TrimSpace(in.Code) == "" {
		return nil, apperr.New(apperr.Validation, "authorization code missing")
	}

	cfg, _ := f.cfg.Provider(platform.String())
	if !cfg.Configured() {
		return nil, apperr.New(apperr.Configuration, fmt.Sprintf("%s OAuth client is not configured", platform))
	}

	token, err := f.provider.ExchangeCode(ctx, cfg, in.Code, codeVerifier, f.redirectURI(platform))
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalAPI, "token exchange failed", err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, apperr.New(apperr.ExternalAPI, "token response missing access token")
	}

	identity, err := f.provider.FetchIdentity(ctx, cfg, token.AccessToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.ExternalAPI, "identity fetch failed", err)
	}
	if strings.TrimSpace(identity.ID) == "" {
		return nil, apperr.New(apperr.Configuration, "provider identity missing member id")
	}

	if err := f.persistCredential(ctx, userID, platform, token); err != nil {
		return nil, err
	}

	f.logger.Info("platform connected",
		zap.String("user_id", userID),
		zap.String("platform", platform.String()),
	)
	return &CallbackResult{Platform: platform, UserID: userID}, nil
}

// validateState enforces the CSRF check: the state query parameter must
// equal the value inside a validly signed, unexpired state cookie. A missing
// cookie and a mismatched cookie are both CSRF failures.
func (f *Flow) validateState(in CallbackInput) (string, error) {
	expected, userID, err := f.verifyCookie(in.StateCookie)
	if err != nil {
		return "", apperr.New(apperr.CSRF, "state cookie missing or invalid")
	}
	if strings.TrimSpace(in.State) == "" || in.State != expected {
		return "", apperr.New(apperr.CSRF, "state parameter does not match")
	}
	return userID, nil
}

func (f *Flow) verifyCookie(token string) (string, string, error) {
	if strings.TrimSpace(token) == "" {
		return "", "", fmt.Errorf("cookie missing")
	}
	return f.signer.Verify(token, f.now())
}

func (f *Flow) persistCredential(ctx context.Context, userID string, platform domain.Platform, token *domain.ProviderTokenResponse) error {
	encryptedAccess, err := f.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return apperr.Wrap(apperr.Configuration, "encrypt access token", err)
	}
	var encryptedRefresh string
	if token.RefreshToken != "" {
		encryptedRefresh, err = f.cipher.Encrypt(token.RefreshToken)
		if err != nil {
			return apperr.Wrap(apperr.Configuration, "encrypt refresh token", err)
		}
	}

	var expiresAt *time.Time
	if token.ExpiresIn > 0 {
		t := f.now().Add(time.Duration(token.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	scopes := strings.Fields(token.Scope)
	if len(scopes) == 0 {
		cfg, _ := f.cfg.Provider(platform.String())
		scopes = cfg.Scopes
	}

	if _, err := f.creds.Upsert(ctx, domain.SocialCredential{
		UserID:                userID,
		Platform:              platform,
		EncryptedAccessToken:  encryptedAccess,
		EncryptedRefreshToken: encryptedRefresh,
		TokenExpiresAt:        expiresAt,
		Scopes:                scopes,
	}); err != nil {
		return apperr.Wrap(apperr.Database, "persist credential", err)
	}
	return nil
}

func (f *Flow) redirectURI(platform domain.Platform) string {
	return fmt.Sprintf("%s/auth/%s/callback", f.cfg.OAuthRedirectBaseURL, platform)
}

func secureRandomString(size int) (string, error) {
	if size <= 0 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
