package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NickKasten/posture/internal/apperr"
	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/crypto"
	"github.com/NickKasten/posture/internal/domain"
	"github.com/NickKasten/posture/internal/repository"
)

func TestFlow_Start(t *testing.T) {
	h := newFlowHarness(t)

	result, err := h.flow.Start(context.Background(), "user-1", "linkedin")
	require.NoError(t, err)

	authURL, err := url.Parse(result.AuthorizationURL)
	require.NoError(t, err)
	params := authURL.Query()
	require.Equal(t, "client-id", params.Get("client_id"))
	require.Equal(t, "code", params.Get("response_type"))
	require.Equal(t, "https://posture.test/auth/linkedin/callback", params.Get("redirect_uri"))
	require.Equal(t, "S256", params.Get("code_challenge_method"))
	require.NotEmpty(t, params.Get("state"))
	require.NotEmpty(t, params.Get("code_challenge"))
	require.Contains(t, params.Get("scope"), "w_member_social")

	state, stateUser, err := h.signer.Verify(result.StateCookie, h.now)
	require.NoError(t, err)
	require.Equal(t, params.Get("state"), state)
	require.Equal(t, "user-1", stateUser)

	verifier, verifierUser, err := h.signer.Verify(result.VerifierCookie, h.now)
	require.NoError(t, err)
	require.Equal(t, "user-1", verifierUser)
	require.GreaterOrEqual(t, len(verifier), 43)

	sum := sha256.Sum256([]byte(verifier))
	require.Equal(t, base64.RawURLEncoding.EncodeToString(sum[:]), params.Get("code_challenge"))
}

func TestFlow_Start_UnknownPlatform(t *testing.T) {
	h := newFlowHarness(t)

	_, err := h.flow.Start(context.Background(), "user-1", "myspace")
	requireKind(t, err, apperr.Validation)
}

func TestFlow_Start_UnconfiguredProvider(t *testing.T) {
	h := newFlowHarness(t)
	h.cfg.Twitter = config.ProviderConfig{}
	h.rebuild(t)

	_, err := h.flow.Start(context.Background(), "user-1", "twitter")
	requireKind(t, err, apperr.Configuration)
}

func TestFlow_Callback_Success(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")
	h.provider.token = &domain.ProviderTokenResponse{
		AccessToken:  "provider-access",
		RefreshToken: "provider-refresh",
		ExpiresIn:    3600,
		Scope:        "openid profile w_member_social",
	}
	h.provider.identity = &domain.ProviderIdentity{ID: "member-1", Name: "Member"}

	result, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		Code:           "auth-code",
		State:          start.state,
		StateCookie:    start.stateCookie,
		VerifierCookie: start.verifierCookie,
	})
	require.NoError(t, err)
	require.Equal(t, domain.PlatformLinkedIn, result.Platform)
	require.Equal(t, "user-1", result.UserID)

	require.Equal(t, "auth-code", h.provider.exchangedCode)
	require.Equal(t, start.verifier, h.provider.exchangedVerifier)

	cred, err := h.repo.GetByUserAndPlatform(context.Background(), "user-1", domain.PlatformLinkedIn)
	require.NoError(t, err)
	require.NotEqual(t, "provider-access", cred.EncryptedAccessToken)
	require.NotEmpty(t, cred.EncryptedRefreshToken)
	require.NotNil(t, cred.TokenExpiresAt)
	require.Equal(t, []string{"openid", "profile", "w_member_social"}, cred.Scopes)

	plaintext, err := h.cipher.Decrypt(cred.EncryptedAccessToken)
	require.NoError(t, err)
	require.Equal(t, "provider-access", plaintext)
}

func TestFlow_Callback_ProviderDenied(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		ProviderError:  "access_denied",
		ProviderErrMsg: "the user declined",
		StateCookie:    start.stateCookie,
		VerifierCookie: start.verifierCookie,
	})
	requireKind(t, err, apperr.Authorization)
	require.Zero(t, h.provider.exchanges)
}

func TestFlow_Callback_ProviderError(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		ProviderError:  "temporarily_unavailable",
		StateCookie:    start.stateCookie,
		VerifierCookie: start.verifierCookie,
	})
	requireKind(t, err, apperr.ExternalAPI)
}

func TestFlow_Callback_StateMismatch(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		Code:           "auth-code",
		State:          "forged-state",
		StateCookie:    start.stateCookie,
		VerifierCookie: start.verifierCookie,
	})
	requireKind(t, err, apperr.CSRF)
	require.Zero(t, h.provider.exchanges)
}

func TestFlow_Callback_MissingStateCookie(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		Code:           "auth-code",
		State:          start.state,
		VerifierCookie: start.verifierCookie,
	})
	requireKind(t, err, apperr.CSRF)
}

func TestFlow_Callback_MissingVerifierCookie(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:    "linkedin",
		Code:        "auth-code",
		State:       start.state,
		StateCookie: start.stateCookie,
	})
	requireKind(t, err, apperr.PKCE)
	require.Zero(t, h.provider.exchanges)
}

func TestFlow_Callback_VerifierFromDifferentUser(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")
	other := h.start(t, "user-2", "linkedin")

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		Code:           "auth-code",
		State:          start.state,
		StateCookie:    start.stateCookie,
		VerifierCookie: other.verifierCookie,
	})
	requireKind(t, err, apperr.PKCE)
}

func TestFlow_Callback_MissingCode(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		State:          start.state,
		StateCookie:    start.stateCookie,
		VerifierCookie: start.verifierCookie,
	})
	requireKind(t, err, apperr.Validation)
}

func TestFlow_Callback_ExpiredCookies(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")
	h.now = h.now.Add(CookieMaxAge + time.Minute)

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		Code:           "auth-code",
		State:          start.state,
		StateCookie:    start.stateCookie,
		VerifierCookie: start.verifierCookie,
	})
	requireKind(t, err, apperr.CSRF)
}

func TestFlow_Callback_MissingAccessToken(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")
	h.provider.token = &domain.ProviderTokenResponse{AccessToken: ""}

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		Code:           "auth-code",
		State:          start.state,
		StateCookie:    start.stateCookie,
		VerifierCookie: start.verifierCookie,
	})
	requireKind(t, err, apperr.ExternalAPI)
}

func TestFlow_Callback_MissingMemberID(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")
	h.provider.token = &domain.ProviderTokenResponse{AccessToken: "provider-access"}
	h.provider.identity = &domain.ProviderIdentity{ID: ""}

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		Code:           "auth-code",
		State:          start.state,
		StateCookie:    start.stateCookie,
		VerifierCookie: start.verifierCookie,
	})
	requireKind(t, err, apperr.Configuration)
}

func TestFlow_Callback_DefaultScopes(t *testing.T) {
	h := newFlowHarness(t)
	start := h.start(t, "user-1", "linkedin")
	h.provider.token = &domain.ProviderTokenResponse{AccessToken: "provider-access"}
	h.provider.identity = &domain.ProviderIdentity{ID: "member-1"}

	_, err := h.flow.HandleCallback(context.Background(), CallbackInput{
		Platform:       "linkedin",
		Code:           "auth-code",
		State:          start.state,
		StateCookie:    start.stateCookie,
		VerifierCookie: start.verifierCookie,
	})
	require.NoError(t, err)

	cred, err := h.repo.GetByUserAndPlatform(context.Background(), "user-1", domain.PlatformLinkedIn)
	require.NoError(t, err)
	require.Equal(t, h.cfg.LinkedIn.Scopes, cred.Scopes)
	require.Empty(t, cred.EncryptedRefreshToken)
	require.Nil(t, cred.TokenExpiresAt)
}

func requireKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	require.Error(t, err)
	var typed *apperr.Error
	require.ErrorAs(t, err, &typed)
	require.Equal(t, kind, typed.Kind)
}

// ---- Test harness and fakes ----

type flowHarness struct {
	flow     *Flow
	cfg      config.Config
	signer   *CookieSigner
	cipher   *crypto.Cipher
	provider *fakeProviderClient
	repo     *memoryCredentialRepo
	now      time.Time
}

type startedFlow struct {
	state          string
	verifier       string
	stateCookie    string
	verifierCookie string
}

func newFlowHarness(t *testing.T) *flowHarness {
	t.Helper()

	cfg := config.Config{
		AppBaseURL:           "https://app.posture.test",
		OAuthRedirectBaseURL: "https://posture.test",
		LinkedIn: config.ProviderConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Scopes:       []string{"openid", "profile", "w_member_social"},
			AuthURL:      "https://provider.test/authorize",
			TokenURL:     "https://provider.test/token",
		},
		Twitter: config.ProviderConfig{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			Scopes:       []string{"tweet.write"},
			AuthURL:      "https://provider.test/authorize",
			TokenURL:     "https://provider.test/token",
		},
	}

	signer, err := NewCookieSigner(signingSecret)
	require.NoError(t, err)

	key := make([]byte, crypto.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	cipher, err := crypto.New(key)
	require.NoError(t, err)

	h := &flowHarness{
		cfg:      cfg,
		signer:   signer,
		cipher:   cipher,
		provider: &fakeProviderClient{},
		repo:     newMemoryCredentialRepo(),
		now:      time.Now(),
	}
	h.rebuild(t)
	return h
}

func (h *flowHarness) rebuild(t *testing.T) {
	t.Helper()
	h.flow = NewFlow(h.cfg, h.signer, h.provider, h.cipher, h.repo, zap.NewNop())
	h.flow.now = func() time.Time { return h.now }
}

func (h *flowHarness) start(t *testing.T, userID, platform string) startedFlow {
	t.Helper()
	result, err := h.flow.Start(context.Background(), userID, platform)
	require.NoError(t, err)

	state, _, err := h.signer.Verify(result.StateCookie, h.now)
	require.NoError(t, err)
	verifier, _, err := h.signer.Verify(result.VerifierCookie, h.now)
	require.NoError(t, err)

	return startedFlow{
		state:          state,
		verifier:       verifier,
		stateCookie:    result.StateCookie,
		verifierCookie: result.VerifierCookie,
	}
}

type fakeProviderClient struct {
	token    *domain.ProviderTokenResponse
	identity *domain.ProviderIdentity

	exchanges         int
	exchangedCode     string
	exchangedVerifier string
}

func (f *fakeProviderClient) ExchangeCode(_ context.Context, _ config.ProviderConfig, code, codeVerifier, _ string) (*domain.ProviderTokenResponse, error) {
	f.exchanges++
	f.exchangedCode = code
	f.exchangedVerifier = codeVerifier
	if f.token == nil {
		return &domain.ProviderTokenResponse{AccessToken: "default-access"}, nil
	}
	return f.token, nil
}

func (f *fakeProviderClient) FetchIdentity(context.Context, config.ProviderConfig, string) (*domain.ProviderIdentity, error) {
	if f.identity == nil {
		return &domain.ProviderIdentity{ID: "default-member"}, nil
	}
	return f.identity, nil
}

type memoryCredentialRepo struct {
	creds map[string]domain.SocialCredential
	seq   int64
}

func newMemoryCredentialRepo() *memoryCredentialRepo {
	return &memoryCredentialRepo{creds: make(map[string]domain.SocialCredential)}
}

func credKey(userID string, platform domain.Platform) string {
	return userID + "/" + platform.String()
}

func (r *memoryCredentialRepo) Upsert(_ context.Context, cred domain.SocialCredential) (domain.SocialCredential, error) {
	key := credKey(cred.UserID, cred.Platform)
	if existing, ok := r.creds[key]; ok {
		cred.ID = existing.ID
		cred.CreatedAt = existing.CreatedAt
	} else {
		r.seq++
		cred.ID = r.seq
		cred.CreatedAt = time.Now()
	}
	cred.UpdatedAt = time.Now()
	r.creds[key] = cred
	return cred, nil
}

func (r *memoryCredentialRepo) GetByUserAndPlatform(_ context.Context, userID string, platform domain.Platform) (domain.SocialCredential, error) {
	cred, ok := r.creds[credKey(userID, platform)]
	if !ok {
		return domain.SocialCredential{}, repository.ErrCredentialNotFound
	}
	return cred, nil
}

func (r *memoryCredentialRepo) ListByUser(_ context.Context, userID string) ([]domain.SocialCredential, error) {
	var out []domain.SocialCredential
	for _, cred := range r.creds {
		if cred.UserID == userID {
			out = append(out, cred)
		}
	}
	return out, nil
}

func (r *memoryCredentialRepo) Delete(_ context.Context, userID string, platform domain.Platform) error {
	key := credKey(userID, platform)
	if _, ok := r.creds[key]; !ok {
		return repository.ErrCredentialNotFound
	}
	delete(r.creds, key)
	return nil
}

func (r *memoryCredentialRepo) RotateAll(_ context.Context, old, new *crypto.Cipher) (int, error) {
	rotated := 0
	for key, cred := range r.creds {
		next, err := crypto.Rotate(old, new, cred.EncryptedAccessToken)
		if err != nil {
			return rotated, err
		}
		cred.EncryptedAccessToken = next
		r.creds[key] = cred
		rotated++
	}
	return rotated, nil
}
