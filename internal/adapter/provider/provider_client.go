package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/domain"
)

// Client encapsulates outbound HTTP calls to the platform identity providers.
type Client interface {
	ExchangeCode(ctx context.Context, provider config.ProviderConfig, code, codeVerifier, redirectURI string) (*domain.ProviderTokenResponse, error)
	FetchIdentity(ctx context.Context, provider config.ProviderConfig, accessToken string) (*domain.ProviderIdentity, error)
}

// HTTPClient is the default HTTP implementation.
type HTTPClient struct {
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs the default Client.
func NewHTTPClient(client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{httpClient: client}
}

// ExchangeCode performs the authorization-code token exchange with the PKCE
// verifier.
func (c *HTTPClient) ExchangeCode(ctx context.Context, provider config.ProviderConfig, code, codeVerifier, redirectURI string) (*domain.ProviderTokenResponse, error) {
	if strings.TrimSpace(provider.TokenURL) == "" {
		return nil, fmt.Errorf("token url missing")
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", redirectURI)
	data.Set("client_id", provider.ClientID)
	if provider.ClientSecret != "" {
		data.Set("client_secret", provider.ClientSecret)
	}
	if strings.TrimSpace(codeVerifier) != "" {
		data.Set("code_verifier", codeVerifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token exchange failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	token := &domain.ProviderTokenResponse{
		AccessToken:  stringValue(raw["access_token"]),
		RefreshToken: stringValue(raw["refresh_token"]),
		TokenType:    stringValue(raw["token_type"]),
		Scope:        stringValue(raw["scope"]),
		Raw:          raw,
	}
	if exp := raw["expires_in"]; exp != nil {
		token.ExpiresIn = int64Value(exp)
	}
	return token, nil
}

// FetchIdentity loads the provider's minimal profile endpoint and extracts
// the stable member id. LinkedIn's userinfo answers {"sub": ...}; Twitter's
// /2/users/me wraps the id in a data object.
func (c *HTTPClient) FetchIdentity(ctx context.Context, provider config.ProviderConfig, accessToken string) (*domain.ProviderIdentity, error) {
	if strings.TrimSpace(provider.UserInfoURL) == "" {
		return nil, fmt.Errorf("userinfo url missing")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read identity: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("identity fetch failed: status=%d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}

	id := stringValue(raw["sub"])
	name := stringValue(raw["name"])
	if id == "" {
		if data, ok := raw["data"].(map[string]any); ok {
			id = stringValue(data["id"])
			name = stringValue(data["name"])
		}
	}
	return &domain.ProviderIdentity{ID: id, Name: name}, nil
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
