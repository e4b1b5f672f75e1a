package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/domain"
)

const (
	// LinkedInMaxChars is the hard single-post limit; LinkedIn gets no
	// auto-threading, so longer content is rejected up front.
	LinkedInMaxChars = 3000

	linkedInVersion       = "202405"
	restliProtocolVersion = "2.0.0"
)

// LinkedInClient publishes a single post on behalf of one member.
type LinkedInClient struct {
	httpClient  *http.Client
	provider    config.ProviderConfig
	accessToken string
	retry       RetryPolicy
	logger      *zap.Logger

	// authorURN is resolved once per client lifetime.
	authorURN string
}

var _ Client = (*LinkedInClient)(nil)

// NewLinkedInClient wires a client around one decrypted access token.
func NewLinkedInClient(httpClient *http.Client, provider config.ProviderConfig, accessToken string, retry RetryPolicy, logger *zap.Logger) *LinkedInClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &LinkedInClient{
		httpClient:  httpClient,
		provider:    provider,
		accessToken: accessToken,
		retry:       retry,
		logger:      logger,
	}
}

// PublishPost validates, resolves the author URN, and creates the post.
// Validation failures are terminal before any network attempt.
func (c *LinkedInClient) PublishPost(ctx context.Context, content string) (*domain.PublishResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return failure(CodeValidation, http.StatusBadRequest, "content cannot be empty", nil), nil
	}
	if len([]rune(content)) > LinkedInMaxChars {
		return failure(CodeValidation, http.StatusBadRequest,
			fmt.Sprintf("content exceeds LinkedIn limit of %d characters", LinkedInMaxChars), nil), nil
	}

	if err := c.resolveAuthor(ctx); err != nil {
		return failureFromErr(err, nil), nil
	}

	var postID string
	err := c.retry.do(ctx, func(ctx context.Context) error {
		id, err := c.createPost(ctx, content)
		if err != nil {
			return err
		}
		postID = id
		return nil
	})
	if err != nil {
		return failureFromErr(err, nil), nil
	}

	c.logger.Info("linkedin post published", zap.String("post_id", postID))
	return &domain.PublishResult{Success: true, PostID: postID, PostIDs: []string{postID}}, nil
}

// resolveAuthor fetches the member id from userinfo and caches the person
// URN for the client's lifetime.
func (c *LinkedInClient) resolveAuthor(ctx context.Context) error {
	if c.authorURN != "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.provider.UserInfoURL, nil)
	if err != nil {
		return fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read userinfo: %w", err)
	}
	if resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, "LinkedIn userinfo failed")
	}

	var info struct {
		Sub string `json:"sub"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Sub == "" {
		return newAPIError(http.StatusBadGateway, "LinkedIn userinfo missing member id")
	}

	c.authorURN = "urn:li:person:" + info.Sub
	return nil
}

func (c *LinkedInClient) createPost(ctx context.Context, content string) (string, error) {
	payload := map[string]any{
		"author": c.authorURN,
		"commentary": map[string]any{
			"text": content,
		},
		"visibility": "PUBLIC",
		"distribution": map[string]any{
			"feedDistribution":               "MAIN_FEED",
			"targetEntities":                 []any{},
			"thirdPartyDistributionChannels": []any{},
		},
		"lifecycleState":            "PUBLISHED",
		"isReshareDisabledByAuthor": false,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode post payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.APIBaseURL+"/rest/posts", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build post request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("LinkedIn-Version", linkedInVersion)
	req.Header.Set("X-Restli-Protocol-Version", restliProtocolVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read post response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", newAPIError(resp.StatusCode, providerMessage(body, "LinkedIn post creation failed"))
	}

	if id := resp.Header.Get("x-restli-id"); id != "" {
		return id, nil
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err == nil && created.ID != "" {
		return created.ID, nil
	}
	return "", newAPIError(http.StatusBadGateway, "LinkedIn response missing post id")
}

// providerMessage pulls a human-readable message out of a provider error
// body, falling back to the given default.
func providerMessage(body []byte, fallback string) string {
	var parsed struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Detail != "" {
			return parsed.Detail
		}
	}
	return fallback
}
