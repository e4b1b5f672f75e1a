package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/NickKasten/posture/internal/config"
	"github.com/NickKasten/posture/internal/domain"
)

// TweetMaxChars is the single-tweet limit. Longer content is threaded, not
// rejected.
const TweetMaxChars = 280

// defaultSegmentInterval paces consecutive thread segments.
const defaultSegmentInterval = 500 * time.Millisecond

// TwitterClient publishes single tweets and auto-split threads.
type TwitterClient struct {
	httpClient  *http.Client
	provider    config.ProviderConfig
	accessToken string
	retry       RetryPolicy
	pacer       *rate.Limiter
	logger      *zap.Logger

	// accountID is resolved once per client lifetime.
	accountID string
}

var _ Client = (*TwitterClient)(nil)

// NewTwitterClient wires a client around one decrypted access token.
func NewTwitterClient(httpClient *http.Client, provider config.ProviderConfig, accessToken string, retry RetryPolicy, logger *zap.Logger) *TwitterClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.L()
	}
	return &TwitterClient{
		httpClient:  httpClient,
		provider:    provider,
		accessToken: accessToken,
		retry:       retry,
		pacer:       rate.NewLimiter(rate.Every(defaultSegmentInterval), 1),
		logger:      logger,
	}
}

// PublishPost validates, splits over-length content into a numbered thread,
// and publishes the segments strictly in order. Each segment after the first
// replies to the previous one; if a later segment fails irrecoverably the
// earlier tweets stay up and their ids are reported.
func (c *TwitterClient) PublishPost(ctx context.Context, content string) (*domain.PublishResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return failure(CodeValidation, http.StatusBadRequest, "content cannot be empty", nil), nil
	}

	segments, err := SplitThread(content, TweetMaxChars)
	if err != nil {
		if errors.Is(err, ErrThreadTooLong) {
			return failure(CodeValidation, http.StatusBadRequest, err.Error(), nil), nil
		}
		return nil, fmt.Errorf("split thread: %w", err)
	}
	segments = NumberSegments(segments)

	if err := c.resolveAccount(ctx); err != nil {
		return failureFromErr(err, nil), nil
	}

	var postIDs []string
	previousID := ""
	for i, segment := range segments {
		if i > 0 {
			// Sequential pacing between segments; ordering is enforced by
			// this loop, never by concurrent sends.
			if err := c.pacer.Wait(ctx); err != nil {
				return failureFromErr(err, postIDs), nil
			}
		}

		var tweetID string
		err := c.retry.do(ctx, func(ctx context.Context) error {
			id, err := c.createTweet(ctx, segment, previousID)
			if err != nil {
				return err
			}
			tweetID = id
			return nil
		})
		if err != nil {
			c.logger.Warn("thread publication stopped",
				zap.Int("segment", i+1),
				zap.Int("published", len(postIDs)),
				zap.Error(err),
			)
			return failureFromErr(err, postIDs), nil
		}

		postIDs = append(postIDs, tweetID)
		previousID = tweetID
	}

	c.logger.Info("twitter post published",
		zap.Int("segments", len(postIDs)),
		zap.String("post_id", postIDs[0]),
	)
	return &domain.PublishResult{Success: true, PostID: postIDs[0], PostIDs: postIDs}, nil
}

// resolveAccount fetches and caches the authenticated account id.
func (c *TwitterClient) resolveAccount(ctx context.Context) error {
	if c.accountID != "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.provider.APIBaseURL+"/2/users/me", nil)
	if err != nil {
		return fmt.Errorf("build users/me request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("users/me request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read users/me: %w", err)
	}
	if resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, "Twitter users/me failed")
	}

	var info struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("decode users/me: %w", err)
	}
	if info.Data.ID == "" {
		return newAPIError(http.StatusBadGateway, "Twitter users/me missing account id")
	}

	c.accountID = info.Data.ID
	return nil
}

func (c *TwitterClient) createTweet(ctx context.Context, text, inReplyTo string) (string, error) {
	payload := map[string]any{"text": text}
	if inReplyTo != "" {
		payload["reply"] = map[string]any{"in_reply_to_tweet_id": inReplyTo}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode tweet payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.provider.APIBaseURL+"/2/tweets", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("build tweet request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("tweet request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read tweet response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", newAPIError(resp.StatusCode, providerMessage(body, "tweet creation failed"))
	}

	var created struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode tweet response: %w", err)
	}
	if created.Data.ID == "" {
		return "", newAPIError(http.StatusBadGateway, "Twitter response missing tweet id")
	}
	return created.Data.ID, nil
}
