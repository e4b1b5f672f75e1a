package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NickKasten/posture/internal/config"
)

type tweetRequest struct {
	Text  string `json:"text"`
	Reply *struct {
		InReplyTo string `json:"in_reply_to_tweet_id"`
	} `json:"reply"`
}

type twitterServer struct {
	*httptest.Server
	meCalls    int
	tweets     []tweetRequest
	tweetCalls int

	// statusFor decides the response per tweet attempt; nil means always 201.
	statusFor func(attempt int) int
}

func newTwitterServer(t *testing.T) *twitterServer {
	t.Helper()
	s := &twitterServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/2/users/me":
			s.meCalls++
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": "acct-1"}})
		case "/2/tweets":
			s.tweetCalls++
			status := http.StatusCreated
			if s.statusFor != nil {
				status = s.statusFor(s.tweetCalls)
			}
			if status >= 300 {
				w.WriteHeader(status)
				json.NewEncoder(w).Encode(map[string]any{"detail": "tweet rejected"})
				return
			}
			var req tweetRequest
			json.NewDecoder(r.Body).Decode(&req)
			s.tweets = append(s.tweets, req)
			w.WriteHeader(status)
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"id": fmt.Sprintf("tweet-%d", len(s.tweets))},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *twitterServer) client(t *testing.T) *TwitterClient {
	t.Helper()
	provider := config.ProviderConfig{
		UserInfoURL: s.URL + "/2/users/me",
		APIBaseURL:  s.URL,
	}
	return NewTwitterClient(s.Client(), provider, "decrypted-token", fastRetry, zap.NewNop())
}

func TestTwitterClient_SingleTweet(t *testing.T) {
	srv := newTwitterServer(t)
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), "a short tweet")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "tweet-1", result.PostID)
	require.Equal(t, []string{"tweet-1"}, result.PostIDs)

	require.Len(t, srv.tweets, 1)
	require.Equal(t, "a short tweet", srv.tweets[0].Text)
	require.Nil(t, srv.tweets[0].Reply)
}

func TestTwitterClient_ThreadChainsReplies(t *testing.T) {
	srv := newTwitterServer(t)
	client := srv.client(t)

	content := strings.Repeat("threaded words keep on flowing here. ", 30)
	result, err := client.PublishPost(context.Background(), content)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Greater(t, len(result.PostIDs), 1)
	require.Equal(t, result.PostIDs[0], result.PostID)

	require.Nil(t, srv.tweets[0].Reply)
	for i := 1; i < len(srv.tweets); i++ {
		require.NotNil(t, srv.tweets[i].Reply)
		require.Equal(t, fmt.Sprintf("tweet-%d", i), srv.tweets[i].Reply.InReplyTo)
	}

	total := len(srv.tweets)
	for i, tw := range srv.tweets {
		require.True(t, strings.HasSuffix(tw.Text, fmt.Sprintf(" %d/%d", i+1, total)))
		require.LessOrEqual(t, len([]rune(tw.Text)), TweetMaxChars)
	}
}

func TestTwitterClient_RejectsEmpty(t *testing.T) {
	srv := newTwitterServer(t)
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), "")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, CodeValidation, result.Error.Code)
	require.Zero(t, srv.tweetCalls)
}

func TestTwitterClient_RejectsOversizedThread(t *testing.T) {
	srv := newTwitterServer(t)
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), strings.Repeat("word ", 3000))
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, CodeValidation, result.Error.Code)
	require.Contains(t, result.Error.Message, "25")
	require.Zero(t, srv.tweetCalls)
}

func TestTwitterClient_RateLimitExhaustsAttempts(t *testing.T) {
	srv := newTwitterServer(t)
	srv.statusFor = func(int) int { return http.StatusTooManyRequests }
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), "rate limited tweet")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, CodeRateLimited, result.Error.Code)
	require.Equal(t, http.StatusTooManyRequests, result.Error.Status)
	require.Equal(t, 3, srv.tweetCalls)
}

func TestTwitterClient_RecoversAfterTransientFailures(t *testing.T) {
	srv := newTwitterServer(t)
	srv.statusFor = func(attempt int) int {
		if attempt <= 2 {
			return http.StatusServiceUnavailable
		}
		return http.StatusCreated
	}
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), "eventually works")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 3, srv.tweetCalls)
}

func TestTwitterClient_ClientErrorNotRetried(t *testing.T) {
	srv := newTwitterServer(t)
	srv.statusFor = func(int) int { return http.StatusUnauthorized }
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), "expired token tweet")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, CodeTokenExpired, result.Error.Code)
	require.Equal(t, 1, srv.tweetCalls)
}

func TestTwitterClient_PartialThreadReportsPublished(t *testing.T) {
	srv := newTwitterServer(t)
	// first two segments publish, everything after fails hard
	srv.statusFor = func(attempt int) int {
		if attempt <= 2 {
			return http.StatusCreated
		}
		return http.StatusForbidden
	}
	client := srv.client(t)

	content := strings.Repeat("threaded words keep on flowing here. ", 30)
	result, err := client.PublishPost(context.Background(), content)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, CodeForbidden, result.Error.Code)
	require.Equal(t, []string{"tweet-1", "tweet-2"}, result.PostIDs)
}
