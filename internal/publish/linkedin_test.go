package publish

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NickKasten/posture/internal/config"
)

// fastRetry keeps test runs quick while preserving the 3-attempt budget.
var fastRetry = RetryPolicy{Attempts: 3, Backoff: time.Millisecond}

type linkedInServer struct {
	*httptest.Server
	userinfoCalls int
	postCalls     int
	postStatus    int
	lastBody      map[string]any
	lastHeaders   http.Header
}

func newLinkedInServer(t *testing.T) *linkedInServer {
	t.Helper()
	s := &linkedInServer{postStatus: http.StatusCreated}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/userinfo":
			s.userinfoCalls++
			json.NewEncoder(w).Encode(map[string]any{"sub": "member-1"})
		case "/rest/posts":
			s.postCalls++
			s.lastHeaders = r.Header.Clone()
			json.NewDecoder(r.Body).Decode(&s.lastBody)
			if s.postStatus >= 300 {
				w.WriteHeader(s.postStatus)
				json.NewEncoder(w).Encode(map[string]any{"message": "provider rejected the post"})
				return
			}
			w.Header().Set("x-restli-id", "urn:li:share:123")
			w.WriteHeader(s.postStatus)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *linkedInServer) client(t *testing.T) *LinkedInClient {
	t.Helper()
	provider := config.ProviderConfig{
		UserInfoURL: s.URL + "/v2/userinfo",
		APIBaseURL:  s.URL,
	}
	return NewLinkedInClient(s.Client(), provider, "decrypted-token", fastRetry, zap.NewNop())
}

func TestLinkedInClient_Publish(t *testing.T) {
	srv := newLinkedInServer(t)
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), "Hello from the publishing core")
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "urn:li:share:123", result.PostID)
	require.Equal(t, []string{"urn:li:share:123"}, result.PostIDs)

	require.Equal(t, 1, srv.userinfoCalls)
	require.Equal(t, 1, srv.postCalls)
	require.Equal(t, "Bearer decrypted-token", srv.lastHeaders.Get("Authorization"))
	require.Equal(t, "202405", srv.lastHeaders.Get("LinkedIn-Version"))
	require.Equal(t, "2.0.0", srv.lastHeaders.Get("X-Restli-Protocol-Version"))

	require.Equal(t, "urn:li:person:member-1", srv.lastBody["author"])
	commentary := srv.lastBody["commentary"].(map[string]any)
	require.Equal(t, "Hello from the publishing core", commentary["text"])
	require.Equal(t, "PUBLIC", srv.lastBody["visibility"])
	require.Equal(t, "PUBLISHED", srv.lastBody["lifecycleState"])
}

func TestLinkedInClient_AuthorCachedAcrossPosts(t *testing.T) {
	srv := newLinkedInServer(t)
	client := srv.client(t)

	for i := 0; i < 3; i++ {
		result, err := client.PublishPost(context.Background(), "post body")
		require.NoError(t, err)
		require.True(t, result.Success)
	}
	require.Equal(t, 1, srv.userinfoCalls)
	require.Equal(t, 3, srv.postCalls)
}

func TestLinkedInClient_RejectsEmpty(t *testing.T) {
	srv := newLinkedInServer(t)
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), "   ")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, CodeValidation, result.Error.Code)
	require.Equal(t, http.StatusBadRequest, result.Error.Status)
	require.Zero(t, srv.postCalls)
	require.Zero(t, srv.userinfoCalls)
}

func TestLinkedInClient_LengthLimit(t *testing.T) {
	srv := newLinkedInServer(t)
	client := srv.client(t)

	atLimit, err := client.PublishPost(context.Background(), strings.Repeat("a", LinkedInMaxChars))
	require.NoError(t, err)
	require.True(t, atLimit.Success)

	over, err := client.PublishPost(context.Background(), strings.Repeat("a", LinkedInMaxChars+1))
	require.NoError(t, err)
	require.False(t, over.Success)
	require.Equal(t, CodeValidation, over.Error.Code)
	require.Equal(t, 1, srv.postCalls)
}

func TestLinkedInClient_ClientErrorNotRetried(t *testing.T) {
	srv := newLinkedInServer(t)
	srv.postStatus = http.StatusForbidden
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), "forbidden post")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, CodeForbidden, result.Error.Code)
	require.Equal(t, http.StatusForbidden, result.Error.Status)
	require.Equal(t, "provider rejected the post", result.Error.Message)
	require.Equal(t, 1, srv.postCalls)
}

func TestLinkedInClient_ServerErrorRetriedThenFails(t *testing.T) {
	srv := newLinkedInServer(t)
	srv.postStatus = http.StatusInternalServerError
	client := srv.client(t)

	result, err := client.PublishPost(context.Background(), "flaky post")
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, CodeServerError, result.Error.Code)
	require.Equal(t, 3, srv.postCalls)
}
