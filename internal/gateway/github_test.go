package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go2siri/github-pr-metrics/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient("test-token-0123456789", Config{
		BaseURL:       server.URL,
		MaxRetries:    2,
		RetryInterval: time.Millisecond,
	})
	require.NoError(t, err)
	return client, server
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient("  ", Config{})
	assert.Error(t, err)
}

func TestFetchPullRequests_MapsRecords(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/repos/octocat/Hello-World/pulls", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"number": 1, "title": "merged", "state": "closed", "draft": false,
			 "user": {"login": "octocat"},
			 "created_at": "2024-03-01T00:00:00Z", "merged_at": "2024-03-02T00:00:00Z",
			 "closed_at": "2024-03-02T00:00:00Z", "html_url": "https://github.com/octocat/Hello-World/pull/1"},
			{"number": 2, "title": "still open", "state": "open", "draft": false,
			 "user": {"login": "octocat"}, "created_at": "2024-03-03T00:00:00Z"},
			{"number": 3, "title": "wip", "state": "open", "draft": true,
			 "user": {"login": "octocat"}, "created_at": "2024-03-04T00:00:00Z"}
		]`)
	}))

	records, err := client.FetchPullRequests(context.Background(), "octocat", "Hello-World", nil, nil)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, domain.StateMerged, records[0].State)
	assert.Equal(t, domain.StateOpen, records[1].State)
	assert.Equal(t, domain.StateDraft, records[2].State)
	assert.Equal(t, "octocat", records[0].Author)
	assert.Equal(t, "octocat/Hello-World", records[0].Repository)
	require.NotNil(t, records[0].MergedAt)
	assert.Equal(t, 24.0, records[0].MergedAt.Sub(records[0].CreatedAt).Hours())
}

func TestFetchPullRequests_Paginates(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number": 2, "state": "open", "user": {"login": "b"}, "created_at": "2024-03-01T00:00:00Z"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/o/r/pulls?page=2>; rel="next"`, server.URL))
		fmt.Fprint(w, `[{"number": 1, "state": "open", "user": {"login": "a"}, "created_at": "2024-03-02T00:00:00Z"}]`)
	})

	client, srv := newTestClient(t, mux)
	server = srv

	records, err := client.FetchPullRequests(context.Background(), "o", "r", nil, nil)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFetchPullRequests_WindowFilter(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"number": 1, "state": "open", "user": {"login": "a"}, "created_at": "2024-03-01T00:00:00Z"},
			{"number": 2, "state": "open", "user": {"login": "a"}, "created_at": "2024-03-05T00:00:00Z"},
			{"number": 3, "state": "open", "user": {"login": "a"}, "created_at": "2024-03-09T00:00:00Z"}
		]`)
	}))

	since := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)

	records, err := client.FetchPullRequests(context.Background(), "o", "r", &since, &until)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].Number)
}

func TestCheckAccess_NotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	}))

	err := client.CheckAccess(context.Background(), "nobody", "nothing")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Contains(t, notFound.Error(), "nobody/nothing")
}

func TestFetchPullRequests_RateLimit(t *testing.T) {
	reset := time.Now().Add(time.Hour).Unix()
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "5000")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", fmt.Sprint(reset))
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
	}))

	_, err := client.FetchPullRequests(context.Background(), "o", "r", nil, nil)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.False(t, rateErr.ResetAt.IsZero())
	assert.Contains(t, rateErr.Error(), "Rate limit resets at")
}

func TestWithRetry_TransientFailure(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message": "boom"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[]`)
	}))

	_, err := client.FetchPullRequests(context.Background(), "o", "r", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestValidateToken_Invalid(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	}))

	err := client.ValidateToken(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
}

func TestListRepositories_FallsBackToOrg(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found"}`)
	})
	mux.HandleFunc("/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"name": "widget"}, {"name": "gadget"}]`)
	})

	client, _ := newTestClient(t, mux)

	names, err := client.ListRepositories(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"widget", "gadget"}, names)
}
