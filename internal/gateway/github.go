// Package gateway provides access to the GitHub REST API, abstracting
// pagination, authentication, timeouts, rate limit handling and retries
// behind a small fetcher interface.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github.com/go2siri/github-pr-metrics/internal/domain"
)

// Fetcher defines the behavior the analysis pipeline needs from GitHub.
type Fetcher interface {
	ValidateToken(ctx context.Context) error
	CheckAccess(ctx context.Context, owner, repo string) error
	ListRepositories(ctx context.Context, owner string) ([]string, error)
	FetchPullRequests(ctx context.Context, owner, repo string, since, until *time.Time) ([]domain.PullRequest, error)
}

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	MaxPages       int
	RetryInterval  time.Duration
}

const (
	defaultRequestTimeout = 30 * time.Second
	defaultMaxRetries     = 3
	defaultMaxPages       = 10
	defaultRetryInterval  = 500 * time.Millisecond
)

// Client is the concrete Fetcher backed by go-github.
type Client struct {
	gh             *github.Client
	requestTimeout time.Duration
	maxRetries     int
	maxPages       int
	retryInterval  time.Duration
}

// NewClient builds an authenticated client. The transport chain layers the
// OAuth2 token source over a secondary-rate-limit-aware round tripper, so
// abuse throttling is waited out transparently while primary rate limits
// surface as RateLimitError.
func NewClient(token string, cfg Config) (*Client, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("GitHub token is required")
	}

	rateLimiter, err := github_ratelimit.NewRateLimitWaiter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimiter,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: strings.TrimSpace(token)}),
		},
	}

	gh := github.NewClient(httpClient)
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", cfg.BaseURL, err)
		}
		gh.BaseURL = base
	}

	c := &Client{
		gh:             gh,
		requestTimeout: cfg.RequestTimeout,
		maxRetries:     cfg.MaxRetries,
		maxPages:       cfg.MaxPages,
		retryInterval:  cfg.RetryInterval,
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultRequestTimeout
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.maxPages <= 0 {
		c.maxPages = defaultMaxPages
	}
	if c.retryInterval <= 0 {
		c.retryInterval = defaultRetryInterval
	}

	return c, nil
}

// withRetry runs op with a per-call timeout and exponential backoff.
// Rate limit and 4xx failures are permanent; everything else is retried
// up to maxRetries times.
func (c *Client) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval

	return backoff.Retry(func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()

		err := classify(op(callCtx))
		if err == nil {
			return nil
		}
		if permanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.maxRetries)), ctx))
}

// ValidateToken verifies the credential by fetching the authenticated user.
func (c *Client) ValidateToken(ctx context.Context) error {
	err := c.withRetry(ctx, func(ctx context.Context) error {
		_, _, err := c.gh.Users.Get(ctx, "")
		return err
	})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == 401 {
			return &APIError{StatusCode: 401, Message: "invalid GitHub token"}
		}
		return fmt.Errorf("failed to validate token: %w", err)
	}
	return nil
}

// CheckAccess verifies that the repository exists and is reachable with
// the configured credential.
func (c *Client) CheckAccess(ctx context.Context, owner, repo string) error {
	err := c.withRetry(ctx, func(ctx context.Context) error {
		_, _, err := c.gh.Repositories.Get(ctx, owner, repo)
		return err
	})
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return &NotFoundError{Resource: fmt.Sprintf("repository %s/%s", owner, repo)}
		}
		return err
	}
	return nil
}

// ListRepositories returns the repository names of a user or organization.
// The user endpoint is tried first, then the organization endpoint.
func (c *Client) ListRepositories(ctx context.Context, owner string) ([]string, error) {
	names, err := c.listUserRepositories(ctx, owner)
	if err == nil {
		return names, nil
	}
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	names, err = c.listOrgRepositories(ctx, owner)
	if err != nil {
		if errors.As(err, &notFound) {
			return nil, &NotFoundError{Resource: fmt.Sprintf("user or organization %q", owner)}
		}
		return nil, err
	}
	return names, nil
}

func (c *Client) listUserRepositories(ctx context.Context, owner string) ([]string, error) {
	var names []string
	opts := &github.RepositoryListByUserOptions{
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for page := 0; page < c.maxPages; page++ {
		var repos []*github.Repository
		var resp *github.Response
		err := c.withRetry(ctx, func(ctx context.Context) error {
			var err error
			repos, resp, err = c.gh.Repositories.ListByUser(ctx, owner, opts)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, r := range repos {
			names = append(names, r.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

func (c *Client) listOrgRepositories(ctx context.Context, owner string) ([]string, error) {
	var names []string
	opts := &github.RepositoryListByOrgOptions{
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for page := 0; page < c.maxPages; page++ {
		var repos []*github.Repository
		var resp *github.Response
		err := c.withRetry(ctx, func(ctx context.Context) error {
			var err error
			repos, resp, err = c.gh.Repositories.ListByOrg(ctx, owner, opts)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, r := range repos {
			names = append(names, r.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

// FetchPullRequests fetches pull requests in all states for one
// repository, newest first, capped at maxPages pages, restricted to the
// optional [since, until) creation window.
func (c *Client) FetchPullRequests(ctx context.Context, owner, repo string, since, until *time.Time) ([]domain.PullRequest, error) {
	var records []domain.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for page := 0; page < c.maxPages; page++ {
		var prs []*github.PullRequest
		var resp *github.Response
		err := c.withRetry(ctx, func(ctx context.Context) error {
			var err error
			prs, resp, err = c.gh.PullRequests.List(ctx, owner, repo, opts)
			return err
		})
		if err != nil {
			var notFound *NotFoundError
			if errors.As(err, &notFound) {
				return nil, &NotFoundError{Resource: fmt.Sprintf("repository %s/%s", owner, repo)}
			}
			return nil, err
		}

		for _, pr := range prs {
			record := toRecord(owner, repo, pr)
			if record.CreatedAt.IsZero() {
				continue
			}
			if since != nil && record.CreatedAt.Before(*since) {
				continue
			}
			if until != nil && !record.CreatedAt.Before(*until) {
				continue
			}
			records = append(records, record)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return records, nil
}

func toRecord(owner, repo string, pr *github.PullRequest) domain.PullRequest {
	var mergedAt, closedAt *time.Time
	if pr.MergedAt != nil {
		t := pr.MergedAt.Time
		mergedAt = &t
	}
	if pr.ClosedAt != nil {
		t := pr.ClosedAt.Time
		closedAt = &t
	}

	return domain.PullRequest{
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		Author:       pr.GetUser().GetLogin(),
		Repository:   owner + "/" + repo,
		State:        domain.DerivePRState(pr.GetDraft(), pr.GetState(), mergedAt),
		CreatedAt:    pr.GetCreatedAt().Time,
		MergedAt:     mergedAt,
		ClosedAt:     closedAt,
		Additions:    pr.GetAdditions(),
		Deletions:    pr.GetDeletions(),
		ChangedFiles: pr.GetChangedFiles(),
		Commits:      pr.GetCommits(),
		URL:          pr.GetHTMLURL(),
	}
}
