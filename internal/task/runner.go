// internal/task/runner.go
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go2siri/github-pr-metrics/internal/analyzer"
	"github.com/go2siri/github-pr-metrics/internal/domain"
	"github.com/go2siri/github-pr-metrics/internal/gateway"
)

// Params describes one analysis request. An empty Repo means the whole
// owner: every repository the token can see under Owner is analyzed.
type Params struct {
	Owner string
	Repo  string
	Token string
	Since *time.Time
	Until *time.Time
}

// Target returns the human-readable analysis target.
func (p Params) Target() string {
	if p.Repo == "" {
		return p.Owner
	}
	return p.Owner + "/" + p.Repo
}

// ClientFactory builds a GitHub fetcher for a request token. Injected so
// tests can substitute a fake.
type ClientFactory func(token string) (gateway.Fetcher, error)

// maxConcurrentFetches bounds parallel repository fetches during an
// owner-wide analysis.
const maxConcurrentFetches = 4

// Runner executes the analysis pipeline for one task, reporting progress
// milestones back through the registry.
type Runner struct {
	registry *Registry
	clients  ClientFactory
	timeout  time.Duration
}

// NewRunner creates a Runner. A zero timeout disables the per-run
// deadline.
func NewRunner(registry *Registry, clients ClientFactory, timeout time.Duration) *Runner {
	return &Runner{registry: registry, clients: clients, timeout: timeout}
}

// Run performs the analysis for taskID. It is executed on a worker pool
// goroutine and never returns an error: every outcome, panic included,
// becomes exactly one terminal status transition.
func (r *Runner) Run(taskID string, params Params) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("analysis panicked", "task_id", taskID, "panic", rec)
			r.fail(taskID, fmt.Errorf("internal error: %v", rec))
		}
	}()

	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	started := time.Now()
	r.progress(taskID, 0, "Starting analysis...")

	result, err := r.analyze(ctx, taskID, params)
	if err != nil {
		slog.Error("analysis failed",
			"task_id", taskID,
			"target", params.Target(),
			"error", err)
		r.fail(taskID, err)
		return
	}

	result.TaskID = taskID
	if t, ok := r.registry.Get(taskID); ok {
		result.CreatedAt = t.CreatedAt
	}
	r.registry.StoreResult(taskID, result)

	r.registry.Update(taskID, StatusUpdate{
		Status:   domain.StatusCompleted,
		Progress: intPtr(100),
		Message:  strPtr("Analysis completed successfully"),
	})
	slog.Info("analysis completed",
		"task_id", taskID,
		"target", params.Target(),
		"prs", result.Metadata.TotalPRsProcessed,
		"duration", time.Since(started))
}

func (r *Runner) analyze(ctx context.Context, taskID string, params Params) (*domain.AnalysisResult, error) {
	r.progress(taskID, 10, "Initializing GitHub client...")
	client, err := r.clients(params.Token)
	if err != nil {
		return nil, fmt.Errorf("initializing GitHub client: %w", err)
	}
	if err := client.ValidateToken(ctx); err != nil {
		return nil, err
	}

	r.progress(taskID, 20, "Validating repository access...")
	repos, err := r.resolveRepositories(ctx, client, params)
	if err != nil {
		return nil, err
	}

	r.progress(taskID, 30, "Fetching pull requests...")
	records, err := r.fetch(ctx, client, params, repos)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, prs := range records {
		total += len(prs)
	}
	if total == 0 {
		return nil, errors.New("no pull requests found for the specified criteria")
	}
	r.progress(taskID, 50, fmt.Sprintf("Found %d pull requests. Analyzing...", total))

	a := analyzer.New()
	r.progress(taskID, 70, "Analyzing pull request metrics...")
	for _, repo := range sortedRepoKeys(records) {
		a.Analyze(records[repo], params.Owner+"/"+repo, params.Since, params.Until)
	}

	r.progress(taskID, 90, "Generating analysis report...")
	result := a.Result()

	r.progress(taskID, 95, "Finalizing results...")
	return result, nil
}

// resolveRepositories verifies access and returns the bare repository
// names to fetch.
func (r *Runner) resolveRepositories(ctx context.Context, client gateway.Fetcher, params Params) ([]string, error) {
	if params.Repo != "" {
		if err := client.CheckAccess(ctx, params.Owner, params.Repo); err != nil {
			var notFound *gateway.NotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("repository %s/%s not found or not accessible", params.Owner, params.Repo)
			}
			return nil, fmt.Errorf("repository access error: %w", err)
		}
		return []string{params.Repo}, nil
	}

	repos, err := client.ListRepositories(ctx, params.Owner)
	if err != nil {
		return nil, fmt.Errorf("listing repositories for %s: %w", params.Owner, err)
	}
	if len(repos) == 0 {
		return nil, fmt.Errorf("no repositories found for %s", params.Owner)
	}
	return repos, nil
}

func (r *Runner) fetch(ctx context.Context, client gateway.Fetcher, params Params, repos []string) (map[string][]domain.PullRequest, error) {
	records := make(map[string][]domain.PullRequest, len(repos))

	if len(repos) == 1 {
		prs, err := client.FetchPullRequests(ctx, params.Owner, repos[0], params.Since, params.Until)
		if err != nil {
			return nil, fmt.Errorf("fetching pull requests: %w", err)
		}
		records[repos[0]] = prs
		return records, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			prs, err := client.FetchPullRequests(gctx, params.Owner, repo, params.Since, params.Until)
			if err != nil {
				return fmt.Errorf("fetching pull requests for %s/%s: %w", params.Owner, repo, err)
			}
			mu.Lock()
			records[repo] = prs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Runner) progress(taskID string, progress int, message string) {
	r.registry.Update(taskID, StatusUpdate{
		Status:   domain.StatusRunning,
		Progress: &progress,
		Message:  &message,
	})
}

func (r *Runner) fail(taskID string, err error) {
	msg := err.Error()
	r.registry.Update(taskID, StatusUpdate{
		Status:  domain.StatusFailed,
		Message: strPtr("Analysis failed"),
		Error:   &msg,
	})
}

func sortedRepoKeys(m map[string][]domain.PullRequest) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
