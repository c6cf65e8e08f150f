package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go2siri/github-pr-metrics/internal/analyzer"
	"github.com/go2siri/github-pr-metrics/internal/config"
	"github.com/go2siri/github-pr-metrics/internal/domain"
	"github.com/go2siri/github-pr-metrics/internal/gateway"
	"github.com/go2siri/github-pr-metrics/internal/report"
)

var (
	analyzeOwner  string
	analyzeRepo   string
	analyzeSince  string
	analyzeUntil  string
	analyzeToken  string
	analyzeOutput string
)

func init() {
	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run a one-shot analysis and print the report",
		RunE:  runAnalyze,
	}
	analyzeCmd.Flags().StringVar(&analyzeOwner, "owner", "", "repository owner or organization (required)")
	analyzeCmd.Flags().StringVar(&analyzeRepo, "repo", "", "repository name (all repositories of the owner when omitted)")
	analyzeCmd.Flags().StringVar(&analyzeSince, "since", "", "start date, YYYY-MM-DD")
	analyzeCmd.Flags().StringVar(&analyzeUntil, "until", "", "end date, YYYY-MM-DD")
	analyzeCmd.Flags().StringVar(&analyzeToken, "token", "", "GitHub API token (defaults to GITHUB_TOKEN)")
	analyzeCmd.Flags().StringVar(&analyzeOutput, "output", "", "write CSV to this file instead of a text report")
	analyzeCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	setupLogging()

	token := analyzeToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return errors.New("a GitHub token is required: pass --token or set GITHUB_TOKEN")
	}

	since, err := parseDate(analyzeSince)
	if err != nil {
		return err
	}
	until, err := parseDate(analyzeUntil)
	if err != nil {
		return err
	}
	if since != nil && until != nil && !since.Before(*until) {
		return errors.New("'since' date must be before 'until' date")
	}

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	client, err := gateway.NewClient(token, gateway.Config{
		BaseURL:        cfg.GitHub.BaseURL,
		RequestTimeout: cfg.GitHub.RequestTimeout(),
		MaxRetries:     cfg.GitHub.MaxRetries,
		MaxPages:       cfg.GitHub.MaxPages,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	fmt.Fprintln(os.Stderr, "Initializing GitHub client...")
	if err := client.ValidateToken(ctx); err != nil {
		return err
	}

	repos := []string{analyzeRepo}
	if analyzeRepo == "" {
		fmt.Fprintf(os.Stderr, "Listing repositories for %s...\n", analyzeOwner)
		repos, err = client.ListRepositories(ctx, analyzeOwner)
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			return fmt.Errorf("no repositories found for %s", analyzeOwner)
		}
	}

	fmt.Fprintf(os.Stderr, "Fetching pull requests from %d repositories...\n", len(repos))
	records, err := fetchAll(ctx, client, analyzeOwner, repos, since, until)
	if err != nil {
		return err
	}

	total := 0
	a := analyzer.New()
	for _, repo := range sortedKeys(records) {
		total += len(records[repo])
		a.Analyze(records[repo], analyzeOwner+"/"+repo, since, until)
	}
	if total == 0 {
		fmt.Fprintln(os.Stderr, "No pull requests found matching the specified criteria.")
		return nil
	}
	fmt.Fprintf(os.Stderr, "Analyzing %d pull requests...\n", total)
	result := a.Result()

	if analyzeOutput != "" {
		f, err := os.Create(analyzeOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := report.WriteCSV(f, result); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Exported metrics to %s\n", analyzeOutput)
		return nil
	}
	return report.WriteText(os.Stdout, result)
}

func fetchAll(ctx context.Context, client gateway.Fetcher, owner string, repos []string, since, until *time.Time) (map[string][]domain.PullRequest, error) {
	records := make(map[string][]domain.PullRequest, len(repos))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			prs, err := client.FetchPullRequests(gctx, owner, repo, since, until)
			if err != nil {
				return fmt.Errorf("fetching pull requests for %s/%s: %w", owner, repo, err)
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

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, fmt.Errorf("invalid date format: %s. Use YYYY-MM-DD format", value)
	}
	return &t, nil
}

func sortedKeys(m map[string][]domain.PullRequest) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
