// Package analyzer turns raw pull request records into per-developer and
// per-repository metrics. It performs no I/O and is safe to drive from a
// single goroutine.
package analyzer

import (
	"sort"
	"time"

	"github.com/go2siri/github-pr-metrics/internal/domain"
)

// Bucket accumulates counts and sample sequences for one
// (repository, developer) pair. Samples are kept at full precision;
// rounding happens only when derived statistics are produced.
type Bucket struct {
	Counts       domain.BasicCounts
	TimeToMerge  []float64
	TimeToClose  []float64
	LinesAdded   []float64
	LinesDeleted []float64
	FilesChanged []float64
	CommitsCount []float64
	PRs          []domain.PullRequest
}

// MetricsTree maps repository -> developer -> bucket.
type MetricsTree map[string]map[string]*Bucket

func (t MetricsTree) bucket(repository, developer string) *Bucket {
	devs, ok := t[repository]
	if !ok {
		devs = make(map[string]*Bucket)
		t[repository] = devs
	}
	b, ok := devs[developer]
	if !ok {
		b = &Bucket{}
		devs[developer] = b
	}
	return b
}

// Analyzer accumulates pull request records across one or more Analyze
// calls and produces an AnalysisResult on demand.
type Analyzer struct {
	tree         MetricsTree
	prsProcessed int
	startedAt    time.Time
	since, until *time.Time
}

// New creates an empty Analyzer.
func New() *Analyzer {
	return &Analyzer{
		tree:      make(MetricsTree),
		startedAt: time.Now(),
	}
}

// Tree exposes the accumulated metrics tree.
func (a *Analyzer) Tree() MetricsTree {
	return a.tree
}

// Analyze folds the given records into the metrics tree under the given
// repository key. Records outside the optional [since, until) window and
// records without a creation timestamp are skipped, not fatal.
func (a *Analyzer) Analyze(records []domain.PullRequest, repository string, since, until *time.Time) {
	if since != nil {
		a.since = since
	}
	if until != nil {
		a.until = until
	}

	for _, pr := range records {
		if pr.CreatedAt.IsZero() {
			continue
		}
		if since != nil && pr.CreatedAt.Before(*since) {
			continue
		}
		if until != nil && !pr.CreatedAt.Before(*until) {
			continue
		}

		a.prsProcessed++
		a.tree.bucket(repository, pr.Author).add(pr)
	}
}

func (b *Bucket) add(pr domain.PullRequest) {
	b.Counts.Total++
	switch pr.State {
	case domain.StateOpen:
		b.Counts.Open++
	case domain.StateMerged:
		b.Counts.Merged++
	case domain.StateClosed:
		b.Counts.Closed++
	case domain.StateDraft:
		b.Counts.Draft++
	}

	if pr.MergedAt != nil {
		b.TimeToMerge = append(b.TimeToMerge, pr.MergedAt.Sub(pr.CreatedAt).Hours())
	}
	if pr.ClosedAt != nil {
		b.TimeToClose = append(b.TimeToClose, pr.ClosedAt.Sub(pr.CreatedAt).Hours())
	}

	// Zero-valued sizes are absent data on the list endpoint, not samples.
	if pr.Additions > 0 {
		b.LinesAdded = append(b.LinesAdded, float64(pr.Additions))
	}
	if pr.Deletions > 0 {
		b.LinesDeleted = append(b.LinesDeleted, float64(pr.Deletions))
	}
	if pr.ChangedFiles > 0 {
		b.FilesChanged = append(b.FilesChanged, float64(pr.ChangedFiles))
	}
	if pr.Commits > 0 {
		b.CommitsCount = append(b.CommitsCount, float64(pr.Commits))
	}

	b.PRs = append(b.PRs, pr)
}

// Result derives the full metrics tree with statistics and global
// insights. The caller owns TaskID and CreatedAt on the returned value.
func (a *Analyzer) Result() *domain.AnalysisResult {
	var (
		repoMetrics   []domain.RepositoryMetrics
		allTimeToMerge []float64
		allPRSizes     []float64
		devTotals      = make(map[string]int)
		devOrder       []string
		devSeen        = make(map[string]bool)
	)

	for _, repository := range sortedKeys(a.tree) {
		developers := a.tree[repository]
		rm := domain.RepositoryMetrics{
			Repository: repository,
			Developers: make(map[string]*domain.DeveloperMetrics, len(developers)),
		}

		for _, developer := range sortedBucketKeys(developers) {
			b := developers[developer]
			rm.Developers[developer] = b.developerMetrics(developer)

			rm.TotalPRs += b.Counts.Total
			rm.Summary.Total += b.Counts.Total
			rm.Summary.Open += b.Counts.Open
			rm.Summary.Merged += b.Counts.Merged
			rm.Summary.Closed += b.Counts.Closed
			rm.Summary.Draft += b.Counts.Draft

			if !devSeen[developer] {
				devSeen[developer] = true
				devOrder = append(devOrder, developer)
			}
			devTotals[developer] += b.Counts.Total

			allTimeToMerge = append(allTimeToMerge, b.TimeToMerge...)
			for _, pr := range b.PRs {
				if size := pr.Additions + pr.Deletions; size > 0 {
					allPRSizes = append(allPRSizes, float64(size))
				}
			}
		}

		repoMetrics = append(repoMetrics, rm)
	}

	insights := domain.GlobalInsights{
		AverageTimeToMergeHours: round(meanOrZero(allTimeToMerge), 1),
		MedianTimeToMergeHours:  round(medianOrZero(allTimeToMerge), 1),
		AveragePRSizeLines:      round(meanOrZero(allPRSizes), 0),
		MostActiveDeveloper:     mostActive(devOrder, devTotals),
		TotalRepositories:       len(a.tree),
		TotalDevelopers:         len(devTotals),
		TotalPRsProcessed:       a.prsProcessed,
	}

	return &domain.AnalysisResult{
		Status:            domain.StatusCompleted,
		RepositoryMetrics: repoMetrics,
		GlobalInsights:    insights,
		Metadata: domain.AnalysisMetadata{
			TotalRepositories: len(a.tree),
			TotalDevelopers:   len(devTotals),
			TotalPRsProcessed: a.prsProcessed,
			DurationSeconds:   time.Since(a.startedAt).Seconds(),
			Since:             a.since,
			Until:             a.until,
		},
		CompletedAt: time.Now(),
	}
}

func (b *Bucket) developerMetrics(developer string) *domain.DeveloperMetrics {
	mergeRate := 0.0
	if b.Counts.Total > 0 {
		mergeRate = float64(b.Counts.Merged) / float64(b.Counts.Total) * 100
	}

	allLines := make([]float64, 0, len(b.LinesAdded)+len(b.LinesDeleted))
	allLines = append(allLines, b.LinesAdded...)
	allLines = append(allLines, b.LinesDeleted...)

	return &domain.DeveloperMetrics{
		Developer:    developer,
		BasicMetrics: b.Counts,
		TimeMetrics: domain.TimeMetrics{
			TimeToMerge: sampleStats(b.TimeToMerge),
			TimeToClose: sampleStats(b.TimeToClose),
		},
		SizeMetrics: domain.SizeMetrics{
			LinesAdded:   sampleStats(b.LinesAdded),
			LinesDeleted: sampleStats(b.LinesDeleted),
			FilesChanged: sampleStats(b.FilesChanged),
			CommitsCount: sampleStats(b.CommitsCount),
		},
		ProductivityMetrics: domain.ProductivityMetrics{
			MergeRatePercent: round(mergeRate, 1),
			AveragePRSize:    round(meanOrZero(allLines), 0),
			PRsPerWeek:       0, // date-range math intentionally unimplemented
		},
		PullRequests: b.PRs,
	}
}

// mostActive picks the developer with the largest total PR count. Ties go
// to the developer encountered first.
func mostActive(order []string, totals map[string]int) string {
	best := ""
	bestTotal := -1
	for _, dev := range order {
		if totals[dev] > bestTotal {
			best = dev
			bestTotal = totals[dev]
		}
	}
	return best
}

func sortedKeys(t MetricsTree) []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBucketKeys(m map[string]*Bucket) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
