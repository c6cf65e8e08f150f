package analyzer

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go2siri/github-pr-metrics/internal/domain"
)

func ts(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
}

func tsp(day, hour int) *time.Time {
	t := ts(day, hour)
	return &t
}

func TestSampleStats(t *testing.T) {
	t.Run("empty sequence yields all zeroes", func(t *testing.T) {
		assert.Equal(t, domain.SampleStats{}, sampleStats(nil))
	})

	t.Run("single sample has zero std dev", func(t *testing.T) {
		got := sampleStats([]float64{42})
		assert.Equal(t, 1, got.Count)
		assert.Equal(t, 42.0, got.Mean)
		assert.Equal(t, 42.0, got.Median)
		assert.Equal(t, 0.0, got.StdDev)
	})

	t.Run("unbiased sample standard deviation", func(t *testing.T) {
		got := sampleStats([]float64{1, 2, 3, 4})
		assert.Equal(t, 4, got.Count)
		assert.Equal(t, 2.5, got.Mean)
		assert.Equal(t, 2.5, got.Median)
		assert.Equal(t, 1.0, got.Min)
		assert.Equal(t, 4.0, got.Max)
		// sqrt(5/3) rounded to two decimals
		assert.InDelta(t, math.Sqrt(5.0/3.0), got.StdDev, 0.005)
	})
}

func TestAnalyze_SingleAuthorScenario(t *testing.T) {
	records := []domain.PullRequest{
		{
			Number: 1, Title: "merged pr", Author: "octocat",
			State:     domain.StateMerged,
			CreatedAt: ts(1, 0), MergedAt: tsp(2, 0), ClosedAt: tsp(2, 0),
			Additions: 10, Deletions: 2,
		},
		{
			Number: 2, Title: "open pr", Author: "octocat",
			State:     domain.StateOpen,
			CreatedAt: ts(3, 0),
		},
		{
			Number: 3, Title: "draft pr", Author: "octocat",
			State:     domain.StateDraft,
			CreatedAt: ts(4, 0),
		},
	}

	a := New()
	a.Analyze(records, "octocat/Hello-World", nil, nil)
	result := a.Result()

	require.Len(t, result.RepositoryMetrics, 1)
	rm := result.RepositoryMetrics[0]
	assert.Equal(t, "octocat/Hello-World", rm.Repository)
	assert.Equal(t, 3, rm.TotalPRs)

	dev, ok := rm.Developers["octocat"]
	require.True(t, ok)
	assert.Equal(t, domain.BasicCounts{Total: 3, Open: 1, Merged: 1, Closed: 0, Draft: 1}, dev.BasicMetrics)
	assert.Equal(t, 24.0, dev.TimeMetrics.TimeToMerge.Mean)
	assert.Equal(t, 1, dev.TimeMetrics.TimeToMerge.Count)
	assert.Equal(t, 10.0, dev.SizeMetrics.LinesAdded.Mean)
	assert.Equal(t, 2.0, dev.SizeMetrics.LinesDeleted.Mean)

	assert.Equal(t, "octocat", result.GlobalInsights.MostActiveDeveloper)
	assert.Equal(t, 24.0, result.GlobalInsights.AverageTimeToMergeHours)
	assert.Equal(t, 12.0, result.GlobalInsights.AveragePRSizeLines)
	assert.Equal(t, 3, result.GlobalInsights.TotalPRsProcessed)
}

func TestAnalyze_EmptyInput(t *testing.T) {
	a := New()
	a.Analyze(nil, "octocat/Hello-World", nil, nil)
	result := a.Result()

	assert.Empty(t, result.RepositoryMetrics)
	assert.Equal(t, 0, result.GlobalInsights.TotalPRsProcessed)
	assert.Equal(t, 0.0, result.GlobalInsights.AverageTimeToMergeHours)
	assert.Equal(t, 0.0, result.GlobalInsights.MedianTimeToMergeHours)
	assert.Empty(t, result.GlobalInsights.MostActiveDeveloper)
}

func TestAnalyze_WindowFiltering(t *testing.T) {
	records := []domain.PullRequest{
		{Number: 1, Author: "a", State: domain.StateOpen, CreatedAt: ts(1, 0)},
		{Number: 2, Author: "a", State: domain.StateOpen, CreatedAt: ts(5, 0)},
		{Number: 3, Author: "a", State: domain.StateOpen, CreatedAt: ts(10, 0)},
		{Number: 4, Author: "a", State: domain.StateOpen}, // no creation timestamp
	}

	since := ts(5, 0)
	until := ts(10, 0)

	a := New()
	a.Analyze(records, "r", &since, &until)
	result := a.Result()

	// Half-open window: the record created exactly at until is excluded,
	// the one at since is included.
	require.Len(t, result.RepositoryMetrics, 1)
	assert.Equal(t, 1, result.RepositoryMetrics[0].TotalPRs)
	assert.Equal(t, 1, result.GlobalInsights.TotalPRsProcessed)
}

func TestAnalyze_MostActiveDeveloperTieBreak(t *testing.T) {
	records := []domain.PullRequest{
		{Number: 1, Author: "alice", State: domain.StateOpen, CreatedAt: ts(1, 0)},
		{Number: 2, Author: "bob", State: domain.StateOpen, CreatedAt: ts(2, 0)},
	}

	a := New()
	a.Analyze(records, "r", nil, nil)
	result := a.Result()

	// Equal totals: the first developer in iteration order wins.
	assert.Equal(t, "alice", result.GlobalInsights.MostActiveDeveloper)
	assert.Equal(t, 2, result.GlobalInsights.TotalDevelopers)
}

func TestAnalyze_MergeRateAndPRSize(t *testing.T) {
	records := []domain.PullRequest{
		{Number: 1, Author: "dev", State: domain.StateMerged, CreatedAt: ts(1, 0), MergedAt: tsp(1, 12), Additions: 100, Deletions: 20},
		{Number: 2, Author: "dev", State: domain.StateMerged, CreatedAt: ts(2, 0), MergedAt: tsp(3, 0), Additions: 30},
		{Number: 3, Author: "dev", State: domain.StateClosed, CreatedAt: ts(4, 0), ClosedAt: tsp(5, 0)},
	}

	a := New()
	a.Analyze(records, "r", nil, nil)
	result := a.Result()

	dev := result.RepositoryMetrics[0].Developers["dev"]
	assert.Equal(t, 66.7, dev.ProductivityMetrics.MergeRatePercent)
	// mean of the concatenated added/deleted samples {100, 30, 20} = 50
	assert.Equal(t, 50.0, dev.ProductivityMetrics.AveragePRSize)
	assert.Equal(t, 0.0, dev.ProductivityMetrics.PRsPerWeek)
	assert.Equal(t, 2, dev.TimeMetrics.TimeToMerge.Count)
	assert.Equal(t, 1, dev.TimeMetrics.TimeToClose.Count)
}
