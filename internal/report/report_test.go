// internal/report/report_test.go
package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/go2siri/github-pr-metrics/internal/domain"
)

func sampleResult() *domain.AnalysisResult {
	return &domain.AnalysisResult{
		TaskID: "t1",
		Status: domain.StatusCompleted,
		Metadata: domain.AnalysisMetadata{
			TotalRepositories: 1,
			TotalDevelopers:   2,
			TotalPRsProcessed: 5,
		},
		RepositoryMetrics: []domain.RepositoryMetrics{
			{
				Repository: "octo/hello",
				TotalPRs:   5,
				Developers: map[string]*domain.DeveloperMetrics{
					"octocat": {
						Developer:    "octocat",
						BasicMetrics: domain.BasicCounts{Total: 3, Merged: 2, Open: 1},
						TimeMetrics: domain.TimeMetrics{
							TimeToMerge: domain.SampleStats{Count: 2, Mean: 24.5, Median: 24.5},
						},
						SizeMetrics: domain.SizeMetrics{
							LinesAdded: domain.SampleStats{Count: 3, Mean: 120},
						},
						ProductivityMetrics: domain.ProductivityMetrics{
							MergeRatePercent: 66.7,
							AveragePRSize:    130,
						},
					},
					"hubot": {
						Developer:    "hubot",
						BasicMetrics: domain.BasicCounts{Total: 2, Merged: 2},
						ProductivityMetrics: domain.ProductivityMetrics{
							MergeRatePercent: 100,
						},
					},
				},
			},
		},
		GlobalInsights: domain.GlobalInsights{
			AverageTimeToMergeHours: 24.5,
			MedianTimeToMergeHours:  24.5,
			AveragePRSizeLines:      130,
			MostActiveDeveloper:     "octocat",
			TotalRepositories:       1,
			TotalDevelopers:         2,
			TotalPRsProcessed:       5,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleResult()); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parsing exported CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2", len(rows))
	}
	if rows[0][0] != "repository" || rows[0][1] != "developer" {
		t.Errorf("unexpected header: %v", rows[0])
	}

	// Developers are sorted, hubot before octocat.
	if rows[1][1] != "hubot" || rows[2][1] != "octocat" {
		t.Errorf("row order: %q, %q", rows[1][1], rows[2][1])
	}

	octocat := rows[2]
	if octocat[0] != "octo/hello" {
		t.Errorf("repository = %q", octocat[0])
	}
	if octocat[2] != "3" {
		t.Errorf("total_prs = %q, want 3", octocat[2])
	}
	if octocat[7] != "66.7" {
		t.Errorf("merge_rate_percent = %q, want 66.7", octocat[7])
	}
	if octocat[8] != "24.5" {
		t.Errorf("avg_time_to_merge_hours = %q, want 24.5", octocat[8])
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, sampleResult()); err != nil {
		t.Fatalf("WriteText() error = %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"GitHub PR Metrics Report",
		"Pull requests:         5",
		"Most active developer: octocat",
		"octo/hello (5 PRs)",
		"octocat",
		"hubot",
		"66.7",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestWriteCSV_EmptyResult(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, &domain.AnalysisResult{}); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows for empty result, want header only", len(rows))
	}
}
