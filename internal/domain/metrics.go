package domain

import "time"

// SampleStats holds the derived statistics for one distribution. An empty
// distribution yields count 0 and zeroes everywhere, never NaN.
type SampleStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// BasicCounts is the per-state breakdown of pull requests.
type BasicCounts struct {
	Total  int `json:"total"`
	Open   int `json:"open"`
	Merged int `json:"merged"`
	Closed int `json:"closed"`
	Draft  int `json:"draft"`
}

// TimeMetrics groups the time-to-event distributions, in hours.
type TimeMetrics struct {
	TimeToMerge SampleStats `json:"time_to_merge"`
	TimeToClose SampleStats `json:"time_to_close"`
}

// SizeMetrics groups the change-size distributions.
type SizeMetrics struct {
	LinesAdded   SampleStats `json:"lines_added"`
	LinesDeleted SampleStats `json:"lines_deleted"`
	FilesChanged SampleStats `json:"files_changed"`
	CommitsCount SampleStats `json:"commits_count"`
}

// ProductivityMetrics holds derived per-developer ratios. PRsPerWeek is
// always zero until per-developer date ranges are tracked.
type ProductivityMetrics struct {
	MergeRatePercent float64 `json:"merge_rate_percent"`
	AveragePRSize    float64 `json:"average_pr_size"`
	PRsPerWeek       float64 `json:"prs_per_week"`
}

// DeveloperMetrics is the full metrics block for one developer within one
// repository.
type DeveloperMetrics struct {
	Developer           string              `json:"developer"`
	BasicMetrics        BasicCounts         `json:"basic_metrics"`
	TimeMetrics         TimeMetrics         `json:"time_metrics"`
	SizeMetrics         SizeMetrics         `json:"size_metrics"`
	ProductivityMetrics ProductivityMetrics `json:"productivity_metrics"`
	PullRequests        []PullRequest       `json:"prs_data"`
}

// RepositoryMetrics aggregates every developer of one repository.
type RepositoryMetrics struct {
	Repository string                       `json:"repository"`
	TotalPRs   int                          `json:"total_prs"`
	Developers map[string]*DeveloperMetrics `json:"developers"`
	Summary    BasicCounts                  `json:"summary"`
}

// GlobalInsights is computed over the union of all buckets.
type GlobalInsights struct {
	AverageTimeToMergeHours float64 `json:"average_time_to_merge_hours"`
	MedianTimeToMergeHours  float64 `json:"median_time_to_merge_hours"`
	AveragePRSizeLines      float64 `json:"average_pr_size_lines"`
	MostActiveDeveloper     string  `json:"most_active_developer,omitempty"`
	TotalRepositories       int     `json:"total_repositories"`
	TotalDevelopers         int     `json:"total_developers"`
	TotalPRsProcessed       int     `json:"total_prs_processed"`
}

// AnalysisMetadata describes the run that produced a result.
type AnalysisMetadata struct {
	TotalRepositories int        `json:"total_repositories"`
	TotalDevelopers   int        `json:"total_developers"`
	TotalPRsProcessed int        `json:"total_prs_processed"`
	DurationSeconds   float64    `json:"analysis_duration"`
	Since             *time.Time `json:"since,omitempty"`
	Until             *time.Time `json:"until,omitempty"`
}

// AnalysisResult is the immutable output of one completed task, keyed by
// task identifier. It is either absent or complete, never partial.
type AnalysisResult struct {
	TaskID            string              `json:"task_id"`
	Status            TaskStatus          `json:"status"`
	Metadata          AnalysisMetadata    `json:"analysis_metadata"`
	RepositoryMetrics []RepositoryMetrics `json:"repository_metrics"`
	GlobalInsights    GlobalInsights      `json:"global_insights"`
	CreatedAt         time.Time           `json:"created_at"`
	CompletedAt       time.Time           `json:"completed_at"`
}
