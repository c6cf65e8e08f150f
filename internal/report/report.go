// Package report renders an analysis result for humans (aligned text)
// and for spreadsheets (CSV).
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/go2siri/github-pr-metrics/internal/domain"
)

// csvHeader is the column layout of the per-developer CSV export.
var csvHeader = []string{
	"repository",
	"developer",
	"total_prs",
	"open_prs",
	"merged_prs",
	"closed_prs",
	"draft_prs",
	"merge_rate_percent",
	"avg_time_to_merge_hours",
	"median_time_to_merge_hours",
	"avg_time_to_close_hours",
	"avg_lines_added",
	"avg_lines_deleted",
	"avg_files_changed",
	"avg_commits",
	"average_pr_size",
}

// WriteCSV writes one row per repository/developer pair.
func WriteCSV(w io.Writer, result *domain.AnalysisResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}

	for _, rm := range result.RepositoryMetrics {
		for _, developer := range sortedDevelopers(rm.Developers) {
			dm := rm.Developers[developer]
			row := []string{
				rm.Repository,
				developer,
				strconv.Itoa(dm.BasicMetrics.Total),
				strconv.Itoa(dm.BasicMetrics.Open),
				strconv.Itoa(dm.BasicMetrics.Merged),
				strconv.Itoa(dm.BasicMetrics.Closed),
				strconv.Itoa(dm.BasicMetrics.Draft),
				formatFloat(dm.ProductivityMetrics.MergeRatePercent),
				formatFloat(dm.TimeMetrics.TimeToMerge.Mean),
				formatFloat(dm.TimeMetrics.TimeToMerge.Median),
				formatFloat(dm.TimeMetrics.TimeToClose.Mean),
				formatFloat(dm.SizeMetrics.LinesAdded.Mean),
				formatFloat(dm.SizeMetrics.LinesDeleted.Mean),
				formatFloat(dm.SizeMetrics.FilesChanged.Mean),
				formatFloat(dm.SizeMetrics.CommitsCount.Mean),
				formatFloat(dm.ProductivityMetrics.AveragePRSize),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing CSV row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteText writes a readable summary report.
func WriteText(w io.Writer, result *domain.AnalysisResult) error {
	meta := result.Metadata
	fmt.Fprintln(w, "GitHub PR Metrics Report")
	fmt.Fprintln(w, "========================")
	fmt.Fprintf(w, "Repositories analyzed: %d\n", meta.TotalRepositories)
	fmt.Fprintf(w, "Developers:            %d\n", meta.TotalDevelopers)
	fmt.Fprintf(w, "Pull requests:         %d\n", meta.TotalPRsProcessed)
	if meta.Since != nil {
		fmt.Fprintf(w, "Since:                 %s\n", meta.Since.Format("2006-01-02"))
	}
	if meta.Until != nil {
		fmt.Fprintf(w, "Until:                 %s\n", meta.Until.Format("2006-01-02"))
	}
	fmt.Fprintln(w)

	insights := result.GlobalInsights
	fmt.Fprintln(w, "Global insights")
	fmt.Fprintf(w, "  Average time to merge: %s hours\n", formatFloat(insights.AverageTimeToMergeHours))
	fmt.Fprintf(w, "  Median time to merge:  %s hours\n", formatFloat(insights.MedianTimeToMergeHours))
	fmt.Fprintf(w, "  Average PR size:       %s lines\n", formatFloat(insights.AveragePRSizeLines))
	if insights.MostActiveDeveloper != "" {
		fmt.Fprintf(w, "  Most active developer: %s\n", insights.MostActiveDeveloper)
	}
	fmt.Fprintln(w)

	for _, rm := range result.RepositoryMetrics {
		fmt.Fprintf(w, "%s (%d PRs)\n", rm.Repository, rm.TotalPRs)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  DEVELOPER\tTOTAL\tOPEN\tMERGED\tCLOSED\tDRAFT\tMERGE %\tAVG TTM (H)\tAVG SIZE")
		for _, developer := range sortedDevelopers(rm.Developers) {
			dm := rm.Developers[developer]
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\n",
				developer,
				dm.BasicMetrics.Total,
				dm.BasicMetrics.Open,
				dm.BasicMetrics.Merged,
				dm.BasicMetrics.Closed,
				dm.BasicMetrics.Draft,
				formatFloat(dm.ProductivityMetrics.MergeRatePercent),
				formatFloat(dm.TimeMetrics.TimeToMerge.Mean),
				formatFloat(dm.ProductivityMetrics.AveragePRSize))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return nil
}

func sortedDevelopers(developers map[string]*domain.DeveloperMetrics) []string {
	names := make([]string, 0, len(developers))
	for name := range developers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
