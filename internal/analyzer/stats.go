package analyzer

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/go2siri/github-pr-metrics/internal/domain"
)

// sampleStats derives the statistics block for one distribution. An empty
// sequence yields all zeroes; a single sample has a standard deviation of
// zero rather than being undefined.
func sampleStats(values []float64) domain.SampleStats {
	if len(values) == 0 {
		return domain.SampleStats{}
	}

	mean, _ := stats.Mean(values)
	median, _ := stats.Median(values)
	min, _ := stats.Min(values)
	max, _ := stats.Max(values)

	var stdDev float64
	if len(values) > 1 {
		stdDev, _ = stats.StandardDeviationSample(values)
	}

	return domain.SampleStats{
		Count:  len(values),
		Mean:   round(mean, 2),
		Median: round(median, 2),
		Min:    round(min, 2),
		Max:    round(max, 2),
		StdDev: round(stdDev, 2),
	}
}

func meanOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean, _ := stats.Mean(values)
	return mean
}

func medianOrZero(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	median, _ := stats.Median(values)
	return median
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
