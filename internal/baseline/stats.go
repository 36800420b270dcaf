package baseline

import (
	"math"
	"sort"

	"fleetwatch/internal/models"
)

// summarize computes the baseline statistics for values. values is sorted in
// place.
func summarize(metric string, values []float64) models.MetricBaseline {
	sort.Float64s(values)

	n := len(values)
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	var stddev float64
	if n > 1 {
		stddev = math.Sqrt(sq / float64(n-1))
	}

	return models.MetricBaseline{
		MetricName:  metric,
		Mean:        mean,
		Stddev:      stddev,
		Min:         values[0],
		Max:         values[n-1],
		P50:         percentile(values, 50),
		P95:         percentile(values, 95),
		P99:         percentile(values, 99),
		SampleCount: n,
	}
}

// percentile interpolates linearly between closest ranks of sorted.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
