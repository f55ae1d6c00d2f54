package personality

import (
	"math"
	"sort"
	"time"
)

// StabilityFactor is high when a trait barely moved. History shorter than
// three points yields a moderate 0.5. Values are on the [0,1] scale.
func StabilityFactor(history []float64, current float64) float64 {
	if len(history) < 3 {
		return 0.5
	}
	values := append(append([]float64{}, history...), current)
	mean := mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	std := math.Sqrt(variance / float64(len(values)))
	return math.Max(0.1, math.Min(1, 1-std/2))
}

// TrendStrength is the magnitude of the least squares slope of history,
// scaled to [0,1]. History shorter than five points yields 0.5.
func TrendStrength(history []float64) float64 {
	n := len(history)
	if n < 5 {
		return 0.5
	}
	xMean := float64(n-1) / 2
	yMean := mean(history)

	num, den := 0.0, 0.0
	for i, y := range history {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	slope := 0.0
	if den != 0 {
		slope = num / den
	}
	return math.Max(0, math.Min(1, math.Abs(slope)*10))
}

// ConsolidateValue stabilises a trait on the [0,1] scale. The current value
// is pulled toward the historical mean in proportion to instability and
// toward its trend in proportion to trend strength, and the result is
// damped by a resistance that grows with the trait's age up to 0.8.
// Without history the value is only clamped.
func ConsolidateValue(current float64, history []float64, age time.Duration) float64 {
	if len(history) == 0 {
		return math.Max(0, math.Min(1, current))
	}

	stability := StabilityFactor(history, current)
	trend := TrendStrength(history)

	ageDays := math.Max(1, math.Floor(age.Hours()/24))
	ageMultiplier := math.Min(1, ageDays/30)

	convergence := (1 - stability) * 0.3
	trendInfluence := trend * 0.2
	resistance := ageMultiplier * 0.8

	drift := history[len(history)-1] - history[0]
	blended := current*(1-convergence-trendInfluence) +
		mean(history)*convergence +
		(current+drift)*trendInfluence

	final := current*resistance + blended*(1-resistance)
	return math.Max(0, math.Min(1, final))
}

// recentHistory returns the values of the dated snapshots at or after
// since, oldest first.
func recentHistory(history map[string]float64, since time.Time) []float64 {
	cutoff := since.UTC().Format(dateLayout)
	dates := make([]string, 0, len(history))
	for date := range history {
		if _, err := time.Parse(dateLayout, date); err != nil {
			continue
		}
		if date >= cutoff {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	values := make([]float64, 0, len(dates))
	for _, d := range dates {
		if v := history[d]; !math.IsNaN(v) {
			values = append(values, v)
		}
	}
	return values
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
