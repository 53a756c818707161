package metricsexport

import (
	"math"
	"sort"
	"time"
)

// Summary is a basic statistics snapshot over a window of samples.
type Summary struct {
	Count      int
	From       time.Time
	To         time.Time
	AvgRTTMs   float64
	P95RTTMs   float64
	MinRTTMs   float64
	MaxRTTMs   float64
	AvgLossPct float64
	AvgRisk    float64
}

// Summarize computes summary statistics for samples at or after since.
func Summarize(items []Sample, since time.Time) Summary {
	filtered := make([]Sample, 0, len(items))
	for _, s := range items {
		if s.Timestamp.After(since) || s.Timestamp.Equal(since) {
			filtered = append(filtered, s)
		}
	}
	if len(filtered) == 0 {
		return Summary{}
	}

	values := make([]float64, 0, len(filtered))
	var sumRTT, sumLoss, sumRisk float64
	minRTT := math.MaxFloat64
	maxRTT := 0.0
	from := filtered[0].Timestamp
	to := filtered[0].Timestamp

	for _, s := range filtered {
		values = append(values, s.RTTMs)
		sumRTT += s.RTTMs
		sumLoss += s.LossPercent
		sumRisk += s.RiskNow
		if s.RTTMs < minRTT {
			minRTT = s.RTTMs
		}
		if s.RTTMs > maxRTT {
			maxRTT = s.RTTMs
		}
		if s.Timestamp.Before(from) {
			from = s.Timestamp
		}
		if s.Timestamp.After(to) {
			to = s.Timestamp
		}
	}

	sort.Float64s(values)
	count := float64(len(filtered))

	return Summary{
		Count:      len(filtered),
		From:       from,
		To:         to,
		AvgRTTMs:   sumRTT / count,
		P95RTTMs:   percentile(values, 0.95),
		MinRTTMs:   minRTT,
		MaxRTTMs:   maxRTT,
		AvgLossPct: sumLoss / count,
		AvgRisk:    sumRisk / count,
	}
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
