package analytics

// Trend is the direction of a success-rate series.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// trendSlope is the least-squares slope beyond which a series counts as
// moving.
const trendSlope = 0.05

// CalculateTrend fits a line through values (x = 0..n-1) and classifies its
// slope.
func CalculateTrend(values []float64) Trend {
	n := float64(len(values))
	if len(values) < 2 {
		return TrendInsufficientData
	}

	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	slope := (n*sumXY - sumX*sumY) / (n*sumX2 - sumX*sumX)

	switch {
	case slope > trendSlope:
		return TrendImproving
	case slope < -trendSlope:
		return TrendDeclining
	default:
		return TrendStable
	}
}
