package scoring

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"shockscore-server/pkg/emotion"
	"shockscore-server/pkg/privacy"
)

// Weights are the fixed shock score coefficients. Fear carries the
// highest impact; surprise indicates a landed scare; tension blends
// fear with the visceral disgust response.
type Weights struct {
	Fear     float64
	Surprise float64
	Tension  float64
}

// DefaultWeights are the production coefficients.
var DefaultWeights = Weights{
	Fear:     2.0,
	Surprise: 1.5,
	Tension:  0.5,
}

// DefaultScareThreshold is the minimum score jump that qualifies as a
// scare event.
const DefaultScareThreshold = 30.0

// Calculator converts smoothed aggregates into bounded intensity
// scores. All methods are pure functions of their inputs.
type Calculator struct {
	weights Weights
}

// NewCalculator creates a calculator with the given weights; zero
// weights fall back to the defaults.
func NewCalculator(weights Weights) *Calculator {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	return &Calculator{weights: weights}
}

// Score computes the instantaneous shock score in [0, 100] from a
// windowed aggregate and the session baseline.
//
// With an established baseline the fear/surprise contributions are the
// non-negative deltas above it; before calibration the raw values are
// used. The raw weighted sum is capped at 100 without normalizing by
// the weight sum, so extreme deltas clamp rather than scale.
func (c *Calculator) Score(win Windowed, baseline Baseline) float64 {
	fear := win.Emotions[emotion.Fear]
	surprise := win.Emotions[emotion.Surprise]
	disgust := win.Emotions[emotion.Disgust]

	fearDelta := fear
	surpriseDelta := surprise
	if baseline.Established {
		fearDelta = math.Max(0, fear-baseline.Fear)
		surpriseDelta = math.Max(0, surprise-baseline.Surprise)
	}

	tension := (fear + disgust) / 2

	raw := fearDelta*c.weights.Fear +
		surpriseDelta*c.weights.Surprise +
		tension*c.weights.Tension

	return privacy.Round2(math.Min(100, raw))
}

// DetectScare reports whether the latest score in history is a spike
// relative to a short trailing reference window.
//
// With five or more samples the reference is the mean of the three
// samples ending two before the last; with fewer it is the first
// sample. The check is stateless and does not deduplicate consecutive
// firings; the session layer decides how scares are recorded.
func (c *Calculator) DetectScare(history []float64, threshold float64) bool {
	if len(history) < 3 {
		return false
	}

	reference := history[0]
	if len(history) >= 5 {
		reference = stat.Mean(history[len(history)-5:len(history)-2], nil)
	}

	current := history[len(history)-1]
	return current-reference >= threshold
}

// EPM computes the Emotional Performance Metric in [0, 10] over a
// session's score series.
//
//	EPM = (avg * peak_factor * consistency) / 10
//
// where peak_factor is the series maximum over 100 and consistency
// penalizes high variance (population standard deviation over 50,
// clamped to 1). An empty series scores 0.
func (c *Calculator) EPM(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}

	avg := stat.Mean(scores, nil)

	peak := scores[0]
	for _, s := range scores[1:] {
		if s > peak {
			peak = s
		}
	}
	peakFactor := peak / 100

	consistency := 1.0
	if len(scores) > 1 {
		stddev := stat.PopStdDev(scores, nil)
		consistency = 1.0 - math.Min(1.0, stddev/50)
	}

	epm := (avg * peakFactor * consistency) / 10
	return privacy.Round2(math.Min(10, epm))
}
