package scoring

import (
	"gonum.org/v1/gonum/stat"

	"shockscore-server/pkg/emotion"
	"shockscore-server/pkg/privacy"
)

// CalibrationState tracks the calibrator's forward-only state machine.
type CalibrationState int

const (
	StateUncalibrated CalibrationState = iota
	StateCalibrating
	StateCalibrated
)

func (s CalibrationState) String() string {
	switch s {
	case StateUncalibrated:
		return "uncalibrated"
	case StateCalibrating:
		return "calibrating"
	case StateCalibrated:
		return "calibrated"
	}
	return "unknown"
}

// minCalibrationSamples is the floor for a meaningful baseline.
const minCalibrationSamples = 5

// Baseline is the session's neutral reference level for fear and
// surprise. It is frozen once Established is true.
type Baseline struct {
	Fear        float64 `json:"fear"`
	Surprise    float64 `json:"surprise"`
	Established bool    `json:"established"`
}

// Calibrator observes the opening aggregates of a session and fixes
// the baseline from their fear/surprise means. Transitions run only
// forward; there is no re-calibration mid-session.
type Calibrator struct {
	targetSamples int
	state         CalibrationState
	fearSamples   []float64
	surpriseSamps []float64
	baseline      Baseline
}

// NewCalibrator creates a calibrator that establishes the baseline
// after targetSamples aggregates, clamped to the minimum of 5.
func NewCalibrator(targetSamples int) *Calibrator {
	if targetSamples < minCalibrationSamples {
		targetSamples = minCalibrationSamples
	}
	return &Calibrator{
		targetSamples: targetSamples,
		fearSamples:   make([]float64, 0, targetSamples),
		surpriseSamps: make([]float64, 0, targetSamples),
	}
}

// Observe buffers an aggregate's fear/surprise readings. Aggregates
// with no audience carry no emotional signal and are skipped so they
// cannot drag the baseline toward zero. Once calibrated, further
// observations are ignored. Too few samples is not an error: the
// calibrator simply defers until enough arrive.
func (c *Calibrator) Observe(agg privacy.Aggregate) {
	if c.state == StateCalibrated {
		return
	}
	if agg.AudienceSize == 0 {
		return
	}

	c.state = StateCalibrating
	c.fearSamples = append(c.fearSamples, agg.Emotions[emotion.Fear])
	c.surpriseSamps = append(c.surpriseSamps, agg.Emotions[emotion.Surprise])

	if len(c.fearSamples) >= c.targetSamples {
		c.baseline = Baseline{
			Fear:        stat.Mean(c.fearSamples, nil),
			Surprise:    stat.Mean(c.surpriseSamps, nil),
			Established: true,
		}
		c.state = StateCalibrated
	}
}

// State returns the current calibration state.
func (c *Calibrator) State() CalibrationState {
	return c.state
}

// Baseline returns the current baseline. Established is false until
// calibration completes; callers must tolerate an unestablished
// baseline indefinitely.
func (c *Calibrator) Baseline() Baseline {
	return c.baseline
}

// SampleCount returns how many calibration samples have been buffered.
func (c *Calibrator) SampleCount() int {
	return len(c.fearSamples)
}
