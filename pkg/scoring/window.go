package scoring

import (
	"shockscore-server/pkg/emotion"
	"shockscore-server/pkg/privacy"
)

// Windowed is the smoothed, aggregate-shaped view over a trailing time
// window. SampleSize counts the individual face vectors that went into
// the average, not the number of frames.
type Windowed struct {
	Emotions      emotion.Vector `json:"emotions"`
	SampleSize    int            `json:"sample_size"`
	WindowSeconds float64        `json:"window_seconds"`
}

type windowFrame struct {
	timestamp float64
	vectors   []emotion.Vector
}

// WindowAggregator keeps the per-frame face vectors prior to averaging
// so the rolling window can re-average across individuals. Averaging
// the already-averaged aggregates would weight a one-face frame the
// same as a fifty-face frame.
//
// Frames must be added in timestamp order; the history is scoped to
// the session's lifetime.
type WindowAggregator struct {
	frames []windowFrame
}

// NewWindowAggregator creates an empty rolling window.
func NewWindowAggregator() *WindowAggregator {
	return &WindowAggregator{frames: make([]windowFrame, 0, 256)}
}

// AddFrame records a frame's face vectors. Nil observations are
// skipped; a frame with no valid faces still advances the window's
// notion of the latest timestamp.
func (w *WindowAggregator) AddFrame(timestamp float64, observations []*emotion.FaceObservation) {
	vectors := make([]emotion.Vector, 0, len(observations))
	for _, obs := range observations {
		if obs != nil {
			vectors = append(vectors, obs.Scores)
		}
	}
	w.frames = append(w.frames, windowFrame{timestamp: timestamp, vectors: vectors})
}

// Current re-averages every individual vector whose frame timestamp is
// within windowSeconds of the latest frame. An empty window returns
// the zero result with SampleSize 0.
func (w *WindowAggregator) Current(windowSeconds float64) Windowed {
	if len(w.frames) == 0 {
		return Windowed{}
	}

	cutoff := w.frames[len(w.frames)-1].timestamp - windowSeconds

	var totals emotion.Vector
	count := 0
	for _, frame := range w.frames {
		if frame.timestamp < cutoff {
			continue
		}
		for _, vec := range frame.vectors {
			for l := emotion.Label(0); l < emotion.NumLabels; l++ {
				totals[l] += vec[l]
			}
			count++
		}
	}

	if count == 0 {
		return Windowed{WindowSeconds: windowSeconds}
	}

	var averages emotion.Vector
	for l := emotion.Label(0); l < emotion.NumLabels; l++ {
		averages[l] = privacy.Round2(totals[l] / float64(count))
	}

	return Windowed{
		Emotions:      averages,
		SampleSize:    count,
		WindowSeconds: windowSeconds,
	}
}

// FrameCount returns the number of frames recorded so far.
func (w *WindowAggregator) FrameCount() int {
	return len(w.frames)
}
