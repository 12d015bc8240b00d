package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shockscore-server/pkg/emotion"
)

func faceWithFear(fear float64) *emotion.FaceObservation {
	v := emotion.Vector{}
	v[emotion.Fear] = fear
	return &emotion.FaceObservation{Dominant: emotion.Fear, Scores: v}
}

func TestWindowWeightsByAudienceSize(t *testing.T) {
	w := NewWindowAggregator()

	// Two faces at t=0 and one at t=1: the window average must weight
	// per face, not per frame.
	w.AddFrame(0, []*emotion.FaceObservation{faceWithFear(10), faceWithFear(20)})
	w.AddFrame(1, []*emotion.FaceObservation{faceWithFear(70)})

	win := w.Current(5)
	assert.Equal(t, 3, win.SampleSize)
	assert.Equal(t, 33.33, win.Emotions[emotion.Fear])
	assert.Equal(t, 5.0, win.WindowSeconds)
}

func TestWindowCutoff(t *testing.T) {
	w := NewWindowAggregator()
	w.AddFrame(0, []*emotion.FaceObservation{faceWithFear(100)})
	w.AddFrame(10, []*emotion.FaceObservation{faceWithFear(40)})

	win := w.Current(2)
	assert.Equal(t, 1, win.SampleSize)
	assert.Equal(t, 40.0, win.Emotions[emotion.Fear])

	// The frame exactly at the cutoff is included.
	wide := w.Current(10)
	assert.Equal(t, 2, wide.SampleSize)
	assert.Equal(t, 70.0, wide.Emotions[emotion.Fear])
}

func TestWindowEmpty(t *testing.T) {
	w := NewWindowAggregator()
	assert.Equal(t, Windowed{}, w.Current(5))
}

func TestWindowEmptyFramesAdvanceTime(t *testing.T) {
	w := NewWindowAggregator()
	w.AddFrame(0, []*emotion.FaceObservation{faceWithFear(80)})
	w.AddFrame(20, nil)

	// The empty frame moved the latest timestamp past the cutoff, so
	// the old faces fall out of the window.
	win := w.Current(5)
	assert.Equal(t, 0, win.SampleSize)
	assert.Equal(t, emotion.Vector{}, win.Emotions)
	assert.Equal(t, 2, w.FrameCount())
}

func TestWindowFiltersNilObservations(t *testing.T) {
	w := NewWindowAggregator()
	w.AddFrame(0, []*emotion.FaceObservation{nil, faceWithFear(30), nil})

	win := w.Current(5)
	assert.Equal(t, 1, win.SampleSize)
	assert.Equal(t, 30.0, win.Emotions[emotion.Fear])
}
