package emotion

import (
	"encoding/json"
	"fmt"
)

// Label identifies one of the seven emotion classes produced by the
// external classifier. The set is closed: every Vector carries a value
// for every label, so "all labels present" holds by construction.
type Label int

const (
	Angry Label = iota
	Disgust
	Fear
	Happy
	Sad
	Surprise
	Neutral

	// NumLabels is the arity of a Vector.
	NumLabels
)

var labelNames = [NumLabels]string{
	Angry:    "angry",
	Disgust:  "disgust",
	Fear:     "fear",
	Happy:    "happy",
	Sad:      "sad",
	Surprise: "surprise",
	Neutral:  "neutral",
}

// Labels returns all labels in their canonical order.
func Labels() []Label {
	labels := make([]Label, NumLabels)
	for i := range labels {
		labels[i] = Label(i)
	}
	return labels
}

// String returns the wire name of the label.
func (l Label) String() string {
	if l < 0 || l >= NumLabels {
		return fmt.Sprintf("unknown(%d)", int(l))
	}
	return labelNames[l]
}

// ParseLabel maps a wire name back to a Label.
func ParseLabel(name string) (Label, error) {
	for i, n := range labelNames {
		if n == name {
			return Label(i), nil
		}
	}
	return 0, fmt.Errorf("unknown emotion label: %q", name)
}

// Vector holds one score per emotion label. Scores are non-negative
// relative magnitudes; they are not required to sum to 100.
type Vector [NumLabels]float64

// Dominant returns the label with the highest score. Ties resolve to
// the earlier label in canonical order.
func (v Vector) Dominant() Label {
	best := Label(0)
	for l := Label(1); l < NumLabels; l++ {
		if v[l] > v[best] {
			best = l
		}
	}
	return best
}

// MarshalJSON encodes the vector as an object keyed by label name,
// matching the classifier's wire format.
func (v Vector) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, NumLabels)
	for l := Label(0); l < NumLabels; l++ {
		m[labelNames[l]] = v[l]
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a label-keyed object. Missing labels read as
// zero; unrecognized keys are ignored rather than rejected, since the
// upstream classifier owns the label set.
func (v *Vector) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*v = Vector{}
	for name, score := range m {
		if l, err := ParseLabel(name); err == nil {
			v[l] = score
		}
	}
	return nil
}

// FaceObservation is the per-face output of the external emotion
// classifier for a single frame. It is consumed immediately by the
// privacy aggregator and never persisted.
type FaceObservation struct {
	Dominant Label
	Scores   Vector
}

type faceObservationWire struct {
	Dominant string `json:"dominant_emotion"`
	Scores   Vector `json:"emotion_scores"`
}

// MarshalJSON encodes the observation in the classifier wire format.
func (o FaceObservation) MarshalJSON() ([]byte, error) {
	return json.Marshal(faceObservationWire{
		Dominant: o.Dominant.String(),
		Scores:   o.Scores,
	})
}

// UnmarshalJSON decodes the classifier wire format. An absent or
// unknown dominant label is recomputed from the score vector.
func (o *FaceObservation) UnmarshalJSON(data []byte) error {
	var w faceObservationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	o.Scores = w.Scores
	if l, err := ParseLabel(w.Dominant); err == nil {
		o.Dominant = l
	} else {
		o.Dominant = w.Scores.Dominant()
	}
	return nil
}
