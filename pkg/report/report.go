package report

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"shockscore-server/pkg/emotion"
	"shockscore-server/pkg/privacy"
	"shockscore-server/pkg/scoring"
)

const (
	// tensionThreshold is the score floor for a sustained tension run.
	tensionThreshold = 20.0
	// tensionMinSamples is the minimum run length that counts.
	tensionMinSamples = 30

	weakMomentCeiling  = 10.0
	topMomentCount     = 5
	weakRecommendation = "Consider enhancing tension in this segment"
)

// Sample is one timeline entry: the smoothed emotions and shock score
// at a timestamp. Samples are append-only and never mutated.
type Sample struct {
	Timestamp  float64        `json:"timestamp"`
	ShockScore float64        `json:"shock_score"`
	Emotions   emotion.Vector `json:"emotions"`
	SampleSize int            `json:"sample_size"`
}

// ScareEvent marks a detected spike in the timeline.
type ScareEvent struct {
	Timestamp  float64
	ShockScore float64
}

// OverallMetrics summarizes the whole session.
type OverallMetrics struct {
	TotalRuntimeSeconds float64 `json:"total_runtime_seconds"`
	AverageShockScore   float64 `json:"average_shock_score"`
	PeakShockScore      float64 `json:"peak_shock_score"`
	EPMScore            float64 `json:"epm_score"`
	TotalScareEvents    int     `json:"total_scare_events"`
	AverageAudienceSize int     `json:"average_audience_size"`
}

// PeakMoment is one of the top scoring timeline samples.
type PeakMoment struct {
	Timestamp       string  `json:"timestamp"`
	ShockScore      float64 `json:"shock_score"`
	DominantEmotion string  `json:"dominant_emotion"`
}

// ScareMoment is a scare event rendered for the report.
type ScareMoment struct {
	Timestamp string  `json:"timestamp"`
	Intensity float64 `json:"intensity"`
}

// MissedOpportunity is a low scoring sample annotated with an
// improvement note.
type MissedOpportunity struct {
	Timestamp      string  `json:"timestamp"`
	ShockScore     float64 `json:"shock_score"`
	Recommendation string  `json:"recommendation"`
}

// TensionAnalysis summarizes sustained high-tension runs.
type TensionAnalysis struct {
	SustainedTensionPeriods int     `json:"sustained_tension_periods"`
	AverageTensionDuration  float64 `json:"average_tension_duration"`
}

// ProcessingMetadata carries engine-side processing statistics.
type ProcessingMetadata struct {
	TotalFrames           int     `json:"total_frames"`
	ProcessedFrames       int     `json:"processed_frames"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
	SessionID             string  `json:"session_id"`
	Timestamp             string  `json:"timestamp"`
}

// Report is the read-only session report. Field names are the stable
// contract downstream systems depend on. An empty session renders
// overall_metrics as the empty object.
type Report struct {
	OverallMetrics      *OverallMetrics     `json:"overall_metrics"`
	PeakMoments         []PeakMoment        `json:"peak_moments"`
	ScareEvents         []ScareMoment       `json:"scare_events"`
	MissedOpportunities []MissedOpportunity `json:"missed_opportunities"`
	TensionAnalysis     TensionAnalysis     `json:"tension_analysis"`
	TimelineData        []Sample            `json:"timeline_data"`

	ProcessingMetadata *ProcessingMetadata `json:"processing_metadata,omitempty"`
	PrivacyCompliance  *privacy.Report     `json:"privacy_compliance,omitempty"`
}

type reportAlias Report

// MarshalJSON renders a nil OverallMetrics as the empty object rather
// than null, matching the contract for empty sessions.
func (r Report) MarshalJSON() ([]byte, error) {
	if r.OverallMetrics == nil {
		return json.Marshal(struct {
			reportAlias
			OverallMetrics struct{} `json:"overall_metrics"`
		}{reportAlias: reportAlias(r)})
	}
	return json.Marshal(reportAlias(r))
}

// UnmarshalJSON is the inverse of MarshalJSON: an empty overall_metrics
// object on an empty timeline decodes back to nil, keeping the report
// idempotent under re-parse.
func (r *Report) UnmarshalJSON(data []byte) error {
	var a reportAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Report(a)
	if len(r.TimelineData) == 0 && r.OverallMetrics != nil && *r.OverallMetrics == (OverallMetrics{}) {
		r.OverallMetrics = nil
	}
	return nil
}

// Synthesizer accumulates the session timeline and computes the final
// report. Timestamps supplied to AddSample must be non-decreasing;
// that ordering is a caller contract, not something the synthesizer
// corrects.
type Synthesizer struct {
	logger     *logrus.Entry
	calculator *scoring.Calculator
	timeline   []Sample
	scares     []ScareEvent
}

// NewSynthesizer creates a synthesizer for one session.
func NewSynthesizer(logger *logrus.Logger, sessionID string, calculator *scoring.Calculator) *Synthesizer {
	return &Synthesizer{
		logger:     logger.WithField("session_id", sessionID),
		calculator: calculator,
		timeline:   make([]Sample, 0, 1024),
	}
}

// AddSample appends one timeline entry, recording a scare event when
// the detector fired for it.
func (s *Synthesizer) AddSample(timestamp, score float64, win scoring.Windowed, isScare bool) {
	s.timeline = append(s.timeline, Sample{
		Timestamp:  timestamp,
		ShockScore: score,
		Emotions:   win.Emotions,
		SampleSize: win.SampleSize,
	})
	if isScare {
		s.scares = append(s.scares, ScareEvent{Timestamp: timestamp, ShockScore: score})
	}
}

// SampleCount returns the timeline length.
func (s *Synthesizer) SampleCount() int {
	return len(s.timeline)
}

// Scores returns the shock score series in timeline order.
func (s *Synthesizer) Scores() []float64 {
	scores := make([]float64, len(s.timeline))
	for i, sample := range s.timeline {
		scores[i] = sample.ShockScore
	}
	return scores
}

// Generate computes the final report. An empty timeline yields the
// empty sentinel report with all list fields empty.
func (s *Synthesizer) Generate() Report {
	if len(s.timeline) == 0 {
		return emptyReport()
	}

	scores := s.Scores()
	sizes := make([]float64, len(s.timeline))
	for i, sample := range s.timeline {
		sizes[i] = float64(sample.SampleSize)
	}

	peak := scores[0]
	for _, score := range scores[1:] {
		if score > peak {
			peak = score
		}
	}

	report := Report{
		OverallMetrics: &OverallMetrics{
			TotalRuntimeSeconds: s.timeline[len(s.timeline)-1].Timestamp,
			AverageShockScore:   privacy.Round2(stat.Mean(scores, nil)),
			PeakShockScore:      privacy.Round2(peak),
			EPMScore:            s.calculator.EPM(scores),
			TotalScareEvents:    len(s.scares),
			AverageAudienceSize: int(stat.Mean(sizes, nil)),
		},
		PeakMoments:         s.peakMoments(),
		ScareEvents:         s.scareMoments(),
		MissedOpportunities: s.missedOpportunities(),
		TensionAnalysis:     analyzeTension(scores),
		TimelineData:        s.timeline,
	}

	s.logger.WithFields(logrus.Fields{
		"samples":      len(s.timeline),
		"scare_events": len(s.scares),
		"epm":          report.OverallMetrics.EPMScore,
	}).Info("Session report generated")

	return report
}

// peakMoments returns the top samples by score, descending, tagged
// with each sample's dominant emotion. The sort is stable so ties keep
// their original timeline order.
func (s *Synthesizer) peakMoments() []PeakMoment {
	sorted := make([]Sample, len(s.timeline))
	copy(sorted, s.timeline)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ShockScore > sorted[j].ShockScore
	})

	if len(sorted) > topMomentCount {
		sorted = sorted[:topMomentCount]
	}

	moments := make([]PeakMoment, 0, len(sorted))
	for _, sample := range sorted {
		moments = append(moments, PeakMoment{
			Timestamp:       FormatTimestamp(sample.Timestamp),
			ShockScore:      sample.ShockScore,
			DominantEmotion: sample.Emotions.Dominant().String(),
		})
	}
	return moments
}

func (s *Synthesizer) scareMoments() []ScareMoment {
	moments := make([]ScareMoment, 0, len(s.scares))
	for _, scare := range s.scares {
		moments = append(moments, ScareMoment{
			Timestamp: FormatTimestamp(scare.Timestamp),
			Intensity: scare.ShockScore,
		})
	}
	return moments
}

// missedOpportunities returns the bottom samples by score, keeping
// only those under the weak-moment ceiling.
func (s *Synthesizer) missedOpportunities() []MissedOpportunity {
	sorted := make([]Sample, len(s.timeline))
	copy(sorted, s.timeline)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ShockScore < sorted[j].ShockScore
	})

	if len(sorted) > topMomentCount {
		sorted = sorted[:topMomentCount]
	}

	moments := make([]MissedOpportunity, 0, len(sorted))
	for _, sample := range sorted {
		if sample.ShockScore >= weakMomentCeiling {
			continue
		}
		moments = append(moments, MissedOpportunity{
			Timestamp:      FormatTimestamp(sample.Timestamp),
			ShockScore:     sample.ShockScore,
			Recommendation: weakRecommendation,
		})
	}
	return moments
}

// analyzeTension scans for maximal contiguous runs of scores above the
// tension threshold lasting at least tensionMinSamples. A run still
// open when the series ends is not counted.
func analyzeTension(scores []float64) TensionAnalysis {
	var durations []float64
	runStart := -1

	for i, score := range scores {
		if score > tensionThreshold {
			if runStart < 0 {
				runStart = i
			}
			continue
		}
		if runStart >= 0 {
			if length := i - runStart; length >= tensionMinSamples {
				durations = append(durations, float64(length))
			}
			runStart = -1
		}
	}

	analysis := TensionAnalysis{SustainedTensionPeriods: len(durations)}
	if len(durations) > 0 {
		analysis.AverageTensionDuration = stat.Mean(durations, nil)
	}
	return analysis
}

// FormatTimestamp renders seconds as MM:SS. Minutes run past 59
// without rolling over to hours.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func emptyReport() Report {
	return Report{
		PeakMoments:         []PeakMoment{},
		ScareEvents:         []ScareMoment{},
		MissedOpportunities: []MissedOpportunity{},
		TimelineData:        []Sample{},
	}
}
