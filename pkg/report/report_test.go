package report

import (
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"shockscore-server/pkg/emotion"
	"shockscore-server/pkg/scoring"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func newTestSynthesizer() *Synthesizer {
	return NewSynthesizer(testLogger(), "sess-1", scoring.NewCalculator(scoring.Weights{}))
}

func windowedFear(fear float64, size int) scoring.Windowed {
	v := emotion.Vector{}
	v[emotion.Fear] = fear
	return scoring.Windowed{Emotions: v, SampleSize: size}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00", FormatTimestamp(0))
	assert.Equal(t, "02:05", FormatTimestamp(125.5))
	assert.Equal(t, "00:59", FormatTimestamp(59.9))
	// Minutes run past 59 without rolling into hours.
	assert.Equal(t, "62:05", FormatTimestamp(3725))
}

func TestGenerateEmptyReport(t *testing.T) {
	s := newTestSynthesizer()
	rep := s.Generate()

	assert.Nil(t, rep.OverallMetrics)
	assert.Empty(t, rep.PeakMoments)
	assert.Empty(t, rep.ScareEvents)
	assert.Empty(t, rep.MissedOpportunities)
	assert.Empty(t, rep.TimelineData)
	assert.Equal(t, TensionAnalysis{}, rep.TensionAnalysis)

	data, err := json.Marshal(rep)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"overall_metrics":{}`)
}

func TestReportJSONRoundTripIdempotent(t *testing.T) {
	s := newTestSynthesizer()
	empty := s.Generate()

	first, err := json.Marshal(empty)
	assert.NoError(t, err)

	var decoded Report
	assert.NoError(t, json.Unmarshal(first, &decoded))
	assert.Nil(t, decoded.OverallMetrics)

	second, err := json.Marshal(decoded)
	assert.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func TestGenerateOverallMetrics(t *testing.T) {
	s := newTestSynthesizer()
	s.AddSample(0, 10, windowedFear(10, 3), false)
	s.AddSample(1, 20, windowedFear(20, 3), false)
	s.AddSample(2, 60, windowedFear(60, 3), true)

	rep := s.Generate()
	m := rep.OverallMetrics
	assert.NotNil(t, m)
	assert.Equal(t, 2.0, m.TotalRuntimeSeconds)
	assert.Equal(t, 30.0, m.AverageShockScore)
	assert.Equal(t, 60.0, m.PeakShockScore)
	assert.Equal(t, 1, m.TotalScareEvents)
	assert.Equal(t, 3, m.AverageAudienceSize)
}

func TestPeakMomentsTopFiveDescending(t *testing.T) {
	s := newTestSynthesizer()
	scores := []float64{5, 80, 30, 95, 50, 70, 20}
	for i, score := range scores {
		s.AddSample(float64(i), score, windowedFear(score, 2), false)
	}

	rep := s.Generate()
	assert.Len(t, rep.PeakMoments, 5)
	assert.Equal(t, 95.0, rep.PeakMoments[0].ShockScore)
	assert.Equal(t, 80.0, rep.PeakMoments[1].ShockScore)
	assert.Equal(t, 70.0, rep.PeakMoments[2].ShockScore)
	assert.Equal(t, "fear", rep.PeakMoments[0].DominantEmotion)
	assert.Equal(t, "00:03", rep.PeakMoments[0].Timestamp)
}

func TestPeakMomentsStableOnTies(t *testing.T) {
	s := newTestSynthesizer()
	s.AddSample(0, 50, windowedFear(50, 1), false)
	s.AddSample(1, 50, windowedFear(50, 1), false)

	rep := s.Generate()
	assert.Equal(t, "00:00", rep.PeakMoments[0].Timestamp)
	assert.Equal(t, "00:01", rep.PeakMoments[1].Timestamp)
}

func TestMissedOpportunitiesOnlyWeakMoments(t *testing.T) {
	s := newTestSynthesizer()
	scores := []float64{5, 8, 12, 40, 3}
	for i, score := range scores {
		s.AddSample(float64(i), score, windowedFear(score, 2), false)
	}

	rep := s.Generate()
	// Only scores under 10 qualify, ascending.
	assert.Len(t, rep.MissedOpportunities, 3)
	assert.Equal(t, 3.0, rep.MissedOpportunities[0].ShockScore)
	assert.Equal(t, 5.0, rep.MissedOpportunities[1].ShockScore)
	assert.Equal(t, 8.0, rep.MissedOpportunities[2].ShockScore)
	assert.Equal(t, weakRecommendation, rep.MissedOpportunities[0].Recommendation)
}

func TestMissedOpportunitiesEmptyWhenAllStrong(t *testing.T) {
	s := newTestSynthesizer()
	for i := 0; i < 5; i++ {
		s.AddSample(float64(i), 50, windowedFear(50, 2), false)
	}
	assert.Empty(t, s.Generate().MissedOpportunities)
}

func TestScareEventsRendered(t *testing.T) {
	s := newTestSynthesizer()
	s.AddSample(10, 15, windowedFear(15, 2), false)
	s.AddSample(75, 80, windowedFear(80, 2), true)

	rep := s.Generate()
	assert.Len(t, rep.ScareEvents, 1)
	assert.Equal(t, "01:15", rep.ScareEvents[0].Timestamp)
	assert.Equal(t, 80.0, rep.ScareEvents[0].Intensity)
}

func TestAnalyzeTensionCountsClosedRuns(t *testing.T) {
	scores := make([]float64, 0, 80)
	// A 30-sample run above the threshold, closed by a low sample.
	for i := 0; i < 30; i++ {
		scores = append(scores, 25)
	}
	scores = append(scores, 5)
	// A 10-sample run: too short to count.
	for i := 0; i < 10; i++ {
		scores = append(scores, 25)
	}
	scores = append(scores, 5)

	analysis := analyzeTension(scores)
	assert.Equal(t, 1, analysis.SustainedTensionPeriods)
	assert.Equal(t, 30.0, analysis.AverageTensionDuration)
}

func TestAnalyzeTensionIgnoresOpenRun(t *testing.T) {
	// A qualifying run that never closes before the series ends is not
	// counted.
	scores := make([]float64, 40)
	for i := range scores {
		scores[i] = 30
	}
	analysis := analyzeTension(scores)
	assert.Equal(t, 0, analysis.SustainedTensionPeriods)
	assert.Equal(t, 0.0, analysis.AverageTensionDuration)
}

func TestAnalyzeTensionThresholdIsExclusive(t *testing.T) {
	// Scores exactly at the threshold do not extend a run.
	scores := make([]float64, 40)
	for i := range scores {
		scores[i] = tensionThreshold
	}
	assert.Equal(t, 0, analyzeTension(scores).SustainedTensionPeriods)
}

func TestTimelineDataEchoed(t *testing.T) {
	s := newTestSynthesizer()
	s.AddSample(1.5, 42, windowedFear(42, 4), false)

	rep := s.Generate()
	assert.Len(t, rep.TimelineData, 1)
	assert.Equal(t, 1.5, rep.TimelineData[0].Timestamp)
	assert.Equal(t, 42.0, rep.TimelineData[0].ShockScore)
	assert.Equal(t, 4, rep.TimelineData[0].SampleSize)
}
