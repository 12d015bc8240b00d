package privacy

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"shockscore-server/pkg/emotion"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func obsWith(fear, surprise, neutral float64) *emotion.FaceObservation {
	v := emotion.Vector{}
	v[emotion.Fear] = fear
	v[emotion.Surprise] = surprise
	v[emotion.Neutral] = neutral
	return &emotion.FaceObservation{Dominant: v.Dominant(), Scores: v}
}

func TestAggregateAveragesAcrossFaces(t *testing.T) {
	a := NewAnonymizer(testLogger(), "sess-1", 0)

	observations := []*emotion.FaceObservation{
		obsWith(65, 20, 15),
		obsWith(70, 15, 15),
		obsWith(45, 40, 15),
	}

	agg := a.Aggregate(observations, 12.345)

	assert.Equal(t, "sess-1", agg.SessionID)
	assert.Equal(t, 3, agg.AudienceSize)
	assert.Equal(t, 60.0, agg.Emotions[emotion.Fear])
	assert.Equal(t, 25.0, agg.Emotions[emotion.Surprise])
	assert.Equal(t, 15.0, agg.Emotions[emotion.Neutral])
	assert.Equal(t, 12.35, agg.Timestamp)
	assert.Equal(t, PrivacyLevelAnonymized, agg.PrivacyLevel)
	assert.False(t, agg.ContainsPII)
}

func TestAggregateEmptyFrame(t *testing.T) {
	a := NewAnonymizer(testLogger(), "sess-1", 0)

	agg := a.Aggregate(nil, 5.0)
	assert.Equal(t, 0, agg.AudienceSize)
	assert.Equal(t, emotion.Vector{}, agg.Emotions)
	assert.Equal(t, PrivacyLevelAnonymized, agg.PrivacyLevel)
	assert.Equal(t, int64(0), a.FacesProcessed())
}

func TestAggregateFiltersNilObservations(t *testing.T) {
	a := NewAnonymizer(testLogger(), "sess-1", 0)

	observations := []*emotion.FaceObservation{
		nil,
		obsWith(40, 10, 50),
		nil,
	}

	agg := a.Aggregate(observations, 1.0)
	assert.Equal(t, 1, agg.AudienceSize)
	assert.Equal(t, 40.0, agg.Emotions[emotion.Fear])

	// All-nil frames behave like empty frames.
	empty := a.Aggregate([]*emotion.FaceObservation{nil, nil}, 2.0)
	assert.Equal(t, 0, empty.AudienceSize)
}

func TestFacesProcessedAccumulates(t *testing.T) {
	a := NewAnonymizer(testLogger(), "sess-1", 0)

	a.Aggregate([]*emotion.FaceObservation{obsWith(1, 1, 1), obsWith(2, 2, 2)}, 0)
	a.Aggregate([]*emotion.FaceObservation{obsWith(3, 3, 3)}, 1)

	assert.Equal(t, int64(3), a.FacesProcessed())
}

func TestGeneratedSessionID(t *testing.T) {
	a := NewAnonymizer(testLogger(), "", 0)
	b := NewAnonymizer(testLogger(), "", 0)

	assert.NotEmpty(t, a.SessionID())
	assert.NotEqual(t, a.SessionID(), b.SessionID())
}

func TestAuditTrailBounded(t *testing.T) {
	a := NewAnonymizer(testLogger(), "sess-1", 4)

	for i := 0; i < 10; i++ {
		a.Aggregate([]*emotion.FaceObservation{obsWith(1, 1, 1)}, float64(i))
	}

	trail := a.AuditTrail()
	assert.Len(t, trail, 4)
	// Oldest entries are trimmed first.
	assert.Equal(t, 6.0, trail[0].FrameTime)
	assert.Equal(t, "data_anonymized", trail[0].EventType)
}

func TestValidateRecordsIncidents(t *testing.T) {
	a := NewAnonymizer(testLogger(), "sess-1", 0)

	clean := a.Validate(map[string]interface{}{"emotions": map[string]interface{}{"fear": 10.0}})
	assert.True(t, clean.Compliant)

	dirty := a.Validate(map[string]interface{}{"face_id": "abc"})
	assert.False(t, dirty.Compliant)

	report := a.GenerateReport()
	assert.Equal(t, int64(1), report.PIIIncidents)
	assert.Equal(t, "GDPR_COMPLIANT", report.PrivacyLevel)
	assert.Equal(t, "aggregate_only", report.DataRetention)
	assert.Equal(t, "population_aggregation", report.AnonymizationMethod)
	assert.Equal(t, 0, report.VideoFramesStored)
	assert.Equal(t, 0, report.FacialImagesStored)
	assert.Equal(t, 0, report.FaceEmbeddingsStore)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 33.33, Round2(100.0/3.0))
	assert.Equal(t, 0.0, Round2(0))
	assert.Equal(t, 2.68, Round2(2.675000001))
}
