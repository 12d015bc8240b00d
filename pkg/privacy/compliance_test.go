package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shockscore-server/pkg/emotion"
	apperrors "shockscore-server/pkg/errors"
)

func TestCheckComplianceCleanStructure(t *testing.T) {
	data := map[string]interface{}{
		"session_id":    "abc",
		"audience_size": 3,
		"emotions": map[string]interface{}{
			"fear":     60.0,
			"surprise": 25.0,
		},
	}

	result := CheckCompliance(data)
	assert.True(t, result.Compliant)
	assert.Empty(t, result.Violations)
}

func TestCheckComplianceFindsNestedKeys(t *testing.T) {
	data := map[string]interface{}{
		"metrics": []interface{}{
			map[string]interface{}{
				"emotions": map[string]interface{}{"fear": 10.0},
			},
			map[string]interface{}{
				"debug": map[string]interface{}{
					"face_embedding": []float64{0.1, 0.2},
				},
			},
		},
	}

	result := CheckCompliance(data)
	assert.False(t, result.Compliant)
	assert.Len(t, result.Violations, 1)
	assert.Contains(t, result.Violations[0], "face_embedding")
}

func TestCheckComplianceEveryForbiddenKey(t *testing.T) {
	for key := range forbiddenKeys {
		result := CheckCompliance(map[string]interface{}{key: "x"})
		assert.False(t, result.Compliant, "key %q should be rejected", key)
	}
}

func TestCheckComplianceTypedStruct(t *testing.T) {
	// Typed values are inspected through their JSON encoding; a clean
	// aggregate must always pass.
	agg := Aggregate{
		SessionID:    "sess",
		AudienceSize: 2,
		PrivacyLevel: PrivacyLevelAnonymized,
	}
	result := CheckCompliance(agg)
	assert.True(t, result.Compliant)
}

func TestValidatePayloadAccepts(t *testing.T) {
	meta := SessionMetadata{SessionID: "sess", FilmID: "film-1"}
	metrics := []Aggregate{{
		SessionID:    "sess",
		AudienceSize: 3,
		PrivacyLevel: PrivacyLevelAnonymized,
	}}

	payload := NewTransmissionPayload(meta, metrics)
	assert.Equal(t, "1.0", payload.APIVersion)
	assert.Equal(t, DataTypeAggregate, payload.DataType)
	assert.True(t, payload.PrivacyCompliant)
	assert.NoError(t, ValidatePayload(&payload))
}

func TestValidatePayloadRejectsPIIFlag(t *testing.T) {
	payload := NewTransmissionPayload(SessionMetadata{SessionID: "sess"}, nil)
	payload.ContainsPII = true

	err := ValidatePayload(&payload)
	assert.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrPrivacyViolation))
}

func TestValidatePayloadRejectsWrongDataType(t *testing.T) {
	payload := NewTransmissionPayload(SessionMetadata{SessionID: "sess"}, nil)
	payload.DataType = "raw_frames"

	assert.Error(t, ValidatePayload(&payload))
}

func TestValidatePayloadRejectsUnanonymizedMetric(t *testing.T) {
	payload := NewTransmissionPayload(SessionMetadata{SessionID: "sess"}, []Aggregate{
		{SessionID: "sess", PrivacyLevel: "raw", Emotions: emotion.Vector{}},
	})

	err := ValidatePayload(&payload)
	assert.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrPrivacyViolation))
}
