package privacy

import (
	"encoding/json"
	"fmt"

	"shockscore-server/pkg/errors"
)

// forbiddenKeys is the PII denylist. Presence of any of these keys at
// any depth of a structure marks it non-compliant.
var forbiddenKeys = map[string]struct{}{
	"face_image":       {},
	"face_embedding":   {},
	"face_id":          {},
	"person_id":        {},
	"facial_landmarks": {},
	"bounding_box":     {},
	"video_frame":      {},
	"name":             {},
	"identity":         {},
	"demographics":     {},
	"age":              {},
	"gender":           {},
	"race":             {},
}

// ComplianceResult is the outcome of a PII compliance check.
type ComplianceResult struct {
	Compliant  bool     `json:"compliant"`
	Violations []string `json:"violations,omitempty"`
}

// CheckCompliance recursively inspects a nested structure for
// denylisted PII keys. Compliance is independent of nesting depth or
// position. Typed structs are inspected through their JSON encoding,
// which is exactly the shape that would leave the trust boundary.
func CheckCompliance(data interface{}) ComplianceResult {
	result := ComplianceResult{Compliant: true}
	walk(normalize(data), "$", &result)
	return result
}

// normalize converts typed values into the generic map/slice form the
// walker understands.
func normalize(data interface{}) interface{} {
	switch data.(type) {
	case nil, map[string]interface{}, []interface{}:
		return data
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return data
	}
	return generic
}

func walk(data interface{}, path string, result *ComplianceResult) {
	switch v := data.(type) {
	case map[string]interface{}:
		for key, value := range v {
			if _, forbidden := forbiddenKeys[key]; forbidden {
				result.Compliant = false
				result.Violations = append(result.Violations,
					fmt.Sprintf("forbidden key %q at %s", key, path))
			}
			walk(value, path+"."+key, result)
		}
	case []interface{}:
		for i, item := range v {
			walk(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}

// DataTypeAggregate is the only data type permitted through the
// transmission boundary.
const DataTypeAggregate = "anonymized_aggregate"

// SessionMetadata identifies a screening for B2B reporting. None of
// its fields refer to an individual.
type SessionMetadata struct {
	SessionID      string  `json:"session_id"`
	FilmID         string  `json:"film_id,omitempty"`
	CinemaLocation string  `json:"cinema_location,omitempty"`
	ScreeningTime  string  `json:"screening_time,omitempty"`
	RuntimeSeconds float64 `json:"runtime_seconds,omitempty"`
}

// TransmissionPayload wraps anonymized metrics for delivery to the
// backend API.
type TransmissionPayload struct {
	APIVersion       string          `json:"api_version"`
	SessionMetadata  SessionMetadata `json:"session_metadata"`
	Metrics          []Aggregate     `json:"metrics"`
	DataType         string          `json:"data_type"`
	ContainsPII      bool            `json:"contains_pii"`
	PrivacyCompliant bool            `json:"privacy_compliant"`
}

// NewTransmissionPayload builds a payload ready for the boundary check.
func NewTransmissionPayload(meta SessionMetadata, metrics []Aggregate) TransmissionPayload {
	return TransmissionPayload{
		APIVersion:       "1.0",
		SessionMetadata:  meta,
		Metrics:          metrics,
		DataType:         DataTypeAggregate,
		PrivacyCompliant: true,
	}
}

// ValidatePayload is the final check before a payload leaves the trust
// boundary. It rejects any payload flagged as containing PII, any
// non-aggregate data type, any metric whose privacy level is not
// "anonymized", and any denylisted key anywhere in the structure.
func ValidatePayload(payload *TransmissionPayload) error {
	var violations []string

	if payload.ContainsPII {
		violations = append(violations, "payload flagged contains_pii")
	}
	if payload.DataType != DataTypeAggregate {
		violations = append(violations, fmt.Sprintf("unexpected data type %q", payload.DataType))
	}
	for i, metric := range payload.Metrics {
		if metric.PrivacyLevel != PrivacyLevelAnonymized {
			violations = append(violations,
				fmt.Sprintf("metric %d has privacy level %q", i, metric.PrivacyLevel))
		}
		if metric.ContainsPII {
			violations = append(violations, fmt.Sprintf("metric %d flagged contains_pii", i))
		}
	}
	if result := CheckCompliance(payload); !result.Compliant {
		violations = append(violations, result.Violations...)
	}

	if len(violations) > 0 {
		return errors.NewPrivacyViolation("transmission refused", violations)
	}
	return nil
}
