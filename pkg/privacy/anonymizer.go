package privacy

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shockscore-server/pkg/emotion"
)

// PrivacyLevelAnonymized is the only privacy level the engine emits.
const PrivacyLevelAnonymized = "anonymized"

// Aggregate is the anonymized, population-level emotion average for a
// single frame. It is immutable after creation and is the only
// per-frame structure allowed to cross the trust boundary.
type Aggregate struct {
	SessionID    string         `json:"session_id"`
	Timestamp    float64        `json:"timestamp"`
	AudienceSize int            `json:"audience_size"`
	Emotions     emotion.Vector `json:"emotions"`
	PrivacyLevel string         `json:"privacy_level"`
	ContainsPII  bool           `json:"contains_pii"`
}

// AuditEvent records a privacy-relevant action for the compliance
// trail. Events carry counts only, never per-face data.
type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	EventType string    `json:"event_type"`
	FaceCount int       `json:"face_count,omitempty"`
	FrameTime float64   `json:"frame_time,omitempty"`
	Result    string    `json:"result,omitempty"`
}

// Report summarizes a session's privacy posture for audit. The
// storage counters are asserted zeros: the engine has no code path
// that persists frames, images, or embeddings.
type Report struct {
	SessionID           string `json:"session_id"`
	TotalFacesProcessed int64  `json:"total_faces_processed"`
	VideoFramesStored   int    `json:"video_frames_stored"`
	FacialImagesStored  int    `json:"facial_images_stored"`
	FaceEmbeddingsStore int    `json:"face_embeddings_stored"`
	PIIIncidents        int64  `json:"pii_incidents"`
	PrivacyLevel        string `json:"privacy_level"`
	DataRetention       string `json:"data_retention"`
	AnonymizationMethod string `json:"anonymization_method"`
	AuditLogEntries     int    `json:"privacy_log_entries"`
}

// Anonymizer collapses per-face observations into anonymous population
// aggregates. The per-label mean is the privacy-critical step: once
// taken, no output field can be traced back to any single face.
type Anonymizer struct {
	logger    *logrus.Entry
	sessionID string

	mu             sync.Mutex
	facesProcessed int64
	piiIncidents   int64
	events         []AuditEvent
	maxEvents      int
}

// NewAnonymizer creates an anonymizer for one session. An empty
// sessionID generates a fresh anonymous identifier.
func NewAnonymizer(logger *logrus.Logger, sessionID string, maxAuditEvents int) *Anonymizer {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	if maxAuditEvents <= 0 {
		maxAuditEvents = 256
	}
	return &Anonymizer{
		logger:    logger.WithField("session_id", sessionID),
		sessionID: sessionID,
		events:    make([]AuditEvent, 0, 32),
		maxEvents: maxAuditEvents,
	}
}

// SessionID returns the anonymous session identifier.
func (a *Anonymizer) SessionID() string {
	return a.sessionID
}

// Aggregate averages the emotion scores of all observations into one
// anonymized aggregate. Nil observations (classifier produced no
// result for a face) are filtered out here; an empty frame yields the
// zero aggregate with audience size 0, never an error.
func (a *Anonymizer) Aggregate(observations []*emotion.FaceObservation, timestamp float64) Aggregate {
	valid := observations[:0:0]
	for _, obs := range observations {
		if obs != nil {
			valid = append(valid, obs)
		}
	}

	if len(valid) == 0 {
		return a.emptyAggregate(timestamp)
	}

	var totals emotion.Vector
	for _, obs := range valid {
		for l := emotion.Label(0); l < emotion.NumLabels; l++ {
			totals[l] += obs.Scores[l]
		}
	}

	faceCount := len(valid)
	var averages emotion.Vector
	for l := emotion.Label(0); l < emotion.NumLabels; l++ {
		averages[l] = Round2(totals[l] / float64(faceCount))
	}

	a.mu.Lock()
	a.facesProcessed += int64(faceCount)
	a.appendEventLocked(AuditEvent{
		Timestamp: time.Now(),
		SessionID: a.sessionID,
		EventType: "data_anonymized",
		FaceCount: faceCount,
		FrameTime: timestamp,
	})
	a.mu.Unlock()

	return Aggregate{
		SessionID:    a.sessionID,
		Timestamp:    Round2(timestamp),
		AudienceSize: faceCount,
		Emotions:     averages,
		PrivacyLevel: PrivacyLevelAnonymized,
	}
}

func (a *Anonymizer) emptyAggregate(timestamp float64) Aggregate {
	return Aggregate{
		SessionID:    a.sessionID,
		Timestamp:    Round2(timestamp),
		PrivacyLevel: PrivacyLevelAnonymized,
	}
}

// Validate runs the PII compliance check against an arbitrary
// structure and records the outcome on the audit trail. A failed
// validation is logged and counted, never silently dropped.
func (a *Anonymizer) Validate(data interface{}) ComplianceResult {
	result := CheckCompliance(data)

	outcome := "pass"
	if !result.Compliant {
		outcome = "FAIL"
		a.logger.WithField("violations", result.Violations).
			Error("Privacy compliance validation failed")
	}

	a.mu.Lock()
	if !result.Compliant {
		a.piiIncidents++
	}
	a.appendEventLocked(AuditEvent{
		Timestamp: time.Now(),
		SessionID: a.sessionID,
		EventType: "privacy_validation",
		Result:    outcome,
	})
	a.mu.Unlock()

	return result
}

// FacesProcessed returns the session-wide count of aggregated faces.
// The counter is audit-only and not reversible to individual data.
func (a *Anonymizer) FacesProcessed() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.facesProcessed
}

// AuditTrail returns a copy of the recorded privacy events.
func (a *Anonymizer) AuditTrail() []AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	events := make([]AuditEvent, len(a.events))
	copy(events, a.events)
	return events
}

// GenerateReport produces the session privacy compliance report.
func (a *Anonymizer) GenerateReport() Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.appendEventLocked(AuditEvent{
		Timestamp: time.Now(),
		SessionID: a.sessionID,
		EventType: "privacy_report_generated",
	})

	return Report{
		SessionID:           a.sessionID,
		TotalFacesProcessed: a.facesProcessed,
		PIIIncidents:        a.piiIncidents,
		PrivacyLevel:        "GDPR_COMPLIANT",
		DataRetention:       "aggregate_only",
		AnonymizationMethod: "population_aggregation",
		AuditLogEntries:     len(a.events),
	}
}

// appendEventLocked appends to the audit trail, trimming the oldest
// entries past the configured bound. Callers hold a.mu.
func (a *Anonymizer) appendEventLocked(event AuditEvent) {
	a.events = append(a.events, event)
	if len(a.events) > a.maxEvents {
		a.events = a.events[len(a.events)-a.maxEvents:]
	}
}

// Round2 rounds to two decimal places, the precision of every metric
// that leaves the engine.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
