package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"shockscore-server/pkg/emotion"
	"shockscore-server/pkg/errors"
	"shockscore-server/pkg/metrics"
	"shockscore-server/pkg/privacy"
	"shockscore-server/pkg/report"
	"shockscore-server/pkg/scoring"
)

// Frame is the per-frame input at the engine boundary: a timestamp in
// seconds from session start and the classifier's observations. A nil
// observation means the classifier produced no result for that face;
// the engine filters those uniformly regardless of the reason.
type Frame struct {
	Timestamp    float64                    `json:"timestamp"`
	Observations []*emotion.FaceObservation `json:"observations"`
}

// FrameResult is the outcome of running one frame through the
// pipeline.
type FrameResult struct {
	SessionID string            `json:"session_id"`
	Aggregate privacy.Aggregate `json:"aggregate"`
	Windowed  scoring.Windowed  `json:"windowed"`
	Score     float64           `json:"shock_score"`
	IsScare   bool              `json:"is_scare"`
}

// Publisher delivers anonymized aggregates across the trust boundary.
type Publisher interface {
	PublishMetric(sessionID string, aggregate privacy.Aggregate) error
}

// Broadcaster fans live frame results out to observers (e.g. the
// WebSocket hub). Implementations must not block.
type Broadcaster interface {
	BroadcastSample(result *FrameResult)
}

// Options configures a session's scoring behavior.
type Options struct {
	SessionID string
	Metadata  privacy.SessionMetadata

	Weights           scoring.Weights
	ScareThreshold    float64
	WindowSeconds     float64
	CalibrationFrames int
	AuditLogSize      int

	// ScareHistorySize bounds the trailing score window handed to the
	// scare detector.
	ScareHistorySize int
	// ScareWarmupSamples is how many scores must exist before the
	// detector is consulted at all.
	ScareWarmupSamples int

	Publisher   Publisher
	Broadcaster Broadcaster
}

func (o *Options) applyDefaults() {
	if o.ScareThreshold == 0 {
		o.ScareThreshold = scoring.DefaultScareThreshold
	}
	if o.WindowSeconds == 0 {
		o.WindowSeconds = 5
	}
	if o.CalibrationFrames == 0 {
		o.CalibrationFrames = 30
	}
	if o.ScareHistorySize == 0 {
		o.ScareHistorySize = 10
	}
	if o.ScareWarmupSamples == 0 {
		o.ScareWarmupSamples = 5
	}
}

// Session owns all mutable state for one screening: baseline, rolling
// window, score history, and the report timeline. All state is guarded
// by one mutex so concurrent callers serialize; frame order still must
// match arrival order, which is the caller's contract.
type Session struct {
	logger *logrus.Entry
	opts   Options

	mu         sync.Mutex
	anonymizer *privacy.Anonymizer
	calibrator *scoring.Calibrator
	window     *scoring.WindowAggregator
	calculator *scoring.Calculator
	reporter   *report.Synthesizer

	scores          []float64
	framesSeen      int
	framesProcessed int
	startedAt       time.Time

	finalized   bool
	finalReport *report.Report
}

// New creates a session ready to process frames.
func New(logger *logrus.Logger, opts Options) *Session {
	opts.applyDefaults()

	anonymizer := privacy.NewAnonymizer(logger, opts.SessionID, opts.AuditLogSize)
	opts.SessionID = anonymizer.SessionID()
	opts.Metadata.SessionID = opts.SessionID

	calculator := scoring.NewCalculator(opts.Weights)

	s := &Session{
		logger:     logger.WithField("session_id", opts.SessionID),
		opts:       opts,
		anonymizer: anonymizer,
		calibrator: scoring.NewCalibrator(opts.CalibrationFrames),
		window:     scoring.NewWindowAggregator(),
		calculator: calculator,
		reporter:   report.NewSynthesizer(logger, opts.SessionID, calculator),
		scores:     make([]float64, 0, 1024),
		startedAt:  time.Now(),
	}

	s.logger.WithFields(logrus.Fields{
		"window_seconds":     opts.WindowSeconds,
		"calibration_frames": opts.CalibrationFrames,
		"scare_threshold":    opts.ScareThreshold,
	}).Info("Analysis session created")

	return s
}

// ID returns the anonymous session identifier.
func (s *Session) ID() string {
	return s.opts.SessionID
}

// ProcessFrame runs one frame through the pipeline: anonymize, window,
// calibrate, score, scare-check, record. It returns the frame result,
// or ErrSessionFinalized once Finalize has been called.
func (s *Session) ProcessFrame(frame Frame) (*FrameResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return nil, errors.ErrSessionFinalized
	}

	started := time.Now()
	s.framesSeen++

	aggregate := s.anonymizer.Aggregate(frame.Observations, frame.Timestamp)

	s.window.AddFrame(frame.Timestamp, frame.Observations)
	windowed := s.window.Current(s.opts.WindowSeconds)

	if s.framesProcessed < s.opts.CalibrationFrames {
		s.calibrator.Observe(aggregate)
	}

	score := s.calculator.Score(windowed, s.calibrator.Baseline())
	s.scores = append(s.scores, score)

	isScare := false
	if len(s.scores) >= s.opts.ScareWarmupSamples {
		history := s.scores
		if len(history) > s.opts.ScareHistorySize {
			history = history[len(history)-s.opts.ScareHistorySize:]
		}
		isScare = s.calculator.DetectScare(history, s.opts.ScareThreshold)
	}

	s.reporter.AddSample(frame.Timestamp, score, windowed, isScare)
	s.framesProcessed++

	result := &FrameResult{
		SessionID: s.opts.SessionID,
		Aggregate: aggregate,
		Windowed:  windowed,
		Score:     score,
		IsScare:   isScare,
	}

	if isScare {
		s.logger.WithFields(logrus.Fields{
			"timestamp":   frame.Timestamp,
			"shock_score": score,
		}).Info("Scare event detected")
	}

	s.recordMetrics(result, time.Since(started))
	s.dispatch(result)

	return result, nil
}

// dispatch hands the result to the configured publisher and
// broadcaster. Publish failures are logged, not returned: the scoring
// pipeline never fails because the boundary is down.
func (s *Session) dispatch(result *FrameResult) {
	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishMetric(s.opts.SessionID, result.Aggregate); err != nil {
			s.logger.WithError(err).Warn("Failed to publish anonymized aggregate")
			if metrics.Enabled() {
				metrics.PublishErrors.WithLabelValues(s.opts.SessionID).Inc()
			}
		} else if metrics.Enabled() {
			metrics.MetricsPublished.WithLabelValues(s.opts.SessionID).Inc()
		}
	}
	if s.opts.Broadcaster != nil {
		s.opts.Broadcaster.BroadcastSample(result)
	}
}

func (s *Session) recordMetrics(result *FrameResult, elapsed time.Duration) {
	if !metrics.Enabled() {
		return
	}
	id := s.opts.SessionID
	metrics.FramesProcessed.WithLabelValues(id).Inc()
	metrics.FacesProcessed.WithLabelValues(id).Add(float64(result.Aggregate.AudienceSize))
	if result.Aggregate.AudienceSize == 0 {
		metrics.EmptyFrames.WithLabelValues(id).Inc()
	}
	metrics.FrameProcessTime.WithLabelValues(id).Observe(elapsed.Seconds())
	metrics.ShockScore.WithLabelValues(id).Set(result.Score)
	metrics.AudienceSize.WithLabelValues(id).Set(float64(result.Aggregate.AudienceSize))
	metrics.BaselineState.WithLabelValues(id).Set(float64(s.calibrator.State()))
	if result.IsScare {
		metrics.ScareEvents.WithLabelValues(id).Inc()
	}
}

// Baseline returns the session's current baseline.
func (s *Session) Baseline() scoring.Baseline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calibrator.Baseline()
}

// Finalize closes the session and computes the report. It is
// idempotent: repeated calls return the same report. Calling it early
// cancels the session; the report reflects whatever timeline exists.
func (s *Session) Finalize() (*report.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalized {
		return s.finalReport, nil
	}
	s.finalized = true

	rep := s.reporter.Generate()

	rep.ProcessingMetadata = &report.ProcessingMetadata{
		TotalFrames:           s.framesSeen,
		ProcessedFrames:       s.framesProcessed,
		ProcessingTimeSeconds: privacy.Round2(time.Since(s.startedAt).Seconds()),
		SessionID:             s.opts.SessionID,
		Timestamp:             time.Now().Format(time.RFC3339),
	}
	privacyReport := s.anonymizer.GenerateReport()
	rep.PrivacyCompliance = &privacyReport

	// The report is the last structure to leave the core: validate it
	// before anyone can transmit it.
	if result := s.anonymizer.Validate(rep); !result.Compliant {
		if metrics.Enabled() {
			metrics.PrivacyViolations.WithLabelValues(s.opts.SessionID).Inc()
		}
		return nil, errors.NewPrivacyViolation("session report failed validation", result.Violations)
	}

	s.finalReport = &rep

	s.logger.WithFields(logrus.Fields{
		"frames_processed": s.framesProcessed,
		"faces_processed":  s.anonymizer.FacesProcessed(),
	}).Info("Analysis session finalized")

	return s.finalReport, nil
}

// Finalized reports whether the session has been closed.
func (s *Session) Finalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalized
}

// Metadata returns the session's screening metadata.
func (s *Session) Metadata() privacy.SessionMetadata {
	return s.opts.Metadata
}
