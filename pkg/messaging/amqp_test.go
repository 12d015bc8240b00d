package messaging

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	apperrors "shockscore-server/pkg/errors"
	"shockscore-server/pkg/privacy"
	"shockscore-server/pkg/report"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestNewAMQPClientDefaults(t *testing.T) {
	c := NewAMQPClient(testLogger(), AMQPConfig{
		URL:       "amqp://localhost",
		QueueName: "metrics",
	})

	assert.Equal(t, "metrics", c.config.RoutingKey)
	assert.Equal(t, 5*time.Second, c.config.RetryDelay)
	assert.Equal(t, 3, c.config.MaxRetries)
	assert.True(t, c.config.Durable)
	assert.False(t, c.IsConnected())
}

func TestConnectRequiresURLAndQueue(t *testing.T) {
	c := NewAMQPClient(testLogger(), AMQPConfig{})
	assert.Error(t, c.Connect())

	c = NewAMQPClient(testLogger(), AMQPConfig{URL: "amqp://localhost"})
	assert.Error(t, c.Connect())
}

func TestPublishMetricWhenDisconnected(t *testing.T) {
	c := NewAMQPClient(testLogger(), AMQPConfig{
		URL:       "amqp://localhost",
		QueueName: "metrics",
	})

	err := c.PublishMetric("sess-1", privacy.Aggregate{
		SessionID:    "sess-1",
		PrivacyLevel: privacy.PrivacyLevelAnonymized,
	})
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestPublishPayloadRefusesNonCompliant(t *testing.T) {
	c := NewAMQPClient(testLogger(), AMQPConfig{
		URL:       "amqp://localhost",
		QueueName: "metrics",
	})

	// The privacy guard runs before any connection check: a bad payload
	// is refused outright, not reported as a connectivity problem.
	payload := privacy.NewTransmissionPayload(
		privacy.SessionMetadata{SessionID: "sess-1"},
		[]privacy.Aggregate{{SessionID: "sess-1", PrivacyLevel: "raw"}},
	)

	err := c.PublishPayload(&payload)
	assert.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrPrivacyViolation))
	assert.NotErrorIs(t, err, apperrors.ErrNotConnected)
}

func TestPublishReportGatePassesCleanReport(t *testing.T) {
	c := NewAMQPClient(testLogger(), AMQPConfig{
		URL:       "amqp://localhost",
		QueueName: "metrics",
	})

	// A clean report with no connection fails on connectivity, proving
	// the compliance gate passed first.
	err := c.PublishReport(privacy.SessionMetadata{SessionID: "sess-1"}, &report.Report{})
	assert.ErrorIs(t, err, apperrors.ErrNotConnected)
}
