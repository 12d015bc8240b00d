package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"shockscore-server/pkg/errors"
	"shockscore-server/pkg/privacy"
	"shockscore-server/pkg/report"
)

// AMQPConfig holds AMQP client configuration.
type AMQPConfig struct {
	URL          string
	QueueName    string
	ExchangeName string
	RoutingKey   string
	Durable      bool
	RetryDelay   time.Duration
	MaxRetries   int
}

// AMQPClient publishes anonymized metrics and final reports to the
// backend queue. Every publish passes the privacy transmission guard;
// a payload that fails it is refused, never sent.
type AMQPClient struct {
	logger *logrus.Logger
	config AMQPConfig

	connMutex sync.RWMutex
	conn      *amqp.Connection
	channel   *amqp.Channel
	connected bool
}

// NewAMQPClient creates an AMQP client. Connect must be called before
// publishing.
func NewAMQPClient(logger *logrus.Logger, config AMQPConfig) *AMQPClient {
	if config.RoutingKey == "" {
		config.RoutingKey = config.QueueName
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	config.Durable = true

	return &AMQPClient{
		logger: logger,
		config: config,
	}
}

// Connect establishes the connection and declares the queue, retrying
// up to MaxRetries times.
func (c *AMQPClient) Connect() error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.config.URL == "" || c.config.QueueName == "" {
		return errors.New("AMQP URL and queue name are required")
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		conn, err := amqp.Dial(c.config.URL)
		if err != nil {
			lastErr = err
			c.logger.WithError(err).WithField("attempt", attempt).
				Warn("Failed to connect to AMQP server, retrying")
			time.Sleep(c.config.RetryDelay)
			continue
		}

		channel, err := conn.Channel()
		if err != nil {
			lastErr = err
			conn.Close()
			c.logger.WithError(err).WithField("attempt", attempt).
				Warn("Failed to open AMQP channel, retrying")
			time.Sleep(c.config.RetryDelay)
			continue
		}

		queue, err := channel.QueueDeclare(
			c.config.QueueName,
			c.config.Durable,
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			lastErr = err
			channel.Close()
			conn.Close()
			c.logger.WithError(err).WithField("attempt", attempt).
				Warn("Failed to declare AMQP queue, retrying")
			time.Sleep(c.config.RetryDelay)
			continue
		}

		c.conn = conn
		c.channel = channel
		c.connected = true

		c.logger.WithFields(logrus.Fields{
			"queue":     queue.Name,
			"consumers": queue.Consumers,
		}).Info("Connected to AMQP server")
		return nil
	}

	return errors.Wrap(lastErr, "AMQP connection failed after retries")
}

// Disconnect closes the channel and connection.
func (c *AMQPClient) Disconnect() {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// IsConnected reports whether the client holds an open channel.
func (c *AMQPClient) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.connected
}

// PublishMetric sends one anonymized per-frame aggregate wrapped in a
// transmission payload. Implements session.Publisher.
func (c *AMQPClient) PublishMetric(sessionID string, aggregate privacy.Aggregate) error {
	payload := privacy.NewTransmissionPayload(
		privacy.SessionMetadata{SessionID: sessionID},
		[]privacy.Aggregate{aggregate},
	)
	return c.PublishPayload(&payload)
}

// PublishPayload validates and sends a transmission payload.
func (c *AMQPClient) PublishPayload(payload *privacy.TransmissionPayload) error {
	if err := privacy.ValidatePayload(payload); err != nil {
		c.logger.WithError(err).
			WithField("session_id", payload.SessionMetadata.SessionID).
			Error("Refusing to transmit non-compliant payload")
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	return c.publish(body)
}

// reportMessage is the queue envelope for a final session report.
type reportMessage struct {
	SessionMetadata privacy.SessionMetadata `json:"session_metadata"`
	Report          *report.Report          `json:"report"`
	DataType        string                  `json:"data_type"`
	ContainsPII     bool                    `json:"contains_pii"`
}

// PublishReport sends a finalized session report. Reports are derived
// entirely from anonymized aggregates but still pass the recursive
// denylist check before leaving the boundary.
func (c *AMQPClient) PublishReport(meta privacy.SessionMetadata, rep *report.Report) error {
	msg := reportMessage{
		SessionMetadata: meta,
		Report:          rep,
		DataType:        "session_report",
	}

	if result := privacy.CheckCompliance(msg); !result.Compliant {
		err := errors.NewPrivacyViolation("report transmission refused", result.Violations)
		c.logger.WithError(err).WithField("session_id", meta.SessionID).
			Error("Refusing to transmit non-compliant report")
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := c.publish(body); err != nil {
		return err
	}

	c.logger.WithField("session_id", meta.SessionID).Info("Published session report")
	return nil
}

func (c *AMQPClient) publish(body []byte) error {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	if !c.connected || c.channel == nil {
		return errors.ErrNotConnected
	}

	err := c.channel.Publish(
		c.config.ExchangeName,
		c.config.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
