package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"shockscore-server/pkg/config"
	http_server "shockscore-server/pkg/http"
	"shockscore-server/pkg/messaging"
	"shockscore-server/pkg/metrics"
	"shockscore-server/pkg/privacy"
	"shockscore-server/pkg/report"
	"shockscore-server/pkg/scoring"
	"shockscore-server/pkg/session"
)

var (
	logger     = logrus.New()
	appConfig  *config.Config
	amqpClient *messaging.AMQPClient
	httpServer *http_server.Server
	scoreHub   *http_server.ScoreHub
	manager    *session.Manager

	// Context for graceful shutdown
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

func main() {
	inputPath := flag.String("input", "-", "frame stream to analyze: JSONL file path, or - for stdin")
	outputPath := flag.String("output", "", "where to write the session report JSON (default stdout)")
	filmID := flag.String("film", "", "film identifier for the session report (overrides FILM_ID)")
	cinema := flag.String("cinema", "", "cinema location for the session report (overrides CINEMA_LOCATION)")
	flag.Parse()

	// Set up logger with basic configuration (will be updated after config is loaded)
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	logger.SetOutput(os.Stderr)

	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	if err := initialize(); err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}

	if *filmID != "" {
		appConfig.Session.FilmID = *filmID
	}
	if *cinema != "" {
		appConfig.Session.CinemaLocation = *cinema
	}

	// Graceful shutdown handling: a signal cancels the root context,
	// which stops the frame loop; the session is then finalized early
	// and the partial report is still written.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigChan
		logger.WithField("signal", sig.String()).Info("Received shutdown signal, finalizing session...")
		rootCancel()
	}()

	exitCode := run(*inputPath, *outputPath)

	shutdown()
	os.Exit(exitCode)
}

// initialize loads configuration and starts the long-lived components.
func initialize() error {
	var err error

	appConfig, err = config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.SetLevel(appConfig.Logging.Level)
	if appConfig.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	logger.WithField("level", logger.GetLevel().String()).Info("Log level set")

	metrics.Init(logger)
	logger.Info("Metrics system initialized")

	manager = session.NewManager(logger)

	// AMQP is best effort: a broker outage must never block scoring.
	if appConfig.Messaging.Enabled {
		amqpClient = messaging.NewAMQPClient(logger, messaging.AMQPConfig{
			URL:        appConfig.Messaging.URL,
			QueueName:  appConfig.Messaging.QueueName,
			RetryDelay: appConfig.Messaging.RetryDelay,
			MaxRetries: appConfig.Messaging.MaxRetries,
		})
		if err := amqpClient.Connect(); err != nil {
			logger.WithError(err).Warn("Failed to connect to AMQP server, continuing without AMQP")
			amqpClient = nil
		} else {
			logger.Info("AMQP client initialized successfully")
		}
	} else {
		logger.Debug("AMQP messaging disabled by configuration")
	}

	if appConfig.HTTP.Enabled {
		if appConfig.HTTP.EnableLiveWS {
			scoreHub = http_server.NewScoreHub(logger)
			scoreHub.Start()
		}
		httpServer = http_server.NewServer(logger, http_server.ServerConfig{
			Port:          appConfig.HTTP.Port,
			EnableMetrics: appConfig.HTTP.EnableMetrics,
		}, manager, scoreHub)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.WithError(err).Error("HTTP server stopped")
			}
		}()
		logger.WithField("port", appConfig.HTTP.Port).Info("HTTP server started")
	} else {
		logger.Info("HTTP server is disabled by configuration")
	}

	logStartupConfig()
	return nil
}

// run processes the frame stream and writes the final report. The exit
// code is nonzero when the stream cannot be read or the report cannot
// be produced.
func run(inputPath, outputPath string) int {
	input, closeInput, err := openInput(inputPath)
	if err != nil {
		logger.WithError(err).WithField("input", inputPath).Error("Failed to open frame stream")
		return 1
	}
	defer closeInput()

	opts := session.Options{
		Metadata: privacy.SessionMetadata{
			FilmID:         appConfig.Session.FilmID,
			CinemaLocation: appConfig.Session.CinemaLocation,
			ScreeningTime:  time.Now().Format(time.RFC3339),
		},
		Weights: scoring.Weights{
			Fear:     appConfig.Scoring.FearWeight,
			Surprise: appConfig.Scoring.SurpriseWeight,
			Tension:  appConfig.Scoring.TensionWeight,
		},
		ScareThreshold:    appConfig.Scoring.ScareThreshold,
		WindowSeconds:     appConfig.Scoring.WindowSeconds,
		CalibrationFrames: appConfig.Scoring.CalibrationFrames,
		AuditLogSize:      appConfig.Privacy.AuditLogSize,
	}
	if amqpClient != nil {
		opts.Publisher = amqpClient
	}
	if scoreHub != nil {
		opts.Broadcaster = scoreHub
	}

	sess, err := manager.Create(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to create analysis session")
		return 1
	}

	if err := processStream(rootCtx, sess, input); err != nil {
		logger.WithError(err).Error("Frame stream processing failed")
		// Fall through: finalize whatever was processed.
	}

	rep, err := manager.Finalize(sess.ID())
	if err != nil {
		logger.WithError(err).Error("Failed to finalize session")
		return 1
	}

	if amqpClient != nil {
		if err := amqpClient.PublishReport(sess.Metadata(), rep); err != nil {
			logger.WithError(err).Warn("Failed to publish session report")
		}
	}

	if err := writeReport(outputPath, rep); err != nil {
		logger.WithError(err).Error("Failed to write session report")
		return 1
	}

	return 0
}

// processStream reads one JSON frame per line and feeds it to the
// session until EOF or context cancellation.
func processStream(ctx context.Context, sess *session.Session, input io.Reader) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			logger.WithField("frames", line).Info("Frame stream interrupted")
			return nil
		default:
		}

		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var frame session.Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.WithError(err).WithField("line", line).Warn("Skipping malformed frame")
			continue
		}

		if _, err := sess.ProcessFrame(frame); err != nil {
			return fmt.Errorf("frame %d: %w", line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading frame stream: %w", err)
	}

	logger.WithField("frames", line).Info("Frame stream complete")
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func writeReport(path string, rep *report.Report) error {
	body, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	body = append(body, '\n')

	if path == "" || path == "-" {
		_, err = os.Stdout.Write(body)
		return err
	}
	return os.WriteFile(path, body, 0644)
}

// shutdown stops the long-lived components in dependency order.
func shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	for id, rep := range manager.FinalizeAll() {
		logger.WithFields(logrus.Fields{
			"session_id": id,
			"samples":    len(rep.TimelineData),
		}).Info("Finalized remaining session")
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Error shutting down HTTP server")
		} else {
			logger.Info("HTTP server shut down successfully")
		}
	}

	if scoreHub != nil {
		scoreHub.Stop()
		logger.Info("Score hub stopped")
	}

	if amqpClient != nil {
		amqpClient.Disconnect()
		logger.Info("AMQP client disconnected")
	}

	logger.Info("Application shut down gracefully")
}

// logStartupConfig logs the current configuration.
func logStartupConfig() {
	logger.Info("Shock Score engine is starting with the following configuration:")

	logger.WithFields(logrus.Fields{
		"fear_weight":        appConfig.Scoring.FearWeight,
		"surprise_weight":    appConfig.Scoring.SurpriseWeight,
		"tension_weight":     appConfig.Scoring.TensionWeight,
		"scare_threshold":    appConfig.Scoring.ScareThreshold,
		"window_seconds":     appConfig.Scoring.WindowSeconds,
		"calibration_frames": appConfig.Scoring.CalibrationFrames,
	}).Info("Scoring configuration")

	logger.WithFields(logrus.Fields{
		"http_enabled": appConfig.HTTP.Enabled,
		"http_port":    appConfig.HTTP.Port,
		"http_metrics": appConfig.HTTP.EnableMetrics,
		"live_ws":      appConfig.HTTP.EnableLiveWS,
	}).Info("HTTP server configuration")

	logger.WithFields(logrus.Fields{
		"amqp_enabled": appConfig.Messaging.Enabled,
		"amqp_queue":   appConfig.Messaging.QueueName,
	}).Info("Messaging configuration")
}
