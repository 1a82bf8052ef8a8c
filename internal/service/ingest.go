package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/septivank/meter-dashboard/internal/consumption"
	"github.com/septivank/meter-dashboard/internal/logging"
	"github.com/septivank/meter-dashboard/internal/validator"
	"go.uber.org/zap"
)

// ErrNoValidReadings is returned when every reading of a message fails validation
var ErrNoValidReadings = errors.New("no valid readings in message")

// IngestMessage is a batch of logged readings from the ingest queue
type IngestMessage struct {
	RequestID  string                  `json:"request_id"`
	ReceivedAt time.Time               `json:"received_at"`
	UserID     string                  `json:"user_id"`
	Readings   []validator.ReadingData `json:"readings"`
}

// ReadingWriter appends readings to the reading log
type ReadingWriter interface {
	InsertReadings(ctx context.Context, readings []consumption.Reading, userID string) error
}

// IngestObserver is told how many readings of each message were kept
type IngestObserver interface {
	ObserveIngest(accepted, rejected int)
}

// IngestService validates and stores readings arriving from RabbitMQ
type IngestService struct {
	writer    ReadingWriter
	validator *validator.Validator
	observer  IngestObserver
	logger    *zap.Logger
}

// NewIngestService creates a new ingest service. observer may be nil.
func NewIngestService(writer ReadingWriter, v *validator.Validator, observer IngestObserver, logger *zap.Logger) *IngestService {
	return &IngestService{
		writer:    writer,
		validator: v,
		observer:  observer,
		logger:    logger,
	}
}

// ProcessMessage handles one ingest message. Invalid readings are skipped;
// the message fails only when it cannot be parsed, holds no valid reading,
// or cannot be stored.
func (s *IngestService) ProcessMessage(ctx context.Context, body []byte) error {
	var msg IngestMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal message: %w", err)
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)
	reqLogger.Info("processing message",
		zap.String("user_id", msg.UserID),
		zap.Int("reading_count", len(msg.Readings)),
	)

	if len(msg.Readings) == 0 {
		reqLogger.Warn("message carries no readings")
		return nil
	}

	accepted := make([]consumption.Reading, 0, len(msg.Readings))
	for _, data := range msg.Readings {
		reading, result := s.validator.ValidateReading(data, msg.ReceivedAt)
		if !result.IsValid {
			reqLogger.Warn("reading rejected",
				zap.String("meter_id", data.MeterID),
				zap.String("log_datetime", data.Date),
				zap.String("reason", result.Reason),
			)
			continue
		}
		accepted = append(accepted, reading)
	}

	rejected := len(msg.Readings) - len(accepted)
	if s.observer != nil {
		s.observer.ObserveIngest(len(accepted), rejected)
	}

	if len(accepted) == 0 {
		return fmt.Errorf("request %s: %w", msg.RequestID, ErrNoValidReadings)
	}

	if err := s.writer.InsertReadings(ctx, accepted, msg.UserID); err != nil {
		reqLogger.Error("failed to store readings", zap.Error(err))
		return fmt.Errorf("failed to store readings: %w", err)
	}

	reqLogger.Info("message processed successfully",
		zap.Int("stored", len(accepted)),
		zap.Int("rejected", rejected),
	)
	return nil
}
