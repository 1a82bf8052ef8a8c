package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher publishes JSON messages to one topic exchange
type Publisher struct {
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

// NewPublisher opens a channel and declares the exchange
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if err := declareTopicExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}, nil
}

// AlarmEvent is published for every meter flagged by an alarm scan
type AlarmEvent struct {
	EventID       string     `json:"event_id"`
	Kind          string     `json:"kind"`
	MeterID       string     `json:"meter_id"`
	MeterName     string     `json:"meter_name,omitempty"`
	Factory       string     `json:"factory,omitempty"`
	Day           string     `json:"day,omitempty"`
	LastLogAt     *time.Time `json:"last_log_at,omitempty"`
	Consumption   *float64   `json:"consumption,omitempty"`
	DailyCapacity *float64   `json:"max_cap,omitempty"`
	RaisedAt      time.Time  `json:"raised_at"`
}

// NewAlarmEvent stamps a fresh event id
func NewAlarmEvent(kind, meterID string, raisedAt time.Time) AlarmEvent {
	return AlarmEvent{
		EventID:  uuid.NewString(),
		Kind:     kind,
		MeterID:  meterID,
		RaisedAt: raisedAt,
	}
}

// PublishJSON marshals v and publishes it as a persistent message
func (p *Publisher) PublishJSON(ctx context.Context, routingKey, messageID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    messageID,
			Timestamp:    time.Now(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// PublishAlarmEvent publishes one alarm event
func (p *Publisher) PublishAlarmEvent(ctx context.Context, event AlarmEvent, routingKey string) error {
	if err := p.PublishJSON(ctx, routingKey, event.EventID, event); err != nil {
		return err
	}

	p.logger.Debug("published alarm event",
		zap.String("routing_key", routingKey),
		zap.String("event_id", event.EventID),
		zap.String("kind", event.Kind),
		zap.String("meter_id", event.MeterID),
	)
	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
