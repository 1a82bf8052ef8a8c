package mq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type ackCall struct {
	kind    string
	requeue bool
}

type recordingAcknowledger struct {
	calls []ackCall
}

func (a *recordingAcknowledger) Ack(uint64, bool) error {
	a.calls = append(a.calls, ackCall{kind: "ack"})
	return nil
}

func (a *recordingAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.calls = append(a.calls, ackCall{kind: "nack", requeue: requeue})
	return nil
}

func (a *recordingAcknowledger) Reject(_ uint64, requeue bool) error {
	a.calls = append(a.calls, ackCall{kind: "reject", requeue: requeue})
	return nil
}

func deliver(t *testing.T, ctx context.Context, handler MessageHandler) []ackCall {
	t.Helper()
	ack := &recordingAcknowledger{}
	c := &Consumer{logger: zap.NewNop(), handler: handler}
	c.handle(ctx, amqp.Delivery{Acknowledger: ack, Body: []byte(`{}`), MessageId: "m-1"})
	return ack.calls
}

func TestHandle_AcksProcessedMessage(t *testing.T) {
	calls := deliver(t, context.Background(), func(context.Context, []byte) error { return nil })
	require.Equal(t, []ackCall{{kind: "ack"}}, calls)
}

func TestHandle_DeadLettersFailedMessage(t *testing.T) {
	calls := deliver(t, context.Background(), func(context.Context, []byte) error {
		return errors.New("no valid readings")
	})
	require.Equal(t, []ackCall{{kind: "nack", requeue: false}}, calls)
}

func TestHandle_RequeuesWhenShuttingDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := deliver(t, ctx, func(ctx context.Context, _ []byte) error {
		cancel()
		return ctx.Err()
	})
	require.Equal(t, []ackCall{{kind: "nack", requeue: true}}, calls)
}
