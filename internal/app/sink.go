package app

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// natsSink publishes engine events to JetStream for the dashboard relay.
// Publishes are async so a slow broker never stalls the trading loop.
type natsSink struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

func newNATSSink(js nats.JetStreamContext, logger *zap.Logger) *natsSink {
	return &natsSink{js: js, logger: logger}
}

func (s *natsSink) Publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to encode event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := s.js.PublishAsync(subject, data); err != nil {
		s.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
