package events

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/activitylog/internal/core/domain"
)

// LogPublisher writes envelopes to the log instead of a broker.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.log.WithFields(logrus.Fields{
		"topic":        topic,
		"event_id":     event.EventID,
		"event_type":   event.EventType,
		"revision":     event.Revision,
		"tenant_id":    event.TenantID,
		"subject_kind": event.Kind,
		"subject_id":   event.SubjectID,
	}).Info("outbox publish")
	return nil
}
