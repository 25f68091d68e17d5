package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/types"
)

// EventPublisher sends catalog events to a broker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event types.Event) (string, error)
}

// publishEvent announces a committed write. Failures are logged and never undo the write.
func publishEvent(ctx context.Context, publisher EventPublisher, log *logrus.Logger, eventType, entityID string) {
	if publisher == nil {
		return
	}
	event := types.Event{
		Type:       eventType,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
	}
	if _, err := publisher.PublishEvent(context.WithoutCancel(ctx), event); err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"event":     eventType,
			"entity_id": entityID,
		}).Warn("failed to publish event")
	}
}
