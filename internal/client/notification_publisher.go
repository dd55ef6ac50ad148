package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/mashareq-erp/be-procurement/internal/service"
)

// NotificationPublisher publishes approval workflow events to NATS for
// consumption by the notifications service.
//
// Subject convention: notifications.procurement.<event_type>
// Event types: workflow_submitted, step_approved, workflow_completed,
//              workflow_rejected
//
// All publish operations are non-fatal — errors are logged but never
// propagated to the caller, so notification failures never interrupt
// approval operations.
type NotificationPublisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	EntityID     string                 `json:"entity_id"`
	ActorID      string                 `json:"actor_id"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nc: nc, log: log}
}

// PublishWorkflowEvent publishes an approval lifecycle event.
// Subject: notifications.procurement.<eventType>
func (p *NotificationPublisher) PublishWorkflowEvent(ctx context.Context, eventType, referenceID, entityID, actorID string, payload map[string]interface{}) {
	if p.nc == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		EntityID:     entityID,
		ActorID:      actorID,
		ResourceType: "procurement_document",
		ResourceID:   referenceID,
		Severity:     "info",
		Category:     "procurement_approval",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.procurement.%s", eventType)
	if err := p.nc.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("reference_id", referenceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("reference_id", referenceID).
		Msg("notification: event published")
}

var _ service.NotifierInterface = (*NotificationPublisher)(nil)
