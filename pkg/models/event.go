package models

import (
	"fmt"
	"time"
)

// DomainEvent is a transient description of a business occurrence fed into
// the dispatcher. It is not persisted by the engine; only its evaluation
// outcome is, through ExecutionLog rows.
type DomainEvent struct {
	ID         string                 `json:"id"`          // Stable identifier, used for idempotency
	Type       TriggerType            `json:"type"`        // Which rules this event is evaluated against
	EntityType string                 `json:"entity_type"` // e.g. "client", "task", "ticket"
	EntityID   string                 `json:"entity_id"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// DedupKey returns the stable identifier used to build idempotency keys.
// Producers that redeliver an event must reuse the same event ID so that
// downstream collaborators can dedupe the side effect.
func (e DomainEvent) DedupKey() string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("%s:%s:%s:%d", e.Type, e.EntityType, e.EntityID, e.OccurredAt.UnixNano())
}

// Describe renders the human-readable trigger_event text for execution logs.
func (e DomainEvent) Describe() string {
	switch e.Type {
	case StageChangeTriggerType:
		return fmt.Sprintf("%s %s moved from stage %q to %q",
			e.EntityType, e.EntityID, e.payloadString("from_stage"), e.payloadString("to_stage"))
	case InactivityTriggerType:
		return fmt.Sprintf("%s %s inactive for %v days", e.EntityType, e.EntityID, e.Payload["days_inactive"])
	case TaskOverdueTriggerType:
		return fmt.Sprintf("task %s overdue: %s", e.EntityID, e.payloadString("title"))
	case TicketCreatedTriggerType:
		return fmt.Sprintf("ticket %s created in category %q", e.EntityID, e.payloadString("category"))
	default:
		return fmt.Sprintf("%s event for %s %s", e.Type, e.EntityType, e.EntityID)
	}
}

func (e DomainEvent) payloadString(key string) string {
	v, ok := e.Payload[key]
	if !ok {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
