package events

import (
	"context"
	"log/slog"
)

// RegisterAuditLog writes one structured line per identity event.
func RegisterAuditLog(bus *EventBus, logger *slog.Logger) {
	audit := logger.With("component", "audit")
	handler := func(_ context.Context, event Event) error {
		audit.Info("identity event",
			"event_type", event.EventType(),
			"event_id", event.EventID(),
			"occurred_at", event.OccurredAt(),
			"payload", event.Payload())
		return nil
	}

	for _, t := range []string{
		EventTypeUserRegistered,
		EventTypeUserRolesAssigned,
		EventTypeUserDeactivated,
		EventTypeUserDeleted,
	} {
		bus.Subscribe(t, handler)
	}
}
