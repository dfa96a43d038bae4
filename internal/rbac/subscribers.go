package rbac

import (
	"context"

	"github.com/frahmantamala/rbac-service/internal/core/events"
)

// Subscriber is the part of the event bus the graph listens on.
type Subscriber interface {
	Subscribe(eventType string, handler events.Handler)
}

// RegisterEventHandlers drops cached resolutions whenever a user leaves the
// active state, so the guard never serves a stale grant.
func RegisterEventHandlers(bus Subscriber, svc *Service) {
	invalidate := func(ctx context.Context, _ events.Event) error {
		svc.Invalidate(ctx)
		return nil
	}
	bus.Subscribe(events.EventTypeUserDeactivated, invalidate)
	bus.Subscribe(events.EventTypeUserDeleted, invalidate)
}
