package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Inspect identity events: list known event types and publish test events through the audit handlers`,
}

var listEventsCmd = &cobra.Command{
	Use:   "list",
	Short: "List identity event types",
	Run: func(cmd *cobra.Command, args []string) {
		for _, t := range identityEventTypes {
			fmt.Fprintln(cmd.OutOrStdout(), t)
		}
	},
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test event",
	Long:  `Publish a test event to the event bus for testing and debugging`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishTestEvent(cmd.Context(), args[0])
	},
}

var identityEventTypes = []string{
	events.EventTypeUserRegistered,
	events.EventTypeUserRolesAssigned,
	events.EventTypeUserDeactivated,
	events.EventTypeUserDeleted,
}

var (
	eventUserID  int64
	eventActorID int64
	eventEmail   string
	eventData    string
)

func buildTestEvent(eventType string) events.Event {
	switch eventType {
	case events.EventTypeUserRegistered:
		return events.NewUserRegisteredEvent(eventUserID, eventEmail, []string{"user"}, "cli")
	case events.EventTypeUserRolesAssigned:
		return events.NewRolesAssignedEvent(eventUserID, []string{"user"}, "add")
	case events.EventTypeUserDeactivated:
		return events.NewUserDeactivatedEvent(eventUserID, eventActorID)
	case events.EventTypeUserDeleted:
		return events.NewUserDeletedEvent(eventUserID, eventActorID)
	}
	return events.BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"message": eventData,
			"source":  "cli-command",
		},
	}
}

func publishTestEvent(ctx context.Context, eventType string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	lg := logger.LoggerWrapper()

	eventBus := events.NewEventBus(lg)
	events.RegisterAuditLog(eventBus, lg)
	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		lg.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	event := buildTestEvent(eventType)
	lg.Info("publishing test event", "event_type", eventType, "event_id", event.EventID())

	if err := eventBus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	lg.Info("test event published successfully")
	return nil
}

func init() {
	publishEventCmd.Flags().Int64Var(&eventUserID, "user-id", 1, "user id carried by identity events")
	publishEventCmd.Flags().Int64Var(&eventActorID, "actor-id", 1, "acting user id for lifecycle events")
	publishEventCmd.Flags().StringVar(&eventEmail, "email", "demo@example.com", "email carried by user.registered")
	publishEventCmd.Flags().StringVar(&eventData, "data", "test message", "message for events of other types")

	eventCmd.AddCommand(listEventsCmd)
	eventCmd.AddCommand(publishEventCmd)

	rootCmd.AddCommand(eventCmd)
}
