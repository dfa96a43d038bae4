package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeUserRegistered    = "user.registered"
	EventTypeUserRolesAssigned = "user.roles_assigned"
	EventTypeUserDeactivated   = "user.deactivated"
	EventTypeUserDeleted       = "user.deleted"
)

func newBase(eventType string, data map[string]interface{}) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

type UserRegisteredEvent struct {
	BaseEvent
	UserID int64    `json:"user_id"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	// Source is "self" for public sign-up and "admin" for administrative creation.
	Source string `json:"source"`
}

func NewUserRegisteredEvent(userID int64, email string, roles []string, source string) *UserRegisteredEvent {
	return &UserRegisteredEvent{
		BaseEvent: newBase(EventTypeUserRegistered, map[string]interface{}{
			"user_id": userID,
			"email":   email,
			"roles":   roles,
			"source":  source,
		}),
		UserID: userID,
		Email:  email,
		Roles:  roles,
		Source: source,
	}
}

type RolesAssignedEvent struct {
	BaseEvent
	UserID int64    `json:"user_id"`
	Roles  []string `json:"roles"`
	Mode   string   `json:"mode"`
}

func NewRolesAssignedEvent(userID int64, roles []string, mode string) *RolesAssignedEvent {
	return &RolesAssignedEvent{
		BaseEvent: newBase(EventTypeUserRolesAssigned, map[string]interface{}{
			"user_id": userID,
			"roles":   roles,
			"mode":    mode,
		}),
		UserID: userID,
		Roles:  roles,
		Mode:   mode,
	}
}

// UserLifecycleEvent covers the deactivated and deleted transitions.
type UserLifecycleEvent struct {
	BaseEvent
	UserID  int64 `json:"user_id"`
	ActorID int64 `json:"actor_id"`
}

func NewUserDeactivatedEvent(userID, actorID int64) *UserLifecycleEvent {
	return newLifecycle(EventTypeUserDeactivated, userID, actorID)
}

func NewUserDeletedEvent(userID, actorID int64) *UserLifecycleEvent {
	return newLifecycle(EventTypeUserDeleted, userID, actorID)
}

func newLifecycle(eventType string, userID, actorID int64) *UserLifecycleEvent {
	return &UserLifecycleEvent{
		BaseEvent: newBase(eventType, map[string]interface{}{
			"user_id":  userID,
			"actor_id": actorID,
		}),
		UserID:  userID,
		ActorID: actorID,
	}
}
