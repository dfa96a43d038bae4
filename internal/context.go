package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextSubjectKey ctxKey = "subject"

// Subject is the identity bound to a request once its access token verified.
type Subject struct {
	UserID int64  `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

func ContextWithSubject(ctx context.Context, subject *Subject) context.Context {
	return context.WithValue(ctx, ContextSubjectKey, subject)
}

func SubjectFromContext(ctx context.Context) (*Subject, bool) {
	if ctx == nil {
		return nil, false
	}
	subject, ok := ctx.Value(ContextSubjectKey).(*Subject)
	if !ok || subject == nil {
		return nil, false
	}
	return subject, true
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
