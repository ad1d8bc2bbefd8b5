package guest

import (
	"context"
)

// Event names emitted on the host's EventSink.
const (
	EventUserLogin     = "user.login"
	EventUserLogout    = "user.logout"
	EventUserRegister  = "user.register"
	EventUserConfirm   = "user.confirm"
	EventPasswordReset = "user.password_reset"
	EventTermsAgreed   = "user.terms_agreed"
)

// EventSink receives domain events for the host's other subsystems.
type EventSink interface {
	Emit(ctx context.Context, event string, payload map[string]any) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event string, payload map[string]any) error

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ctx context.Context, event string, payload map[string]any) error {
	if f == nil {
		return nil
	}
	return f(ctx, event, payload)
}

type noopEventSink struct{}

func (noopEventSink) Emit(context.Context, string, map[string]any) error {
	return nil
}

func normalizeEventSink(s EventSink) EventSink {
	if s == nil {
		return noopEventSink{}
	}
	return s
}

// emitEvent records an event, logging sink failures instead of propagating
// them: event delivery never gates the triggering operation.
func emitEvent(ctx context.Context, sink EventSink, logger Logger, event string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	if err := normalizeEventSink(sink).Emit(ctx, event, payload); err != nil {
		logger.Warn("event sink error: %v", err)
	}
}
