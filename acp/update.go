package acp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Update is one message yielded by a driven session. Exactly one variant is
// set; an Update with no variant set represents a kind this package does not
// model and should be ignored by consumers.
type Update struct {
	// Stop signals that the session has terminated.
	Stop *StopUpdate
	// Notification is an informational in-flight event.
	Notification *Notification
	// Permission is a blocking request that must be answered via
	// Session.RespondPermission before the session proceeds.
	Permission *PermissionRequest
}

// StopUpdate carries the reason the session stopped.
type StopUpdate struct {
	Reason StopReason `json:"reason"`
}

// StopReason identifies why a session ended. The reason is informational;
// whether the task actually produced a result is a separate concern.
type StopReason string

const (
	StopReasonEndTurn         StopReason = "end_turn"
	StopReasonMaxTokens       StopReason = "max_tokens"
	StopReasonMaxTurnRequests StopReason = "max_turn_requests"
	StopReasonRefusal         StopReason = "refusal"
	StopReasonCancelled       StopReason = "cancelled"
)

// Notification is an informational session event, such as streamed agent
// output or a progress report.
type Notification struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text,omitempty"`
}

// NewStopUpdate constructs an Update carrying a stop signal.
func NewStopUpdate(reason StopReason) Update {
	return Update{Stop: &StopUpdate{Reason: reason}}
}

// NewNotificationUpdate constructs an Update carrying a notification.
func NewNotificationUpdate(notification Notification) Update {
	return Update{Notification: &notification}
}

// NewPermissionUpdate constructs an Update carrying a permission request.
func NewPermissionUpdate(request PermissionRequest) Update {
	return Update{Permission: &request}
}

const (
	updateTypeStop         = "stop"
	updateTypeNotification = "notification"
	updateTypePermission   = "permission_request"
)

// MarshalJSON encodes the Update as a discriminated union.
func (u Update) MarshalJSON() ([]byte, error) {
	switch {
	case u.Stop != nil:
		type alias struct {
			Type string `json:"type"`
			*StopUpdate
		}
		return json.Marshal(alias{Type: updateTypeStop, StopUpdate: u.Stop})
	case u.Notification != nil:
		type alias struct {
			Type string `json:"type"`
			*Notification
		}
		return json.Marshal(alias{Type: updateTypeNotification, Notification: u.Notification})
	case u.Permission != nil:
		type alias struct {
			Type string `json:"type"`
			*PermissionRequest
		}
		return json.Marshal(alias{Type: updateTypePermission, PermissionRequest: u.Permission})
	default:
		return nil, errors.New("update missing variant")
	}
}

// UnmarshalJSON decodes the discriminated union. Unknown discriminators
// produce an Update with no variant set rather than an error, so connection
// implementations can forward event kinds this package does not model.
func (u *Update) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("decode update discriminator: %w", err)
	}

	*u = Update{}
	switch probe.Type {
	case updateTypeStop:
		var payload StopUpdate
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode stop update: %w", err)
		}
		u.Stop = &payload
	case updateTypeNotification:
		var payload Notification
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode notification update: %w", err)
		}
		u.Notification = &payload
	case updateTypePermission:
		var payload PermissionRequest
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode permission update: %w", err)
		}
		u.Permission = &payload
	}
	return nil
}
