package acp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// PermissionRequest is the agent asking approval to exercise a capability
// mid-session, typically a tool call.
type PermissionRequest struct {
	// ID correlates the request with the response sent via
	// Session.RespondPermission.
	ID string `json:"id"`
	// ToolCall describes the capability under review, when the request is
	// about a tool invocation.
	ToolCall *PermissionToolCall `json:"tool_call,omitempty"`
	// Options are the outcomes the agent offers. The responder must select
	// one of them or cancel.
	Options []PermissionOption `json:"options"`
}

// PermissionToolCall describes the tool invocation a permission request is
// asking about.
type PermissionToolCall struct {
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input,omitempty"`
}

// PermissionOption is one outcome the agent offers for a permission request.
type PermissionOption struct {
	ID   string               `json:"option_id"`
	Name string               `json:"name,omitempty"`
	Kind PermissionOptionKind `json:"kind"`
}

// PermissionOptionKind classifies a permission option.
type PermissionOptionKind string

const (
	PermissionOptionAllowOnce    PermissionOptionKind = "allow_once"
	PermissionOptionAllowAlways  PermissionOptionKind = "allow_always"
	PermissionOptionRejectOnce   PermissionOptionKind = "reject_once"
	PermissionOptionRejectAlways PermissionOptionKind = "reject_always"
)

// PermissionOutcome is the response to a permission request: either a
// selected option or a cancellation. Exactly one variant is set.
type PermissionOutcome struct {
	Selected  *SelectedOutcome
	Cancelled *CancelledOutcome
}

// SelectedOutcome names the option the responder chose.
type SelectedOutcome struct {
	OptionID string `json:"option_id"`
}

// CancelledOutcome declines the request without selecting an option.
type CancelledOutcome struct{}

// NewSelectedOutcome constructs an outcome selecting the given option.
func NewSelectedOutcome(optionID string) PermissionOutcome {
	return PermissionOutcome{Selected: &SelectedOutcome{OptionID: optionID}}
}

// NewCancelledOutcome constructs a cancellation outcome.
func NewCancelledOutcome() PermissionOutcome {
	return PermissionOutcome{Cancelled: &CancelledOutcome{}}
}

const (
	outcomeTypeSelected  = "selected"
	outcomeTypeCancelled = "cancelled"
)

// MarshalJSON encodes the outcome as a discriminated union.
func (o PermissionOutcome) MarshalJSON() ([]byte, error) {
	switch {
	case o.Selected != nil:
		type alias struct {
			Type string `json:"type"`
			*SelectedOutcome
		}
		return json.Marshal(alias{Type: outcomeTypeSelected, SelectedOutcome: o.Selected})
	case o.Cancelled != nil:
		type alias struct {
			Type string `json:"type"`
		}
		return json.Marshal(alias{Type: outcomeTypeCancelled})
	default:
		return nil, errors.New("permission outcome missing variant")
	}
}

// UnmarshalJSON decodes the discriminated union into the appropriate variant.
func (o *PermissionOutcome) UnmarshalJSON(data []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("decode permission outcome discriminator: %w", err)
	}

	*o = PermissionOutcome{}
	switch probe.Type {
	case outcomeTypeSelected:
		var payload SelectedOutcome
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("decode selected outcome: %w", err)
		}
		if payload.OptionID == "" {
			return errors.New("selected outcome missing option_id")
		}
		o.Selected = &payload
		return nil
	case outcomeTypeCancelled:
		o.Cancelled = &CancelledOutcome{}
		return nil
	default:
		return fmt.Errorf("unknown permission outcome type %q", probe.Type)
	}
}
