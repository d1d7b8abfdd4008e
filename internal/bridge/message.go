package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/five82/flyover/internal/notify"
	"github.com/five82/flyover/internal/state"
)

// Kind tags a Message.
type Kind string

const (
	KindStateChange Kind = "state-change"
	KindCommand     Kind = "command"
)

// Overlay commands.
const (
	ActionToggleEditMode = "toggleEditMode"
	ActionEnterEditMode  = "enterEditMode"
	ActionExitEditMode   = "exitEditMode"
	ActionSetOpacity     = "setOpacity"
	ActionMirrorToast    = "mirrorToast"
)

// Message is the only thing that crosses between surfaces. A state change
// carries StateKind and Payload; a command carries Action and Args.
type Message struct {
	Kind      Kind            `json:"kind"`
	StateKind state.Kind      `json:"stateKind,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Action    string          `json:"action,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// OpacityArgs are the args of a setOpacity command.
type OpacityArgs struct {
	Opacity int `json:"opacity"`
}

var errInvalidMessage = errors.New("invalid bridge message")

// StateChange wraps a store event.
func StateChange(ev state.Event) (Message, error) {
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", ev.Kind, err)
	}
	return Message{Kind: KindStateChange, StateKind: ev.Kind, Payload: raw}, nil
}

// Command builds a command message. args may be nil.
func Command(action string, args any) (Message, error) {
	msg := Message{Kind: KindCommand, Action: action}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return Message{}, fmt.Errorf("encode %s args: %w", action, err)
		}
		msg.Args = raw
	}
	return msg, nil
}

// MirrorToast builds the command that asks the overlay to show a copy of t.
func MirrorToast(t notify.Toast) (Message, error) {
	return Command(ActionMirrorToast, t)
}

// SetOpacity builds a setOpacity command.
func SetOpacity(opacity int) (Message, error) {
	return Command(ActionSetOpacity, OpacityArgs{Opacity: opacity})
}

// Validate checks the tag and the fields it requires.
func (m Message) Validate() error {
	switch m.Kind {
	case KindStateChange:
		if m.StateKind == "" {
			return fmt.Errorf("%w: state-change without stateKind", errInvalidMessage)
		}
	case KindCommand:
		if m.Action == "" {
			return fmt.Errorf("%w: command without action", errInvalidMessage)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", errInvalidMessage, m.Kind)
	}
	return nil
}

// Event decodes a state-change message into a store event.
func (m Message) Event() (state.Event, error) {
	if m.Kind != KindStateChange {
		return state.Event{}, fmt.Errorf("%w: %s is not a state-change", errInvalidMessage, m.Kind)
	}
	payload, err := state.DecodePayload(m.StateKind, m.Payload)
	if err != nil {
		return state.Event{}, err
	}
	return state.Event{Kind: m.StateKind, Payload: payload}, nil
}

// Toast decodes the args of a mirrorToast command.
func (m Message) Toast() (notify.Toast, error) {
	var t notify.Toast
	if err := json.Unmarshal(m.Args, &t); err != nil {
		return notify.Toast{}, fmt.Errorf("decode toast: %w", err)
	}
	return t, nil
}

// Opacity decodes the args of a setOpacity command.
func (m Message) Opacity() (int, error) {
	var args OpacityArgs
	if err := json.Unmarshal(m.Args, &args); err != nil {
		return 0, fmt.Errorf("decode opacity: %w", err)
	}
	return args.Opacity, nil
}
