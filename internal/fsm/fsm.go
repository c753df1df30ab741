package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting-permission"
	StateArmed                State = "armed"
	StateBlocked              State = "blocked"
	StateRecording            State = "recording"
	StateFinalizing           State = "finalizing"
)

const (
	EventRequestPermission Event = "request-permission"
	EventGrant             Event = "grant"
	EventDeny              Event = "deny"
	EventUnavailable       Event = "unavailable"
	EventOpen              Event = "open"
	EventOpenFailed        Event = "open-failed"
	EventStop              Event = "stop"
	EventFinalized         Event = "finalized"
	EventDiscard           Event = "discard"
	EventReset             Event = "reset"
)

// Transition returns the capture phase reached by applying event to current.
func Transition(current State, event Event) (State, error) {
	switch current {
	case StateIdle:
		switch event {
		case EventRequestPermission:
			return StateRequestingPermission, nil
		case EventGrant:
			// Permission already granted earlier in the process lifetime.
			return StateArmed, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRequestingPermission:
		switch event {
		case EventGrant:
			return StateArmed, nil
		case EventDeny:
			return StateBlocked, nil
		case EventUnavailable:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateArmed:
		switch event {
		case EventOpen:
			return StateRecording, nil
		case EventOpenFailed:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateRecording:
		switch event {
		case EventStop:
			return StateFinalizing, nil
		case EventDiscard:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateFinalizing:
		switch event {
		case EventFinalized:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateBlocked:
		switch event {
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
