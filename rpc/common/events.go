package common

import (
	"encoding/json"
	"fmt"
)

// --------------------------------------------------------------------------
// Event Name Definition
// --------------------------------------------------------------------------

// EventName identifies a session lifecycle notification delivered through OnSessionEvent
type EventName uint8

const (
	EventUnknown EventName = iota
	// EventSessionClosed is delivered once after a session was closed normally
	EventSessionClosed
	// EventSessionError is delivered if the session failed to connect or lost its connection
	EventSessionError
)

// String returns the string representation of an EventName.
func (e EventName) String() string {
	switch e {
	case EventSessionClosed:
		return "session_closed"
	case EventSessionError:
		return "session_error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for EventName.
func (e EventName) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for EventName.
func (e *EventName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "session_closed":
		*e = EventSessionClosed
	case "session_error":
		*e = EventSessionError
	case "unknown":
		*e = EventUnknown
	default:
		return fmt.Errorf("unknown event name: %s", s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Event Reason Definition
// --------------------------------------------------------------------------

// EventReason describes why a session event or a message error happened
type EventReason uint8

const (
	ReasonUnknown EventReason = iota
	// ReasonSessionClosed: the application closed the session
	ReasonSessionClosed
	// ReasonConnectError: the connection could not be established
	ReasonConnectError
	// ReasonTransportError: an established connection failed
	ReasonTransportError
	// ReasonMsgFlushed: an outstanding message was abandoned because its session went away
	ReasonMsgFlushed
	// ReasonBufferOverflow: the reply did not fit into the inbound region of the message
	ReasonBufferOverflow
)

// String returns the string representation of an EventReason.
func (r EventReason) String() string {
	switch r {
	case ReasonSessionClosed:
		return "session_closed"
	case ReasonConnectError:
		return "connect_error"
	case ReasonTransportError:
		return "transport_error"
	case ReasonMsgFlushed:
		return "msg_flushed"
	case ReasonBufferOverflow:
		return "buffer_overflow"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for EventReason.
func (r EventReason) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for EventReason.
func (r *EventReason) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "session_closed":
		*r = ReasonSessionClosed
	case "connect_error":
		*r = ReasonConnectError
	case "transport_error":
		*r = ReasonTransportError
	case "msg_flushed":
		*r = ReasonMsgFlushed
	case "buffer_overflow":
		*r = ReasonBufferOverflow
	case "unknown":
		*r = ReasonUnknown
	default:
		return fmt.Errorf("unknown event reason: %s", s)
	}
	return nil
}
