package common

import (
	"encoding/json"
	"testing"
)

func TestEventNameJSON(t *testing.T) {
	for _, name := range []EventName{EventUnknown, EventSessionClosed, EventSessionError} {
		data, err := json.Marshal(name)
		if err != nil {
			t.Fatalf("Marshal(%s) failed: %v", name, err)
		}
		if string(data) != `"`+name.String()+`"` {
			t.Errorf("Expected %q, got %s", name.String(), data)
		}

		var decoded EventName
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", data, err)
		}
		if decoded != name {
			t.Errorf("Expected %s, got %s", name, decoded)
		}
	}

	var e EventName
	if err := json.Unmarshal([]byte(`"session_lost"`), &e); err == nil {
		t.Error("Unmarshal of an unknown name should fail")
	}
}

func TestEventReasonJSON(t *testing.T) {
	reasons := []EventReason{
		ReasonUnknown, ReasonSessionClosed, ReasonConnectError,
		ReasonTransportError, ReasonMsgFlushed, ReasonBufferOverflow,
	}

	seen := make(map[string]bool)
	for _, reason := range reasons {
		if seen[reason.String()] {
			t.Errorf("Duplicate string for reason %d: %s", reason, reason)
		}
		seen[reason.String()] = true

		data, err := json.Marshal(reason)
		if err != nil {
			t.Fatalf("Marshal(%s) failed: %v", reason, err)
		}
		var decoded EventReason
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", data, err)
		}
		if decoded != reason {
			t.Errorf("Expected %s, got %s", reason, decoded)
		}
	}

	if EventReason(200).String() != "unknown" {
		t.Error("Out of range reason should print as unknown")
	}
}
