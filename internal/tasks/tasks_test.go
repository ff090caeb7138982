package tasks

import (
	"testing"

	"github.com/vultisig/trigger-plugin/internal/types"
)

func TestOrderTriggerTask(t *testing.T) {
	event := types.OrderTriggerEvent{OrderID: "3f0c6c1e-2d4b-4c4e-9a57-0f3a6f1f8d11", Slot: 1760000000}

	task, err := NewOrderTriggerTask(event)
	if err != nil {
		t.Fatalf("NewOrderTriggerTask failed: %v", err)
	}
	if task.Type() != TypeOrderTrigger {
		t.Errorf("type = %s", task.Type())
	}
	if got := TaskID(event); got != "3f0c6c1e-2d4b-4c4e-9a57-0f3a6f1f8d11:1760000000" {
		t.Errorf("task id = %s", got)
	}

	parsed, err := ParseOrderTriggerEvent(task.Payload())
	if err != nil {
		t.Fatalf("ParseOrderTriggerEvent failed: %v", err)
	}
	if parsed != event {
		t.Errorf("parsed = %+v, want %+v", parsed, event)
	}
}

func TestParseOrderTriggerEventRejectsEmpty(t *testing.T) {
	for _, payload := range []string{`{`, `{"slot":1}`} {
		if _, err := ParseOrderTriggerEvent([]byte(payload)); err == nil {
			t.Errorf("expected error for %s", payload)
		}
	}
}
