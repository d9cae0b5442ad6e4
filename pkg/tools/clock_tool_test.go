package tools

import (
	"context"
	"testing"
	"time"
)

func fixedClock() *ClockTool {
	fixed := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	return &ClockTool{now: func() time.Time { return fixed }}
}

func TestClockToolDefault(t *testing.T) {
	tool := fixedClock()

	result, err := tool.Execute(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	fields, ok := result.(map[string]any)
	if !ok {
		t.Fatalf("result type %T", result)
	}
	if fields["weekday"] != "Saturday" {
		t.Errorf("weekday = %v", fields["weekday"])
	}
	if fields["unix"] != int64(1773500966) {
		t.Errorf("unix = %v", fields["unix"])
	}
}

func TestClockToolTimezone(t *testing.T) {
	tool := fixedClock()

	result, err := tool.Execute(context.Background(), map[string]any{"timezone": "Asia/Taipei"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	fields := result.(map[string]any)
	if fields["timezone"] != "Asia/Taipei" {
		t.Errorf("timezone = %v", fields["timezone"])
	}
	// 15:09 UTC is 23:09 in Taipei (UTC+8).
	if fields["rfc3339"] != "2026-03-14T23:09:26+08:00" {
		t.Errorf("rfc3339 = %v", fields["rfc3339"])
	}
}

func TestClockToolUnknownTimezone(t *testing.T) {
	tool := fixedClock()

	if _, err := tool.Execute(context.Background(), map[string]any{"timezone": "Mars/Olympus"}); err == nil {
		t.Error("unknown timezone accepted")
	}
}

func TestClockToolSchema(t *testing.T) {
	tool := NewClockTool()
	if tool.Name() != "clock" {
		t.Errorf("name = %q", tool.Name())
	}
	params := tool.Parameters()
	if params["type"] != "object" {
		t.Errorf("schema type = %v", params["type"])
	}
}
