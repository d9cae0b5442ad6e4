package tools

import (
	"context"
	"fmt"
	"time"
)

// ClockTool reports the current time, optionally in a named IANA zone.
// It ships as the default built-in capability of the demo gateway.
type ClockTool struct {
	now func() time.Time
}

// NewClockTool creates a clock tool backed by the system clock.
func NewClockTool() *ClockTool {
	return &ClockTool{now: time.Now}
}

func (t *ClockTool) Name() string {
	return "clock"
}

func (t *ClockTool) Description() string {
	return "Returns the current date and time. Optionally accepts an IANA timezone name such as 'Asia/Taipei' or 'UTC'."
}

func (t *ClockTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "IANA timezone name. Defaults to the server's local zone.",
			},
		},
	}
}

func (t *ClockTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	now := t.now()

	if tz, ok := args["timezone"].(string); ok && tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
		}
		now = now.In(loc)
	}

	return map[string]any{
		"rfc3339":  now.Format(time.RFC3339),
		"unix":     now.Unix(),
		"weekday":  now.Weekday().String(),
		"timezone": now.Location().String(),
	}, nil
}
