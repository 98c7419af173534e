package toolbox

import (
	"context"
	"fmt"
	"time"

	"github.com/go-go-golems/parley/pkg/inference/tools"
)

// DateTime is the result of the datetime tool.
type DateTime struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Day      int    `json:"day"`
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Second   int    `json:"second"`
	Weekday  string `json:"weekday"`
	Timezone string `json:"timezone"`
}

func NewDateTime(t time.Time) DateTime {
	_, offset := t.Zone()
	tz := fmt.Sprintf("UTC%+d", offset/3600)
	if rem := (offset % 3600) / 60; rem != 0 {
		if rem < 0 {
			rem = -rem
		}
		tz += fmt.Sprintf(":%02d", rem)
	}
	return DateTime{
		Year:     t.Year(),
		Month:    int(t.Month()),
		Day:      t.Day(),
		Hour:     t.Hour(),
		Minute:   t.Minute(),
		Second:   t.Second(),
		Weekday:  t.Weekday().String(),
		Timezone: tz,
	}
}

func NewDateTimeTool(loc *time.Location, now func() time.Time) (*tools.ToolDefinition, error) {
	return tools.NewToolFromFunc(
		DateTimeToolName,
		"Returns the current date and time. Use it whenever the answer depends on today's date or the current time.",
		func(ctx context.Context) (DateTime, error) {
			return NewDateTime(now().In(loc)), nil
		},
	)
}
