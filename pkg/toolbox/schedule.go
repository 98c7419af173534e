package toolbox

import (
	"context"
	"fmt"
	"time"

	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/schedule"
	"github.com/pkg/errors"
)

type ScheduleInput struct {
	Action     string `json:"action" jsonschema:"enum=create,enum=list,enum=remove,description=What to do with scheduled messages"`
	Expression string `json:"expression,omitempty" jsonschema:"description=For create: rate(<n> minutes|hours|days) or at(YYYY-MM-DDTHH:MM:SS) or cron(<minute> <hour> <day of month> <month> <day of week>)"`
	Text       string `json:"text,omitempty" jsonschema:"description=For create: the reminder you will receive when the schedule fires"`
	Recurring  bool   `json:"recurring,omitempty" jsonschema:"description=For create: keep firing instead of firing once"`
	ID         string `json:"id,omitempty" jsonschema:"description=For remove: the schedule id"`
}

// ScheduledMessage is how a schedule is listed to the model.
type ScheduledMessage struct {
	ID         string    `json:"id"`
	Expression string    `json:"expression"`
	Text       string    `json:"text"`
	Recurring  bool      `json:"recurring"`
	CreatedAt  time.Time `json:"createdAt"`
	NextRunAt  time.Time `json:"nextRunAt"`
}

func NewScheduleTool(s *schedule.Scheduler) (*tools.ToolDefinition, error) {
	return tools.NewToolFromFunc(
		ScheduleToolName,
		"Creates, lists and removes scheduled messages for this chat. When a schedule fires you receive a message "+
			"starting with [SCHEDULE <id>] followed by the text you stored; act on it as if the user had just asked.",
		func(ctx context.Context, in ScheduleInput) (interface{}, error) {
			conv, err := conversationID(ctx)
			if err != nil {
				return nil, err
			}
			switch in.Action {
			case "create":
				sc, err := s.Create(ctx, conv, in.Expression, in.Text, in.Recurring)
				if err != nil {
					return nil, errors.Wrap(err, "failed to create schedule")
				}
				return fmt.Sprintf("Message scheduled successfully with id %s.", sc.ID), nil

			case "list":
				list, err := s.List(ctx, conv)
				if err != nil {
					return nil, errors.Wrap(err, "failed to list scheduled messages")
				}
				if len(list) == 0 {
					return "No scheduled messages found.", nil
				}
				ret := make([]ScheduledMessage, len(list))
				for i, sc := range list {
					ret[i] = ScheduledMessage{
						ID:         sc.ID,
						Expression: sc.Expression,
						Text:       sc.Text,
						Recurring:  sc.Recurring,
						CreatedAt:  sc.CreatedAt,
						NextRunAt:  sc.NextRunAt,
					}
				}
				return ret, nil

			case "remove":
				if in.ID == "" {
					return nil, errors.New("id is required to remove a schedule")
				}
				if err := s.Remove(ctx, conv, in.ID); err != nil {
					return nil, errors.Wrap(err, "failed to remove schedule")
				}
				return "Scheduled message removed successfully.", nil
			}
			return nil, errors.Errorf("unknown action %q", in.Action)
		},
	)
}
