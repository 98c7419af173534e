package toolbox

import (
	"context"

	"github.com/go-go-golems/parley/pkg/inference/tools"
	"github.com/go-go-golems/parley/pkg/knowledge"
	"github.com/pkg/errors"
)

type MemoryInput struct {
	Action string `json:"action" jsonschema:"enum=save,enum=search,description=Save a fact or search saved facts"`
	Text   string `json:"text,omitempty" jsonschema:"description=For save: the fact to remember as a full sentence"`
	Query  string `json:"query,omitempty" jsonschema:"description=For search: what to look for"`
}

func NewMemoryTool(store *knowledge.Store) (*tools.ToolDefinition, error) {
	return tools.NewToolFromFunc(
		MemoryToolName,
		"Long term memory for this chat. Save facts the user wants remembered and search them before answering questions about the user.",
		func(ctx context.Context, in MemoryInput) (string, error) {
			conv, err := conversationID(ctx)
			if err != nil {
				return "", err
			}
			switch in.Action {
			case "save":
				if _, err := store.Save(ctx, conv, in.Text); err != nil {
					return "", errors.Wrap(err, "failed to save text")
				}
				return "text saved successfully", nil
			case "search":
				facts, err := store.Search(ctx, conv, in.Query, 0)
				if err != nil {
					return "", errors.Wrap(err, "failed to retrieve search results")
				}
				if len(facts) == 0 {
					return "nothing found", nil
				}
				return knowledge.Join(facts), nil
			}
			return "", errors.Errorf("unknown action %q", in.Action)
		},
	)
}
