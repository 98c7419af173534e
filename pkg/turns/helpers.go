package turns

// Convenience constructors for commonly used Turn shapes.

// NewUserText returns a user turn holding a single text block.
func NewUserText(text string) Turn {
	return Turn{Role: RoleUser, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewAssistantText returns an assistant turn holding a single text block.
func NewAssistantText(text string) Turn {
	return Turn{Role: RoleAssistant, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewToolUseTurn returns the assistant turn requesting calls. A non-empty
// preamble is kept as a leading text block.
func NewToolUseTurn(preamble string, calls []ToolUseBlock) Turn {
	content := make([]ContentBlock, 0, len(calls)+1)
	if preamble != "" {
		content = append(content, TextBlock{Text: preamble})
	}
	for _, c := range calls {
		content = append(content, c)
	}
	return Turn{Role: RoleAssistant, Content: content}
}

// NewToolResultTurn returns the user turn carrying results.
func NewToolResultTurn(results []ToolResultBlock) Turn {
	content := make([]ContentBlock, 0, len(results))
	for _, r := range results {
		content = append(content, r)
	}
	return Turn{Role: RoleUser, Content: content}
}

// NewToolResult builds a result with a single text block.
func NewToolResult(toolUseID string, status ToolResultStatus, text string) ToolResultBlock {
	return ToolResultBlock{
		ToolUseID: toolUseID,
		Status:    status,
		Content:   []ContentBlock{TextBlock{Text: text}},
	}
}

// NewToolError builds an error-status result carrying err's message.
func NewToolError(toolUseID string, err error) ToolResultBlock {
	msg := "tool failed"
	if err != nil {
		msg = err.Error()
	}
	return NewToolResult(toolUseID, ToolResultError, msg)
}
