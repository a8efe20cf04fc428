package mcp

import "github.com/modelcontextprotocol/go-sdk/mcp"

// Tool names.
const (
	ToolMemoCreate      = "memo_create"
	ToolMemoList        = "memo_list"
	ToolMemoGet         = "memo_get"
	ToolMemoUpdate      = "memo_update"
	ToolMemoUpdateTitle = "memo_update_title"
	ToolMemoDelete      = "memo_delete"
)

func idProperty(verb string) map[string]any {
	return map[string]any{
		"type":        "integer",
		"description": "The numeric id of the memo to " + verb,
		"minimum":     1,
	}
}

// ToolDefinitions returns the memo MCP tool definitions.
func ToolDefinitions() []*mcp.Tool {
	return []*mcp.Tool{
		{
			Name:        ToolMemoCreate,
			Description: "Create a memo. Title and contents are both optional and default to empty strings. Returns the stored memo including its assigned numeric id.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"title":    map[string]any{"type": "string", "description": "Memo title"},
					"contents": map[string]any{"type": "string", "description": "Memo body, rendered as Markdown in the HTML view"},
				},
			},
		},
		{
			Name:        ToolMemoList,
			Description: "List every memo currently stored, in ascending id order.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ToolMemoGet,
			Description: "Read one memo by id.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"id": idProperty("read")},
				"required":   []string{"id"},
			},
		},
		{
			Name:        ToolMemoUpdate,
			Description: "Replace both the title and the contents of a memo. Both fields are required; pass an empty string to clear one.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":       idProperty("update"),
					"title":    map[string]any{"type": "string", "description": "New title"},
					"contents": map[string]any{"type": "string", "description": "New contents"},
				},
				"required": []string{"id", "title", "contents"},
			},
		},
		{
			Name:        ToolMemoUpdateTitle,
			Description: "Change only the title of a memo. The contents are left untouched; passing contents is an error.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":    idProperty("retitle"),
					"title": map[string]any{"type": "string", "description": "New title"},
				},
				"required": []string{"id", "title"},
			},
		},
		{
			Name:        ToolMemoDelete,
			Description: "Delete a memo by id.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"id": idProperty("delete")},
				"required":   []string{"id"},
			},
		},
	}
}
