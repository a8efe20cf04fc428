package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/kuitang/memos/internal/errs"
	"github.com/kuitang/memos/internal/memos"
	"github.com/kuitang/memos/internal/obs"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler implements MCP tool call handling over a memo store.
type Handler struct {
	store *memos.Store
}

// NewHandler creates a new MCP handler backed by store.
func NewHandler(store *memos.Store) *Handler {
	return &Handler{store: store}
}

// createToolHandler returns a tool handler function for the given tool name.
func (h *Handler) createToolHandler(name string) func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		result, err := h.HandleToolCall(ctx, name, args)
		return result, nil, err
	}
}

// HandleToolCall routes tool calls to appropriate handlers. Domain failures are
// reported as error results, never as protocol errors.
func (h *Handler) HandleToolCall(ctx context.Context, name string, arguments map[string]any) (*mcp.CallToolResult, error) {
	var (
		value any
		err   error
	)
	switch name {
	case ToolMemoCreate:
		value, err = h.handleMemoCreate(arguments)
	case ToolMemoList:
		value = h.store.FindAll()
	case ToolMemoGet:
		value, err = h.handleMemoGet(arguments)
	case ToolMemoUpdate:
		value, err = h.handleMemoUpdate(arguments)
	case ToolMemoUpdateTitle:
		value, err = h.handleMemoUpdateTitle(arguments)
	case ToolMemoDelete:
		value, err = h.handleMemoDelete(arguments)
	default:
		err = errs.Newf(errs.InvalidInput, "unknown tool: %s", name)
	}
	if err != nil {
		obs.From(ctx).Debug("mcp_tool_rejected", "pkg", "mcp", "tool", name, "code", string(errs.CodeOf(err)), "reason", errs.MessageOf(err))
		return newToolResultError(err), nil
	}
	return newToolResultText(marshalToolJSON(value)), nil
}

func (h *Handler) handleMemoCreate(args map[string]any) (any, error) {
	in, err := inputFromArgs(args)
	if err != nil {
		return nil, err
	}
	return h.store.Create(in.TitleOrEmpty(), in.ContentsOrEmpty()), nil
}

func (h *Handler) handleMemoGet(args map[string]any) (any, error) {
	id, err := idFromArgs(args)
	if err != nil {
		return nil, err
	}
	return h.store.FindByID(id)
}

func (h *Handler) handleMemoUpdate(args map[string]any) (any, error) {
	id, err := idFromArgs(args)
	if err != nil {
		return nil, err
	}
	in, err := inputFromArgs(args)
	if err == nil {
		err = in.ValidateFull()
	}
	if err != nil {
		return nil, err
	}
	return h.store.ReplaceFields(id, *in.Title, *in.Contents)
}

func (h *Handler) handleMemoUpdateTitle(args map[string]any) (any, error) {
	id, err := idFromArgs(args)
	if err != nil {
		return nil, err
	}
	in, err := inputFromArgs(args)
	if err == nil {
		err = in.ValidateTitleOnly()
	}
	if err != nil {
		return nil, err
	}
	return h.store.ReplaceTitle(id, *in.Title)
}

func (h *Handler) handleMemoDelete(args map[string]any) (any, error) {
	id, err := idFromArgs(args)
	if err != nil {
		return nil, err
	}
	if err := h.store.Delete(id); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true, "id": id}, nil
}

// idFromArgs reads the integral "id" argument. JSON numbers arrive as float64.
func idFromArgs(args map[string]any) (int64, error) {
	switch v := args["id"].(type) {
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > 1<<53 {
			return 0, errs.New(errs.InvalidInput, "id must be an integer")
		}
		return int64(v), nil
	case json.Number:
		id, err := v.Int64()
		if err != nil {
			return 0, errs.Wrap(errs.InvalidInput, "id must be an integer", err)
		}
		return id, nil
	case nil:
		return 0, errs.New(errs.InvalidInput, "id is required")
	default:
		return 0, errs.New(errs.InvalidInput, "id must be an integer")
	}
}

// inputFromArgs mirrors JSON body decoding: a missing or null field is absent,
// any other non-string value is rejected.
func inputFromArgs(args map[string]any) (memos.Input, error) {
	var in memos.Input
	var err error
	if in.Title, err = optionalString(args, "title"); err != nil {
		return in, err
	}
	if in.Contents, err = optionalString(args, "contents"); err != nil {
		return in, err
	}
	return in, nil
}

func optionalString(args map[string]any, key string) (*string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, errs.Newf(errs.InvalidInput, "%s must be a string", key)
	}
	return &s, nil
}

// newToolResultText creates a successful tool result with text content.
func newToolResultText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// newToolResultError creates a tool result carrying the error code and message.
func newToolResultError(err error) *mcp.CallToolResult {
	payload := map[string]string{
		"code":  string(errs.CodeOf(err)),
		"error": errs.MessageOf(err),
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: marshalToolJSON(payload)},
		},
		IsError: true,
	}
}

func marshalToolJSON(value any) string {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal response","detail":%q}`, err.Error())
	}
	return string(data)
}
