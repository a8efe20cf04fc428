package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kuitang/memos/internal/errs"
	"github.com/kuitang/memos/internal/memos"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"pgregory.net/rapid"
)

type toolErrorPayload struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type testingT interface {
	Helper()
	Fatalf(format string, args ...any)
}

func toolResultText(t testingT, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("missing tool result content: %#v", result)
	}
	text, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type: %T", result.Content[0])
	}
	return text.Text
}

func parseToolErrorPayload(t testingT, result *mcp.CallToolResult) toolErrorPayload {
	t.Helper()
	if !result.IsError {
		t.Fatalf("expected error result, got %q", toolResultText(t, result))
	}
	raw := toolResultText(t, result)
	var payload toolErrorPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("invalid tool error payload JSON: %v body=%q", err, raw)
	}
	return payload
}

func parseToolMemo(t testingT, result *mcp.CallToolResult) memos.Memo {
	t.Helper()
	if result.IsError {
		t.Fatalf("unexpected error result: %q", toolResultText(t, result))
	}
	var memo memos.Memo
	if err := json.Unmarshal([]byte(toolResultText(t, result)), &memo); err != nil {
		t.Fatalf("invalid memo JSON: %v", err)
	}
	return memo
}

func call(t testingT, h *Handler, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	result, err := h.HandleToolCall(context.Background(), name, args)
	if err != nil {
		t.Fatalf("%s returned protocol error: %v", name, err)
	}
	return result
}

func TestHandleToolCall_CRUDFlow(t *testing.T) {
	t.Parallel()
	h := NewHandler(memos.NewStore(memos.PolicySequence))

	created := parseToolMemo(t, call(t, h, ToolMemoCreate, map[string]any{"title": "groceries", "contents": "- milk"}))
	if created.ID != 1 || created.Title != "groceries" || created.Contents != "- milk" {
		t.Fatalf("unexpected created memo: %+v", created)
	}

	got := parseToolMemo(t, call(t, h, ToolMemoGet, map[string]any{"id": float64(1)}))
	if got != created {
		t.Fatalf("get = %+v, want %+v", got, created)
	}

	updated := parseToolMemo(t, call(t, h, ToolMemoUpdate, map[string]any{"id": float64(1), "title": "shop", "contents": ""}))
	if updated.Title != "shop" || updated.Contents != "" {
		t.Fatalf("unexpected update: %+v", updated)
	}

	retitled := parseToolMemo(t, call(t, h, ToolMemoUpdateTitle, map[string]any{"id": float64(1), "title": "errands"}))
	if retitled.Title != "errands" || retitled.Contents != "" {
		t.Fatalf("unexpected retitle: %+v", retitled)
	}

	var listed []memos.Memo
	if err := json.Unmarshal([]byte(toolResultText(t, call(t, h, ToolMemoList, nil))), &listed); err != nil {
		t.Fatalf("invalid list JSON: %v", err)
	}
	if len(listed) != 1 || listed[0] != retitled {
		t.Fatalf("unexpected list: %+v", listed)
	}

	deleted := call(t, h, ToolMemoDelete, map[string]any{"id": float64(1)})
	if deleted.IsError {
		t.Fatalf("delete failed: %q", toolResultText(t, deleted))
	}
	payload := parseToolErrorPayload(t, call(t, h, ToolMemoGet, map[string]any{"id": float64(1)}))
	if payload.Code != string(errs.NotFound) {
		t.Fatalf("expected not_found after delete, got %+v", payload)
	}
}

func TestHandleToolCall_ListEmptyIsArray(t *testing.T) {
	t.Parallel()
	h := NewHandler(memos.NewStore(memos.PolicySequence))
	if got := toolResultText(t, call(t, h, ToolMemoList, map[string]any{})); got != "[]" {
		t.Fatalf("empty list = %q, want []", got)
	}
}

func TestHandleToolCall_Rejections(t *testing.T) {
	t.Parallel()
	h := NewHandler(memos.NewStore(memos.PolicySequence))
	call(t, h, ToolMemoCreate, map[string]any{"title": "a", "contents": "b"})

	cases := []struct {
		name string
		tool string
		args map[string]any
		code errs.Code
	}{
		{"unknown tool", "memo_archive", nil, errs.InvalidInput},
		{"missing id", ToolMemoGet, map[string]any{}, errs.InvalidInput},
		{"fractional id", ToolMemoGet, map[string]any{"id": 1.5}, errs.InvalidInput},
		{"string id", ToolMemoGet, map[string]any{"id": "1"}, errs.InvalidInput},
		{"absent id", ToolMemoDelete, map[string]any{"id": float64(42)}, errs.NotFound},
		{"update without contents", ToolMemoUpdate, map[string]any{"id": float64(1), "title": "x"}, errs.InvalidInput},
		{"update without title", ToolMemoUpdate, map[string]any{"id": float64(1), "contents": "x"}, errs.InvalidInput},
		{"retitle with contents", ToolMemoUpdateTitle, map[string]any{"id": float64(1), "title": "x", "contents": "y"}, errs.InvalidInput},
		{"retitle without title", ToolMemoUpdateTitle, map[string]any{"id": float64(1)}, errs.InvalidInput},
		{"non-string title", ToolMemoCreate, map[string]any{"title": 7}, errs.InvalidInput},
		{"update missing memo", ToolMemoUpdate, map[string]any{"id": float64(9), "title": "x", "contents": "y"}, errs.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := parseToolErrorPayload(t, call(t, h, tc.tool, tc.args))
			if payload.Code != string(tc.code) {
				t.Fatalf("code = %q, want %q (error %q)", payload.Code, tc.code, payload.Error)
			}
			if payload.Error == "" {
				t.Fatal("expected a non-empty error message")
			}
		})
	}

	got := parseToolMemo(t, call(t, h, ToolMemoGet, map[string]any{"id": float64(1)}))
	if got.Title != "a" || got.Contents != "b" {
		t.Fatalf("rejected calls must not modify the memo: %+v", got)
	}
}

func TestHandleToolCall_NullFieldsAreAbsent(t *testing.T) {
	t.Parallel()
	h := NewHandler(memos.NewStore(memos.PolicySequence))
	created := parseToolMemo(t, call(t, h, ToolMemoCreate, map[string]any{"title": nil}))
	if created.Title != "" || created.Contents != "" {
		t.Fatalf("null fields should default to empty: %+v", created)
	}
	payload := parseToolErrorPayload(t, call(t, h, ToolMemoUpdate, map[string]any{"id": float64(created.ID), "title": "t", "contents": nil}))
	if payload.Code != string(errs.InvalidInput) {
		t.Fatalf("null contents on update should be rejected, got %+v", payload)
	}
}

func testHandleToolCall_RetitleKeepsContents(t *rapid.T) {
	h := NewHandler(memos.NewStore(memos.PolicySequence))
	title := rapid.String().Draw(t, "title")
	contents := rapid.String().Draw(t, "contents")
	newTitle := rapid.String().Draw(t, "newTitle")

	created := parseToolMemo(t, call(t, h, ToolMemoCreate, map[string]any{"title": title, "contents": contents}))
	retitled := parseToolMemo(t, call(t, h, ToolMemoUpdateTitle, map[string]any{"id": float64(created.ID), "title": newTitle}))
	if retitled.ID != created.ID || retitled.Title != newTitle || retitled.Contents != contents {
		t.Fatalf("retitle = %+v, want id=%d title=%q contents=%q", retitled, created.ID, newTitle, contents)
	}
}

func TestHandleToolCall_RetitleKeepsContents(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testHandleToolCall_RetitleKeepsContents)
}

func testIDFromArgs_IntegralFloatsOnly(t *rapid.T) {
	n := rapid.Int64Range(-1<<40, 1<<40).Draw(t, "n")
	id, err := idFromArgs(map[string]any{"id": float64(n)})
	if err != nil || id != n {
		t.Fatalf("idFromArgs(%d) = %d, %v", n, id, err)
	}
	frac := rapid.Float64Range(0.01, 0.99).Draw(t, "frac")
	if _, err := idFromArgs(map[string]any{"id": float64(n) + frac}); !errs.Is(err, errs.InvalidInput) {
		t.Fatalf("expected invalid_input for %v, got %v", float64(n)+frac, err)
	}
}

func TestIDFromArgs_IntegralFloatsOnly(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testIDFromArgs_IntegralFloatsOnly)
}

func TestToolDefinitions_MatchDispatch(t *testing.T) {
	t.Parallel()
	h := NewHandler(memos.NewStore(memos.PolicySequence))
	for _, tool := range ToolDefinitions() {
		result := call(t, h, tool.Name, map[string]any{})
		if result.IsError {
			payload := parseToolErrorPayload(t, result)
			if payload.Error == "unknown tool: "+tool.Name {
				t.Fatalf("tool %q is defined but not dispatched", tool.Name)
			}
		}
		if tool.Description == "" {
			t.Fatalf("tool %q has no description", tool.Name)
		}
	}
}
