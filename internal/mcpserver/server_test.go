package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/noteban/noteban/internal/noteservice"
	"github.com/noteban/noteban/internal/selfwrite"
	"github.com/noteban/noteban/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	_, store := testutil.TestVault(t)
	db := testutil.TestCache(t)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := noteservice.NewService(store, db, selfwrite.New(), logger)
	return New(svc)
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so the handler
	// functions are exercised directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "update_note":
		result, err = srv.updateNote(ctx, req)
	case "delete_note":
		result, err = srv.deleteNote(ctx, req)
	case "move_note":
		result, err = srv.moveNote(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"title":   "Test Note",
		"content": "Hello #greeting",
		"tags":    "work, urgent",
	})
	text := resultText(r)
	if text != "created: test-note.md" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{
		"path": "test-note.md",
	})
	text = resultText(r)
	if !strings.Contains(text, `"title": "Test Note"`) {
		t.Errorf("read result missing title: %q", text)
	}
	if !strings.Contains(text, "greeting") {
		t.Errorf("read result missing inline tag: %q", text)
	}
	if !strings.Contains(text, "urgent") {
		t.Errorf("read result missing declared tag: %q", text)
	}
}

func TestListNotes(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"title": "Alpha"})
	_ = callTool(t, srv, "create_note", map[string]interface{}{"title": "Beta", "folder": "projects"})

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "alpha.md") || !strings.Contains(text, "projects/beta.md") {
		t.Errorf("list missing notes: %q", text)
	}
	if !strings.Contains(text, `"projects"`) {
		t.Errorf("list missing folder: %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestUpdateNote(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"title": "Before"})

	r := callTool(t, srv, "update_note", map[string]interface{}{
		"path":  "before.md",
		"title": "After",
		"order": "3",
	})
	text := resultText(r)
	if text != "updated: after.md" {
		t.Errorf("update result = %q", text)
	}

	r = callTool(t, srv, "update_note", map[string]interface{}{
		"path":  "after.md",
		"order": "not-a-number",
	})
	if !r.IsError {
		t.Error("expected error for non-integer order")
	}
}

func TestDeleteNote(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"title": "Doomed"})

	r := callTool(t, srv, "delete_note", map[string]interface{}{"path": "doomed.md"})
	if resultText(r) != "deleted: doomed.md" {
		t.Errorf("delete result = %q", resultText(r))
	}

	r = callTool(t, srv, "delete_note", map[string]interface{}{"path": "doomed.md"})
	if !r.IsError {
		t.Error("expected error for second delete")
	}
}

func TestMoveNote(t *testing.T) {
	srv := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"title": "Wander"})

	r := callTool(t, srv, "move_note", map[string]interface{}{
		"path":   "wander.md",
		"folder": "archive",
	})
	if resultText(r) != "moved: archive/wander.md" {
		t.Errorf("move result = %q", resultText(r))
	}
}

func TestNoteFormatResource(t *testing.T) {
	srv := testServer(t)

	contents, err := srv.readNoteFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("resource read: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents[0] is %T, want TextResourceContents", contents[0])
	}
	if !strings.Contains(tc.Text, "frontmatter") {
		t.Error("contract text missing frontmatter section")
	}
}
