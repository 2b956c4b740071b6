// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes noteban tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/noteban/noteban/internal/noteservice"
)

// Server wraps the MCP server with noteban tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all noteban tools registered.
func New(svc *noteservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"noteban",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List every note and folder in the vault, notes newest first."),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note: frontmatter fields, body and extracted inline tags."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note. The filename derives from the title; "+
			"frontmatter is generated automatically. Read the noteban://note-format "+
			"resource for the header contract."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Human-readable note title")),
		mcp.WithString("content", mcp.Description("Markdown body; #tags in the text are indexed")),
		mcp.WithString("tags", mcp.Description("Comma-separated tag list (e.g. work,urgent)")),
		mcp.WithString("column", mcp.Description("Board column name (defaults to todo)")),
		mcp.WithString("date", mcp.Description("Optional date, YYYY-MM-DD")),
		mcp.WithString("folder", mcp.Description("Folder to create the note in (empty for vault root)")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Update fields of an existing note. Only provided fields change; "+
			"a new title renames the file and its attachments."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("content", mcp.Description("New Markdown body")),
		mcp.WithString("tags", mcp.Description("Comma-separated tag list; replaces the current tags")),
		mcp.WithString("column", mcp.Description("New board column")),
		mcp.WithString("date", mcp.Description("New date, YYYY-MM-DD")),
		mcp.WithString("order", mcp.Description("New sort order inside the column, as an integer")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("delete_note",
		mcp.WithDescription("Delete a note together with its attachments directory."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.deleteNote)

	s.mcp.AddTool(mcp.NewTool("move_note",
		mcp.WithDescription("Move a note into another folder. Attachments move with it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithString("folder", mcp.Description("Target folder (empty for vault root)")),
	), s.moveNote)

	// Resource: note format contract.
	s.mcp.AddResource(
		mcp.NewResource("noteban://note-format", "Note Format Contract",
			mcp.WithResourceDescription("Canonical Markdown note format that all notes follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listing, err := s.svc.FullList(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	type entry struct {
		Path   string   `json:"path"`
		Title  string   `json:"title"`
		Column string   `json:"column"`
		Tags   []string `json:"tags"`
	}
	out := struct {
		Notes   []entry  `json:"notes"`
		Folders []string `json:"folders"`
	}{Notes: []entry{}, Folders: listing.Folders}
	for _, n := range listing.Notes {
		out.Notes = append(out.Notes, entry{
			Path:   n.Note.Path,
			Title:  n.Note.Frontmatter.Title,
			Column: n.Note.Frontmatter.Column,
			Tags:   n.Note.Frontmatter.Tags,
		})
	}

	text, _ := json.MarshalIndent(out, "", "  ")
	return mcp.NewToolResultText(string(text)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.ReadNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", path, err)), nil
	}
	text, _ := json.MarshalIndent(note, "", "  ")
	return mcp.NewToolResultText(string(text)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in := noteservice.CreateNoteInput{Title: title}
	if v, err := req.RequireString("content"); err == nil {
		in.Content = v
	}
	if v, err := req.RequireString("tags"); err == nil {
		in.Tags = splitTags(v)
	}
	if v, err := req.RequireString("column"); err == nil {
		in.Column = v
	}
	if v, err := req.RequireString("date"); err == nil {
		in.Date = v
	}
	if v, err := req.RequireString("folder"); err == nil {
		in.Folder = v
	}

	note, err := s.svc.CreateNote(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", note.Note.Path)), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	in := noteservice.UpdateNoteInput{Path: path}
	if v, err := req.RequireString("title"); err == nil {
		in.Title = &v
	}
	if v, err := req.RequireString("content"); err == nil {
		in.Content = &v
	}
	if v, err := req.RequireString("tags"); err == nil {
		tags := splitTags(v)
		in.Tags = &tags
	}
	if v, err := req.RequireString("column"); err == nil {
		in.Column = &v
	}
	if v, err := req.RequireString("date"); err == nil {
		in.Date = &v
	}
	if v, err := req.RequireString("order"); err == nil {
		n, convErr := strconv.Atoi(strings.TrimSpace(v))
		if convErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("order must be an integer: %v", convErr)), nil
		}
		in.Order = &n
	}

	note, err := s.svc.UpdateNote(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", note.Note.Path)), nil
}

func (s *Server) deleteNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.DeleteNote(ctx, path); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", path)), nil
}

func (s *Server) moveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	folder := ""
	if v, err := req.RequireString("folder"); err == nil {
		folder = v
	}
	note, err := s.svc.MoveNote(ctx, path, folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s", note.Note.Path)), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "noteban://note-format",
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}

func splitTags(raw string) []string {
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
