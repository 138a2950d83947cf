// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Iceberg attachment and outline tools for LLM integration via
// stdio transport.
package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/iceberg/internal/attachment"
	"github.com/starford/iceberg/internal/attachservice"
	"github.com/starford/iceberg/internal/webclip"
)

// FormatResourceURI identifies the attachment format resource.
const FormatResourceURI = "iceberg://attachment-format"

// Server wraps the MCP server with Iceberg tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *attachservice.Service
	clipper *webclip.Fetcher
}

// New creates a new MCP server with all Iceberg tools registered.
func New(svc *attachservice.Service, clipper *webclip.Fetcher) *Server {
	s := &Server{svc: svc, clipper: clipper}

	s.mcp = server.NewMCPServer(
		"Iceberg",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	kinds := make([]string, 0, len(attachment.Kinds()))
	for _, k := range attachment.Kinds() {
		kinds = append(kinds, string(k))
	}

	s.mcp.AddTool(mcp.NewTool("save_attachment",
		mcp.WithDescription("Store new attachment content and return its key and the "+
			"#+ATTACHMENT reference line to paste into a document. Text is stored as-is; "+
			"links and locations are JSON bodies described in the attachment format contract."),
		mcp.WithString("kind", mcp.Required(), mcp.Enum(kinds...), mcp.Description("Attachment kind")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Attachment body")),
		mcp.WithString("description", mcp.Description("Optional human-readable description")),
	), s.saveAttachment)

	s.mcp.AddTool(mcp.NewTool("read_attachment",
		mcp.WithDescription("Read an attachment's metadata and, for text and links, its "+
			"rendered content. Images and sketches are returned as image content."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Upper-case UUID attachment key")),
	), s.readAttachment)

	s.mcp.AddTool(mcp.NewTool("delete_attachment",
		mcp.WithDescription("Delete an attachment's content and metadata."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Upper-case UUID attachment key")),
	), s.deleteAttachment)

	s.mcp.AddTool(mcp.NewTool("list_attachments",
		mcp.WithDescription("List attachments, newest first."),
		mcp.WithString("kind", mcp.Enum(kinds...), mcp.Description("Optional kind filter")),
		mcp.WithNumber("limit", mcp.Min(1), mcp.Description("Maximum number of items (default 50)")),
	), s.listAttachments)

	s.mcp.AddTool(mcp.NewTool("search_attachments",
		mcp.WithDescription("Full-text search through attachment descriptions and text content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchAttachments)

	s.mcp.AddTool(mcp.NewTool("get_referrers",
		mcp.WithDescription("Find all documents that embed the specified attachment."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Attachment key")),
	), s.getReferrers)

	s.mcp.AddTool(mcp.NewTool("outline",
		mcp.WithDescription("Parse org-style text into headings, date expressions, attachment references, links, "+
			"checkboxes, list items, separators and code/quote blocks. "+
			"Ranges are byte offsets into the text."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Document text")),
	), s.outline)

	s.mcp.AddTool(mcp.NewTool("outline_heading_at",
		mcp.WithDescription("Return the heading whose subtree contains a byte offset of the text."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Document text")),
		mcp.WithNumber("offset", mcp.Required(), mcp.Min(0), mcp.Description("Byte offset into the text")),
	), s.outlineHeadingAt)

	s.mcp.AddTool(mcp.NewTool("attach_from_url",
		mcp.WithDescription("Create an attachment from an http(s) URL or a base64 data URI. "+
			"HTML pages become links (with the page title) or Markdown text; images, audio "+
			"and video are stored as-is after a content check."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data: URI")),
		mcp.WithString("kind", mcp.Enum(kinds...), mcp.Description("Optional kind; inferred from the media type when empty")),
		mcp.WithString("description", mcp.Description("Optional description; defaults to the page title")),
	), s.attachFromURL)

	s.mcp.AddTool(mcp.NewTool("get_attachment_contract",
		mcp.WithDescription("Returns the Iceberg attachment format contract. "+
			"Call this before saving attachments or writing references into documents."),
	), s.getAttachmentContract)

	// Resource: attachment format contract.
	s.mcp.AddResource(
		mcp.NewResource(FormatResourceURI, "Attachment Format Contract",
			mcp.WithResourceDescription("Attachment kinds, body formats and the in-document reference syntax."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) saveAttachment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawKind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := attachment.ParseKind(rawKind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !textBody(kind) {
		return mcp.NewToolResultError(fmt.Sprintf("%s content is binary; use attach_from_url with a URL or data URI", kind)), nil
	}

	d, err := s.svc.Save(ctx, kind, content, req.GetString("description", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d), nil
}

func textBody(k attachment.Kind) bool {
	return k == attachment.KindText || k == attachment.KindLink || k == attachment.KindLocation
}

func (s *Server) readAttachment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.Get(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	k := attachment.Kind(d.Kind)
	if (k == attachment.KindImage || k == attachment.KindSketch) && !d.Dangling {
		data, ct, err := s.svc.Content(ctx, key)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		meta, _ := json.MarshalIndent(d, "", "  ")
		return mcp.NewToolResultImage(string(meta), base64.StdEncoding.EncodeToString(data), ct), nil
	}
	return jsonResult(d), nil
}

func (s *Server) deleteAttachment(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, key); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", key)), nil
}

func (s *Server) listAttachments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.List(ctx, req.GetInt("limit", 50), 0, req.GetString("kind", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"attachments": items, "total": total}), nil
}

func (s *Server) searchAttachments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getReferrers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refs, err := s.svc.Referrers(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(refs) == 0 {
		return mcp.NewToolResultText("no referrers found"), nil
	}
	docs := make([]string, len(refs))
	for i, r := range refs {
		docs[i] = r.Document
	}
	return mcp.NewToolResultText(strings.Join(docs, "\n")), nil
}

func (s *Server) outline(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.Outline(text)), nil
}

func (s *Server) outlineHeadingAt(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	offset, err := req.RequireInt("offset")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	h, err := s.svc.HeadingAt(text, offset)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no heading contains offset %d", offset)), nil
	}
	return jsonResult(h), nil
}

func (s *Server) attachFromURL(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.clipper == nil {
		return mcp.NewToolResultError("clipping is disabled"), nil
	}
	rawURL, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind := attachment.Kind(strings.ToLower(req.GetString("kind", "")))

	c, err := s.clipper.Clip(ctx, rawURL, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	desc := req.GetString("description", "")
	if desc == "" {
		desc = c.Description
	}
	d, err := s.svc.Save(ctx, c.Kind, string(c.Content), desc)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save attachment: %v", err)), nil
	}
	return jsonResult(d), nil
}

func (s *Server) getAttachmentContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(AttachmentFormatContract), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FormatResourceURI,
			MIMEType: "text/markdown",
			Text:     AttachmentFormatContract,
		},
	}, nil
}
