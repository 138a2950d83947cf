package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/iceberg/internal/attachment"
	"github.com/starford/iceberg/internal/attachservice"
	"github.com/starford/iceberg/internal/catalog"
	"github.com/starford/iceberg/internal/testutil"
	"github.com/starford/iceberg/internal/webclip"
)

func testServer(t *testing.T) (*Server, *catalog.DB) {
	t.Helper()
	store := testutil.TestStore(t)
	db := testutil.TestDB(t)
	svc := attachservice.NewService(store, db, nil)
	return New(svc, webclip.NewFetcher()), db
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "save_attachment":
		result, err = srv.saveAttachment(ctx, req)
	case "read_attachment":
		result, err = srv.readAttachment(ctx, req)
	case "delete_attachment":
		result, err = srv.deleteAttachment(ctx, req)
	case "list_attachments":
		result, err = srv.listAttachments(ctx, req)
	case "search_attachments":
		result, err = srv.searchAttachments(ctx, req)
	case "get_referrers":
		result, err = srv.getReferrers(ctx, req)
	case "outline":
		result, err = srv.outline(ctx, req)
	case "outline_heading_at":
		result, err = srv.outlineHeadingAt(ctx, req)
	case "attach_from_url":
		result, err = srv.attachFromURL(ctx, req)
	case "get_attachment_contract":
		result, err = srv.getAttachmentContract(ctx, req)
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

func saved(t *testing.T, r *mcp.CallToolResult) attachservice.AttachmentDetail {
	t.Helper()
	if r.IsError {
		t.Fatalf("tool failed: %s", resultText(r))
	}
	var d attachservice.AttachmentDetail
	if err := json.Unmarshal([]byte(resultText(r)), &d); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	return d
}

func TestSaveAndReadAttachment(t *testing.T) {
	srv, _ := testServer(t)

	d := saved(t, callTool(t, srv, "save_attachment", map[string]interface{}{
		"kind":        "text",
		"content":     "remember the milk",
		"description": "todo",
	}))
	if d.Reference != "#+ATTACHMENT:text="+d.Key {
		t.Errorf("reference = %q", d.Reference)
	}

	got := saved(t, callTool(t, srv, "read_attachment", map[string]interface{}{"key": d.Key}))
	if got.Rendered != "remember the milk" || got.Description != "todo" {
		t.Errorf("read = %+v", got)
	}
}

func TestSaveAttachment_InvalidKind(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "save_attachment", map[string]interface{}{"kind": "pdf", "content": "x"})
	if !r.IsError {
		t.Error("expected error for unknown kind")
	}
}

func TestReadAttachment_Errors(t *testing.T) {
	srv, _ := testServer(t)
	for _, key := range []string{attachment.NewKey(), "../../etc/passwd"} {
		r := callTool(t, srv, "read_attachment", map[string]interface{}{"key": key})
		if !r.IsError {
			t.Errorf("read %q: expected error", key)
		}
	}
}

func TestDeleteAttachment(t *testing.T) {
	srv, _ := testServer(t)
	d := saved(t, callTool(t, srv, "save_attachment", map[string]interface{}{"kind": "text", "content": "x"}))

	r := callTool(t, srv, "delete_attachment", map[string]interface{}{"key": d.Key})
	if resultText(r) != "deleted: "+d.Key {
		t.Errorf("delete = %q", resultText(r))
	}
	r = callTool(t, srv, "delete_attachment", map[string]interface{}{"key": d.Key})
	if !r.IsError {
		t.Error("second delete should fail")
	}
}

func TestListAndSearch(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "save_attachment", map[string]interface{}{"kind": "text", "content": "walrus"})
	callTool(t, srv, "save_attachment", map[string]interface{}{
		"kind": "location", "content": `{"latitude":1,"longitude":2}`,
	})

	r := callTool(t, srv, "list_attachments", map[string]interface{}{"kind": "location"})
	var list struct {
		Total int `json:"total"`
	}
	_ = json.Unmarshal([]byte(resultText(r)), &list)
	if list.Total != 1 {
		t.Errorf("list = %s", resultText(r))
	}

	r = callTool(t, srv, "search_attachments", map[string]interface{}{"query": "walrus"})
	if !strings.Contains(resultText(r), "walrus") {
		t.Errorf("search = %s", resultText(r))
	}
}

func TestGetReferrers(t *testing.T) {
	srv, db := testServer(t)
	d := saved(t, callTool(t, srv, "save_attachment", map[string]interface{}{"kind": "text", "content": "x"}))

	r := callTool(t, srv, "get_referrers", map[string]interface{}{"key": d.Key})
	if resultText(r) != "no referrers found" {
		t.Errorf("referrers = %q", resultText(r))
	}

	doc := "* Notes\n" + d.Reference + "\n"
	if err := catalog.IndexDocument(db, nil, "notes.org", []byte(doc)); err != nil {
		t.Fatal(err)
	}
	r = callTool(t, srv, "get_referrers", map[string]interface{}{"key": d.Key})
	if resultText(r) != "notes.org" {
		t.Errorf("referrers = %q, want notes.org", resultText(r))
	}
}

func TestOutlineTools(t *testing.T) {
	srv, _ := testServer(t)
	text := "* DONE Ship it\n** Follow-up\nbody\n"

	r := callTool(t, srv, "outline", map[string]interface{}{"text": text})
	var out attachservice.OutlineResult
	if err := json.Unmarshal([]byte(resultText(r)), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Headings) != 2 || out.Headings[0].Planning != "DONE" {
		t.Errorf("outline = %+v", out)
	}

	r = callTool(t, srv, "outline_heading_at", map[string]interface{}{
		"text":   text,
		"offset": float64(strings.Index(text, "body")),
	})
	var h attachservice.HeadingInfo
	_ = json.Unmarshal([]byte(resultText(r)), &h)
	if h.Title != "Follow-up" {
		t.Errorf("heading = %+v", h)
	}

	r = callTool(t, srv, "outline_heading_at", map[string]interface{}{"text": "no headings", "offset": 3})
	if !r.IsError {
		t.Error("expected error when no heading precedes the offset")
	}
}

func TestAttachFromDataURI(t *testing.T) {
	srv, _ := testServer(t)
	png := []byte("\x89PNG\x0D\x0A\x1A\x0A\x00\x00\x00\x0DIHDR")

	d := saved(t, callTool(t, srv, "attach_from_url", map[string]interface{}{
		"url": "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}))
	if d.Kind != "sketch" || d.Size != int64(len(png)) {
		t.Errorf("attach = %+v", d)
	}

	r := callTool(t, srv, "read_attachment", map[string]interface{}{"key": d.Key})
	if len(r.Content) != 2 {
		t.Fatalf("want text + image content, got %d items", len(r.Content))
	}
	img, ok := r.Content[1].(mcp.ImageContent)
	if !ok || img.MIMEType != "image/png" || img.Data != base64.StdEncoding.EncodeToString(png) {
		t.Errorf("image content = %+v", r.Content[1])
	}

	r = callTool(t, srv, "attach_from_url", map[string]interface{}{"url": "file:///etc/passwd"})
	if !r.IsError {
		t.Error("file URL should be rejected")
	}
}

func TestAttachmentContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_attachment_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "#+ATTACHMENT:image=") {
		t.Error("contract should document the reference syntax")
	}

	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != FormatResourceURI {
		t.Errorf("resource contents = %+v", contents[0])
	}
}

func TestSaveAttachment_RejectsBinaryKinds(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "save_attachment", map[string]interface{}{"kind": "image", "content": "not really a jpeg"})
	if !r.IsError || !strings.Contains(resultText(r), "attach_from_url") {
		t.Errorf("result = %q", resultText(r))
	}
}
