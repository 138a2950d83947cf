//go:build sqlite_fts5

package catalog

import (
	"testing"
	"time"
)

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM attachments_fts`).Scan(&count); err != nil {
		t.Fatalf("attachments_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	row := AttachmentRow{Key: "F", Kind: "text", Description: "FTS note", CreatedAt: time.Now()}
	if err := db.UpsertAttachment(row, "Iceberg provides powerful full-text search capabilities."); err != nil {
		t.Fatalf("UpsertAttachment: %v", err)
	}

	results, err := db.Search("powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Key != "F" {
		t.Errorf("key = %q", results[0].Key)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertAttachment(AttachmentRow{Key: "G", Kind: "text", CreatedAt: time.Now()}, "vanishing content")
	_ = db.DeleteAttachment("G")

	results, _ := db.Search("vanishing", 10)
	if len(results) != 0 {
		t.Errorf("deleted attachment still in FTS index: %+v", results)
	}
}

func TestFTS5_UpsertReplacesContent(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertAttachment(AttachmentRow{Key: "E", Kind: "text", Description: "Old", CreatedAt: now}, "original text")
	_ = db.UpsertAttachment(AttachmentRow{Key: "E", Kind: "text", Description: "New", CreatedAt: now}, "replacement text")

	results, _ := db.Search("original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("replacement", 10)
	if len(results) != 1 || results[0].Description != "New" {
		t.Errorf("FTS not updated: %+v", results)
	}
}
