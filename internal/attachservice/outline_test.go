package attachservice

import (
	"errors"
	"strings"
	"testing"

	"github.com/starford/iceberg/internal/apperr"
	"github.com/starford/iceberg/internal/outline"
)

const plan = `Intro line
* TODO [#A] Pack bags :travel:urgent:
SCHEDULED: <2024-03-01 Fri 09:30 +1w>
** Passport
#+ATTACHMENT:image=0F8E9C2A-6B1D-4E3F-9A7B-1C2D3E4F5A6B
* DONE Book hotel
`

func TestOutline(t *testing.T) {
	svc := NewService(nil, nil, nil)
	res := svc.Outline(plan)

	if len(res.Headings) != 3 {
		t.Fatalf("headings = %d, want 3", len(res.Headings))
	}
	first := res.Headings[0]
	if first.Title != "Pack bags" || first.Planning != "TODO" || first.Priority != "A" {
		t.Errorf("first = %+v", first)
	}
	if strings.Join(first.Tags, ",") != "travel,urgent" {
		t.Errorf("tags = %v", first.Tags)
	}
	if first.Level != 1 || first.Subheadings != 1 {
		t.Errorf("level = %d subheadings = %d", first.Level, first.Subheadings)
	}
	if res.Headings[1].Level != 2 || res.Headings[1].Tags == nil {
		t.Errorf("second = %+v", res.Headings[1])
	}

	if len(res.Dates) != 1 {
		t.Fatalf("dates = %+v", res.Dates)
	}
	date := res.Dates[0]
	if date.Date == nil || !date.Scheduled || date.Repeat != "+1w" || !date.IncludeTime {
		t.Errorf("date = %+v", date)
	}
	if date.Date.Hour() != 9 || date.Date.Minute() != 30 {
		t.Errorf("time = %v", date.Date)
	}

	if len(res.Attachments) != 1 || res.Attachments[0].Kind != "image" {
		t.Errorf("attachments = %+v", res.Attachments)
	}
}

func TestOutline_Elements(t *testing.T) {
	doc := "* Links\r\n- [X] read [[https://example.com/a][A]]\r\n1. step\r\n-----\r\n" +
		"#+BEGIN_SRC sql\r\nselect 1;\r\n#+END_SRC\r\n#+BEGIN_QUOTE\r\nquoted\r\n#+END_QUOTE\r\n"
	res := NewService(nil, nil, nil).Outline(doc)

	if len(res.Headings) != 1 || res.Headings[0].Title != "Links" {
		t.Errorf("headings = %+v", res.Headings)
	}
	if len(res.Links) != 1 || res.Links[0].URL != "https://example.com/a" || res.Links[0].Title != "A" {
		t.Errorf("links = %+v", res.Links)
	}
	if len(res.Checkboxes) != 1 || !res.Checkboxes[0].Checked() {
		t.Errorf("checkboxes = %+v", res.Checkboxes)
	}
	if len(res.Lists) != 1 || !res.Lists[0].Ordered {
		t.Errorf("lists = %+v", res.Lists)
	}
	if len(res.Separators) != 1 {
		t.Errorf("separators = %+v", res.Separators)
	}
	if len(res.CodeBlocks) != 1 || res.CodeBlocks[0].Language != "sql" || res.CodeBlocks[0].Text != "select 1;\r\n" {
		t.Errorf("code blocks = %+v", res.CodeBlocks)
	}
	if len(res.QuoteBlocks) != 1 || res.QuoteBlocks[0].Text != "quoted\r\n" {
		t.Errorf("quote blocks = %+v", res.QuoteBlocks)
	}
}

func TestOutline_SubheadingCounts(t *testing.T) {
	doc := "* A\n** A1\n*** A1a\n** A2\n* B\n** B1\n"
	res := NewService(nil, nil, nil).Outline(doc)
	want := []int{3, 1, 0, 0, 1, 0}
	if len(res.Headings) != len(want) {
		t.Fatalf("headings = %d", len(res.Headings))
	}
	for i, h := range res.Headings {
		if h.Subheadings != want[i] {
			t.Errorf("%s subheadings = %d, want %d", h.Title, h.Subheadings, want[i])
		}
	}
}

func TestOutline_Empty(t *testing.T) {
	res := NewService(nil, nil, nil).Outline("")
	if res.Headings == nil || res.Dates == nil || res.Attachments == nil {
		t.Errorf("want empty non-nil slices, got %#v", res)
	}
	if res.Links == nil || res.Checkboxes == nil || res.Lists == nil || res.Separators == nil ||
		res.CodeBlocks == nil || res.QuoteBlocks == nil {
		t.Errorf("want empty non-nil element slices, got %#v", res)
	}
}

func TestHeadingAt(t *testing.T) {
	svc := NewService(nil, nil, outline.NewParser(outline.Options{}))

	off := strings.Index(plan, "Passport")
	h, err := svc.HeadingAt(plan, off)
	if err != nil {
		t.Fatal(err)
	}
	if h.Title != "Passport" {
		t.Errorf("title = %q", h.Title)
	}

	// The attachment line belongs to the Passport subtree.
	off = strings.Index(plan, "#+ATTACHMENT")
	if h, _ := svc.HeadingAt(plan, off); h == nil || h.Title != "Passport" {
		t.Errorf("heading at attachment = %+v", h)
	}

	if _, err := svc.HeadingAt(plan, 3); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("before first heading err = %v", err)
	}
}
