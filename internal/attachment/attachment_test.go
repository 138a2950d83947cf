package attachment

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/iceberg/internal/apperr"
)

func TestAttachmentJSONRoundTrip(t *testing.T) {
	descriptions := []string{
		"",
		"plain",
		"日本語のメモ",
		"emoji 🧊🏔️ and \"quotes\"",
		"line\nbreaks\tand\\slashes",
		"\u0000nul and   separators",
	}
	date := time.Date(2024, 3, 1, 9, 30, 15, 0, time.UTC)

	for _, k := range Kinds() {
		for _, d := range descriptions {
			in := Attachment{
				Kind:        k,
				Date:        date,
				URL:         "0F8FAD5B-D9CB-469F-A165-70867728950E",
				Description: d,
				Key:         "0F8FAD5B-D9CB-469F-A165-70867728950E",
			}
			data, err := json.Marshal(in)
			if err != nil {
				t.Fatalf("marshal %s: %v", k, err)
			}
			var out Attachment
			if err := json.Unmarshal(data, &out); err != nil {
				t.Fatalf("unmarshal %s: %v", k, err)
			}
			if out.Kind != in.Kind || out.URL != in.URL || out.Description != in.Description || out.Key != in.Key {
				t.Errorf("round trip %s/%q: got %+v", k, d, out)
			}
			if !out.Date.Equal(in.Date) {
				t.Errorf("date = %v, want %v", out.Date, in.Date)
			}
		}
	}
}

func TestAttachmentWireFormat(t *testing.T) {
	a := Attachment{
		Kind:        KindImage,
		Date:        time.Unix(1700000000, 0),
		URL:         "K",
		Description: "d",
		Key:         "K",
	}
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"url", "date", "type", "description", "key"} {
		if _, ok := raw[field]; !ok {
			t.Errorf("missing field %q in %s", field, data)
		}
	}
	if len(raw) != 5 {
		t.Errorf("unexpected fields in %s", data)
	}
	if raw["date"] != float64(1700000000) {
		t.Errorf("date = %v", raw["date"])
	}
	if raw["type"] != "image" {
		t.Errorf("type = %v", raw["type"])
	}
}

func TestAttachmentUnmarshalErrors(t *testing.T) {
	cases := map[string]string{
		"unknown kind": `{"url":"K","date":1,"type":"hologram","description":"","key":"K"}`,
		"missing key":  `{"url":"K","date":1,"type":"text","description":""}`,
		"bad date":     `{"url":"K","date":"soon","type":"text","description":"","key":"K"}`,
		"not json":     `{"url":`,
	}
	for name, in := range cases {
		var a Attachment
		if err := json.Unmarshal([]byte(in), &a); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	var a Attachment
	err := json.Unmarshal([]byte(`{"url":"K","date":1,"type":"nope","key":"K"}`), &a)
	if !errors.Is(err, apperr.ErrInvalidKind) {
		t.Errorf("err = %v, want ErrInvalidKind", err)
	}
}

func TestAttachmentFractionalDate(t *testing.T) {
	var a Attachment
	if err := json.Unmarshal([]byte(`{"url":"K","date":1700000000.75,"type":"text","description":"","key":"K"}`), &a); err != nil {
		t.Fatal(err)
	}
	if a.Date.Unix() != 1700000000 {
		t.Errorf("date = %d", a.Date.Unix())
	}
}

func TestMarshalRejectsUnknownKind(t *testing.T) {
	if _, err := json.Marshal(Attachment{Kind: "hologram", Key: "K"}); err == nil {
		t.Error("expected error")
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(strings.ToUpper(string(k)))
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseKind("pdf"); !errors.Is(err, apperr.ErrInvalidKind) {
		t.Errorf("err = %v", err)
	}
}

func TestReference(t *testing.T) {
	a := &Attachment{Kind: KindSketch, Key: "ABC"}
	if got := a.Reference(); got != "#+ATTACHMENT:sketch=ABC" {
		t.Errorf("Reference = %q", got)
	}
}

func TestCapabilities(t *testing.T) {
	a := &Attachment{Kind: KindLink, Key: "K"}

	link, _ := json.Marshal(Link{URL: "https://example.com", Title: "Example"})
	if got := a.Render(link); got != "[[https://example.com][Example]]" {
		t.Errorf("link render = %q", got)
	}
	if got := a.Render([]byte("https://bare.example")); got != "[[https://bare.example]]" {
		t.Errorf("bare link render = %q", got)
	}

	text := &Attachment{Kind: KindText, Key: "K"}
	if got := text.Render([]byte("hello")); got != "hello" {
		t.Errorf("text render = %q", got)
	}
	if n := KindText.Capability().Size([]byte("héllo")); n != 5 {
		t.Errorf("text size = %d, want 5 runes", n)
	}

	img := &Attachment{Kind: KindImage, Key: "K"}
	if got := img.Render([]byte{0xff, 0xd8}); got != "#+ATTACHMENT:image=K" {
		t.Errorf("image render = %q", got)
	}
	if n := KindImage.Capability().Size([]byte{1, 2, 3}); n != 3 {
		t.Errorf("image size = %d", n)
	}

	for _, k := range Kinds() {
		c := k.Capability()
		if c.ContentType() == "" || !strings.HasPrefix(c.Extension(), ".") {
			t.Errorf("%s: incomplete capability", k)
		}
	}
}
