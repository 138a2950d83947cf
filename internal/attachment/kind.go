package attachment

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/starford/iceberg/internal/apperr"
)

// Kind is the closed set of attachment variants.
type Kind string

const (
	KindText     Kind = "text"
	KindLink     Kind = "link"
	KindImage    Kind = "image"
	KindSketch   Kind = "sketch"
	KindAudio    Kind = "audio"
	KindVideo    Kind = "video"
	KindLocation Kind = "location"
)

var kinds = []Kind{KindText, KindLink, KindImage, KindSketch, KindAudio, KindVideo, KindLocation}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind maps a wire name to its Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidKind, s)
	}
	return k, nil
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := capabilities[k]
	return ok
}

func (k Kind) String() string { return string(k) }

// MarshalJSON rejects unknown kinds so they never reach disk.
func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidKind, string(k))
	}
	return json.Marshal(string(k))
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Capability is the per-kind behaviour the rest of the system relies on.
type Capability interface {
	// Render produces the document text shown in place of the attachment.
	Render(a *Attachment, content []byte) string
	// Size reports a kind-specific size for content: runes for text,
	// bytes for everything else.
	Size(content []byte) int64
	// ContentType is the MIME type served for the content file.
	ContentType() string
	// Extension is the suggested filename extension on export.
	Extension() string
}

// Capability returns the behaviour of k. Unknown kinds get the binary
// fallback.
func (k Kind) Capability() Capability {
	if c, ok := capabilities[k]; ok {
		return c
	}
	return binaryCap{contentType: "application/octet-stream", ext: ".bin"}
}

var capabilities = map[Kind]Capability{
	KindText:     textCap{},
	KindLink:     linkCap{},
	KindImage:    binaryCap{contentType: "image/jpeg", ext: ".jpg"},
	KindSketch:   binaryCap{contentType: "image/png", ext: ".png"},
	KindAudio:    binaryCap{contentType: "audio/mp4", ext: ".m4a"},
	KindVideo:    binaryCap{contentType: "video/quicktime", ext: ".mov"},
	KindLocation: locationCap{},
}

type textCap struct{}

func (textCap) Render(_ *Attachment, content []byte) string { return string(content) }
func (textCap) Size(content []byte) int64                   { return int64(utf8.RuneCount(content)) }
func (textCap) ContentType() string                         { return "text/plain; charset=utf-8" }
func (textCap) Extension() string                           { return ".txt" }

// Link is the JSON body stored for link attachments.
type Link struct {
	URL   string `json:"link"`
	Title string `json:"title"`
}

type linkCap struct{}

// Render emits an org link. Bodies that are not a Link object are treated
// as a bare URL.
func (linkCap) Render(_ *Attachment, content []byte) string {
	var l Link
	if err := json.Unmarshal(content, &l); err != nil || l.URL == "" {
		return "[[" + strings.TrimSpace(string(content)) + "]]"
	}
	if l.Title == "" {
		return "[[" + l.URL + "]]"
	}
	return "[[" + l.URL + "][" + l.Title + "]]"
}

func (linkCap) Size(content []byte) int64 { return int64(len(content)) }
func (linkCap) ContentType() string       { return "application/json" }
func (linkCap) Extension() string         { return ".json" }

// Location is the JSON body stored for location attachments.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type locationCap struct{}

func (locationCap) Render(a *Attachment, _ []byte) string { return a.Reference() }
func (locationCap) Size(content []byte) int64             { return int64(len(content)) }
func (locationCap) ContentType() string                   { return "application/json" }
func (locationCap) Extension() string                     { return ".json" }

type binaryCap struct {
	contentType string
	ext         string
}

func (binaryCap) Render(a *Attachment, _ []byte) string { return a.Reference() }
func (binaryCap) Size(content []byte) int64             { return int64(len(content)) }
func (c binaryCap) ContentType() string                 { return c.contentType }
func (c binaryCap) Extension() string                   { return c.ext }
