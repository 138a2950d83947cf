// Package attachment stores key-addressed attachment records in a flat folder.
//
// Every attachment is a pair of files sharing one key: <KEY>.json holds the
// metadata record and <KEY> holds the raw content. Documents refer to an
// attachment by embedding its Reference.
package attachment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/starford/iceberg/internal/apperr"
)

// MetaExt is the filename suffix of metadata files.
const MetaExt = ".json"

// Attachment is the metadata record of one stored attachment.
type Attachment struct {
	Kind        Kind
	Date        time.Time
	URL         string // content filename, relative to the store folder
	Description string
	Key         string
}

// wire is the on-disk shape. Dates are whole seconds since the Unix epoch.
type wire struct {
	URL         string      `json:"url"`
	Date        json.Number `json:"date"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Key         string      `json:"key"`
}

// MarshalJSON encodes a as {url, date, type, description, key}.
func (a Attachment) MarshalJSON() ([]byte, error) {
	if !a.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", apperr.ErrInvalidKind, string(a.Kind))
	}
	return json.Marshal(wire{
		URL:         a.URL,
		Date:        json.Number(fmt.Sprintf("%d", a.Date.Unix())),
		Type:        string(a.Kind),
		Description: a.Description,
		Key:         a.Key,
	})
}

// UnmarshalJSON decodes the on-disk shape. Unknown kinds and malformed dates
// are errors; fractional dates are accepted and truncated to seconds.
func (a *Attachment) UnmarshalJSON(b []byte) error {
	var w wire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	kind, err := ParseKind(w.Type)
	if err != nil {
		return err
	}
	if w.Key == "" {
		return errors.New("attachment: missing key")
	}
	date := time.Time{}
	if w.Date != "" {
		secs, err := w.Date.Float64()
		if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
			return fmt.Errorf("attachment: bad date %q", w.Date)
		}
		date = time.Unix(int64(secs), 0).UTC()
	}
	*a = Attachment{
		Kind:        kind,
		Date:        date,
		URL:         w.URL,
		Description: w.Description,
		Key:         w.Key,
	}
	return nil
}

// Reference is the inline token a document embeds to point at a.
func (a *Attachment) Reference() string {
	return Reference(a.Kind, a.Key)
}

// Reference formats the inline token for kind and key.
func Reference(kind Kind, key string) string {
	return "#+ATTACHMENT:" + string(kind) + "=" + key
}

// Render asks the kind's capability to render a with its content.
func (a *Attachment) Render(content []byte) string {
	return a.Kind.Capability().Render(a, content)
}
