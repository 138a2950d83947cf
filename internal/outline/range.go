// Package outline indexes the structure of org-style outline documents.
//
// A Parser scans document text and reports what it finds to a ParserDelegate
// through a fixed callback sequence. Delegate is the standard accumulator: it
// rebuilds a heading index and a date/time index on every full parse and
// answers "which heading encloses this offset" queries.
//
// All offsets are byte offsets into the UTF-8 document text.
package outline

// Named-range keys emitted by the Parser. Any tokenizer driving a Delegate
// must use the same names.
const (
	KeyHeading  = "heading"
	KeyLevel    = "level"
	KeyPlanning = "planning"
	KeyPriority = "priority"
	KeyTags     = "tags"
	KeyTitle    = "title"

	KeyDateAndTime = "dateAndTime"

	KeyAttachment      = "attachment"
	KeyAttachmentType  = "attachmentType"
	KeyAttachmentValue = "attachmentValue"
)

// Range locates a span of document text.
type Range struct {
	Location int `json:"location"`
	Length   int `json:"length"`
}

// UpperBound returns the offset one past the end of the range.
func (r Range) UpperBound() int { return r.Location + r.Length }

// IsEmpty reports whether the range covers no text.
func (r Range) IsEmpty() bool { return r.Length == 0 }

// Contains reports whether loc falls inside the range.
func (r Range) Contains(loc int) bool {
	return loc >= r.Location && loc < r.UpperBound()
}

// Offset returns the range shifted by n.
func (r Range) Offset(n int) Range {
	return Range{Location: r.Location + n, Length: r.Length}
}

// Union returns the smallest range covering both r and o.
func (r Range) Union(o Range) Range {
	lo := min(r.Location, o.Location)
	hi := max(r.UpperBound(), o.UpperBound())
	return Range{Location: lo, Length: hi - lo}
}

// In returns the text covered by r, clamped to the bounds of text.
func (r Range) In(text string) string {
	lo := max(r.Location, 0)
	hi := min(r.UpperBound(), len(text))
	if lo >= hi {
		return ""
	}
	return text[lo:hi]
}

// Ranges is a named-range mapping produced by one parse match.
type Ranges map[string]Range

func (m Ranges) clone() Ranges {
	out := make(Ranges, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
