package outline

import "strings"

// HeadingToken is one heading line found by the parser. Tokens are immutable.
type HeadingToken struct {
	rng  Range
	data Ranges
}

// NewHeadingToken projects a named-range mapping into a token. It reports
// false when the mapping has no heading range.
func NewHeadingToken(data Ranges) (HeadingToken, bool) {
	r, ok := data[KeyHeading]
	if !ok {
		return HeadingToken{}, false
	}
	return HeadingToken{rng: r, data: data.clone()}, true
}

// Range returns the span of the whole heading line.
func (h HeadingToken) Range() Range { return h.rng }

// RangeFor returns the sub-range stored under key.
func (h HeadingToken) RangeFor(key string) (Range, bool) {
	r, ok := h.data[key]
	return r, ok
}

// Level is the number of leading stars.
func (h HeadingToken) Level() int {
	if r, ok := h.data[KeyLevel]; ok {
		return r.Length
	}
	return 0
}

// LevelRange returns the span of the star markers.
func (h HeadingToken) LevelRange() Range {
	return Range{Location: h.rng.Location, Length: h.Level()}
}

// Planning returns the span of the TODO/DONE/... keyword.
func (h HeadingToken) Planning() (Range, bool) { return h.RangeFor(KeyPlanning) }

// Priority returns the span of the [#A] marker.
func (h HeadingToken) Priority() (Range, bool) { return h.RangeFor(KeyPriority) }

// Tags returns the span of the trailing :tag:list:.
func (h HeadingToken) Tags() (Range, bool) { return h.RangeFor(KeyTags) }

// TitleRange returns the span of the heading text, excluding the level
// markers, planning, priority and tags.
func (h HeadingToken) TitleRange() Range {
	if r, ok := h.data[KeyTitle]; ok {
		return r
	}

	lower := h.LevelRange().UpperBound()
	if r, ok := h.Planning(); ok {
		lower = max(lower, r.UpperBound())
	}
	if r, ok := h.Priority(); ok {
		lower = max(lower, r.UpperBound())
	}
	if lower > h.rng.Location {
		lower++ // skip the separating space
	}
	upper := h.rng.UpperBound()
	if r, ok := h.Tags(); ok {
		upper = min(upper, r.Location)
	}
	if upper < lower {
		return Range{Location: lower}
	}
	return Range{Location: lower, Length: upper - lower}
}

// TitleIn returns the trimmed heading text.
func (h HeadingToken) TitleIn(text string) string {
	return strings.TrimSpace(h.TitleRange().In(text))
}

// PlanningIn returns the planning keyword or "".
func (h HeadingToken) PlanningIn(text string) string {
	if r, ok := h.Planning(); ok {
		return r.In(text)
	}
	return ""
}

// TagsIn splits the trailing tag list into its names.
func (h HeadingToken) TagsIn(text string) []string {
	r, ok := h.Tags()
	if !ok {
		return nil
	}
	var out []string
	for _, t := range strings.Split(r.In(text), ":") {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// TagLocation is where tags start, or where they would be appended.
func (h HeadingToken) TagLocation() int {
	if r, ok := h.Tags(); ok {
		return r.Location
	}
	return h.rng.UpperBound()
}

// AttachmentRef is an inline attachment reference found in document text.
type AttachmentRef struct {
	Range Range  `json:"range"`
	Kind  string `json:"kind"`
	Key   string `json:"key"`
}
