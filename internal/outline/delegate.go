package outline

import "sort"

// ParserDelegate receives the results of one parse pass. OnParseStart is
// always called first and OnParseComplete last; the "found" callbacks are
// only called when something was found.
type ParserDelegate interface {
	OnParseStart(text string)
	OnHeadingsFound(text string, headings []Ranges)
	OnDateTimeFound(text string, matches []Ranges)
	OnAttachmentsFound(text string, matches []Ranges)
	OnParseComplete(text string)
}

// Delegate accumulates the heading and date/time indexes of the most recent
// parse, along with attachment references and body elements. It is not safe
// for concurrent use.
type Delegate struct {
	headings  []HeadingToken
	byOffset  []HeadingToken // nil when headings is already sorted
	dateTimes []Range
	refs      []AttachmentRef

	links       []Link
	checkboxes  []Checkbox
	listItems   []ListItem
	separators  []Range
	codeBlocks  []Block
	quoteBlocks []Block
}

var (
	_ ParserDelegate  = (*Delegate)(nil)
	_ ElementDelegate = (*Delegate)(nil)
)

// NewDelegate returns an empty delegate.
func NewDelegate() *Delegate {
	return &Delegate{}
}

// OnParseStart drops everything found by the previous pass.
func (d *Delegate) OnParseStart(string) {
	d.headings = nil
	d.byOffset = nil
	d.dateTimes = nil
	d.refs = nil
	d.links = nil
	d.checkboxes = nil
	d.listItems = nil
	d.separators = nil
	d.codeBlocks = nil
	d.quoteBlocks = nil
}

// OnHeadingsFound replaces the heading index, one token per mapping, in the
// order given. Mappings without a heading range are skipped.
func (d *Delegate) OnHeadingsFound(_ string, headings []Ranges) {
	out := make([]HeadingToken, 0, len(headings))
	for _, m := range headings {
		if h, ok := NewHeadingToken(m); ok {
			out = append(out, h)
		}
	}
	d.headings = out
	d.byOffset = nil

	less := func(i, j int) bool { return out[i].rng.Location < out[j].rng.Location }
	if !sort.SliceIsSorted(out, less) {
		sorted := make([]HeadingToken, len(out))
		copy(sorted, out)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].rng.Location < sorted[j].rng.Location
		})
		d.byOffset = sorted
	}
}

// OnDateTimeFound replaces the date/time index. Each mapping must describe
// exactly one range: the dateAndTime key is read by name, otherwise a
// single-entry mapping is accepted under any key. Anything else is skipped.
func (d *Delegate) OnDateTimeFound(_ string, matches []Ranges) {
	out := make([]Range, 0, len(matches))
	for _, m := range matches {
		if r, ok := m[KeyDateAndTime]; ok {
			out = append(out, r)
			continue
		}
		if len(m) != 1 {
			continue
		}
		for _, r := range m {
			out = append(out, r)
		}
	}
	d.dateTimes = out
}

// OnAttachmentsFound replaces the inline attachment reference index.
func (d *Delegate) OnAttachmentsFound(text string, matches []Ranges) {
	out := make([]AttachmentRef, 0, len(matches))
	for _, m := range matches {
		whole, ok := m[KeyAttachment]
		if !ok {
			continue
		}
		kind, kok := m[KeyAttachmentType]
		key, vok := m[KeyAttachmentValue]
		if !kok || !vok {
			continue
		}
		out = append(out, AttachmentRef{Range: whole, Kind: kind.In(text), Key: key.In(text)})
	}
	d.refs = out
}

// OnLinksFound replaces the link index.
func (d *Delegate) OnLinksFound(text string, matches []Ranges) {
	out := make([]Link, 0, len(matches))
	for _, m := range matches {
		whole, ok := m[KeyLink]
		if !ok {
			continue
		}
		out = append(out, Link{
			Range:  whole,
			URL:    m[KeyLinkURL].In(text),
			Scheme: m[KeyLinkScheme].In(text),
			Title:  m[KeyLinkTitle].In(text),
		})
	}
	d.links = out
}

// OnCheckboxesFound replaces the checkbox index.
func (d *Delegate) OnCheckboxesFound(text string, matches []Ranges) {
	out := make([]Checkbox, 0, len(matches))
	for _, m := range matches {
		whole, ok := m[KeyCheckbox]
		if !ok {
			continue
		}
		out = append(out, Checkbox{Range: whole, Status: m[KeyCheckboxStatus].In(text)})
	}
	d.checkboxes = out
}

// OnListsFound replaces the list item index.
func (d *Delegate) OnListsFound(text string, matches []Ranges) {
	out := make([]ListItem, 0, len(matches))
	for _, m := range matches {
		if r, ok := m[KeyOrderedList]; ok {
			out = append(out, ListItem{Range: r, Prefix: m[KeyListPrefix], Ordered: true, Index: m[KeyListIndex].In(text)})
		} else if r, ok := m[KeyUnorderedList]; ok {
			out = append(out, ListItem{Range: r, Prefix: m[KeyListPrefix]})
		}
	}
	d.listItems = out
}

// OnSeparatorsFound replaces the separator index.
func (d *Delegate) OnSeparatorsFound(_ string, matches []Ranges) {
	out := make([]Range, 0, len(matches))
	for _, m := range matches {
		if r, ok := m[KeySeparator]; ok {
			out = append(out, r)
		}
	}
	d.separators = out
}

// OnCodeBlocksFound replaces the source block index.
func (d *Delegate) OnCodeBlocksFound(text string, matches []Ranges) {
	d.codeBlocks = toBlocks(text, KeyCodeBlock, matches)
}

// OnQuoteBlocksFound replaces the quote block index.
func (d *Delegate) OnQuoteBlocksFound(text string, matches []Ranges) {
	d.quoteBlocks = toBlocks(text, KeyQuoteBlock, matches)
}

func toBlocks(text, key string, matches []Ranges) []Block {
	out := make([]Block, 0, len(matches))
	for _, m := range matches {
		whole, ok := m[key]
		if !ok {
			continue
		}
		b := Block{Range: whole, Content: m[KeyBlockContent]}
		if r, ok := m[KeyBlockLanguage]; ok {
			b.Language = r.In(text)
		}
		out = append(out, b)
	}
	return out
}

// OnParseComplete is a no-op.
func (d *Delegate) OnParseComplete(string) {}

// Headings returns the heading index in the order it was reported.
func (d *Delegate) Headings() []HeadingToken {
	out := make([]HeadingToken, len(d.headings))
	copy(out, d.headings)
	return out
}

// DateTimes returns the date/time ranges of the last parse.
func (d *Delegate) DateTimes() []Range {
	out := make([]Range, len(d.dateTimes))
	copy(out, d.dateTimes)
	return out
}

// AttachmentRefs returns the inline attachment references of the last parse.
func (d *Delegate) AttachmentRefs() []AttachmentRef {
	out := make([]AttachmentRef, len(d.refs))
	copy(out, d.refs)
	return out
}

// Links returns the links of the last parse.
func (d *Delegate) Links() []Link { return append([]Link(nil), d.links...) }

// Checkboxes returns the checkbox items of the last parse.
func (d *Delegate) Checkboxes() []Checkbox { return append([]Checkbox(nil), d.checkboxes...) }

// ListItems returns the list items of the last parse, in document order.
func (d *Delegate) ListItems() []ListItem { return append([]ListItem(nil), d.listItems...) }

// Separators returns the separator lines of the last parse.
func (d *Delegate) Separators() []Range { return append([]Range(nil), d.separators...) }

// CodeBlocks returns the source blocks of the last parse.
func (d *Delegate) CodeBlocks() []Block { return append([]Block(nil), d.codeBlocks...) }

// QuoteBlocks returns the quote blocks of the last parse.
func (d *Delegate) QuoteBlocks() []Block { return append([]Block(nil), d.quoteBlocks...) }

func (d *Delegate) ordered() []HeadingToken {
	if d.byOffset != nil {
		return d.byOffset
	}
	return d.headings
}

// HeadingContaining returns the heading with the greatest start offset that
// is <= location.
func (d *Delegate) HeadingContaining(location int) (HeadingToken, bool) {
	hs := d.ordered()
	i := sort.Search(len(hs), func(i int) bool {
		return hs[i].rng.Location > location
	})
	if i == 0 {
		return HeadingToken{}, false
	}
	return hs[i-1], true
}

// Subheadings returns the headings nested under h: those that follow it with
// a deeper level, up to the next heading at h's level or above.
func (d *Delegate) Subheadings(h HeadingToken) []HeadingToken {
	hs := d.ordered()
	start := sort.Search(len(hs), func(i int) bool {
		return hs[i].rng.Location > h.rng.Location
	})
	var out []HeadingToken
	for _, next := range hs[start:] {
		if next.Level() <= h.Level() {
			break
		}
		out = append(out, next)
	}
	return out
}

// SubheadingCounts returns len(Subheadings(h)) for every heading, keyed by
// the heading's start offset, in a single pass.
func (d *Delegate) SubheadingCounts() map[int]int {
	hs := d.ordered()
	counts := make(map[int]int, len(hs))
	var open []int // indexes into hs with strictly increasing levels
	closeAbove := func(level, at int) {
		for len(open) > 0 && hs[open[len(open)-1]].Level() >= level {
			j := open[len(open)-1]
			open = open[:len(open)-1]
			counts[hs[j].rng.Location] = at - j - 1
		}
	}
	for i, h := range hs {
		closeAbove(h.Level(), i)
		open = append(open, i)
	}
	closeAbove(0, len(hs))
	return counts
}
