package outline

import (
	"regexp"
	"sort"
)

// Named-range keys for body elements.
const (
	KeyLink       = "link"
	KeyLinkURL    = "url"
	KeyLinkScheme = "scheme"
	KeyLinkTitle  = "title"

	KeyCheckbox       = "checkbox"
	KeyCheckboxStatus = "status"

	KeyOrderedList   = "orderedList"
	KeyUnorderedList = "unorderedList"
	KeyListPrefix    = "prefix"
	KeyListIndex     = "index"

	KeySeparator = "separator"

	KeyCodeBlock     = "codeBlock"
	KeyQuoteBlock    = "quoteBlock"
	KeyBlockBegin    = "begin"
	KeyBlockEnd      = "end"
	KeyBlockContent  = "content"
	KeyBlockLanguage = "language"
)

// Checkbox states as written between the brackets.
const (
	CheckboxUnchecked = " "
	CheckboxChecked   = "X"
	CheckboxPartial   = "-"
)

var (
	linkRe          = regexp.MustCompile(`\[\[((https?|x3):[^\]\[]*)\]\[([^\]]*)\]\]`)
	checkboxRe      = regexp.MustCompile(`(?m)^[\t ]*(- \[(X| |-)\] )[^\r\n]*`)
	unorderedListRe = regexp.MustCompile(`(?m)^[\t ]*([-+] )[^\r\n]*`)
	orderedListRe   = regexp.MustCompile(`(?m)^[\t ]*(([0-9a-zA-Z]{1,3})[.)>] )[^\r\n]*`)
	separatorRe     = regexp.MustCompile(`(?m)^[\t ]*(-{5,})[\t ]*\r?$`)
	srcBeginRe      = regexp.MustCompile(`(?mi)^[\t ]*#\+BEGIN_SRC(?: ([\w.+-]*))?[\t ]*\r?$`)
	srcEndRe        = regexp.MustCompile(`(?mi)^[\t ]*#\+END_SRC[\t ]*\r?$`)
	quoteBeginRe    = regexp.MustCompile(`(?mi)^[\t ]*#\+BEGIN_QUOTE[\t ]*\r?$`)
	quoteEndRe      = regexp.MustCompile(`(?mi)^[\t ]*#\+END_QUOTE[\t ]*\r?$`)
)

// ElementDelegate is implemented by delegates that also want body elements.
// The Parser calls these after OnAttachmentsFound and before OnParseComplete,
// in declaration order, and only when something was found.
type ElementDelegate interface {
	OnLinksFound(text string, matches []Ranges)
	OnCheckboxesFound(text string, matches []Ranges)
	OnListsFound(text string, matches []Ranges)
	OnSeparatorsFound(text string, matches []Ranges)
	OnCodeBlocksFound(text string, matches []Ranges)
	OnQuoteBlocksFound(text string, matches []Ranges)
}

// Link is an org link [[url][title]].
type Link struct {
	Range  Range  `json:"range"`
	URL    string `json:"url"`
	Scheme string `json:"scheme"`
	Title  string `json:"title"`
}

// Checkbox is a "- [ ]" list item.
type Checkbox struct {
	Range  Range  `json:"range"`
	Status string `json:"status"`
}

// Checked reports whether the box is ticked.
func (c Checkbox) Checked() bool { return c.Status == CheckboxChecked }

// ListItem is one ordered or unordered list line. Checkbox lines are not
// list items.
type ListItem struct {
	Range   Range  `json:"range"`
	Prefix  Range  `json:"prefix"`
	Ordered bool   `json:"ordered"`
	Index   string `json:"index,omitempty"`
}

// Block is a #+BEGIN_... / #+END_... pair.
type Block struct {
	Range    Range  `json:"range"`
	Content  Range  `json:"content"`
	Language string `json:"language,omitempty"`
}

func span(m []int, i int) Range {
	return Range{Location: m[2*i], Length: m[2*i+1] - m[2*i]}
}

// lineEnd trims a trailing carriage return from a line match.
func lineEnd(text string, end int) int {
	if end > 0 && text[end-1] == '\r' {
		return end - 1
	}
	return end
}

func links(text string) []Ranges {
	matches := linkRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]Ranges, 0, len(matches))
	for _, m := range matches {
		out = append(out, Ranges{
			KeyLink:       span(m, 0),
			KeyLinkURL:    span(m, 1),
			KeyLinkScheme: span(m, 2),
			KeyLinkTitle:  span(m, 3),
		})
	}
	return out
}

func checkboxes(text string) []Ranges {
	matches := checkboxRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]Ranges, 0, len(matches))
	for _, m := range matches {
		whole := Range{Location: m[0], Length: lineEnd(text, m[1]) - m[0]}
		out = append(out, Ranges{
			KeyCheckbox:       whole,
			KeyListPrefix:     span(m, 1),
			KeyCheckboxStatus: span(m, 2),
		})
	}
	return out
}

func lists(text string) []Ranges {
	boxes := make(map[int]bool)
	for _, m := range checkboxRe.FindAllStringIndex(text, -1) {
		boxes[m[0]] = true
	}

	var out []Ranges
	for _, m := range unorderedListRe.FindAllStringSubmatchIndex(text, -1) {
		if boxes[m[0]] {
			continue
		}
		out = append(out, Ranges{
			KeyUnorderedList: {Location: m[0], Length: lineEnd(text, m[1]) - m[0]},
			KeyListPrefix:    span(m, 1),
		})
	}
	for _, m := range orderedListRe.FindAllStringSubmatchIndex(text, -1) {
		out = append(out, Ranges{
			KeyOrderedList: {Location: m[0], Length: lineEnd(text, m[1]) - m[0]},
			KeyListPrefix:  span(m, 1),
			KeyListIndex:   span(m, 2),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i][KeyListPrefix].Location < out[j][KeyListPrefix].Location
	})
	return out
}

func separators(text string) []Ranges {
	matches := separatorRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]Ranges, 0, len(matches))
	for _, m := range matches {
		out = append(out, Ranges{KeySeparator: span(m, 1)})
	}
	return out
}

// blocks pairs every begin line with the first end line after it. Begin
// lines inside an open block and blocks that are never closed are ignored.
func blocks(text string, key string, beginRe, endRe *regexp.Regexp) []Ranges {
	begins := beginRe.FindAllStringSubmatchIndex(text, -1)
	ends := endRe.FindAllStringIndex(text, -1)

	var out []Ranges
	e := 0
	pos := 0
	for _, b := range begins {
		if b[0] < pos {
			continue
		}
		for e < len(ends) && ends[e][0] < b[1] {
			e++
		}
		if e == len(ends) {
			break
		}
		end := ends[e]
		e++
		pos = end[1]

		beginLine := Range{Location: b[0], Length: lineEnd(text, b[1]) - b[0]}
		endLine := Range{Location: end[0], Length: lineEnd(text, end[1]) - end[0]}
		contentStart := min(b[1]+1, end[0])
		r := Ranges{
			key:             {Location: b[0], Length: endLine.UpperBound() - b[0]},
			KeyBlockBegin:   beginLine,
			KeyBlockEnd:     endLine,
			KeyBlockContent: {Location: contentStart, Length: end[0] - contentStart},
		}
		if len(b) > 2 && b[2] >= 0 && b[3] > b[2] {
			r[KeyBlockLanguage] = span(b, 1)
		}
		out = append(out, r)
	}
	return out
}

func codeBlocks(text string) []Ranges {
	return blocks(text, KeyCodeBlock, srcBeginRe, srcEndRe)
}

func quoteBlocks(text string) []Ranges {
	return blocks(text, KeyQuoteBlock, quoteBeginRe, quoteEndRe)
}

// parseElements reports body elements to d.
func (p *Parser) parseElements(text string, d ElementDelegate) {
	scans := []struct {
		kind   ParseeTypes
		scan   func(string) []Ranges
		report func(string, []Ranges)
	}{
		{ParseLink, links, d.OnLinksFound},
		{ParseCheckbox, checkboxes, d.OnCheckboxesFound},
		{ParseList, lists, d.OnListsFound},
		{ParseSeparator, separators, d.OnSeparatorsFound},
		{ParseCodeBlock, codeBlocks, d.OnCodeBlocksFound},
		{ParseQuoteBlock, quoteBlocks, d.OnQuoteBlocksFound},
	}
	for _, s := range scans {
		if p.include&s.kind == 0 {
			continue
		}
		if found := s.scan(text); len(found) > 0 {
			s.report(text, found)
		}
	}
}
