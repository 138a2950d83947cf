package outline

import (
	"regexp"
	"strings"
)

// ParseeTypes selects which constructs a Parser reports.
type ParseeTypes uint

const (
	ParseHeading ParseeTypes = 1 << iota
	ParseDateAndTime
	ParseAttachment
	ParseLink
	ParseCheckbox
	ParseList
	ParseSeparator
	ParseCodeBlock
	ParseQuoteBlock

	// ParseElements are the body elements reported to an ElementDelegate.
	ParseElements = ParseLink | ParseCheckbox | ParseList | ParseSeparator | ParseCodeBlock | ParseQuoteBlock

	ParseAll = ParseHeading | ParseDateAndTime | ParseAttachment | ParseElements
)

// Default planning keywords. Options.Plannings extends this list.
const (
	PlanningTodo     = "TODO"
	PlanningDone     = "DONE"
	PlanningCanceled = "CANCELED"
)

const (
	scheduledMark = "SCHEDULED"
	deadlineMark  = "DEADLINE"
)

// AttachmentKinds is the set of kind names recognised in inline references.
var AttachmentKinds = []string{"text", "link", "image", "sketch", "audio", "video", "location"}

const (
	weekdayPattern  = ` [A-Z][a-z]{2}`
	timePattern     = `[0-9]{1,2}:[0-9]{1,2}`
	repeatPattern   = ` \+[0-9]+[dwmyq]`
	datePattern     = `<\d{4}-\d{1,2}-\d{1,2}(?:` + weekdayPattern + `)?(?: ` + timePattern + `)?(?:` + repeatPattern + `)?>`
	timeRangeInner  = timePattern + `-` + timePattern
	timeRange       = `<\d{4}-\d{1,2}-\d{1,2}(?:` + weekdayPattern + `)? ` + timeRangeInner + `>`
	dateRange       = datePattern + `--` + datePattern
	anyDateAndTime  = scheduledMark + `: ` + datePattern + `|` + deadlineMark + `: ` + datePattern + `|` + dateRange + `|` + timeRange + `|` + datePattern
	headingPattern  = `(?m)^(\*+)(\{id:[\w\-]*\})? ([^\r\n]*)`
	priorityPattern = `\[#[A-Z]\]`
	tagsPattern     = `[\t ](:(?:\w+:)+)[\t ]*$`
)

var (
	headingRe    = regexp.MustCompile(headingPattern)
	priorityRe   = regexp.MustCompile(priorityPattern)
	tagsRe       = regexp.MustCompile(tagsPattern)
	dateTimeRe   = regexp.MustCompile(anyDateAndTime)
	attachmentRe = regexp.MustCompile(`#\+ATTACHMENT:(` + strings.Join(AttachmentKinds, "|") + `)=([A-Z0-9\-]+)`)
)

// Options configures a Parser.
type Options struct {
	// Plannings are extra planning keywords beyond TODO, DONE and CANCELED.
	Plannings []string
	// Include selects what to report; zero means ParseAll.
	Include ParseeTypes
}

// Parser scans outline text and reports matches to a ParserDelegate.
// A Parser is immutable after construction and safe for concurrent use.
type Parser struct {
	include    ParseeTypes
	plannings  []string
	planningRe *regexp.Regexp
}

// NewParser compiles the planning matcher for opts.
func NewParser(opts Options) *Parser {
	include := opts.Include
	if include == 0 {
		include = ParseAll
	}
	plannings := []string{PlanningTodo, PlanningDone, PlanningCanceled}
	for _, p := range opts.Plannings {
		p = strings.TrimSpace(p)
		if p != "" {
			plannings = append(plannings, p)
		}
	}
	quoted := make([]string, len(plannings))
	for i, p := range plannings {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return &Parser{
		include:    include,
		plannings:  plannings,
		planningRe: regexp.MustCompile(`^\*+(?:\{id:[\w\-]*\})? (` + strings.Join(quoted, "|") + `)(?: |$)`),
	}
}

// Plannings returns every keyword recognised as a planning.
func (p *Parser) Plannings() []string {
	out := make([]string, len(p.plannings))
	copy(out, p.plannings)
	return out
}

// Parse runs one full pass over text. Body elements are only scanned when d
// also implements ElementDelegate.
func (p *Parser) Parse(text string, d ParserDelegate) {
	d.OnParseStart(text)

	if p.include&ParseHeading != 0 {
		if found := p.headings(text); len(found) > 0 {
			d.OnHeadingsFound(text, found)
		}
	}
	if p.include&ParseDateAndTime != 0 {
		if found := dateTimes(text); len(found) > 0 {
			d.OnDateTimeFound(text, found)
		}
	}
	if p.include&ParseAttachment != 0 {
		if found := attachments(text); len(found) > 0 {
			d.OnAttachmentsFound(text, found)
		}
	}
	if ed, ok := d.(ElementDelegate); ok && p.include&ParseElements != 0 {
		p.parseElements(text, ed)
	}

	d.OnParseComplete(text)
}

func (p *Parser) headings(text string) []Ranges {
	matches := headingRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]Ranges, 0, len(matches))
	for _, m := range matches {
		start, end := m[0], m[1]
		line := text[start:end]
		comp := Ranges{
			KeyHeading: {Location: start, Length: end - start},
			KeyLevel:   {Location: m[2], Length: m[3] - m[2]},
		}

		titleStart := m[6]
		titleEnd := end

		if pm := p.planningRe.FindStringSubmatchIndex(line); pm != nil {
			comp[KeyPlanning] = Range{Location: start + pm[2], Length: pm[3] - pm[2]}
			titleStart = max(titleStart, start+pm[3])
		}
		if pr := priorityRe.FindStringIndex(line); pr != nil {
			comp[KeyPriority] = Range{Location: start + pr[0], Length: pr[1] - pr[0]}
			titleStart = max(titleStart, start+pr[1])
		}
		if tm := tagsRe.FindStringSubmatchIndex(line); tm != nil && start+tm[2] >= titleStart {
			comp[KeyTags] = Range{Location: start + tm[2], Length: tm[3] - tm[2]}
			titleEnd = start + tm[2]
		}

		// Trim the spaces separating the title from its neighbours.
		for titleStart < titleEnd && text[titleStart] == ' ' {
			titleStart++
		}
		for titleEnd > titleStart && (text[titleEnd-1] == ' ' || text[titleEnd-1] == '\t') {
			titleEnd--
		}
		comp[KeyTitle] = Range{Location: titleStart, Length: titleEnd - titleStart}

		out = append(out, comp)
	}
	return out
}

func dateTimes(text string) []Ranges {
	matches := dateTimeRe.FindAllStringIndex(text, -1)
	out := make([]Ranges, 0, len(matches))
	for _, m := range matches {
		out = append(out, Ranges{KeyDateAndTime: {Location: m[0], Length: m[1] - m[0]}})
	}
	return out
}

func attachments(text string) []Ranges {
	matches := attachmentRe.FindAllStringSubmatchIndex(text, -1)
	out := make([]Ranges, 0, len(matches))
	for _, m := range matches {
		out = append(out, Ranges{
			KeyAttachment:      {Location: m[0], Length: m[1] - m[0]},
			KeyAttachmentType:  {Location: m[2], Length: m[3] - m[2]},
			KeyAttachmentValue: {Location: m[4], Length: m[5] - m[4]},
		})
	}
	return out
}

// Index parses text with p into a fresh Delegate.
func (p *Parser) Index(text string) *Delegate {
	d := NewDelegate()
	p.Parse(text, d)
	return d
}
