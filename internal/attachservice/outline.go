package attachservice

import (
	"strings"
	"time"

	"github.com/starford/iceberg/internal/apperr"
	"github.com/starford/iceberg/internal/outline"
)

// HeadingInfo describes one heading of a parsed document.
type HeadingInfo struct {
	Range       outline.Range `json:"range"`
	Level       int           `json:"level"`
	Title       string        `json:"title"`
	Planning    string        `json:"planning,omitempty"`
	Priority    string        `json:"priority,omitempty"`
	Tags        []string      `json:"tags"`
	Subheadings int           `json:"subheadings"`
}

// DateInfo describes one date/time expression of a parsed document.
type DateInfo struct {
	Range       outline.Range `json:"range"`
	Text        string        `json:"text"`
	Date        *time.Time    `json:"date,omitempty"`
	IncludeTime bool          `json:"include_time,omitempty"`
	Repeat      string        `json:"repeat,omitempty"`
	Scheduled   bool          `json:"scheduled,omitempty"`
	Deadline    bool          `json:"deadline,omitempty"`
	Duration    int64         `json:"duration_seconds,omitempty"`
}

// BlockInfo describes a source or quote block.
type BlockInfo struct {
	outline.Block
	Text string `json:"text"`
}

// OutlineResult is the structure of a document.
type OutlineResult struct {
	Headings    []HeadingInfo           `json:"headings"`
	Dates       []DateInfo              `json:"dates"`
	Attachments []outline.AttachmentRef `json:"attachments"`
	Links       []outline.Link          `json:"links"`
	Checkboxes  []outline.Checkbox      `json:"checkboxes"`
	Lists       []outline.ListItem      `json:"lists"`
	Separators  []outline.Range         `json:"separators"`
	CodeBlocks  []BlockInfo             `json:"code_blocks"`
	QuoteBlocks []BlockInfo             `json:"quote_blocks"`
}

// Outline parses text and returns its headings, date expressions,
// attachment references and body elements.
func (s *Service) Outline(text string) *OutlineResult {
	d := s.parser.Index(text)

	res := &OutlineResult{
		Headings:    []HeadingInfo{},
		Dates:       []DateInfo{},
		Attachments: nonNilSlice(d.AttachmentRefs()),
		Links:       nonNilSlice(d.Links()),
		Checkboxes:  nonNilSlice(d.Checkboxes()),
		Lists:       nonNilSlice(d.ListItems()),
		Separators:  nonNilSlice(d.Separators()),
		CodeBlocks:  blockInfos(d.CodeBlocks(), text),
		QuoteBlocks: blockInfos(d.QuoteBlocks(), text),
	}
	counts := d.SubheadingCounts()
	for _, h := range d.Headings() {
		res.Headings = append(res.Headings, headingInfo(h, counts[h.Range().Location], text))
	}
	for _, r := range d.DateTimes() {
		info := DateInfo{Range: r, Text: r.In(text)}
		if dt, err := outline.ParseDateTime(info.Text, time.UTC); err == nil {
			info.Date = &dt.Date
			info.IncludeTime = dt.IncludeTime
			info.Repeat = dt.Repeat.String()
			info.Scheduled = dt.IsSchedule
			info.Deadline = dt.IsDue
			info.Duration = int64(dt.Duration / time.Second)
		}
		res.Dates = append(res.Dates, info)
	}
	return res
}

// HeadingAt returns the heading enclosing the byte offset in text, or
// apperr.ErrNotFound when the offset precedes every heading.
func (s *Service) HeadingAt(text string, offset int) (*HeadingInfo, error) {
	d := s.parser.Index(text)
	h, ok := d.HeadingContaining(offset)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	info := headingInfo(h, len(d.Subheadings(h)), text)
	return &info, nil
}

func blockInfos(blocks []outline.Block, text string) []BlockInfo {
	out := make([]BlockInfo, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, BlockInfo{Block: b, Text: b.Content.In(text)})
	}
	return out
}

func headingInfo(h outline.HeadingToken, subheadings int, text string) HeadingInfo {
	info := HeadingInfo{
		Range:       h.Range(),
		Level:       h.Level(),
		Title:       h.TitleIn(text),
		Planning:    h.PlanningIn(text),
		Tags:        nonNilSlice(h.TagsIn(text)),
		Subheadings: subheadings,
	}
	if r, ok := h.Priority(); ok {
		info.Priority = strings.Trim(r.In(text), "[#]")
	}
	return info
}
