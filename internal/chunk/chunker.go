package chunk

import (
	"fmt"
	"regexp"
	"strings"
)

type SectionType string

const (
	SectionDefinition SectionType = "definition"
	SectionExclusion  SectionType = "exclusion"
	SectionCoverage   SectionType = "coverage"
	SectionProcedure  SectionType = "procedure"
	SectionGeneral    SectionType = "general"
)

// Chunk is a bounded span of policy text stored as a retrievable unit.
// Immutable once created; the ID is stable for a given document and position.
type Chunk struct {
	ID            string              `json:"id"`
	Text          string              `json:"text"`
	SourceDocID   string              `json:"source_doc_id"`
	Sequence      int                 `json:"sequence"`
	Section       SectionType         `json:"section"`
	HierarchyPath string              `json:"hierarchy_path,omitempty"`
	CrossRefs     []string            `json:"cross_refs,omitempty"`
	Conditions    []string            `json:"conditions,omitempty"`
	Numbers       map[string][]string `json:"numbers,omitempty"`
}

// Splitter turns raw policy text into chunks. Splitting is deterministic:
// identical input and config always produce identical chunk sequences.
type Splitter struct {
	maxChars int
	overlap  int
}

func NewSplitter(maxChars, overlap int) *Splitter {
	if maxChars <= 0 {
		maxChars = 2000
	}
	if overlap < 0 || overlap >= maxChars {
		overlap = 200
	}
	return &Splitter{maxChars: maxChars, overlap: overlap}
}

var (
	// Section headers: "Section 4", "SECTION 4.2:", "Article 3", "4.1 Cover for ...",
	// or short ALL-CAPS heading lines.
	headerRe = regexp.MustCompile(`(?m)^(?:(?:SECTION|Section|ARTICLE|Article|PART|Part)\s+\d+(?:\.\d+)*[.:)]?.*|\d{1,2}(?:\.\d+)*[.)]\s+\S.*|[A-Z][A-Z0-9 ,&'\-]{3,60})\s*$`)

	crossRefRe  = regexp.MustCompile(`(?i)(?:see|refer(?:red)?\s+to)\s+(section\s+\d+(?:\.\d+)*)`)
	conditionRe = regexp.MustCompile(`(?i)\b(?:if|when|provided that|subject to|unless)\b[^.!?\n]*[.!?]`)
	currencyRe  = regexp.MustCompile(`[€$£]\s?\d[\d,]*(?:\.\d+)?`)
	percentRe   = regexp.MustCompile(`\d+(?:\.\d+)?\s?%`)
)

// Split chunks a document. If section headers are detected the text is
// split at section boundaries first; oversized sections (and unstructured
// documents) go through a sliding window with overlap that prefers
// paragraph and sentence boundaries over fixed-width cuts.
func (s *Splitter) Split(docID, text string) []Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []Chunk
	seq := 0

	emit := func(piece, hierarchy string) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			return
		}
		for _, part := range s.window(piece) {
			chunks = append(chunks, s.newChunk(docID, seq, part, hierarchy))
			seq++
		}
	}

	sections := splitSections(text)
	if sections == nil {
		emit(text, "")
		return chunks
	}
	for _, sec := range sections {
		emit(sec.body, sec.heading)
	}
	return chunks
}

type section struct {
	heading string
	body    string
}

// splitSections returns nil when the text has no usable structure.
func splitSections(text string) []section {
	locs := headerRe.FindAllStringIndex(text, -1)
	if len(locs) < 2 {
		return nil
	}

	var sections []section
	if locs[0][0] > 0 {
		sections = append(sections, section{body: text[:locs[0][0]]})
	}
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		heading := strings.TrimSpace(text[loc[0]:loc[1]])
		sections = append(sections, section{heading: heading, body: text[loc[0]:end]})
	}
	return sections
}

// window slices text into pieces of at most maxChars, overlapping by
// overlap chars. Break preference: paragraph, then sentence, then fixed cut.
func (s *Splitter) window(text string) []string {
	if len(text) <= s.maxChars {
		return []string{text}
	}

	var parts []string
	start := 0
	for start < len(text) {
		end := start + s.maxChars
		if end >= len(text) {
			parts = append(parts, strings.TrimSpace(text[start:]))
			break
		}

		cut := breakPoint(text[start:end])
		end = start + cut

		piece := strings.TrimSpace(text[start:end])
		if piece != "" {
			parts = append(parts, piece)
		}

		next := end - s.overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return parts
}

// breakPoint finds the best cut position inside a full window, scanning the
// back half so chunks stay reasonably sized.
func breakPoint(window string) int {
	half := len(window) / 2

	if idx := strings.LastIndex(window, "\n\n"); idx > half {
		return idx
	}
	for _, mark := range []string{". ", ".\n", "! ", "? "} {
		if idx := strings.LastIndex(window, mark); idx > half {
			return idx + 1
		}
	}
	return len(window)
}

func (s *Splitter) newChunk(docID string, seq int, text, hierarchy string) Chunk {
	c := Chunk{
		ID:            fmt.Sprintf("%s-%d", docID, seq),
		Text:          text,
		SourceDocID:   docID,
		Sequence:      seq,
		Section:       Classify(text),
		HierarchyPath: hierarchy,
	}

	for _, m := range crossRefRe.FindAllStringSubmatch(text, -1) {
		ref := normalizeRef(m[1])
		if !contains(c.CrossRefs, ref) {
			c.CrossRefs = append(c.CrossRefs, ref)
		}
	}
	c.Conditions = conditionRe.FindAllString(text, -1)

	amounts := currencyRe.FindAllString(text, -1)
	percents := percentRe.FindAllString(text, -1)
	if len(amounts) > 0 || len(percents) > 0 {
		c.Numbers = map[string][]string{}
		if len(amounts) > 0 {
			c.Numbers["currency"] = amounts
		}
		if len(percents) > 0 {
			c.Numbers["percent"] = percents
		}
	}
	return c
}

func normalizeRef(ref string) string {
	fields := strings.Fields(strings.ToLower(ref))
	return strings.Join(fields, " ")
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

var sectionKeywords = []struct {
	section  SectionType
	keywords []string
}{
	{SectionDefinition, []string{"definition", "means", "shall mean", "is defined as"}},
	{SectionExclusion, []string{"exclusion", "excluded", "not covered", "does not cover", "we will not pay"}},
	{SectionCoverage, []string{"coverage", "covered", "we will pay", "benefit", "sum insured"}},
	{SectionProcedure, []string{"procedure", "how to claim", "must notify", "you must", "submit"}},
}

// Classify buckets a chunk by keyword presence. Priority order:
// definition > exclusion > coverage > procedure; first match wins.
func Classify(text string) SectionType {
	lower := strings.ToLower(text)
	for _, entry := range sectionKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.section
			}
		}
	}
	return SectionGeneral
}
