package services

import (
	"fmt"
	"regexp"
	"strings"
)

// Section is one chunk of a document produced by the chunker, carrying the
// section title it was classified under.
type Section struct {
	Title   string
	Content string
}

// keepSections are recognized headers whose content is worth extracting
// facts from. filterSections are recognized but skipped: boilerplate that
// only produces noise assertions.
var (
	keepSections = []string{
		"Abstract",
		"Methods",
		"Results",
		"Discussion",
		"Conclusion",
	}
	filterSections = []string{
		"Introduction",
		"References",
	}
)

// headerPattern matches a section header line: optional numbering, the
// section word, optional trailing colon. Matched case-insensitively against
// the whole line.
var headerPattern = regexp.MustCompile(`^\s*(?:\d+[.)]?\s*)?([A-Za-z][A-Za-z &]+?)\s*:?\s*$`)

// paragraphsPerChunk groups unclassified text so chunks stay prompt-sized.
const paragraphsPerChunk = 2

// classifyHeader returns the canonical section title for a header line and
// whether the section is kept. A non-header line returns ok=false.
func classifyHeader(line string) (title string, keep bool, ok bool) {
	m := headerPattern.FindStringSubmatch(line)
	if m == nil {
		return "", false, false
	}
	word := strings.ToLower(strings.TrimSpace(m[1]))

	for _, s := range keepSections {
		if matchesSection(word, s) {
			return s, true, true
		}
	}
	for _, s := range filterSections {
		if matchesSection(word, s) {
			return s, false, true
		}
	}
	return "", false, false
}

func matchesSection(word, section string) bool {
	canonical := strings.ToLower(section)
	if word == canonical {
		return true
	}
	// Common variants: "conclusions", "materials and methods".
	if word == canonical+"s" {
		return true
	}
	return strings.HasSuffix(word, " "+canonical)
}

// SplitSections classifies raw document text into ordered chunks. Recognized
// keep-sections become one chunk each under their canonical title; recognized
// filter-sections are dropped; everything else is grouped two paragraphs per
// chunk. Input with nothing to chunk yields a single "Full Document" chunk.
func SplitSections(text string) []Section {
	lines := strings.Split(text, "\n")

	var sections []Section
	var loose []string

	partCount := 0
	flushLoose := func() {
		paragraphs := splitParagraphs(strings.Join(loose, "\n"))
		loose = nil
		for i := 0; i < len(paragraphs); i += paragraphsPerChunk {
			end := i + paragraphsPerChunk
			if end > len(paragraphs) {
				end = len(paragraphs)
			}
			partCount++
			sections = append(sections, Section{
				Title:   fmt.Sprintf("Part %d", partCount),
				Content: strings.Join(paragraphs[i:end], "\n\n"),
			})
		}
	}

	// current is the canonical title of the open keep-section; filtering is
	// true while inside a filter-section.
	current := ""
	filtering := false
	var body []string

	closeSection := func() {
		if current == "" {
			return
		}
		content := strings.TrimSpace(strings.Join(body, "\n"))
		if content != "" {
			sections = append(sections, Section{Title: current, Content: content})
		}
		current = ""
		body = nil
	}

	for _, line := range lines {
		if title, keep, ok := classifyHeader(line); ok {
			closeSection()
			flushLoose()
			filtering = !keep
			if keep {
				current = title
			}
			continue
		}

		switch {
		case filtering:
			// dropped
		case current != "":
			body = append(body, line)
		default:
			loose = append(loose, line)
		}
	}
	closeSection()
	flushLoose()

	if len(sections) == 0 {
		return []Section{{Title: "Full Document", Content: strings.TrimSpace(text)}}
	}
	return sections
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}
