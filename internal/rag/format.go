package rag

import (
	"fmt"
	"strings"
)

// NoRelevantContent is returned verbatim when a query yields no matches.
const NoRelevantContent = "No relevant content found."

// citeInstruction tells the consuming model how to reference sources.
const citeInstruction = "Answer using the sources below and cite them as [Source N]."

// FormatMatches renders matches into a citation-annotated text block for
// LLM consumption. When topic groups are present, matches are listed under
// their topic sections; otherwise all matches appear in a single section.
// Source numbers follow the match order and are stable across sections.
func FormatMatches(matches []QueryMatch, groups []TopicGroup) string {
	if len(matches) == 0 {
		return NoRelevantContent
	}

	number := make(map[string]int, len(matches))
	for i, m := range matches {
		number[m.ID] = i + 1
	}
	byID := make(map[string]QueryMatch, len(matches))
	for _, m := range matches {
		byID[m.ID] = m
	}

	var b strings.Builder
	b.WriteString(citeInstruction)
	b.WriteString("\n")

	if len(groups) == 0 {
		for _, m := range matches {
			writeSourceBlock(&b, m, number[m.ID])
		}
		return b.String()
	}

	grouped := make(map[string]struct{})
	for _, g := range groups {
		fmt.Fprintf(&b, "\n## %s\n", g.Topic)
		for _, id := range g.MatchIDs {
			m, ok := byID[id]
			if !ok {
				continue
			}
			grouped[id] = struct{}{}
			writeSourceBlock(&b, m, number[id])
		}
	}

	// Matches the reranker left out of every topic group.
	var rest []QueryMatch
	for _, m := range matches {
		if _, ok := grouped[m.ID]; !ok {
			rest = append(rest, m)
		}
	}
	if len(rest) > 0 {
		b.WriteString("\n## Other\n")
		for _, m := range rest {
			writeSourceBlock(&b, m, number[m.ID])
		}
	}

	return b.String()
}

// writeSourceBlock renders one numbered citation block.
func writeSourceBlock(b *strings.Builder, m QueryMatch, n int) {
	title := m.Metadata.Source
	if title == "" {
		title = "Untitled"
	}

	fmt.Fprintf(b, "\n[Source %d] %s\n", n, title)
	if m.Metadata.Type != "" {
		fmt.Fprintf(b, "Type: %s\n", m.Metadata.Type)
	}
	if m.Metadata.Type == TypeTranscript && len(m.Metadata.Speakers) > 0 {
		fmt.Fprintf(b, "Speakers: %s\n", strings.Join(m.Metadata.Speakers, ", "))
	}
	if m.Metadata.Topic != "" {
		fmt.Fprintf(b, "Section: %s\n", m.Metadata.Topic)
	}
	if !m.Metadata.CreatedAt.IsZero() {
		fmt.Fprintf(b, "Date: %s\n", m.Metadata.CreatedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(b, "Relevance: %d%%\n", int(m.Score*100))
	if m.MergedCount > 1 {
		fmt.Fprintf(b, "Note: merged from %d chunks\n", m.MergedCount)
	}
	b.WriteString(m.Content)
	b.WriteString("\n")
}
