package testutil

import (
	"fmt"

	"github.com/quorumhq/quorum/internal/rag"
	"github.com/quorumhq/quorum/internal/transcript"
)

// transcript fixture speakers, cycled in order.
var speakers = []string{"Alice", "Bob", "Carol"}

// MockTranscript generates n transcript items with cycling speakers and
// 5-second spacing. Deterministic, so tests can assert on exact content.
func MockTranscript(n int) []transcript.Item {
	items := make([]transcript.Item, n)
	for i := range items {
		items[i] = transcript.Item{
			Timecode: float64(i) * 5,
			Speaker:  speakers[i%len(speakers)],
			Text:     fmt.Sprintf("turn %d of the meeting", i),
		}
	}
	return items
}

// MockMatches generates n query matches with descending scores starting
// at 0.95, all from the same source file.
func MockMatches(n int) []rag.QueryMatch {
	matches := make([]rag.QueryMatch, n)
	for i := range matches {
		matches[i] = rag.QueryMatch{
			ID:      fmt.Sprintf("tr_fixture_%d", i),
			Score:   0.95 - float64(i)*0.05,
			Content: fmt.Sprintf("[%ds] %s: turn %d of the meeting", i*5, speakers[i%len(speakers)], i),
			Metadata: rag.Metadata{
				Source:      "meeting.txt",
				Type:        rag.TypeTranscript,
				Topic:       "Planning",
				FileHash:    "fixture",
				ChunkIndex:  i,
				TotalChunks: n,
			},
		}
	}
	return matches
}
