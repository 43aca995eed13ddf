package transcript

import (
	"strconv"
	"strings"
)

// GeneralDiscussion is the topic label applied when no better label exists:
// heuristic chunks beyond the topic vocabulary, model output that declined
// to pick a topic, and the full-span fallback chunk.
const GeneralDiscussion = "General Discussion"

// DefaultChunkSize is the target number of turns per heuristic chunk.
const DefaultChunkSize = 20

// Item is one transcript turn. Items are ordered and index-addressed;
// they are immutable once produced by the transcription source.
type Item struct {
	Timecode float64 `json:"timecode"` // seconds from transcript start
	Speaker  string  `json:"speaker"`
	Text     string  `json:"text"`
}

// Chunk is a contiguous, topic-labeled span of transcript turns.
type Chunk struct {
	Topic    string `json:"topic"`
	StartIdx int    `json:"startIdx"`
	EndIdx   int    `json:"endIdx"`

	// Content is the covered turns rendered one per line as
	// "[<timecode>s] <speaker>: <text>".
	Content string `json:"content"`

	// StartTime and EndTime are the timecodes of the first and last
	// covered turns.
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`

	// Speakers is the set of unique speakers across the covered turns.
	Speakers []string `json:"speakers"`
}

// Options configures a chunking run.
type Options struct {
	// ChunkSize is the target turns per chunk for the heuristic splitter.
	// Defaults to DefaultChunkSize.
	ChunkSize int `json:"chunkSize,omitempty"`

	// DryRun forces the heuristic splitter even when a model is configured.
	DryRun bool `json:"dryRun,omitempty"`
}

// FormatItem renders a single turn as "[<timecode>s] <speaker>: <text>".
func FormatItem(it Item) string {
	return "[" + strconv.FormatFloat(it.Timecode, 'f', -1, 64) + "s] " + it.Speaker + ": " + it.Text
}

// buildChunk materializes the chunk covering items[start..end] inclusive.
func buildChunk(items []Item, topic string, start, end int) Chunk {
	var b strings.Builder
	seen := make(map[string]struct{})
	var speakers []string

	for i := start; i <= end; i++ {
		if i > start {
			b.WriteByte('\n')
		}
		b.WriteString(FormatItem(items[i]))
		if _, ok := seen[items[i].Speaker]; !ok {
			seen[items[i].Speaker] = struct{}{}
			speakers = append(speakers, items[i].Speaker)
		}
	}

	return Chunk{
		Topic:     topic,
		StartIdx:  start,
		EndIdx:    end,
		Content:   b.String(),
		StartTime: items[start].Timecode,
		EndTime:   items[end].Timecode,
		Speakers:  speakers,
	}
}
