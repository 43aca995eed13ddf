package transcript

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/quorumhq/quorum/internal/log"
)

// Chunker segments transcripts. With a Genkit instance and model it uses
// AI-assisted topic segmentation; without one (or with Options.DryRun) it
// falls back to the heuristic splitter.
//
// Chunker is safe for concurrent use.
type Chunker struct {
	g      *genkit.Genkit
	model  ai.Model
	logger log.Logger
}

// New creates a Chunker. g and model may be nil, in which case every run
// uses the heuristic splitter.
func New(g *genkit.Genkit, model ai.Model, logger log.Logger) *Chunker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Chunker{g: g, model: model, logger: logger}
}

// Chunk segments items into topic-labeled chunks. The result always
// satisfies the contiguity invariant; errors from the model are recovered
// internally and never propagate. Empty input returns an empty slice.
func (c *Chunker) Chunk(ctx context.Context, items []Item, topics []string, opts Options) []Chunk {
	if len(items) == 0 {
		return []Chunk{}
	}

	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	if opts.DryRun || c.g == nil || c.model == nil {
		return c.heuristic(items, topics, size)
	}

	chunks, err := c.aiSegment(ctx, items, topics)
	if err != nil {
		c.logger.Warn("ai segmentation failed, falling back to single chunk",
			"error", err, "items", len(items))
		return []Chunk{buildChunk(items, GeneralDiscussion, 0, len(items)-1)}
	}
	return chunks
}

// heuristic splits on speaker changes around the target size, assigning
// topic labels cyclically from the vocabulary.
func (c *Chunker) heuristic(items []Item, topics []string, size int) []Chunk {
	spans := heuristicSpans(items, size)

	chunks := make([]Chunk, 0, len(spans))
	for i, s := range spans {
		topic := GeneralDiscussion
		if len(topics) > 0 {
			topic = topics[i%len(topics)]
		}
		chunks = append(chunks, buildChunk(items, topic, s.start, s.end))
	}
	return chunks
}

type span struct {
	start, end int
	topic      string
}

// heuristicSpans produces contiguous index spans. A span closes at a
// speaker change once it has reached the target size, and unconditionally
// at twice the target size so a monologue cannot swallow the transcript.
func heuristicSpans(items []Item, size int) []span {
	var spans []span
	start := 0

	for i := range items {
		count := i - start + 1
		last := i == len(items)-1

		closeHere := last
		if !closeHere && count >= size && items[i+1].Speaker != items[i].Speaker {
			closeHere = true
		}
		if !closeHere && count >= 2*size {
			closeHere = true
		}

		if closeHere {
			spans = append(spans, span{start: start, end: i})
			start = i + 1
		}
	}
	return spans
}

// segment is the model's representation of one chunk.
type segment struct {
	Topic    string `json:"topic"`
	StartIdx int    `json:"startIdx"`
	EndIdx   int    `json:"endIdx"`
}

// segmentPlan is the schema-constrained model output.
type segmentPlan struct {
	Segments []segment `json:"segments"`
}

// aiSegment sends the entire transcript to the model and repairs whatever
// comes back into a valid chunk set.
func (c *Chunker) aiSegment(ctx context.Context, items []Item, topics []string) ([]Chunk, error) {
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModel(c.model),
		ai.WithPrompt(segmentPrompt(items, topics)),
		ai.WithOutputType(segmentPlan{}),
	)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	var plan segmentPlan
	if err := resp.Output(&plan); err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}
	if len(plan.Segments) == 0 {
		return nil, fmt.Errorf("model returned no segments")
	}

	spans := make([]span, 0, len(plan.Segments))
	for _, s := range plan.Segments {
		topic := strings.TrimSpace(s.Topic)
		if topic == "" {
			topic = GeneralDiscussion
		}
		spans = append(spans, span{start: s.StartIdx, end: s.EndIdx, topic: topic})
	}

	repaired := repairSpans(spans, len(items))
	chunks := make([]Chunk, 0, len(repaired))
	for _, s := range repaired {
		chunks = append(chunks, buildChunk(items, s.topic, s.start, s.end))
	}
	return chunks, nil
}

// repairSpans enforces the contiguity invariant on model output: spans are
// clamped to [0, n-1], sorted, overlaps are trimmed, gaps are closed by
// extending the preceding span, and the first and last spans are forced to
// the transcript boundaries. Topic labels are preserved as-is; the same
// label repeating non-adjacently stays separate, never merged.
func repairSpans(spans []span, n int) []span {
	valid := make([]span, 0, len(spans))
	for _, s := range spans {
		if s.start < 0 {
			s.start = 0
		}
		if s.end > n-1 {
			s.end = n - 1
		}
		if s.start > s.end {
			continue
		}
		valid = append(valid, s)
	}

	if len(valid) == 0 {
		return []span{{start: 0, end: n - 1, topic: GeneralDiscussion}}
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].start < valid[j].start })

	out := make([]span, 0, len(valid))
	for _, s := range valid {
		if len(out) == 0 {
			s.start = 0
			out = append(out, s)
			continue
		}

		prev := &out[len(out)-1]
		if s.start <= prev.end {
			s.start = prev.end + 1
			if s.start > s.end {
				continue // span fully overlapped by its predecessor
			}
		}
		if s.start > prev.end+1 {
			prev.end = s.start - 1
		}
		out = append(out, s)
	}

	out[len(out)-1].end = n - 1
	return out
}

// segmentPrompt renders the full transcript with turn indices. No
// windowing: transcripts up to a few hundred turns fit comfortably in
// model context, and partial views produce non-contiguous plans.
func segmentPrompt(items []Item, topics []string) string {
	var b strings.Builder

	b.WriteString("Segment the following meeting transcript into topic-coherent chunks.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Return contiguous index ranges covering every turn from 0 to ")
	b.WriteString(fmt.Sprintf("%d", len(items)-1))
	b.WriteString(" with no gaps and no overlaps.\n")
	b.WriteString("- Label each chunk with exactly one of the provided topics, or \"")
	b.WriteString(GeneralDiscussion)
	b.WriteString("\" if none fits.\n")
	b.WriteString("- A topic may appear more than once if the discussion returns to it.\n\n")

	if len(topics) > 0 {
		b.WriteString("Topics: ")
		b.WriteString(strings.Join(topics, ", "))
		b.WriteString("\n\n")
	}

	b.WriteString("Transcript:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i, FormatItem(it))
	}
	return b.String()
}
