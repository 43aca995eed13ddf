package rerank

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/rag"
)

const (
	// minLLMScore drops matches the model judged irrelevant.
	minLLMScore = 0.3

	// previewChars bounds the content sent per candidate: the first and
	// last previewChars characters, which keeps the prompt compact while
	// preserving both ends of each chunk.
	previewChars = 400
)

// LLMReranker scores candidates with a language model constrained to a JSON
// schema. Beyond scoring it deduplicates near-identical chunks (merging
// their content) and groups the survivors by topic.
type LLMReranker struct {
	g      *genkit.Genkit
	model  ai.Model
	logger log.Logger
}

// NewLLM creates an LLM reranker.
func NewLLM(g *genkit.Genkit, model ai.Model, logger log.Logger) *LLMReranker {
	if logger == nil {
		logger = log.NewNop()
	}
	return &LLMReranker{g: g, model: model, logger: logger}
}

// Name implements Strategy.
func (r *LLMReranker) Name() string { return rag.RerankMethodLLM }

// rankedMatch is one scored candidate in the model's response.
type rankedMatch struct {
	ID        string   `json:"id"`
	Score     float64  `json:"score"`
	TopicID   string   `json:"topicId,omitempty"`
	MergedIDs []string `json:"mergedIds,omitempty"`
}

// rankedTopic is one topic in the model's response.
type rankedTopic struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// rerankPlan is the schema-constrained model output. It is untrusted
// external input: ids are validated against the candidate set and unknown
// references are dropped, never trusted.
type rerankPlan struct {
	Matches []rankedMatch `json:"matches"`
	Topics  []rankedTopic `json:"topics"`
}

// Rerank implements Strategy.
func (r *LLMReranker) Rerank(ctx context.Context, query string, matches []rag.QueryMatch, topK int) (*rag.RerankResult, error) {
	if r.g == nil || r.model == nil {
		return nil, fmt.Errorf("llm reranker not configured")
	}

	resp, err := genkit.Generate(ctx, r.g,
		ai.WithModel(r.model),
		ai.WithPrompt(rerankPrompt(query, matches)),
		ai.WithOutputType(rerankPlan{}),
	)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}

	var plan rerankPlan
	if err := resp.Output(&plan); err != nil {
		return nil, fmt.Errorf("parse output: %w", err)
	}

	return r.apply(plan, matches, topK), nil
}

// apply turns the model's plan into a result, enforcing the processing
// rules: score threshold, unknown-id drop, id dedupe, overlap-aware merge,
// score-descending order, topic grouping.
func (r *LLMReranker) apply(plan rerankPlan, candidates []rag.QueryMatch, topK int) *rag.RerankResult {
	byID := make(map[string]rag.QueryMatch, len(candidates))
	for _, m := range candidates {
		byID[m.ID] = m
	}

	seen := make(map[string]struct{})
	topicByMatch := make(map[string]string)
	out := make([]rag.QueryMatch, 0, len(plan.Matches))

	for _, rm := range plan.Matches {
		orig, ok := byID[rm.ID]
		if !ok {
			r.logger.Warn("reranker returned unknown match id, skipping", "id", rm.ID)
			continue
		}
		if _, dup := seen[rm.ID]; dup {
			continue
		}
		if rm.Score < minLLMScore {
			continue
		}
		seen[rm.ID] = struct{}{}

		match := orig
		match.Score = clampScore(rm.Score)

		merged := 0
		for _, mid := range rm.MergedIDs {
			if mid == rm.ID {
				continue
			}
			other, ok := byID[mid]
			if !ok {
				r.logger.Warn("reranker referenced unknown merged id, skipping", "id", mid)
				continue
			}
			if _, dup := seen[mid]; dup {
				continue
			}
			seen[mid] = struct{}{}
			match.Content = mergeContent(match.Content, other.Content)
			merged++
		}
		if merged > 0 {
			match.MergedCount = merged + 1
		}

		if rm.TopicID != "" {
			topicByMatch[match.ID] = rm.TopicID
		}
		out = append(out, match)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}

	var groups []rag.TopicGroup
	for _, t := range plan.Topics {
		var ids []string
		for _, m := range out {
			if topicByMatch[m.ID] == t.ID {
				ids = append(ids, m.ID)
			}
		}
		if len(ids) > 0 {
			groups = append(groups, rag.TopicGroup{ID: t.ID, Topic: t.Name, MatchIDs: ids})
		}
	}

	return &rag.RerankResult{Matches: out, TopicGroups: groups, Method: rag.RerankMethodLLM}
}

// rerankPrompt renders the query and a compact candidate listing.
func rerankPrompt(query string, matches []rag.QueryMatch) string {
	var b strings.Builder

	b.WriteString("Rerank the following search results for the query.\n\n")
	b.WriteString("For each result worth keeping, return its id with a relevance score ")
	b.WriteString("between 0 and 1. Group related results under topics (return each topic ")
	b.WriteString("with an id and name, and tag matches with topicId). If two results cover ")
	b.WriteString("the same content, keep one and list the duplicates in its mergedIds.\n\n")
	b.WriteString("Query: ")
	b.WriteString(query)
	b.WriteString("\n\nResults:\n")

	for _, m := range matches {
		fmt.Fprintf(&b, "\nid: %s\nscore: %.3f\n", m.ID, m.Score)
		if m.Metadata.Topic != "" {
			fmt.Fprintf(&b, "topic: %s\n", m.Metadata.Topic)
		}
		b.WriteString("content: ")
		b.WriteString(contentPreview(m.Content))
		b.WriteByte('\n')
	}
	return b.String()
}

// contentPreview returns the first and last previewChars characters of s.
func contentPreview(s string) string {
	if len(s) <= 2*previewChars {
		return s
	}
	return s[:previewChars] + " [...] " + s[len(s)-previewChars:]
}
