package rag

import (
	"context"
	"time"
)

// Document type constants for indexed content.
const (
	// TypeTranscript represents meeting transcript chunks.
	TypeTranscript = "transcript"

	// TypeDocument represents workspace document content.
	TypeDocument = "document"

	// TypeChat represents chat message history.
	TypeChat = "chat"
)

// Metadata describes an indexed document chunk. It is persisted as JSONB
// alongside the content and round-trips through the vector store unchanged.
type Metadata struct {
	// Source is the originating document title or file name.
	Source string `json:"source,omitempty"`

	// Type is one of TypeTranscript, TypeDocument, TypeChat.
	Type string `json:"type,omitempty"`

	// Topic is the chunk's topic label (transcripts only).
	Topic string `json:"topic,omitempty"`

	// Speakers lists the unique speakers covered by the chunk.
	Speakers []string `json:"speakers,omitempty"`

	// StartTime and EndTime are transcript timecodes in seconds.
	StartTime float64 `json:"startTime,omitempty"`
	EndTime   float64 `json:"endTime,omitempty"`

	// ChunkIndex is the chunk's position within its source document.
	// Valid only when TotalChunks > 0. Never omitted when zero: adjacency
	// SQL reads metadata->>'chunkIndex' and a missing key would make the
	// first chunk of every source invisible to neighbor lookups.
	ChunkIndex  int `json:"chunkIndex"`
	TotalChunks int `json:"totalChunks,omitempty"`

	// CreatedAt is the indexing timestamp.
	CreatedAt time.Time `json:"createdAt,omitempty"`

	// FileHash identifies the source document for adjacency lookups.
	FileHash string `json:"fileHash,omitempty"`
}

// HasChunkPosition reports whether the metadata carries enough information
// to locate adjacent chunks from the same source.
func (m Metadata) HasChunkPosition() bool {
	return m.FileHash != "" && m.TotalChunks > 0
}

// Document is one retrievable unit in the vector store.
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float32 `json:"embedding,omitempty"`
	Namespace string    `json:"namespace"`
}

// QueryMatch is a ranked candidate returned by a query. Matches are
// transient; they are never persisted.
type QueryMatch struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`

	// MergedCount is the number of source chunks concatenated into this
	// match by the LLM reranker. Zero means the match was not merged.
	MergedCount int `json:"mergedCount,omitempty"`
}

// TopicGroup groups match IDs under a topic label within one response.
type TopicGroup struct {
	ID       string   `json:"id"`
	Topic    string   `json:"topic"`
	MatchIDs []string `json:"matchIds"`
}

// DateRange bounds a date filter. Start and End are ISO-8601 date strings
// (YYYY-MM-DD); invalid values are silently dropped by BuildFilter.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// QueryFilter narrows a query by structured metadata.
type QueryFilter struct {
	Topics    []string   `json:"topics,omitempty"`
	Speakers  []string   `json:"speakers,omitempty"`
	DateRange *DateRange `json:"dateRange,omitempty"`
}

// QueryRequest is the engine's input.
type QueryRequest struct {
	// Query is the free-text question. Required.
	Query string `json:"query"`

	// Namespace is the requesting workspace identifier. Required.
	Namespace string `json:"namespace"`

	// ContentType filters by document type; "all" or empty matches every type.
	ContentType string `json:"contentType,omitempty"`

	// Filter applies structured metadata constraints.
	Filter *QueryFilter `json:"filter,omitempty"`

	// RerankMethod selects the rerank strategy: "llm" (default) or "voyage".
	RerankMethod string `json:"rerankMethod,omitempty"`

	// TopK is the number of matches to return. Defaults to the engine's
	// configured value when zero.
	TopK int `json:"topK,omitempty"`

	// MinScore drops raw similarity matches below the threshold before
	// reranking. Zero disables pre-filtering.
	MinScore float64 `json:"minScore,omitempty"`

	// ExpandContext fetches chunks adjacent to top matches. Off by default;
	// it trades latency for completeness.
	ExpandContext bool `json:"expandContext,omitempty"`
}

// Rerank method identifiers reported to downstream consumers.
const (
	RerankMethodLLM    = "llm"
	RerankMethodVoyage = "voyage"
	RerankMethodNone   = "none"
)

// RerankResult is the outcome of a rerank call.
type RerankResult struct {
	Matches []QueryMatch

	// TopicGroups is populated by the LLM strategy only.
	TopicGroups []TopicGroup

	// Method is the strategy that actually produced the result.
	Method string
}

// Reranker reorders and filters candidate matches for a query. Implemented
// by rerank.Chain and the individual strategies.
type Reranker interface {
	Rerank(ctx context.Context, query string, matches []QueryMatch, topK int) (*RerankResult, error)
}

// ResponseMetadata reports how a response was produced.
type ResponseMetadata struct {
	// RerankMethod is the strategy that actually executed:
	// "llm", "voyage", or "none".
	RerankMethod string `json:"rerankMethod"`

	// TopicGroups is present when the LLM reranker grouped matches.
	TopicGroups []TopicGroup `json:"topicGroups,omitempty"`

	TopicCount int `json:"topicCount,omitempty"`
}

// QueryResponse is the engine's output. On failure Success is false, Error
// holds the reason, and Query preserves the original query text.
type QueryResponse struct {
	Success   bool             `json:"success"`
	Matches   []QueryMatch     `json:"matches,omitempty"`
	Content   string           `json:"content,omitempty"`
	Namespace string           `json:"namespace"`
	Duration  time.Duration    `json:"duration"`
	Metadata  ResponseMetadata `json:"metadata"`

	Query string `json:"query,omitempty"`
	Error string `json:"error,omitempty"`
}

// VectorStore is the query/write contract the engine consumes. Implemented
// by vectorstore.Store (PostgreSQL + pgvector); the interface is defined
// here, by the consumer.
type VectorStore interface {
	// Query runs a namespaced similarity search and returns matches ranked
	// by score descending. Matches below minScore are excluded.
	Query(ctx context.Context, namespace, query string, topK int, minScore float64, filter *Filter) ([]QueryMatch, error)

	// QueryByFilter runs a metadata-only lookup (no query vector), used for
	// adjacent-chunk fetches. Returned matches carry a zero score.
	QueryByFilter(ctx context.Context, namespace string, filter *Filter, limit int) ([]QueryMatch, error)

	// Upsert writes documents under their namespace.
	Upsert(ctx context.Context, docs []Document) error

	// DeleteBySource removes all documents with the given file hash from
	// the namespace. Used to replace a re-indexed source atomically enough.
	DeleteBySource(ctx context.Context, namespace, fileHash string) error
}
