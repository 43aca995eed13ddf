package rag

import (
	"time"
)

// isoDateLayout is the date layout for filter bounds (ISO-8601 date portion).
const isoDateLayout = "2006-01-02"

// ContentTypeAll matches every document type and omits the type constraint.
const ContentTypeAll = "all"

// Filter is the metadata filter expression consumed by the vector store.
// Present fields combine with AND semantics; zero-valued fields are omitted
// from the generated query.
type Filter struct {
	// Type matches metadata type exactly.
	Type string

	// Topics matches documents whose topic is any of the listed values.
	Topics []string

	// Speakers matches documents whose speaker set intersects the list.
	Speakers []string

	// DateStart and DateEnd bound metadata createdAt by ISO-8601 string
	// comparison (inclusive). Either may be empty.
	DateStart string
	DateEnd   string

	// FileHash and ChunkIndexes select specific chunks of one source.
	// Used for adjacent-chunk lookups, not exposed to query callers.
	FileHash     string
	ChunkIndexes []int
}

// IsZero reports whether the filter constrains nothing.
func (f *Filter) IsZero() bool {
	if f == nil {
		return true
	}
	return f.Type == "" && len(f.Topics) == 0 && len(f.Speakers) == 0 &&
		f.DateStart == "" && f.DateEnd == "" && f.FileHash == ""
}

// BuildFilter translates request parameters into a store filter.
// Returns nil when the request constrains nothing.
//
// A contentType of "all" (or empty) omits the type constraint. Invalid date
// bounds are silently dropped so a partially-invalid filter degrades instead
// of rejecting the whole query.
func BuildFilter(contentType string, qf *QueryFilter) *Filter {
	f := &Filter{}

	if contentType != "" && contentType != ContentTypeAll {
		f.Type = contentType
	}

	if qf != nil {
		f.Topics = qf.Topics
		f.Speakers = qf.Speakers
		if qf.DateRange != nil {
			f.DateStart = validDate(qf.DateRange.Start)
			f.DateEnd = validDate(qf.DateRange.End)
		}
	}

	if f.IsZero() {
		return nil
	}
	return f
}

// adjacencyFilter selects the chunks neighboring chunkIndex in one source.
func adjacencyFilter(fileHash string, chunkIndex, totalChunks int) *Filter {
	var indexes []int
	if chunkIndex > 0 {
		indexes = append(indexes, chunkIndex-1)
	}
	if chunkIndex < totalChunks-1 {
		indexes = append(indexes, chunkIndex+1)
	}
	if len(indexes) == 0 {
		return nil
	}
	return &Filter{FileHash: fileHash, ChunkIndexes: indexes}
}

// validDate returns s when it parses as an ISO-8601 date, "" otherwise.
func validDate(s string) string {
	if s == "" {
		return ""
	}
	if _, err := time.Parse(isoDateLayout, s); err != nil {
		return ""
	}
	return s
}
