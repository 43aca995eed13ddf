package rag

// indexer.go implements the transcript write path: chunk a transcript with
// internal/transcript and upsert one Document per chunk under the owning
// workspace namespace. Re-indexing a source replaces its previous chunks.

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/transcript"
)

// TranscriptChunker is the chunking behavior Indexer depends on, satisfied
// by *transcript.Chunker.
type TranscriptChunker interface {
	Chunk(ctx context.Context, items []transcript.Item, topics []string, opts transcript.Options) []transcript.Chunk
}

// IndexRequest describes one transcript to index.
type IndexRequest struct {
	// Namespace is the owning workspace identifier. Required.
	Namespace string `json:"namespace"`

	// Source is the transcript's document title or file name. Required;
	// it also seeds the file hash, so re-indexing the same source replaces
	// its chunks.
	Source string `json:"source"`

	Items   []transcript.Item  `json:"items"`
	Topics  []string           `json:"topics,omitempty"`
	Options transcript.Options `json:"options"`
}

// IndexResult reports an indexing run.
type IndexResult struct {
	Source   string        `json:"source"`
	FileHash string        `json:"fileHash"`
	Chunks   int           `json:"chunks"`
	Duration time.Duration `json:"duration"`
}

// Indexer writes chunked transcripts into the vector store.
type Indexer struct {
	store   VectorStore
	chunker TranscriptChunker
	logger  log.Logger
	clock   func() time.Time
}

// NewIndexer creates an Indexer.
func NewIndexer(store VectorStore, chunker TranscriptChunker, logger log.Logger) (*Indexer, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrValidation)
	}
	if chunker == nil {
		return nil, fmt.Errorf("%w: chunker is required", ErrValidation)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Indexer{store: store, chunker: chunker, logger: logger, clock: time.Now}, nil
}

// IndexTranscript chunks the transcript and upserts the result. Existing
// chunks for the same source are deleted first so re-indexing never leaves
// stale chunk tails behind.
func (ix *Indexer) IndexTranscript(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	start := ix.clock()

	if req.Namespace == "" {
		return nil, fmt.Errorf("%w: namespace is required", ErrValidation)
	}
	if req.Source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrValidation)
	}

	fileHash := sourceHash(req.Source)

	if len(req.Items) == 0 {
		return &IndexResult{Source: req.Source, FileHash: fileHash, Duration: ix.clock().Sub(start)}, nil
	}

	chunks := ix.chunker.Chunk(ctx, req.Items, req.Topics, req.Options)

	now := ix.clock()
	docs := make([]Document, len(chunks))
	for i, c := range chunks {
		docs[i] = Document{
			ID:        "tr_" + fileHash + "_" + strconv.Itoa(i),
			Content:   c.Content,
			Namespace: req.Namespace,
			Metadata: Metadata{
				Source:      req.Source,
				Type:        TypeTranscript,
				Topic:       c.Topic,
				Speakers:    c.Speakers,
				StartTime:   c.StartTime,
				EndTime:     c.EndTime,
				ChunkIndex:  i,
				TotalChunks: len(chunks),
				CreatedAt:   now,
				FileHash:    fileHash,
			},
		}
	}

	if err := ix.store.DeleteBySource(ctx, req.Namespace, fileHash); err != nil {
		return nil, fmt.Errorf("%w: delete previous chunks: %w", ErrVectorStore, err)
	}
	if err := ix.store.Upsert(ctx, docs); err != nil {
		return nil, fmt.Errorf("%w: upsert chunks: %w", ErrVectorStore, err)
	}

	result := &IndexResult{
		Source:   req.Source,
		FileHash: fileHash,
		Chunks:   len(docs),
		Duration: ix.clock().Sub(start),
	}
	ix.logger.Info("transcript indexed",
		"namespace", req.Namespace,
		"source", req.Source,
		"chunks", result.Chunks,
		"duration", result.Duration)
	return result, nil
}

// sourceHash derives a stable identifier from the source name. Chunk IDs
// and adjacency lookups both key on it; hashing only the name means a
// re-upload of the same source replaces its chunks.
func sourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:16])
}
