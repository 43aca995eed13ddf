// Package vectorstore implements the rag.VectorStore contract on
// PostgreSQL + pgvector.
//
// Documents live in the rag_documents table: namespace column for
// workspace isolation, 768-dimension embedding with cosine distance, and a
// JSONB metadata column that carries the structured filter fields. Every
// query is scoped to exactly one namespace; cross-namespace reads are
// impossible by construction because the namespace predicate is always
// present.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/rag"
)

// VectorDimension is the embedding width of the rag_documents schema.
// Must match the embedder's output dimensionality.
const VectorDimension = 768

// queryTimeout bounds every vector search so a slow backend cannot stall
// the request pipeline.
const queryTimeout = 10 * time.Second

// DB is the database behavior Store depends on, satisfied by
// *pgxpool.Pool. The interface is defined here, by the consumer, so tests
// can substitute a mock.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is the pgvector-backed document store.
//
// Store is safe for concurrent use.
type Store struct {
	db       DB
	embedder ai.Embedder
	logger   log.Logger
}

// New creates a Store. embedder may be nil only when the store is used
// exclusively for metadata lookups (QueryByFilter, DeleteBySource).
func New(db DB, embedder ai.Embedder, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, embedder: embedder, logger: logger}
}

// Query implements rag.VectorStore. Matches are ranked by cosine
// similarity descending; matches below minScore are excluded.
func (s *Store) Query(ctx context.Context, namespace, query string, topK int, minScore float64, filter *rag.Filter) ([]rag.QueryMatch, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	embedding, err := s.embed(qctx, query)
	if err != nil {
		return nil, err
	}

	var b sqlBuilder
	vecArg := b.arg(pgvector.NewVector(embedding))
	b.where("namespace = " + b.arg(namespace))
	b.appendFilter(filter)
	if minScore > 0 {
		b.where(fmt.Sprintf("1 - (embedding <=> %s) >= %s", vecArg, b.arg(minScore)))
	}

	sql := fmt.Sprintf(
		"SELECT id, content, metadata, 1 - (embedding <=> %s) AS score FROM rag_documents WHERE %s ORDER BY embedding <=> %s LIMIT %s",
		vecArg, b.clause(), vecArg, b.arg(topK),
	)

	rows, err := s.db.Query(qctx, sql, b.args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector query timeout: %w", err)
		}
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	return s.scanMatches(rows, true)
}

// QueryByFilter implements rag.VectorStore: a metadata-only lookup with no
// query vector. Used for adjacent-chunk fetches; results are ordered by
// chunk index when the filter names a source, newest-first otherwise.
func (s *Store) QueryByFilter(ctx context.Context, namespace string, filter *rag.Filter, limit int) ([]rag.QueryMatch, error) {
	qctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var b sqlBuilder
	b.where("namespace = " + b.arg(namespace))
	b.appendFilter(filter)

	order := "created_at DESC"
	if filter != nil && filter.FileHash != "" {
		order = "(metadata->>'chunkIndex')::int ASC"
	}

	sql := fmt.Sprintf(
		"SELECT id, content, metadata FROM rag_documents WHERE %s ORDER BY %s LIMIT %s",
		b.clause(), order, b.arg(limit),
	)

	rows, err := s.db.Query(qctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("filter query: %w", err)
	}
	defer rows.Close()

	return s.scanMatches(rows, false)
}

// Upsert implements rag.VectorStore. Each document's content is embedded
// with the configured embedder; existing rows with the same id are
// replaced.
func (s *Store) Upsert(ctx context.Context, docs []rag.Document) error {
	for _, doc := range docs {
		embedding, err := s.embed(ctx, doc.Content)
		if err != nil {
			return fmt.Errorf("embed document %q: %w", doc.ID, err)
		}

		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %q: %w", doc.ID, err)
		}

		_, err = s.db.Exec(ctx,
			`INSERT INTO rag_documents (id, namespace, content, embedding, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE SET
			   namespace = EXCLUDED.namespace,
			   content = EXCLUDED.content,
			   embedding = EXCLUDED.embedding,
			   metadata = EXCLUDED.metadata,
			   created_at = EXCLUDED.created_at`,
			doc.ID, doc.Namespace, doc.Content,
			pgvector.NewVector(embedding), metadataJSON, doc.Metadata.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert document %q: %w", doc.ID, err)
		}
		s.logger.Debug("upserted document", "id", doc.ID, "namespace", doc.Namespace)
	}
	return nil
}

// DeleteBySource implements rag.VectorStore.
func (s *Store) DeleteBySource(ctx context.Context, namespace, fileHash string) error {
	_, err := s.db.Exec(ctx,
		"DELETE FROM rag_documents WHERE namespace = $1 AND metadata->>'fileHash' = $2",
		namespace, fileHash,
	)
	if err != nil {
		return fmt.Errorf("delete by source %q: %w", fileHash, err)
	}
	return nil
}

// embed generates the query embedding via the configured embedder.
func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}

// scanMatches reads query rows into matches. Rows with unparseable
// metadata keep their content and carry empty metadata rather than failing
// the whole result set.
func (s *Store) scanMatches(rows pgx.Rows, withScore bool) ([]rag.QueryMatch, error) {
	var matches []rag.QueryMatch

	for rows.Next() {
		var (
			m            rag.QueryMatch
			metadataJSON []byte
		)

		var err error
		if withScore {
			err = rows.Scan(&m.ID, &m.Content, &metadataJSON, &m.Score)
		} else {
			err = rows.Scan(&m.ID, &m.Content, &metadataJSON)
		}
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", m.ID, "error", err)
			m.Metadata = rag.Metadata{}
		}

		// Cosine similarity of unnormalized vectors can dip below zero.
		if m.Score < 0 {
			m.Score = 0
		} else if m.Score > 1 {
			m.Score = 1
		}

		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return matches, nil
}

// sqlBuilder accumulates parameterized WHERE predicates. Values only ever
// travel through the args slice; predicate text contains placeholders
// exclusively.
type sqlBuilder struct {
	predicates []string
	args       []any
}

// arg registers a value and returns its placeholder.
func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *sqlBuilder) where(predicate string) {
	b.predicates = append(b.predicates, predicate)
}

// clause joins the accumulated predicates with AND.
func (b *sqlBuilder) clause() string {
	if len(b.predicates) == 0 {
		return "TRUE"
	}
	return strings.Join(b.predicates, " AND ")
}

// appendFilter translates a rag.Filter into JSONB predicates.
func (b *sqlBuilder) appendFilter(f *rag.Filter) {
	if f == nil {
		return
	}

	if f.Type != "" {
		b.where("metadata->>'type' = " + b.arg(f.Type))
	}
	if len(f.Topics) > 0 {
		b.where("metadata->>'topic' = ANY(" + b.arg(f.Topics) + ")")
	}
	if len(f.Speakers) > 0 {
		// ?| matches documents whose speaker array contains any requested name.
		b.where("metadata->'speakers' ?| " + b.arg(f.Speakers))
	}
	if f.DateStart != "" {
		b.where("left(metadata->>'createdAt', 10) >= " + b.arg(f.DateStart))
	}
	if f.DateEnd != "" {
		b.where("left(metadata->>'createdAt', 10) <= " + b.arg(f.DateEnd))
	}
	if f.FileHash != "" {
		b.where("metadata->>'fileHash' = " + b.arg(f.FileHash))
	}
	if len(f.ChunkIndexes) > 0 {
		idx := make([]int32, len(f.ChunkIndexes))
		for i, v := range f.ChunkIndexes {
			idx[i] = int32(v)
		}
		b.where("(metadata->>'chunkIndex')::int = ANY(" + b.arg(idx) + ")")
	}
}
