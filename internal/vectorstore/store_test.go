package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/quorumhq/quorum/internal/rag"
)

// fakeEmbedder implements ai.Embedder for testing.
type fakeEmbedder struct {
	embedErr    error
	returnEmpty bool
	embedding   []float32
	callCount   int
	lastInput   string
}

func (f *fakeEmbedder) Name() string { return "fake-embedder" }

func (f *fakeEmbedder) Register(r api.Registry) {}

func (f *fakeEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	f.callCount++
	if len(req.Input) > 0 && len(req.Input[0].Content) > 0 {
		f.lastInput = req.Input[0].Content[0].Text
	}
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	if f.returnEmpty {
		return &ai.EmbedResponse{}, nil
	}
	emb := f.embedding
	if emb == nil {
		emb = []float32{0.1, 0.2, 0.3}
	}
	return &ai.EmbedResponse{
		Embeddings: []*ai.Embedding{{Embedding: emb}},
	}, nil
}

// fakeRows implements pgx.Rows over in-memory row values.
type fakeRows struct {
	rows    [][]any
	pos     int
	scanErr error
	rowsErr error
}

func (f *fakeRows) Close()                                       {}
func (f *fakeRows) Err() error                                   { return f.rowsErr }
func (f *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (f *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (f *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (f *fakeRows) RawValues() [][]byte                          { return nil }
func (f *fakeRows) Conn() *pgx.Conn                              { return nil }

func (f *fakeRows) Next() bool {
	if f.pos >= len(f.rows) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	row := f.rows[f.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(row))
	}
	for i, d := range dest {
		switch dst := d.(type) {
		case *string:
			*dst = row[i].(string)
		case *[]byte:
			*dst = row[i].([]byte)
		case *float64:
			*dst = row[i].(float64)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

// fakeDB implements DB and records the last statement it saw.
type fakeDB struct {
	queryErr error
	execErr  error
	rows     *fakeRows

	queryCalls int
	execCalls  int
	lastSQL    string
	lastArgs   []any
	execSQLs   []string
	execArgs   [][]any
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.queryCalls++
	f.lastSQL = sql
	f.lastArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.rows == nil {
		return &fakeRows{}, nil
	}
	return f.rows, nil
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execCalls++
	f.lastSQL = sql
	f.lastArgs = args
	f.execSQLs = append(f.execSQLs, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, f.execErr
}

func metadataJSON(t *testing.T, m rag.Metadata) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal metadata: %v", err)
	}
	return b
}

func TestNew_NilLogger(t *testing.T) {
	store := New(&fakeDB{}, &fakeEmbedder{}, nil)
	if store.logger == nil {
		t.Fatal("logger should default to nop, not nil")
	}
}

func TestStore_Query_Success(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{rows: [][]any{
		{"doc1", "first chunk", metadataJSON(t, rag.Metadata{Source: "standup.txt", Type: rag.TypeTranscript}), 0.92},
		{"doc2", "second chunk", metadataJSON(t, rag.Metadata{Source: "standup.txt", Type: rag.TypeTranscript}), 0.78},
	}}}
	embedder := &fakeEmbedder{}
	store := New(db, embedder, nil)

	matches, err := store.Query(context.Background(), "ws-1", "deploy schedule", 10, 0.3, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if embedder.callCount != 1 {
		t.Errorf("expected 1 embed call, got %d", embedder.callCount)
	}
	if embedder.lastInput != "deploy schedule" {
		t.Errorf("embedder received %q, want query text", embedder.lastInput)
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "doc1" || matches[0].Score != 0.92 {
		t.Errorf("first match = %q/%v, want doc1/0.92", matches[0].ID, matches[0].Score)
	}
	if matches[1].Metadata.Source != "standup.txt" {
		t.Errorf("metadata not parsed: %+v", matches[1].Metadata)
	}

	if !strings.Contains(db.lastSQL, "namespace = $2") {
		t.Errorf("query must scope by namespace: %s", db.lastSQL)
	}
	if !strings.Contains(db.lastSQL, "ORDER BY embedding <=> $1") {
		t.Errorf("query must order by cosine distance: %s", db.lastSQL)
	}
	if !strings.Contains(db.lastSQL, ">= $3") {
		t.Errorf("query must apply min score threshold: %s", db.lastSQL)
	}
	if db.lastArgs[1] != "ws-1" {
		t.Errorf("namespace arg = %v, want ws-1", db.lastArgs[1])
	}
	if _, ok := db.lastArgs[0].(pgvector.Vector); !ok {
		t.Errorf("first arg should be the query vector, got %T", db.lastArgs[0])
	}
}

func TestStore_Query_NoMinScore(t *testing.T) {
	db := &fakeDB{}
	store := New(db, &fakeEmbedder{}, nil)

	if _, err := store.Query(context.Background(), "ws-1", "q", 5, 0, nil); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if strings.Contains(db.lastSQL, ">=") {
		t.Errorf("zero min score should not add a threshold predicate: %s", db.lastSQL)
	}
}

func TestStore_Query_FilterPredicates(t *testing.T) {
	db := &fakeDB{}
	store := New(db, &fakeEmbedder{}, nil)

	filter := &rag.Filter{
		Type:         rag.TypeTranscript,
		Topics:       []string{"Planning", "Retro"},
		Speakers:     []string{"Alice"},
		DateStart:    "2026-01-01",
		DateEnd:      "2026-03-31",
		FileHash:     "abc123",
		ChunkIndexes: []int{2, 3, 4},
	}

	if _, err := store.Query(context.Background(), "ws-1", "q", 5, 0, filter); err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	fragments := []string{
		"metadata->>'type' =",
		"metadata->>'topic' = ANY(",
		"metadata->'speakers' ?|",
		"left(metadata->>'createdAt', 10) >=",
		"left(metadata->>'createdAt', 10) <=",
		"metadata->>'fileHash' =",
		"(metadata->>'chunkIndex')::int = ANY(",
	}
	for _, frag := range fragments {
		if !strings.Contains(db.lastSQL, frag) {
			t.Errorf("expected predicate %q in SQL: %s", frag, db.lastSQL)
		}
	}

	// Values must travel as args, never interpolated into the statement.
	if strings.Contains(db.lastSQL, "abc123") || strings.Contains(db.lastSQL, "Alice") {
		t.Errorf("filter values leaked into SQL text: %s", db.lastSQL)
	}
}

func TestStore_Query_EmbedError(t *testing.T) {
	tests := []struct {
		name     string
		embedder *fakeEmbedder
	}{
		{name: "embed fails", embedder: &fakeEmbedder{embedErr: errors.New("service unavailable")}},
		{name: "empty embedding", embedder: &fakeEmbedder{returnEmpty: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{}
			store := New(db, tt.embedder, nil)

			_, err := store.Query(context.Background(), "ws-1", "q", 5, 0, nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if db.queryCalls > 0 {
				t.Error("database should not be queried when embedding fails")
			}
		})
	}
}

func TestStore_Query_NoEmbedder(t *testing.T) {
	store := New(&fakeDB{}, nil, nil)

	_, err := store.Query(context.Background(), "ws-1", "q", 5, 0, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "no embedder configured") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStore_Query_DatabaseError(t *testing.T) {
	db := &fakeDB{queryErr: errors.New("connection lost")}
	store := New(db, &fakeEmbedder{}, nil)

	_, err := store.Query(context.Background(), "ws-1", "q", 5, 0, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "vector query") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStore_Query_MetadataParseError(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{rows: [][]any{
		{"doc1", "content survives", []byte(`{invalid json}`), 0.9},
	}}}
	store := New(db, &fakeEmbedder{}, nil)

	matches, err := store.Query(context.Background(), "ws-1", "q", 5, 0, nil)
	if err != nil {
		t.Fatalf("Query should tolerate bad metadata: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Content != "content survives" {
		t.Errorf("content lost: %q", matches[0].Content)
	}
	if !reflect.DeepEqual(matches[0].Metadata, rag.Metadata{}) {
		t.Errorf("metadata should be zero on parse error: %+v", matches[0].Metadata)
	}
}

func TestStore_Query_ScoreClamping(t *testing.T) {
	db := &fakeDB{rows: &fakeRows{rows: [][]any{
		{"neg", "a", metadataJSON(t, rag.Metadata{}), -0.2},
		{"big", "b", metadataJSON(t, rag.Metadata{}), 1.4},
	}}}
	store := New(db, &fakeEmbedder{}, nil)

	matches, err := store.Query(context.Background(), "ws-1", "q", 5, 0, nil)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if matches[0].Score != 0 {
		t.Errorf("negative score should clamp to 0, got %v", matches[0].Score)
	}
	if matches[1].Score != 1 {
		t.Errorf("score above 1 should clamp to 1, got %v", matches[1].Score)
	}
}

func TestStore_QueryByFilter_Ordering(t *testing.T) {
	tests := []struct {
		name      string
		filter    *rag.Filter
		wantOrder string
	}{
		{
			name:      "source filter orders by chunk index",
			filter:    &rag.Filter{FileHash: "abc", ChunkIndexes: []int{1, 2}},
			wantOrder: "(metadata->>'chunkIndex')::int ASC",
		},
		{
			name:      "generic filter orders newest first",
			filter:    &rag.Filter{Type: rag.TypeDocument},
			wantOrder: "created_at DESC",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{}
			store := New(db, nil, nil)

			if _, err := store.QueryByFilter(context.Background(), "ws-1", tt.filter, 10); err != nil {
				t.Fatalf("QueryByFilter failed: %v", err)
			}
			if !strings.Contains(db.lastSQL, tt.wantOrder) {
				t.Errorf("expected ORDER BY %q in SQL: %s", tt.wantOrder, db.lastSQL)
			}
			if !strings.Contains(db.lastSQL, "namespace = $1") {
				t.Errorf("filter query must scope by namespace: %s", db.lastSQL)
			}
		})
	}
}

func TestStore_QueryByFilter_NoEmbedCall(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := New(&fakeDB{}, embedder, nil)

	if _, err := store.QueryByFilter(context.Background(), "ws-1", nil, 10); err != nil {
		t.Fatalf("QueryByFilter failed: %v", err)
	}
	if embedder.callCount != 0 {
		t.Errorf("metadata lookup should never embed, got %d calls", embedder.callCount)
	}
}

func TestStore_Upsert(t *testing.T) {
	db := &fakeDB{}
	embedder := &fakeEmbedder{embedding: []float32{0.5, 0.6}}
	store := New(db, embedder, nil)

	created := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	docs := []rag.Document{
		{
			ID:        "tr_abc_0",
			Namespace: "ws-1",
			Content:   "[0s] Alice: hello",
			Metadata:  rag.Metadata{Source: "standup.txt", Type: rag.TypeTranscript, FileHash: "abc", CreatedAt: created},
		},
		{
			ID:        "tr_abc_1",
			Namespace: "ws-1",
			Content:   "[5s] Bob: hi",
			Metadata:  rag.Metadata{Source: "standup.txt", Type: rag.TypeTranscript, FileHash: "abc", ChunkIndex: 1, CreatedAt: created},
		},
	}

	if err := store.Upsert(context.Background(), docs); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if embedder.callCount != 2 {
		t.Errorf("expected one embed per document, got %d", embedder.callCount)
	}
	if db.execCalls != 2 {
		t.Fatalf("expected 2 exec calls, got %d", db.execCalls)
	}
	if !strings.Contains(db.execSQLs[0], "ON CONFLICT (id) DO UPDATE") {
		t.Errorf("upsert must replace existing rows: %s", db.execSQLs[0])
	}

	args := db.execArgs[1]
	if args[0] != "tr_abc_1" || args[1] != "ws-1" {
		t.Errorf("wrong id/namespace args: %v", args[:2])
	}
	var meta rag.Metadata
	if err := json.Unmarshal(args[4].([]byte), &meta); err != nil {
		t.Fatalf("metadata arg not valid JSON: %v", err)
	}
	if meta.ChunkIndex != 1 || meta.FileHash != "abc" {
		t.Errorf("metadata round trip mismatch: %+v", meta)
	}
}

func TestStore_Upsert_EmbedError(t *testing.T) {
	db := &fakeDB{}
	store := New(db, &fakeEmbedder{embedErr: errors.New("quota exceeded")}, nil)

	err := store.Upsert(context.Background(), []rag.Document{{ID: "d1", Content: "x"}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), `embed document "d1"`) {
		t.Errorf("unexpected error: %v", err)
	}
	if db.execCalls > 0 {
		t.Error("no row should be written when embedding fails")
	}
}

func TestStore_DeleteBySource(t *testing.T) {
	db := &fakeDB{}
	store := New(db, nil, nil)

	if err := store.DeleteBySource(context.Background(), "ws-1", "abc123"); err != nil {
		t.Fatalf("DeleteBySource failed: %v", err)
	}
	if !strings.Contains(db.lastSQL, "metadata->>'fileHash' = $2") {
		t.Errorf("delete must match on file hash: %s", db.lastSQL)
	}
	if db.lastArgs[0] != "ws-1" || db.lastArgs[1] != "abc123" {
		t.Errorf("wrong args: %v", db.lastArgs)
	}
}

func TestStore_DeleteBySource_Error(t *testing.T) {
	db := &fakeDB{execErr: errors.New("permission denied")}
	store := New(db, nil, nil)

	err := store.DeleteBySource(context.Background(), "ws-1", "abc123")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "delete by source") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSQLBuilder(t *testing.T) {
	var b sqlBuilder
	if b.clause() != "TRUE" {
		t.Errorf("empty builder clause = %q, want TRUE", b.clause())
	}

	p1 := b.arg("alpha")
	p2 := b.arg(42)
	if p1 != "$1" || p2 != "$2" {
		t.Errorf("placeholders = %q, %q", p1, p2)
	}

	b.where("a = " + p1)
	b.where("b = " + p2)
	if got := b.clause(); got != "a = $1 AND b = $2" {
		t.Errorf("clause = %q", got)
	}
	if len(b.args) != 2 || b.args[0] != "alpha" || b.args[1] != 42 {
		t.Errorf("args = %v", b.args)
	}
}
