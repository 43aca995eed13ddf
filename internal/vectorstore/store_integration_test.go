package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/firebase/genkit/go/genkit"

	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/rag"
	"github.com/quorumhq/quorum/internal/testutil"
)

// setupIntegrationStore brings up a pgvector container, runs migrations,
// and wires a Store with the deterministic mock embedder.
func setupIntegrationStore(t *testing.T) (*Store, *testutil.MockEmbedder, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)

	g := genkit.Init(context.Background())
	mock := testutil.NewMockEmbedder(VectorDimension)
	embedder := mock.RegisterEmbedder(g)

	store := New(db.Pool, embedder, log.NewNop())
	return store, mock, cleanup
}

func integrationDocs(namespace string) []rag.Document {
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	return []rag.Document{
		{
			ID:        "tr_hash1_0",
			Content:   "[0s] Alice: we agreed to ship the billing migration next sprint",
			Namespace: namespace,
			Metadata: rag.Metadata{
				Source: "standup.txt", Type: rag.TypeTranscript, Topic: "Planning",
				Speakers: []string{"Alice"}, FileHash: "hash1",
				ChunkIndex: 0, TotalChunks: 2, CreatedAt: now,
			},
		},
		{
			ID:        "tr_hash1_1",
			Content:   "[60s] Bob: the budget review moves to Thursday",
			Namespace: namespace,
			Metadata: rag.Metadata{
				Source: "standup.txt", Type: rag.TypeTranscript, Topic: "Budget",
				Speakers: []string{"Bob"}, FileHash: "hash1",
				ChunkIndex: 1, TotalChunks: 2, CreatedAt: now,
			},
		},
		{
			ID:        "doc_spec_0",
			Content:   "design document for the billing migration",
			Namespace: namespace,
			Metadata: rag.Metadata{
				Source: "billing-design.md", Type: rag.TypeDocument, CreatedAt: now,
			},
		},
	}
}

func TestStoreIntegration_UpsertAndQuery(t *testing.T) {
	store, mock, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	docs := integrationDocs("ws-1")

	// Pin the first chunk and the query to the same vector so the chunk
	// ranks first with a perfect score.
	pinned := make([]float32, VectorDimension)
	pinned[0] = 1
	mock.SetVector(docs[0].Content, pinned)
	mock.SetVector("billing migration decision", pinned)

	if err := store.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := store.Query(ctx, "ws-1", "billing migration decision", 10, 0, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("Query() returned %d matches, want 3", len(matches))
	}
	if matches[0].ID != "tr_hash1_0" {
		t.Errorf("top match = %s, want tr_hash1_0", matches[0].ID)
	}
	if matches[0].Score <= matches[1].Score {
		t.Errorf("scores not descending: %v then %v", matches[0].Score, matches[1].Score)
	}
	if matches[0].Metadata.Topic != "Planning" {
		t.Errorf("metadata round trip lost topic: %+v", matches[0].Metadata)
	}
}

func TestStoreIntegration_NamespaceIsolation(t *testing.T) {
	store, _, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Upsert(ctx, integrationDocs("ws-1")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := store.Query(ctx, "ws-2", "billing", 10, 0, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("namespace ws-2 sees %d matches from ws-1", len(matches))
	}
}

func TestStoreIntegration_MetadataFilter(t *testing.T) {
	store, _, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Upsert(ctx, integrationDocs("ws-1")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := store.Query(ctx, "ws-1", "anything", 10, 0, &rag.Filter{Type: rag.TypeTranscript})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("type filter returned %d matches, want 2", len(matches))
	}

	matches, err = store.Query(ctx, "ws-1", "anything", 10, 0, &rag.Filter{Speakers: []string{"Bob"}})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "tr_hash1_1" {
		t.Errorf("speaker filter = %+v, want Bob's chunk only", matches)
	}
}

func TestStoreIntegration_QueryByFilterAdjacency(t *testing.T) {
	store, _, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Upsert(ctx, integrationDocs("ws-1")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	matches, err := store.QueryByFilter(ctx, "ws-1", &rag.Filter{
		FileHash: "hash1", ChunkIndexes: []int{0, 1},
	}, 10)
	if err != nil {
		t.Fatalf("QueryByFilter() error = %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("QueryByFilter() returned %d matches, want 2", len(matches))
	}
	// Chunk-order ascending for adjacency fetches.
	if matches[0].Metadata.ChunkIndex != 0 || matches[1].Metadata.ChunkIndex != 1 {
		t.Errorf("chunk order = %d, %d, want 0, 1",
			matches[0].Metadata.ChunkIndex, matches[1].Metadata.ChunkIndex)
	}
	if matches[0].Score != 0 {
		t.Errorf("filter-only match score = %v, want 0", matches[0].Score)
	}
}

func TestStoreIntegration_ReindexReplacesSource(t *testing.T) {
	store, _, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	if err := store.Upsert(ctx, integrationDocs("ws-1")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := store.DeleteBySource(ctx, "ws-1", "hash1"); err != nil {
		t.Fatalf("DeleteBySource() error = %v", err)
	}

	matches, err := store.Query(ctx, "ws-1", "anything", 10, 0, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 || matches[0].ID != "doc_spec_0" {
		t.Errorf("after delete, matches = %+v, want the design doc only", matches)
	}
}

func TestStoreIntegration_UpsertOverwrites(t *testing.T) {
	store, _, cleanup := setupIntegrationStore(t)
	defer cleanup()
	ctx := context.Background()

	docs := integrationDocs("ws-1")[:1]
	if err := store.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	docs[0].Content = "updated content for the same chunk id"
	if err := store.Upsert(ctx, docs); err != nil {
		t.Fatalf("Upsert() overwrite error = %v", err)
	}

	matches, err := store.Query(ctx, "ws-1", "anything", 10, 0, nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("Query() returned %d matches, want 1 after overwrite", len(matches))
	}
	if matches[0].Content != "updated content for the same chunk id" {
		t.Errorf("content = %q, want overwritten value", matches[0].Content)
	}
}
