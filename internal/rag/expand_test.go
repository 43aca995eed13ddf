package rag

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/quorumhq/quorum/internal/log"
)

func chunkMatch(id, fileHash string, chunkIndex, totalChunks int, score float64) QueryMatch {
	return QueryMatch{
		ID:    id,
		Score: score,
		Metadata: Metadata{
			Source:      "meeting.txt",
			Type:        TypeTranscript,
			FileHash:    fileHash,
			ChunkIndex:  chunkIndex,
			TotalChunks: totalChunks,
		},
	}
}

func TestExpandContext_FetchesNeighbors(t *testing.T) {
	match := chunkMatch("tr_a_2", "a", 2, 5, 0.9)
	store := &fakeStore{
		byFilter: func(f *Filter) []QueryMatch {
			if f.FileHash != "a" {
				t.Errorf("filter fileHash = %q, want %q", f.FileHash, "a")
			}
			return []QueryMatch{
				chunkMatch("tr_a_1", "a", 1, 5, 0),
				chunkMatch("tr_a_3", "a", 3, 5, 0),
			}
		},
	}

	got := ExpandContext(context.Background(), store, "ws-1", []QueryMatch{match}, log.NewNop())

	if len(got) != 3 {
		t.Fatalf("ExpandContext() returned %d matches, want 3", len(got))
	}
	// Same source group: ordered by chunk index.
	wantOrder := []string{"tr_a_1", "tr_a_2", "tr_a_3"}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("match[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestExpandContext_NeighborScorePenalty(t *testing.T) {
	match := chunkMatch("tr_a_1", "a", 1, 3, 0.8)
	store := &fakeStore{
		byFilter: func(*Filter) []QueryMatch {
			return []QueryMatch{chunkMatch("tr_a_0", "a", 0, 3, 0)}
		},
	}

	got := ExpandContext(context.Background(), store, "ws-1", []QueryMatch{match}, log.NewNop())

	var neighbor *QueryMatch
	for i := range got {
		if got[i].ID == "tr_a_0" {
			neighbor = &got[i]
		}
	}
	if neighbor == nil {
		t.Fatal("neighbor tr_a_0 missing from expanded result")
	}
	if want := 0.8 * adjacentScorePenalty; math.Abs(neighbor.Score-want) > 1e-9 {
		t.Errorf("neighbor score = %v, want %v", neighbor.Score, want)
	}
}

func TestExpandContext_DeduplicatesAgainstMatches(t *testing.T) {
	a := chunkMatch("tr_a_1", "a", 1, 3, 0.9)
	b := chunkMatch("tr_a_2", "a", 2, 3, 0.7)
	store := &fakeStore{
		byFilter: func(f *Filter) []QueryMatch {
			// Both matches fetch each other as neighbors.
			var out []QueryMatch
			for _, idx := range f.ChunkIndexes {
				out = append(out, chunkMatch("tr_a_"+string(rune('0'+idx)), "a", idx, 3, 0))
			}
			return out
		},
	}

	got := ExpandContext(context.Background(), store, "ws-1", []QueryMatch{a, b}, log.NewNop())

	seen := make(map[string]int)
	for _, m := range got {
		seen[m.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Errorf("match %s appears %d times, want 1", id, n)
		}
	}
	// Already-present matches keep their original scores.
	for _, m := range got {
		if m.ID == "tr_a_2" && m.Score != 0.7 {
			t.Errorf("existing match score = %v, want original 0.7", m.Score)
		}
	}
}

func TestExpandContext_GroupOrdering(t *testing.T) {
	weak := chunkMatch("tr_b_0", "b", 0, 2, 0.5)
	strong := chunkMatch("tr_a_1", "a", 1, 2, 0.9)
	store := &fakeStore{
		byFilter: func(f *Filter) []QueryMatch {
			idx := f.ChunkIndexes[0]
			return []QueryMatch{chunkMatch("tr_"+f.FileHash+"_"+string(rune('0'+idx)), f.FileHash, idx, 2, 0)}
		},
	}

	got := ExpandContext(context.Background(), store, "ws-1", []QueryMatch{weak, strong}, log.NewNop())

	if len(got) != 4 {
		t.Fatalf("ExpandContext() returned %d matches, want 4", len(got))
	}
	// Source "a" holds the best score, so its chunks come first in index order.
	wantOrder := []string{"tr_a_0", "tr_a_1", "tr_b_0", "tr_b_1"}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Errorf("match[%d] = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestExpandContext_FetchFailureIsSkipped(t *testing.T) {
	match := chunkMatch("tr_a_1", "a", 1, 3, 0.9)
	store := &fakeStore{filterErr: errors.New("timeout")}

	got := ExpandContext(context.Background(), store, "ws-1", []QueryMatch{match}, log.NewNop())

	if len(got) != 1 || got[0].ID != "tr_a_1" {
		t.Errorf("ExpandContext() = %+v, want original match only", got)
	}
}

func TestExpandContext_SkipsMatchesWithoutPosition(t *testing.T) {
	match := QueryMatch{ID: "doc-1", Score: 0.9, Metadata: Metadata{Type: TypeDocument}}
	store := &fakeStore{
		byFilter: func(*Filter) []QueryMatch {
			t.Error("QueryByFilter called for a match without chunk position")
			return nil
		},
	}

	got := ExpandContext(context.Background(), store, "ws-1", []QueryMatch{match}, log.NewNop())

	if len(got) != 1 {
		t.Errorf("ExpandContext() returned %d matches, want 1", len(got))
	}
}

func TestExpandContext_Empty(t *testing.T) {
	got := ExpandContext(context.Background(), &fakeStore{}, "ws-1", nil, log.NewNop())
	if len(got) != 0 {
		t.Errorf("ExpandContext() = %v, want empty", got)
	}
}
