package rag

import (
	"encoding/json"
	"testing"
)

// The first chunk of every source has ChunkIndex 0. Its metadata must
// still carry the chunkIndex key once stored, or the adjacency SQL
// (metadata->>'chunkIndex') can never match it as a neighbor.
func TestMetadata_MarshalKeepsZeroChunkIndex(t *testing.T) {
	m := Metadata{
		Source:      "meeting.txt",
		Type:        TypeTranscript,
		ChunkIndex:  0,
		TotalChunks: 3,
		FileHash:    "abc",
	}

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	v, ok := fields["chunkIndex"]
	if !ok {
		t.Fatalf("chunkIndex key missing from marshaled metadata: %s", raw)
	}
	if string(v) != "0" {
		t.Errorf("chunkIndex = %s, want 0", v)
	}

	var got Metadata
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if !got.HasChunkPosition() {
		t.Error("round-tripped metadata lost its chunk position")
	}
	if got.ChunkIndex != 0 || got.TotalChunks != 3 {
		t.Errorf("position = %d/%d, want 0/3", got.ChunkIndex, got.TotalChunks)
	}
}
