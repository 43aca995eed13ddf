package rag

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/quorumhq/quorum/internal/log"
)

// adjacentScorePenalty discounts fetched neighbors relative to the match
// that pulled them in.
const adjacentScorePenalty = 0.8

// expandConcurrency bounds the adjacent-chunk fan-out. The fetches are
// independent read-only lookups scoped by distinct filter keys.
const expandConcurrency = 4

// ExpandContext fetches the chunks immediately before and after each match
// from the same source document, restoring the surrounding narrative.
// Fetched neighbors carry the originating match's score discounted by
// adjacentScorePenalty and are deduplicated against matches already
// present.
//
// Expansion is best-effort: fetch failures are logged and skipped, never
// failing the query. The returned slice is ordered by source group (best
// score first), chunk index ascending within a group, with ungrouped
// matches interleaved by score.
func ExpandContext(ctx context.Context, store VectorStore, namespace string, matches []QueryMatch, logger log.Logger) []QueryMatch {
	if logger == nil {
		logger = log.NewNop()
	}
	if len(matches) == 0 {
		return matches
	}

	adjacent := make([][]QueryMatch, len(matches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(expandConcurrency)

	for i, m := range matches {
		if !m.Metadata.HasChunkPosition() {
			continue
		}
		filter := adjacencyFilter(m.Metadata.FileHash, m.Metadata.ChunkIndex, m.Metadata.TotalChunks)
		if filter == nil {
			continue
		}

		g.Go(func() error {
			found, err := store.QueryByFilter(gctx, namespace, filter, len(filter.ChunkIndexes))
			if err != nil {
				logger.Warn("adjacent chunk fetch failed, skipping",
					"fileHash", m.Metadata.FileHash, "chunkIndex", m.Metadata.ChunkIndex, "error", err)
				return nil
			}
			for j := range found {
				found[j].Score = m.Score * adjacentScorePenalty
			}
			adjacent[i] = found
			return nil
		})
	}
	_ = g.Wait() // goroutines never return errors; Wait only joins them

	seen := make(map[string]struct{}, len(matches))
	merged := make([]QueryMatch, 0, len(matches)*2)
	for _, m := range matches {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, batch := range adjacent {
		for _, m := range batch {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
	}

	orderExpanded(merged)
	return merged
}

// orderExpanded sorts matches by source group: groups ranked by their best
// score descending, chunk index ascending within a group. Matches without a
// file hash form singleton groups ranked by their own score.
func orderExpanded(matches []QueryMatch) {
	groupKey := func(m QueryMatch) string {
		if m.Metadata.FileHash != "" {
			return m.Metadata.FileHash
		}
		return "match:" + m.ID
	}

	best := make(map[string]float64)
	for _, m := range matches {
		key := groupKey(m)
		if s, ok := best[key]; !ok || m.Score > s {
			best[key] = m.Score
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		ki, kj := groupKey(matches[i]), groupKey(matches[j])
		if ki != kj {
			if best[ki] != best[kj] {
				return best[ki] > best[kj]
			}
			return ki < kj
		}
		return matches[i].Metadata.ChunkIndex < matches[j].Metadata.ChunkIndex
	})
}
