// Package rerank reorders, filters, and deduplicates vector-search
// candidates using a more accurate relevance model.
//
// Two interchangeable strategies implement the Strategy interface: an
// LLM-based semantic reranker with deduplication and topic grouping, and a
// cross-encoder reranker (Voyage). Chain combines strategies into an
// explicit fallback sequence; the strategies are mutually exclusive per
// request, the next one runs only after the previous fails.
package rerank

import (
	"context"
	"errors"
	"fmt"

	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/rag"
)

// Strategy reorders and filters candidate matches for a query.
// Implementations must not mutate the input slice.
type Strategy interface {
	// Name returns the method identifier reported in results.
	Name() string

	// Rerank returns at most topK reranked matches (topK <= 0 means no cap).
	Rerank(ctx context.Context, query string, matches []rag.QueryMatch, topK int) (*rag.RerankResult, error)
}

// Chain tries strategies in order and returns the first success. It
// implements rag.Reranker.
type Chain struct {
	strategies []Strategy
	logger     log.Logger
}

// NewChain creates a fallback chain over the given strategies.
func NewChain(logger log.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Chain{strategies: strategies, logger: logger}
}

// Rerank runs the chain. Each strategy is attempted only after the previous
// one failed. When every strategy fails the combined error wraps
// rag.ErrRerank.
func (c *Chain) Rerank(ctx context.Context, query string, matches []rag.QueryMatch, topK int) (*rag.RerankResult, error) {
	if len(matches) == 0 {
		return &rag.RerankResult{Matches: []rag.QueryMatch{}, Method: rag.RerankMethodNone}, nil
	}

	var errs []error
	for _, s := range c.strategies {
		res, err := s.Rerank(ctx, query, matches, topK)
		if err == nil {
			return res, nil
		}
		c.logger.Warn("rerank strategy failed, trying next",
			"method", s.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no strategies configured", rag.ErrRerank)
	}
	return nil, fmt.Errorf("%w: %w", rag.ErrRerank, errors.Join(errs...))
}

// clampScore bounds a model-reported score to [0, 1].
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
