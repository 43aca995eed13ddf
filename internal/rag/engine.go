package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quorumhq/quorum/internal/log"
)

// Engine defaults.
const (
	// DefaultTopK is the number of matches returned when the request does
	// not specify one.
	DefaultTopK = 10

	// OverfetchFactor widens the initial vector fetch so the reranker sees
	// a larger candidate pool than the caller asked for.
	OverfetchFactor = 3

	// queryRetryDelay is the pause before the single vector-query retry.
	queryRetryDelay = 200 * time.Millisecond
)

// ResultCache caches complete query responses keyed by request. Implemented
// by cache.Memory and cache.Redis; the interface is defined here, by the
// consumer.
type ResultCache interface {
	Get(ctx context.Context, key string) (*QueryResponse, bool)
	Set(ctx context.Context, key string, resp *QueryResponse)
}

// EngineConfig assembles an Engine's collaborators. Store is required;
// everything else degrades gracefully when absent.
type EngineConfig struct {
	Store VectorStore

	// Rerankers maps a requested method ("llm", "voyage") to the reranker
	// that serves it. Typically "llm" maps to a Chain falling back to the
	// cross-encoder, and "voyage" to the cross-encoder alone.
	Rerankers map[string]Reranker

	// DefaultRerank selects the reranker for requests that name none.
	DefaultRerank string

	// Cache is optional; nil disables result caching.
	Cache ResultCache

	Logger log.Logger

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time

	// TopK overrides DefaultTopK when positive.
	TopK int
}

// Engine runs the query pipeline. All collaborators are injected at
// construction; Engine itself holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	store         VectorStore
	rerankers     map[string]Reranker
	defaultRerank string
	cache         ResultCache
	logger        log.Logger
	clock         func() time.Time
	topK          int
}

// NewEngine creates a query engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrValidation)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.DefaultRerank == "" {
		cfg.DefaultRerank = RerankMethodLLM
	}

	return &Engine{
		store:         cfg.Store,
		rerankers:     cfg.Rerankers,
		defaultRerank: cfg.DefaultRerank,
		cache:         cfg.Cache,
		logger:        cfg.Logger,
		clock:         cfg.Clock,
		topK:          cfg.TopK,
	}, nil
}

// Query executes the full pipeline for one request. It never returns a Go
// error: failures produce a QueryResponse with Success=false, the reason in
// Error, and the original query text preserved.
func (e *Engine) Query(ctx context.Context, req QueryRequest) *QueryResponse {
	start := e.clock()

	if req.Query == "" {
		return e.fail(req, start, fmt.Errorf("%w: query text is required", ErrValidation))
	}
	if req.Namespace == "" {
		return e.fail(req, start, fmt.Errorf("%w: namespace is required", ErrValidation))
	}

	key := cacheKey(req)
	if e.cache != nil {
		if cached, ok := e.cache.Get(ctx, key); ok {
			e.logger.Debug("cache hit", "namespace", req.Namespace)
			return cached
		}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = e.topK
	}

	filter := BuildFilter(req.ContentType, req.Filter)
	matches, err := e.queryWithRetry(ctx, req.Namespace, req.Query, topK*OverfetchFactor, req.MinScore, filter)
	if err != nil {
		return e.fail(req, start, fmt.Errorf("%w: %w", ErrVectorStore, err))
	}

	matches, groups, method := e.rerank(ctx, req, matches, topK)

	if req.ExpandContext {
		matches = ExpandContext(ctx, e.store, req.Namespace, matches, e.logger)
	}

	resp := &QueryResponse{
		Success:   true,
		Matches:   matches,
		Content:   FormatMatches(matches, groups),
		Namespace: req.Namespace,
		Duration:  e.clock().Sub(start),
		Metadata: ResponseMetadata{
			RerankMethod: method,
			TopicGroups:  groups,
			TopicCount:   len(groups),
		},
	}

	if e.cache != nil {
		e.cache.Set(ctx, key, resp)
	}

	e.logger.Debug("query completed",
		"namespace", req.Namespace,
		"matches", len(resp.Matches),
		"rerank", method,
		"duration", resp.Duration)
	return resp
}

// queryWithRetry runs the vector query with one bounded retry. Transient
// backend hiccups are common enough that a single short-delay retry pays
// for itself; anything beyond that is the caller's problem.
func (e *Engine) queryWithRetry(ctx context.Context, namespace, query string, fetchK int, minScore float64, filter *Filter) ([]QueryMatch, error) {
	matches, err := e.store.Query(ctx, namespace, query, fetchK, minScore, filter)
	if err == nil {
		return matches, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	e.logger.Warn("vector query failed, retrying once", "error", err)
	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(queryRetryDelay):
	}
	return e.store.Query(ctx, namespace, query, fetchK, minScore, filter)
}

// rerank applies the requested strategy and degrades to the raw vector
// ordering (method "none") when no reranker is configured or every
// strategy failed.
func (e *Engine) rerank(ctx context.Context, req QueryRequest, matches []QueryMatch, topK int) ([]QueryMatch, []TopicGroup, string) {
	method := req.RerankMethod
	if method == "" {
		method = e.defaultRerank
	}

	reranker := e.rerankers[method]
	if reranker == nil {
		if len(matches) > topK {
			matches = matches[:topK]
		}
		return matches, nil, RerankMethodNone
	}

	res, err := reranker.Rerank(ctx, req.Query, matches, topK)
	if err != nil {
		e.logger.Error("all rerank strategies failed, returning raw ranking",
			"method", method, "error", err)
		if len(matches) > topK {
			matches = matches[:topK]
		}
		return matches, nil, RerankMethodNone
	}
	return res.Matches, res.TopicGroups, res.Method
}

// fail builds the structured error response.
func (e *Engine) fail(req QueryRequest, start time.Time, err error) *QueryResponse {
	e.logger.Error("query failed", "namespace", req.Namespace, "error", err)
	return &QueryResponse{
		Success:   false,
		Namespace: req.Namespace,
		Duration:  e.clock().Sub(start),
		Query:     req.Query,
		Error:     err.Error(),
	}
}

// cacheKey derives a deterministic key from every request parameter that
// affects the result.
func cacheKey(req QueryRequest) string {
	payload, _ := json.Marshal(struct {
		Query         string       `json:"q"`
		Namespace     string       `json:"ns"`
		ContentType   string       `json:"ct"`
		Filter        *QueryFilter `json:"f,omitempty"`
		RerankMethod  string       `json:"rm"`
		TopK          int          `json:"k"`
		MinScore      float64      `json:"ms"`
		ExpandContext bool         `json:"ec"`
	}{
		Query:         req.Query,
		Namespace:     req.Namespace,
		ContentType:   req.ContentType,
		Filter:        req.Filter,
		RerankMethod:  req.RerankMethod,
		TopK:          req.TopK,
		MinScore:      req.MinScore,
		ExpandContext: req.ExpandContext,
	})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
