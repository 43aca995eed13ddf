package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/rag"
)

const (
	// DefaultVoyageEndpoint is the Voyage AI rerank API endpoint.
	DefaultVoyageEndpoint = "https://api.voyageai.com/v1/rerank"

	// DefaultVoyageModel is the cross-encoder model used for reranking.
	DefaultVoyageModel = "rerank-2"

	// voyageScoreThreshold drops matches the cross-encoder judged irrelevant.
	voyageScoreThreshold = 0.33

	// maxRerankDocChars bounds each document sent for scoring. The reranker
	// budget is ~10K tokens per document; 40,000 characters is conservative.
	maxRerankDocChars = 40000

	// voyageTimeout bounds the scoring round-trip.
	voyageTimeout = 30 * time.Second

	// voyageMaxResponseSize caps the response body read (1MB).
	voyageMaxResponseSize = 1 << 20
)

// VoyageReranker scores candidates with the Voyage cross-encoder API.
// Candidate content is truncated for scoring only; surviving matches always
// carry their original, untruncated content.
type VoyageReranker struct {
	client   *http.Client
	endpoint string
	apiKey   string
	model    string
	logger   log.Logger
}

// VoyageConfig configures a VoyageReranker.
type VoyageConfig struct {
	APIKey   string
	Model    string // default: DefaultVoyageModel
	Endpoint string // default: DefaultVoyageEndpoint
	Client   *http.Client
}

// NewVoyage creates a Voyage cross-encoder reranker.
func NewVoyage(cfg VoyageConfig, logger log.Logger) *VoyageReranker {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVoyageModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultVoyageEndpoint
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: voyageTimeout}
	}
	return &VoyageReranker{
		client:   cfg.Client,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		logger:   logger,
	}
}

// Name implements Strategy.
func (r *VoyageReranker) Name() string { return rag.RerankMethodVoyage }

type voyageRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopK      int      `json:"top_k,omitempty"`
}

type voyageResponse struct {
	Data []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"data"`
}

// Rerank implements Strategy.
func (r *VoyageReranker) Rerank(ctx context.Context, query string, matches []rag.QueryMatch, topK int) (*rag.RerankResult, error) {
	if r.apiKey == "" {
		return nil, fmt.Errorf("voyage api key not configured")
	}

	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = truncateForScoring(m.Content)
	}

	reqBody, err := json.Marshal(voyageRequest{
		Query:     query,
		Documents: docs,
		Model:     r.model,
		TopK:      topK,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, voyageMaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		detail := string(body)
		if len(detail) > 512 {
			detail = detail[:512]
		}
		return nil, fmt.Errorf("rerank API returned %d: %s", resp.StatusCode, detail)
	}

	var vr voyageResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	out := make([]rag.QueryMatch, 0, len(vr.Data))
	for _, d := range vr.Data {
		if d.Index < 0 || d.Index >= len(matches) {
			r.logger.Warn("reranker returned out-of-range index, skipping", "index", d.Index)
			continue
		}
		if d.RelevanceScore < voyageScoreThreshold {
			continue
		}
		// Restore the original, untruncated content.
		m := matches[d.Index]
		m.Score = clampScore(d.RelevanceScore)
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}

	return &rag.RerankResult{Matches: out, Method: rag.RerankMethodVoyage}, nil
}

// truncateForScoring bounds content to the reranker's per-document budget.
func truncateForScoring(s string) string {
	if len(s) <= maxRerankDocChars {
		return s
	}
	return s[:maxRerankDocChars]
}
