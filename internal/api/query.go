package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/rag"
)

// maxBodyBytes bounds request bodies; transcripts are chunk lists, not
// raw media, so 8 MB is generous.
const maxBodyBytes = 8 << 20

// QueryService runs retrieval queries. Implemented by *rag.Engine.
type QueryService interface {
	Query(ctx context.Context, req rag.QueryRequest) *rag.QueryResponse
}

// queryHandler serves POST /api/v1/query.
type queryHandler struct {
	engine QueryService
	logger log.Logger
}

func (h *queryHandler) query(w http.ResponseWriter, r *http.Request) {
	var req rag.QueryRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	if req.Query == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "query is required", h.logger)
		return
	}
	if req.Namespace == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "namespace is required", h.logger)
		return
	}

	resp := h.engine.Query(r.Context(), req)
	WriteJSON(w, http.StatusOK, resp, h.logger)
}

// TranscriptIndexer indexes transcripts. Implemented by *rag.Indexer.
type TranscriptIndexer interface {
	IndexTranscript(ctx context.Context, req rag.IndexRequest) (*rag.IndexResult, error)
}

// indexHandler serves POST /api/v1/index.
type indexHandler struct {
	indexer TranscriptIndexer
	logger  log.Logger
}

func (h *indexHandler) index(w http.ResponseWriter, r *http.Request) {
	var req rag.IndexRequest
	if !decodeBody(w, r, &req, h.logger) {
		return
	}

	result, err := h.indexer.IndexTranscript(r.Context(), req)
	if err != nil {
		if errors.Is(err, rag.ErrValidation) {
			WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
			return
		}
		h.logger.Error("indexing failed", "namespace", req.Namespace, "source", req.Source, "error", err)
		WriteError(w, http.StatusInternalServerError, "index_failed", "failed to index transcript", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, result, h.logger)
}

// decodeBody decodes a size-limited JSON body into dst. On failure it
// writes the error response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger log.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", logger)
			return false
		}
		if errors.Is(err, io.EOF) {
			WriteError(w, http.StatusBadRequest, "invalid_request", "request body is required", logger)
			return false
		}
		WriteError(w, http.StatusBadRequest, "invalid_json", "malformed request body: "+err.Error(), logger)
		return false
	}
	return true
}
