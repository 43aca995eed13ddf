package rag

import "errors"

// Sentinel errors for the query engine. Wrap with
// fmt.Errorf("%w: ...", Err...) and check with errors.Is.
var (
	// ErrVectorStore indicates a query or write failure against the vector
	// backend. Surfaced to the caller as a failed QueryResponse.
	ErrVectorStore = errors.New("vector store error")

	// ErrRerank indicates every rerank strategy in the chain failed.
	ErrRerank = errors.New("rerank error")

	// ErrValidation indicates malformed query input.
	ErrValidation = errors.New("validation error")
)
