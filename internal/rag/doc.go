// Package rag implements the retrieval-augmented generation query engine
// for quorum workspaces.
//
// # Overview
//
// The engine answers a workspace-scoped query in one linear pipeline:
//
//	request
//	   |
//	   +-- result cache lookup (5 minute TTL)
//	   +-- BuildFilter: structured params -> metadata filter
//	   +-- VectorStore.Query: namespaced similarity search, ~3x over-fetch
//	   +-- rerank.Chain: LLM reranker, cross-encoder fallback
//	   +-- ExpandContext (opt-in): adjacent chunk fetch, 0.8 score penalty
//	   +-- FormatMatches: citation-annotated text block
//	   |
//	   v
//	QueryResponse (cached for identical requests)
//
// The write path is separate: Indexer chunks a transcript with
// internal/transcript and upserts one Document per chunk under the owning
// workspace namespace.
//
// # Namespaces
//
// Every query and write is scoped to exactly one namespace, the owning
// workspace identifier. Documents from different namespaces are never
// visible to one another's queries; the VectorStore implementation enforces
// this at the storage layer.
//
// # Failure model
//
// A failed query never panics or returns a Go error past the engine
// boundary: Query always returns a QueryResponse, with Success=false and
// the original query text preserved when the vector store is unreachable.
// Reranker failures degrade through the fallback chain before surfacing.
package rag
