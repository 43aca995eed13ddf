// Package app wires the application together: configuration, tracing,
// database pool, Genkit, the vector store, rerankers, the result cache,
// and the query engine and indexer built on top of them.
package app

import (
	"context"
	"errors"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quorumhq/quorum/internal/config"
	"github.com/quorumhq/quorum/internal/log"
	"github.com/quorumhq/quorum/internal/rag"
	"github.com/quorumhq/quorum/internal/vectorstore"
)

// App is the application container. Setup fills it in dependency order;
// Close releases everything in reverse.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	Model    ai.Model
	Embedder ai.Embedder

	DBPool *pgxpool.Pool
	Store  *vectorstore.Store

	Engine  *rag.Engine
	Indexer *rag.Indexer

	redisClose   func() error
	otelShutdown func(context.Context) error
}

// Close gracefully releases all resources held by the App. Safe to call
// on a partially initialized App.
func (a *App) Close() error {
	var errs []error

	if a.redisClose != nil {
		if err := a.redisClose(); err != nil {
			errs = append(errs, err)
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
