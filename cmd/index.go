package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quorumhq/quorum/internal/app"
	"github.com/quorumhq/quorum/internal/config"
	"github.com/quorumhq/quorum/internal/rag"
	"github.com/quorumhq/quorum/internal/transcript"
)

func newIndexCmd() *cobra.Command {
	var (
		namespace string
		source    string
		topics    []string
		chunkSize int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "index <transcript.json>",
		Short: "Index a transcript file into a workspace",
		Long: `Index reads a transcript JSON file (an array of {timecode, speaker, text}
turns), chunks it by topic, and writes the chunks into the workspace's
vector store. Re-indexing the same source replaces its previous chunks.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				source = filepath.Base(args[0])
			}
			return runIndex(args[0], rag.IndexRequest{
				Namespace: namespace,
				Source:    source,
				Topics:    topics,
				Options: transcript.Options{
					ChunkSize: chunkSize,
					DryRun:    dryRun,
				},
			})
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "workspace namespace (required)")
	cmd.Flags().StringVar(&source, "source", "", "source document name (default: file name)")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "known topic labels to guide segmentation")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "target turns per chunk for the heuristic splitter")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "skip AI segmentation, use the heuristic splitter")
	_ = cmd.MarkFlagRequired("namespace")

	return cmd
}

func runIndex(path string, req rag.IndexRequest) error {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied path is the point
	if err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}
	if err := json.Unmarshal(data, &req.Items); err != nil {
		return fmt.Errorf("parsing transcript %s: %w", path, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	result, err := a.Indexer.IndexTranscript(ctx, req)
	if err != nil {
		return fmt.Errorf("indexing transcript: %w", err)
	}

	fmt.Printf("Indexed %s into %s\n", result.Source, req.Namespace)
	fmt.Printf("  Chunks:    %d\n", result.Chunks)
	fmt.Printf("  File hash: %s\n", result.FileHash)
	fmt.Printf("  Duration:  %s\n", result.Duration)
	return nil
}
