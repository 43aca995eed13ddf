package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quorumhq/quorum/internal/app"
	"github.com/quorumhq/quorum/internal/config"
	"github.com/quorumhq/quorum/internal/rag"
)

func newQueryCmd() *cobra.Command {
	var (
		namespace string
		topK      int
		rerank    string
		expand    bool
		speakers  []string
		topics    []string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Query a workspace's indexed transcripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := rag.QueryRequest{
				Query:         args[0],
				Namespace:     namespace,
				RerankMethod:  rerank,
				TopK:          topK,
				ExpandContext: expand,
			}
			if len(speakers) > 0 || len(topics) > 0 {
				req.Filter = &rag.QueryFilter{Speakers: speakers, Topics: topics}
			}
			return runQuery(req, asJSON)
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "workspace namespace (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of results (default: config top_k)")
	cmd.Flags().StringVar(&rerank, "rerank", "", "rerank method: llm, voyage, or none")
	cmd.Flags().BoolVar(&expand, "expand", false, "expand results with adjacent transcript chunks")
	cmd.Flags().StringSliceVar(&speakers, "speakers", nil, "filter by speaker names")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "filter by topic labels")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	_ = cmd.MarkFlagRequired("namespace")

	return cmd
}

func runQuery(req rag.QueryRequest, asJSON bool) error {
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

	resp := a.Engine.Query(ctx, req)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if !resp.Success {
		return fmt.Errorf("query failed: %s", resp.Error)
	}

	fmt.Println(resp.Content)
	fmt.Printf("\n%d matches, reranked with %s, in %s\n",
		len(resp.Matches), resp.Metadata.RerankMethod, resp.Duration)
	return nil
}
