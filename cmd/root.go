// Package cmd implements the quorum command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the quorum command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quorum",
		Short: "Workspace transcript search service",
		Long: `Quorum indexes workspace meeting transcripts and documents into a
pgvector-backed store and answers natural-language queries over them
with semantic search, reranking, and cited context blocks.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newIndexCmd(),
		newQueryCmd(),
		newVersionCmd(),
	)

	return root
}
