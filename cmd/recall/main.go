// Package main provides the CLI entry point for recall, the context
// retrieval engine behind the minimee assistant.
//
// # Basic Usage
//
// Ingest a WhatsApp chat export:
//
//	recall ingest --owner user-1 --format whatsapp chat.txt
//
// Search conversation history:
//
//	recall search --owner user-1 "dinner plans with alice"
//
// Show store statistics:
//
//	recall stats
//
// # Environment Variables
//
//   - RECALL_CONFIG: Path to configuration file (default: recall.yaml)
//   - OPENAI_API_KEY: OpenAI API key for embeddings and reranking
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := buildRootCmd()

	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "recall",
		Short: "recall - conversation context retrieval engine",
		Long: `recall ingests WhatsApp and Gmail history, embeds it into a vector
store, and retrieves ranked conversational context for assistant prompts.

Storage backends: SQLite (default), pgvector
Embedding providers: OpenAI, Ollama`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildIngestCmd(),
		buildSearchCmd(),
		buildStatsCmd(),
		buildDeleteCmd(),
	)

	return rootCmd
}

func defaultConfigPath() string {
	if path := os.Getenv("RECALL_CONFIG"); path != "" {
		return path
	}
	return "recall.yaml"
}
