package main

import (
	"github.com/spf13/cobra"
)

func buildIngestCmd() *cobra.Command {
	var (
		configPath   string
		owner        string
		conversation string
		format       string
		strategy     string
	)
	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest an exported history file into the store",
		Long: `Parse an exported history file, form conversational blocks, and embed
them into the vector store.

Supported formats: whatsapp (chat export text), gmail (mbox archive).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, configPath, args[0], owner, conversation, format, strategy)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner account ID (required)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Conversation ID (derived from the export when empty)")
	cmd.Flags().StringVar(&format, "format", "whatsapp", "Export format (whatsapp, gmail)")
	cmd.Flags().StringVar(&strategy, "strategy", "fixed", "Chunking strategy (fixed, topic)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func buildSearchCmd() *cobra.Command {
	var (
		configPath   string
		owner        string
		conversation string
		sources      []string
		sender       string
		recipient    string
		language     string
		limit        int
		maxTokens    int
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve ranked conversation context for a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, configPath, args[0], searchFlags{
				owner:        owner,
				conversation: conversation,
				sources:      sources,
				sender:       sender,
				recipient:    recipient,
				language:     language,
				limit:        limit,
				maxTokens:    maxTokens,
				asJSON:       asJSON,
			})
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner account ID (required)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Restrict to one conversation")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "Restrict to sources (whatsapp, gmail, dashboard, minimee)")
	cmd.Flags().StringVar(&sender, "sender", "", "Restrict to a sender")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Restrict to a recipient")
	cmd.Flags().StringVar(&language, "language", "", "Restrict to a language (ISO 639-1)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (0 uses the configured default)")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "Token budget for the assembled context")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print retrieval details as JSON")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func buildStatsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	return cmd
}

func buildDeleteCmd() *cobra.Command {
	var (
		configPath   string
		owner        string
		conversation string
		messageIDs   []string
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a conversation or individual messages",
		Long: `Delete messages and every embedding record tied to them. Records have
no standalone deletion path; they go away with their messages.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, configPath, owner, conversation, messageIDs)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner account ID (required with --conversation)")
	cmd.Flags().StringVar(&conversation, "conversation", "", "Conversation to delete")
	cmd.Flags().StringSliceVar(&messageIDs, "message", nil, "Message IDs to delete")
	return cmd
}
