// Ragd is a retrieval-augmented generation daemon.
//
// It indexes documents into a vector store and answers questions over HTTP,
// grounding each answer in the most similar indexed chunks. Completion
// backends (Ollama, OpenAI, Anthropic) are switchable at runtime.
//
// Usage:
//
//	# Start the server
//	ragd serve
//
//	# Index a directory of documents
//	ragd ingest --dir ./docs
//
//	# Index rows from the configured Postgres table
//	ragd ingest --from-db
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the --config persistent flag value.
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ragd",
	Short: "Retrieval-augmented generation daemon",
	Long: `ragd indexes documents into a vector store and answers questions
grounded in the most similar indexed chunks.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
}
