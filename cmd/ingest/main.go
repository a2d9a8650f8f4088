// Command ingest registers textbooks in the library and indexes them into
// Qdrant, either directly or as a NATS worker.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-tutor/engine/config"
)

// globals carries the persistent flags and what PersistentPreRunE builds
// from them.
type globals struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "ingest",
		Short: "Register and index textbooks",
		Long: `Register textbooks in the library and index them into the vector store.

Commands:
  register  Add or update a book from a JSON description
  books     List registered books
  book      Index one book now
  enqueue   Queue books for the ingestion workers
  worker    Consume ingestion jobs from NATS
  chunk     Show how a text file would be chunked`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if g.verbose {
				level = slog.LevelDebug
			}
			g.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(g.logger)

			cfg, err := config.Load(g.configPath)
			if err != nil {
				return err
			}
			g.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default searches ./config.yaml)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRegisterCmd(g),
		newBooksCmd(g),
		newBookCmd(g),
		newEnqueueCmd(g),
		newWorkerCmd(g),
		newChunkCmd(g),
	)
	return root
}
