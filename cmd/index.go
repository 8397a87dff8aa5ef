package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/reviewloop/internal/knowledge"
)

// IndexCommand returns the index command, which (re)builds the persisted
// knowledge base from the markdown tree.
func IndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Index the knowledge base into the vector store",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "Drop existing collections before indexing",
			},
		},
		Action: runIndex,
	}
}

func runIndex(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	embedder, err := knowledge.NewOpenAIEmbedder(knowledge.EmbedderConfig{
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
		BaseURL: cfg.Embedding.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	store, err := knowledge.OpenStore(cfg.Knowledge.PersistDir, embedder)
	if err != nil {
		return fmt.Errorf("open knowledge store: %w", err)
	}
	defer store.Close()

	indexer := knowledge.NewIndexer(store, cfg.Knowledge.BaseDir, cfg.Knowledge.ChunkSize)
	if c.Bool("reset") {
		err = indexer.ResetAndReindex(c.Context)
	} else {
		err = indexer.IndexAll(c.Context)
	}
	if err != nil {
		return err
	}

	for _, collection := range knowledge.Collections {
		count, err := store.Count(c.Context, collection)
		if err != nil {
			return err
		}
		fmt.Printf("%-18s %d documents\n", collection, count)
	}
	return nil
}
