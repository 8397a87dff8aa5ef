package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/reviewloop/internal/knowledge"
)

// QueryCommand returns the query command, a diagnostic front door to the
// vector store.
func QueryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "Query the knowledge base",
		ArgsUsage: "QUERY_TEXT",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "collection",
				Aliases: []string{"C"},
				Usage:   "Collection to search",
				Value:   knowledge.CollectionBestPractices,
			},
			&cli.IntFlag{
				Name:    "k",
				Usage:   "Number of results",
				Value:   5,
			},
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "Metadata filter as key=value, repeatable",
			},
		},
		Action: runQuery,
	}
}

func runQuery(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("missing required argument: query text")
	}
	query := strings.Join(c.Args().Slice(), " ")

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

	filters := make(map[string]string)
	for _, pair := range c.StringSlice("filter") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		filters[key] = value
	}

	retriever := knowledge.NewRetriever(store, cfg.Knowledge.RetrievalK)
	hits := retriever.Retrieve(c.Context, query, c.String("collection"), c.Int("k"), filters)
	if len(hits) == 0 {
		fmt.Println("no matches")
		return nil
	}

	for i, hit := range hits {
		fmt.Printf("[%d] relevance=%.3f source=%s\n", i+1, hit.Relevance, hit.Metadata["source"])
		fmt.Println(indent(hit.Content, "    "))
	}
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
