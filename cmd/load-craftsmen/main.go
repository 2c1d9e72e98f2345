package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"harfy-backend/config"
	"harfy-backend/directory"
	"harfy-backend/entities"
	"harfy-backend/repository"
	"harfy-backend/service"
	"harfy-backend/storage"
)

var (
	clearFirst bool
	crafts     []string
	replay     bool
	rps        float64
	embedRPS   float64
)

var rootCmd = &cobra.Command{
	Use:   "load-craftsmen",
	Short: "Load craftsmen from the directory into the vector store",
	Long: `Pages through the craftsman directory for every craft, archives each raw
page to snapshot storage, embeds the craftsman keywords and upserts the
vectors. With --replay the archived pages are used instead of the directory.`,
	SilenceUsage: true,
	RunE:         runLoad,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print vector store statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.Flags().BoolVar(&clearFirst, "clear", false, "remove every stored vector before loading")
	rootCmd.Flags().StringSliceVar(&crafts, "crafts", nil, "crafts to load (default: every craft in the vocabulary)")
	rootCmd.Flags().BoolVar(&replay, "replay", false, "load archived pages instead of calling the directory")
	rootCmd.Flags().Float64Var(&rps, "rps", 2, "directory requests per second (0 disables throttling)")
	rootCmd.Flags().Float64Var(&embedRPS, "embed-rps", 10, "embedding requests per second (0 disables throttling)")
	rootCmd.AddCommand(statsCmd)
}

func main() {
	config.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal(err)
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !replay && cfg.CraftsmenAPIURL == "" {
		return fmt.Errorf("CRAFTSMEN_API_URL is required unless --replay is set")
	}

	store, closeStore, err := repository.OpenVectorStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer closeStore()

	archive, err := storage.NewStorageFromEnv()
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	targets, err := resolveCrafts(crafts)
	if err != nil {
		return err
	}

	if clearFirst {
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear vector store: %w", err)
		}
		cmd.Println("Vector store cleared.")
	}

	loader := directory.NewLoader(
		directory.LoaderWithSource(directory.NewClient(cfg.CraftsmenAPIURL, cfg.CraftsmenAPIToken, directory.WithRateLimit(rps, 1))),
		directory.LoaderWithArchive(archive),
		directory.LoaderWithEmbedder(service.NewEmbedderFromConfig(cfg)),
		directory.LoaderWithStore(store),
		directory.LoaderWithReplay(replay),
		directory.LoaderWithEmbedRate(embedRPS),
	)

	cmd.Printf("Loading %d crafts: %s\n", len(targets), strings.Join(targets, ", "))
	total, err := loader.Load(ctx, targets)
	if err != nil {
		return fmt.Errorf("load interrupted: %w", err)
	}

	cmd.Printf("\n✅ Load complete: %d pages, %d craftsmen loaded, %d skipped, %d failed\n",
		total.Pages, total.Loaded, total.Skipped, total.Failed)
	return printStats(cmd, store)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, closeStore, err := repository.OpenVectorStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	defer closeStore()

	return printStats(cmd, store)
}

func printStats(cmd *cobra.Command, store repository.VectorStore) error {
	stats, err := store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	cmd.Printf("   Vectors: %d\n", stats.Count)
	cmd.Printf("   Dimension: %d\n", stats.Dimension)
	return nil
}

// resolveCrafts returns the requested crafts mapped to their canonical
// names, or the whole vocabulary when none were requested.
func resolveCrafts(requested []string) ([]string, error) {
	g, err := entities.DefaultGazetteer()
	if err != nil {
		return nil, fmt.Errorf("failed to load gazetteer: %w", err)
	}
	if len(requested) == 0 {
		return g.CraftNames(), nil
	}

	extractor, err := entities.NewExtractor(g)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range requested {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if ents := extractor.Extract(r); ents.Craft != "" {
			out = append(out, ents.Craft)
			continue
		}
		log.Printf("Warning: %q is not in the craft vocabulary, loading it as given", r)
		out = append(out, r)
	}
	return out, nil
}
