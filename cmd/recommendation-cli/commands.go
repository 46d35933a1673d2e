package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/app"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/keywords"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/lexicon"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/recommend"
)

// keywordsOutput is the JSON shape of the keywords command.
type keywordsOutput struct {
	Name string `json:"name"`
	domain.KeywordSet
	Must     []string `json:"must"`
	Optional []string `json:"optional"`
}

func (c *cli) newKeywordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keywords <product name>",
		Short: "Print the keyword views of a product name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")

			lex, err := lexicon.LoadFiles(c.cfg.Lexicon.KeywordsPath, c.cfg.Lexicon.CategoryPath)
			if err != nil {
				return err
			}
			extractor := keywords.NewExtractor(lex, keywords.Options{
				CoreMax:       c.cfg.Keywords.CoreMax,
				TailMax:       c.cfg.Keywords.TailMax,
				RootsMax:      c.cfg.Keywords.RootsMax,
				NgramMin:      c.cfg.Keywords.NgramMin,
				NgramMax:      c.cfg.Keywords.NgramMax,
				NgramMaxTerms: c.cfg.Keywords.NgramMaxTerms,
			})

			ks, err := extractor.Extract(cmd.Context(), name)
			if err != nil {
				return err
			}
			out := keywordsOutput{
				Name:       name,
				KeywordSet: ks,
				Must:       ks.Must(c.cfg.Keywords.MustMax),
				Optional:   ks.Optional(c.cfg.Keywords.NgramMaxTerms),
			}

			if c.outputJSON {
				return c.ui.JSON(out)
			}
			c.ui.Section("Keywords")
			c.ui.KeyValue("Name", out.Name)
			c.ui.KeyValue("Core", strings.Join(out.Core, ", "))
			c.ui.KeyValue("Tail", strings.Join(out.Tail, ", "))
			c.ui.KeyValue("Roots", strings.Join(out.Roots, ", "))
			c.ui.KeyValue("N-grams", strings.Join(out.Ngrams, ", "))
			c.ui.KeyValue("Must", strings.Join(out.Must, ", "))
			c.ui.KeyValue("Optional", strings.Join(out.Optional, ", "))
			return nil
		},
	}
}

func (c *cli) newRecommendCmd() *cobra.Command {
	var (
		k       int
		name    string
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "recommend [productId]",
		Short: "Recommend mall products for a broadcast product",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && name == "" {
				return fmt.Errorf("a productId argument or --name is required")
			}
			ctx := cmd.Context()

			a, err := c.openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			spin := c.ui.Spinner("Recommending...")
			res, err := c.recommend(ctx, a, args, name, k, refresh)
			spin.Stop()
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.ui.JSON(res)
			}
			c.printResult(res, time.Since(start))
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of recommendations")
	cmd.Flags().StringVar(&name, "name", "", "recommend for a free-text product name instead of an id")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache and recompute")
	return cmd
}

func (c *cli) recommend(ctx context.Context, a *app.App, args []string, name string, k int, refresh bool) (*recommend.Result, error) {
	if name != "" {
		return a.Service.Orchestrator().RecommendName(ctx, name, k)
	}
	id, err := domain.ParseProductID(args[0])
	if err != nil {
		return nil, err
	}
	if refresh {
		return a.Service.Refresh(ctx, id, k)
	}
	return a.Service.Recommend(ctx, id, k)
}

func (c *cli) printResult(res *recommend.Result, elapsed time.Duration) {
	c.ui.Section("Recommendation")
	if res.SourceID != 0 {
		c.ui.KeyValue("Source", res.SourceID)
	}
	if res.SourceName != "" {
		c.ui.KeyValue("Name", res.SourceName)
	}
	c.ui.KeyValue("State", res.State)
	c.ui.KeyValue("Cached", res.Cached)
	c.ui.KeyValue("Elapsed", FormatDuration(elapsed))
	if res.State == recommend.StateFallback {
		c.ui.Warning("Fallback: %s", res.FallbackReason)
	}

	if len(res.Products) == 0 {
		c.ui.Info("No recommendations")
		return
	}

	rows := make([][]string, len(res.Products))
	for i, p := range res.Products {
		distance := "-"
		if p.Distance != nil {
			distance = strconv.FormatFloat(*p.Distance, 'f', 4, 64)
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			p.ID.String(),
			p.Name,
			p.StoreName,
			strconv.Itoa(p.DiscountedPrice),
			strconv.Itoa(p.DiscountRate) + "%",
			distance,
		}
	}
	c.ui.Table([]string{"#", "ID", "Name", "Store", "Price", "Discount", "Distance"}, rows)
}

// warmSummary is the JSON shape of the warm command.
type warmSummary struct {
	Total    int          `json:"total"`
	Done     int          `json:"done"`
	Fallback int          `json:"fallback"`
	Failed   []warmFailed `json:"failed"`
	Duration string       `json:"duration"`
}

type warmFailed struct {
	ID    domain.ProductID `json:"id"`
	Error string           `json:"error"`
}

func (c *cli) newWarmCmd() *cobra.Command {
	var (
		ids      string
		fromFile string
		k        int
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Recompute and cache recommendations for many broadcast products",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var targets []domain.ProductID
			var err error
			switch {
			case ids != "":
				targets, err = parseIDList(ids)
			case fromFile != "":
				targets, err = readIDFile(fromFile)
			default:
				return fmt.Errorf("--ids or --from-file is required")
			}
			if err != nil {
				return err
			}

			a, err := c.openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if workers <= 0 {
				workers = c.cfg.Recommend.WarmWorkers
			}
			warmer := recommend.NewWarmer(a.Service, workers, 0, c.logger)

			start := time.Now()
			multi := c.ui.MultiBar()
			bar := multi.AddBar("warm", int64(len(targets)))
			results, err := warmer.Warm(ctx, targets, k, func(recommend.WarmResult) {
				if bar != nil {
					bar.Increment()
				}
			})
			if bar != nil {
				bar.SetTotal(-1, true)
			}
			multi.Wait()
			if err != nil {
				return err
			}

			summary := warmSummary{Total: len(results), Failed: []warmFailed{}, Duration: FormatDuration(time.Since(start))}
			for _, r := range results {
				switch {
				case r.Err != nil:
					summary.Failed = append(summary.Failed, warmFailed{ID: r.ID, Error: r.Err.Error()})
				case r.State == recommend.StateFallback:
					summary.Fallback++
				default:
					summary.Done++
				}
			}

			if c.outputJSON {
				return c.ui.JSON(summary)
			}
			c.ui.Success("Warmed %d of %d products in %s", summary.Done, summary.Total, summary.Duration)
			if summary.Fallback > 0 {
				c.ui.Warning("%d products fell back and were not cached", summary.Fallback)
			}
			for _, f := range summary.Failed {
				c.ui.Warning("Product %s: %s", f.ID, f.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ids, "ids", "", "comma-separated broadcast product ids")
	cmd.Flags().StringVar(&fromFile, "from-file", "", "file with one product id per line")
	cmd.Flags().IntVarP(&k, "k", "k", 5, "number of recommendations to cache per product")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (default from config)")
	cmd.MarkFlagsMutuallyExclusive("ids", "from-file")
	return cmd
}

func (c *cli) newInvalidateCmd() *cobra.Command {
	var product int64

	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Flush cached recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var target *domain.ProductID
			if cmd.Flags().Changed("product") {
				id := domain.ProductID(product)
				target = &id
			}

			n, err := a.Service.Invalidate(ctx, target)
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.ui.JSON(map[string]int{"deletedCount": n})
			}
			c.ui.Success("Deleted %d cache entries", n)
			return nil
		},
	}

	cmd.Flags().Int64Var(&product, "product", 0, "only flush entries of this broadcast product")
	return cmd
}

func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the catalog schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			applied, err := a.Migrate(ctx)
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.ui.JSON(map[string][]string{"applied": applied})
			}
			for _, name := range applied {
				c.ui.Step("Applied %s", name)
			}
			c.ui.Success("Catalog schema is up to date")
			return nil
		},
	}
}

func (c *cli) newIndexCmd() *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Embed every mall product into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := c.indexCatalog(ctx, a, batch)
			if err != nil {
				return err
			}

			if c.outputJSON {
				return c.ui.JSON(map[string]int{"indexed": n})
			}
			if a.NeedsIndex() {
				c.ui.Warning("The memory vector store is discarded on exit; use the pgvector adapter to persist the index")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batch, "batch", 64, "products embedded per request")
	return cmd
}

func (c *cli) indexCatalog(ctx context.Context, a *app.App, batch int) (int, error) {
	start := time.Now()
	bar := c.ui.ProgressBar("Indexing catalog")
	n, err := a.IndexCatalog(ctx, batch, bar.Set)
	bar.Finish()
	if err != nil {
		return n, fmt.Errorf("index catalog: %w", err)
	}
	c.ui.Success("Indexed %d products in %s", n, FormatDuration(time.Since(start)))
	return n, nil
}

func parseIDList(s string) ([]domain.ProductID, error) {
	var out []domain.ProductID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := domain.ParseProductID(part)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		out = append(out, id)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no product ids given")
	}
	return domain.DedupeIDs(out, 0), nil
}

// readIDFile reads one id per line. Blank lines and lines starting with '#' are skipped.
func readIDFile(path string) ([]domain.ProductID, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	return parseIDList(strings.Join(lines, ","))
}
