package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/textlib/internal/annotate"
	"github.com/TobiSchelling/textlib/internal/config"
	"github.com/TobiSchelling/textlib/internal/database"
	"github.com/TobiSchelling/textlib/internal/feed"
	"github.com/TobiSchelling/textlib/internal/index"
	"github.com/TobiSchelling/textlib/internal/ingest"
	"github.com/TobiSchelling/textlib/internal/metrics"
	"github.com/TobiSchelling/textlib/internal/pgstore"
	"github.com/TobiSchelling/textlib/internal/server"
	"github.com/TobiSchelling/textlib/internal/source"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "textlib",
	Short:   "Annotated text library",
	Long:    "textlib ingests annotated spreadsheets and feeds into a searchable library of articles and comments.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(importFeedCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(rowsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("textlib", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/textlib/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure storage, feeds and API credentials.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show library status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ix, store, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer ix.Close()
		defer store.Close()

		stats, err := store.GetStats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}
		articles, err := ix.AllArticles(ctx)
		if err != nil {
			return fmt.Errorf("reading index: %w", err)
		}
		authors, err := ix.Authors(ctx)
		if err != nil {
			return fmt.Errorf("reading index: %w", err)
		}

		fmt.Printf("Relational store: %s\n", cfg.Relational.Driver)
		fmt.Printf("Index: %s\n\n", cfg.IndexPath())
		fmt.Println("Index:")
		fmt.Printf("  Articles: %d\n", len(articles))
		fmt.Printf("  Authors: %d\n", len(authors))
		fmt.Println("\nRows:")
		fmt.Printf("  Articles: %d\n", stats.Articles)
		fmt.Printf("  Rows: %d\n", stats.Rows)
		fmt.Printf("  Comments: %d\n", stats.Comments)
		fmt.Printf("  Ingest runs: %d\n", stats.IngestRuns)
		if last := stats.LastIngest; last != nil {
			created := ""
			if last.CreatedAt != nil {
				created = *last.CreatedAt
			}
			fmt.Printf("\nLast ingest: %q (%s) %d rows, %d comments, %d skipped\n",
				last.Title, created, last.RowCount, last.CommentCount, last.SkippedCount)
		}
		return nil
	},
}

// --- ingest command ---

var (
	ingestTitle       string
	ingestAuthor      string
	ingestTags        string
	ingestDescription string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <location>",
	Short: "Ingest an annotated spreadsheet from a path, URL or s3://bucket/key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		fetcher := source.NewFetcher(cfg.Sources.HTTPTimeout, source.S3Options{
			Region:   cfg.Sources.S3.Region,
			Endpoint: cfg.Sources.S3.Endpoint,
		})
		name, data, err := fetcher.Fetch(ctx, args[0])
		if err != nil {
			return err
		}

		ix, store, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer ix.Close()
		defer store.Close()

		var bar *progressbar.ProgressBar
		runner := ingest.NewRunner(ix, store, nil, ingest.Options{
			CommentAuthor: cfg.Ingest.CommentAuthor,
			Debug:         cfg.Debug(),
			Progress: func(done, total int) {
				if bar == nil {
					bar = newProgressBar(total, "Indexing comments")
				}
				_ = bar.Set(done)
			},
		})

		title := ingestTitle
		if title == "" {
			title = strings.TrimSuffix(name, filepath.Ext(name))
		}
		color.Blue("Ingesting %s as %q\n", args[0], title)
		res := runner.RunFile(ctx, name, data, ingest.Meta{
			Title:       title,
			Author:      ingestAuthor,
			Tags:        splitTags(ingestTags),
			Description: ingestDescription,
		})
		if bar != nil {
			_ = bar.Finish()
			fmt.Println()
		}

		printSteps(res.Steps)
		if err := res.Err(); err != nil {
			return err
		}

		color.Green("\n✓ Article %s: %d rows, %d words, %d comments\n", res.ArticleID, res.Rows, res.Words, res.Comments)
		printSkips(res)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestTitle, "title", "", "Article title (defaults to the file name)")
	ingestCmd.Flags().StringVar(&ingestAuthor, "author", "", "Article author")
	ingestCmd.Flags().StringVar(&ingestTags, "tags", "", "Comma-separated tags")
	ingestCmd.Flags().StringVar(&ingestDescription, "description", "", "Article description")
}

// --- import-feed command ---

var importFeedCmd = &cobra.Command{
	Use:   "import-feed [url...]",
	Short: "Import articles from RSS/Atom feeds (configured feeds when no URL is given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var feeds []feed.Feed
		for _, u := range args {
			feeds = append(feeds, feed.Feed{URL: u})
		}
		if len(feeds) == 0 {
			for _, f := range cfg.Sources.Feeds {
				feeds = append(feeds, feed.Feed{URL: f.URL, Name: f.Name})
			}
		}
		if len(feeds) == 0 {
			return fmt.Errorf("no feeds given and none configured")
		}

		ix, store, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer ix.Close()
		defer store.Close()

		runner := ingest.NewRunner(ix, store, nil, ingest.Options{
			CommentAuthor: cfg.Ingest.CommentAuthor,
			Debug:         cfg.Debug(),
		})
		importer := feed.NewImporter(runner, feed.Options{
			Timeout:           cfg.Sources.HTTPTimeout,
			RequestsPerSecond: cfg.Sources.FeedRequestsPerSecond,
		})

		color.Blue("Importing from %d feed(s)...\n", len(feeds))
		result := importer.Import(ctx, feeds)

		color.Green("\n✓ Imported %d of %d items from %d feed(s)\n", result.Imported, result.Items, result.Feeds)
		if result.Failed > 0 {
			color.Yellow("  %d items failed\n", result.Failed)
		}

		if len(result.Sources) > 0 {
			fmt.Println("\nArticles by source:")
			type kv struct {
				key string
				val int
			}
			var sorted []kv
			for k, v := range result.Sources {
				sorted = append(sorted, kv{k, v})
			}
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].val > sorted[j].val })
			for _, s := range sorted {
				fmt.Printf("  %s: %d\n", s.key, s.val)
			}
		}
		return nil
	},
}

// --- search command ---

var (
	searchComments bool
	searchSize     int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over articles or comments",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ix, err := index.Open(cfg.IndexPath())
		if err != nil {
			return err
		}
		defer ix.Close()

		query := strings.Join(args, " ")
		if searchComments {
			comments, err := ix.SearchComments(ctx, query, 0, searchSize)
			if err != nil {
				return err
			}
			if len(comments) == 0 {
				fmt.Println("No comments found.")
				return nil
			}
			for _, c := range comments {
				color.Cyan("%s", c.ID)
				fmt.Printf("  article %s, words %d-%d, by %s on %s\n", c.ArticleID, c.StartIndex, c.EndIndex, c.Author, c.Date)
				fmt.Printf("  %s\n", truncate(c.Content, 100))
			}
			return nil
		}

		articles, err := ix.SearchArticles(ctx, query, 0, searchSize)
		if err != nil {
			return err
		}
		if len(articles) == 0 {
			fmt.Println("No articles found.")
			return nil
		}
		for _, a := range articles {
			color.Cyan("%s  %s", a.ID, a.Title)
			fmt.Printf("  by %s on %s, %d words\n", a.Author, a.Date, len(a.ContentIndexes))
			fmt.Printf("  %s\n", truncate(strings.TrimSpace(a.Content), 100))
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&searchComments, "comments", false, "Search comments instead of articles")
	searchCmd.Flags().IntVarP(&searchSize, "size", "n", 10, "Maximum number of results")
}

// --- rows command ---

var (
	rowsFrom int
	rowsNum  int
)

var rowsCmd = &cobra.Command{
	Use:   "rows <article-id>",
	Short: "Print the rows of an article with their comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openRowStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		rows, err := store.GetArticleRows(ctx, args[0], rowsFrom, rowsNum)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("No rows found.")
			return nil
		}
		comments, err := store.GetArticleComments(ctx, args[0])
		if err != nil {
			return err
		}
		byRow := make(map[int][]database.CommentRow)
		for _, c := range comments {
			if c.RowNumberInArticle != nil {
				byRow[*c.RowNumberInArticle] = append(byRow[*c.RowNumberInArticle], c)
			}
		}

		color.Cyan("%s\n", rows[0].Title)
		for _, r := range rows {
			fmt.Printf("%4d  %s\n", r.RowNumberToDisplay, r.RowContent)
			for _, c := range byRow[r.RowNumberToDisplay] {
				color.Yellow("        [%d-%d] %s\n", c.StartIndex, c.EndIndex, c.Content)
			}
		}
		return nil
	},
}

func init() {
	rowsCmd.Flags().IntVar(&rowsFrom, "from", 0, "Skip rows up to and including this row number")
	rowsCmd.Flags().IntVar(&rowsNum, "num", 0, "Number of rows to print (0 for all)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ix, store, err := openStores(ctx)
		if err != nil {
			return err
		}
		defer ix.Close()
		defer store.Close()

		m := metrics.New(prometheus.DefaultRegisterer)
		runner := ingest.NewRunner(ix, store, m, ingest.Options{
			CommentAuthor: cfg.Ingest.CommentAuthor,
			Debug:         cfg.Debug(),
		})

		opts := server.Options{}
		if user := cfg.Server.BasicAuth.User; user != "" {
			opts.BasicAuthUser = user
			opts.BasicAuthPassword = cfg.BasicAuthPassword()
			if opts.BasicAuthPassword == "" {
				return fmt.Errorf("basic auth user is set but %s is empty", cfg.Server.BasicAuth.PasswordEnv)
			}
		}
		srv := server.New(ix, store, runner, m, opts)

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}
		fmt.Printf("Starting server at http://%s:%d\n", cfg.Server.Host, port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(srv, cfg.Server.Host, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (overrides config)")
}

// rowStore is the relational store shared by the commands.
type rowStore interface {
	ingest.RowStore
	server.RowStore
	GetStats(ctx context.Context) (*database.Stats, error)
	Close() error
}

func openRowStore(ctx context.Context) (rowStore, error) {
	if cfg.Relational.Driver == config.DriverPostgres {
		url, err := cfg.PostgresURL()
		if err != nil {
			return nil, err
		}
		return pgstore.Open(ctx, url)
	}
	return database.Open(cfg.SQLitePath())
}

func openStores(ctx context.Context) (*index.Index, rowStore, error) {
	ix, err := index.Open(cfg.IndexPath())
	if err != nil {
		return nil, nil, err
	}
	store, err := openRowStore(ctx)
	if err != nil {
		ix.Close()
		return nil, nil, err
	}
	return ix, store, nil
}

func printSteps(steps []ingest.StepResult) {
	for i, step := range steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(steps), step.Name)
		if step.Err != nil {
			color.Red("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

func printSkips(res *ingest.Result) {
	counts := res.Report.SkipCounts()
	if len(counts) > 0 {
		reasons := make([]annotate.SkipReason, 0, len(counts))
		for reason := range counts {
			reasons = append(reasons, reason)
		}
		sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
		color.Yellow("Skipped annotations:\n")
		for _, r := range reasons {
			fmt.Printf("  %s: %d\n", r, counts[r])
		}
	}
	if res.CommentFailures > 0 {
		color.Red("%d comments could not be indexed\n", res.CommentFailures)
	}
}

func newProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("comments"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func splitTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
