package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/mediawatch/internal/config"
	"github.com/TobiSchelling/mediawatch/internal/database"
	"github.com/TobiSchelling/mediawatch/internal/logging"
	"github.com/TobiSchelling/mediawatch/internal/match"
	"github.com/TobiSchelling/mediawatch/internal/pipeline"
	"github.com/TobiSchelling/mediawatch/internal/report"
	"github.com/TobiSchelling/mediawatch/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "mediawatch",
	Short:   "Keyword and contact monitoring across news feeds",
	Long:    "mediawatch scans news feeds for a vocabulary of sensitive terms and a roster of contacts, then reports which outlets covered what.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "info"

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			slog.SetDefault(logging.New(levelFor(level)))
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
		if cfg.Logging.Level != "" {
			level = cfg.Logging.Level
		}
		slog.SetDefault(logging.New(levelFor(level)))
		slog.Debug("loaded config", "path", path)
		return nil
	},
}

func levelFor(configured string) string {
	if verbose {
		return "debug"
	}
	return configured
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(vocabCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("mediawatch", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/mediawatch/",
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
		fmt.Println("Edit it to configure feeds, keywords, and the contact roster.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and run history status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		v, err := cfg.LoadVocabulary()
		terms := 0
		if err == nil {
			terms = v.Len()
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Feeds: %d\n", len(cfg.Sources.Feeds))
		fmt.Printf("  Keywords: %d\n", terms)
		if cfg.Roster.Path != "" {
			fmt.Printf("  Roster: %s\n", cfg.Roster.Path)
		} else {
			fmt.Println("  Roster: (none)")
		}
		fmt.Printf("  Window: %d day(s), %s matching\n", cfg.Search.DaysBack, cfg.Search.Strategy)
		fmt.Println("\nRun history:")
		fmt.Printf("  Database: %s\n", db.Path())
		fmt.Printf("  Runs: %d\n", stats.Runs)
		fmt.Printf("  Stored matches: %d\n", stats.MatchResults)
		if stats.LastRunAt != nil {
			fmt.Printf("  Last run: %s (%s)\n", stats.LastRunID, stats.LastRunAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		for i, src := range pipeline.Sources(cfg) {
			fmt.Printf("  %2d. %-20s %s\n", i+1, src.Name, src.URL)
		}
		if napi := cfg.Sources.APIs.NewsAPI; napi.Enabled {
			state := "key missing"
			if os.Getenv(napi.APIKeyEnv) != "" {
				state = "configured"
			}
			fmt.Printf("  NewsAPI: %s (%s)\n", state, napi.APIKeyEnv)
		}
		return nil
	},
}

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "List the monitored keywords",
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := cfg.LoadVocabulary()
		if err != nil {
			return err
		}
		for i, term := range v.Terms() {
			fmt.Printf("  %3d. %s\n", i+1, term)
		}
		fmt.Printf("\n%d keywords, %d distinct\n", v.Len(), v.UniqueLen())

		if dups := v.Duplicates(); len(dups) > 0 {
			fmt.Println("\nDuplicates (counted once per article):")
			for _, d := range dups {
				pos := make([]string, len(d.Positions))
				for i, p := range d.Positions {
					pos[i] = fmt.Sprint(p + 1)
				}
				fmt.Printf("  %s at %s\n", d.Term, strings.Join(pos, ", "))
			}
		}
		return nil
	},
}

// --- run command ---

var (
	daysBack    int
	maxEntities int
	rosterPath  string
	strategy    string
	outDir      string
	formats     []string
	noStore     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a search: load -> collect -> match -> store -> report",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("days-back") {
			cfg.Search.DaysBack = daysBack
		}
		if flags.Changed("max-entities") {
			cfg.Search.MaxEntities = maxEntities
		}
		if flags.Changed("roster") {
			cfg.Roster.Path = rosterPath
		}
		if flags.Changed("strategy") {
			cfg.Search.Strategy = strategy
		}
		if flags.Changed("out-dir") {
			cfg.Report.OutputDir = outDir
		}
		if flags.Changed("format") {
			cfg.Report.Formats = formats
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var db *database.DB
		if !noStore {
			var err error
			db, err = openDB()
			if err != nil {
				return err
			}
			defer db.Close()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		result := pipeline.New(cfg, db).Run(ctx)
		printSteps(result)
		if err := result.Err(); err != nil {
			return err
		}

		fmt.Println("\nSearch complete!")
		for _, path := range result.Artifacts {
			fmt.Printf("  %s\n", path)
		}
		if result.RunID != "" {
			fmt.Println("Run 'mediawatch serve' to browse stored runs.")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().IntVar(&daysBack, "days-back", 7, "Only keep items published within this many days (0 disables)")
	runCmd.Flags().IntVar(&maxEntities, "max-entities", match.DefaultMaxEntities, "Scan at most this many roster contacts (0 for all)")
	runCmd.Flags().StringVar(&rosterPath, "roster", "", "Contact roster file (csv, yaml, xlsx)")
	runCmd.Flags().StringVar(&strategy, "strategy", string(match.Substring), "Matching strategy: substring or word_boundary")
	runCmd.Flags().StringVarP(&outDir, "out-dir", "o", ".", "Directory for report files")
	runCmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "Report formats: "+strings.Join(report.AllFormats, ", "))
	runCmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record the run in the history database")
}

// --- report command ---

var reportCmd = &cobra.Command{
	Use:   "report [run-id]",
	Short: "Regenerate report files for a stored run (latest by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("out-dir") {
			cfg.Report.OutputDir = outDir
		}
		if flags.Changed("format") {
			cfg.Report.Formats = formats
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runID := ""
		if len(args) == 1 {
			runID = args[0]
		}
		result := pipeline.New(cfg, db).Replay(runID)
		printSteps(result)
		if err := result.Err(); err != nil {
			if errors.Is(err, database.ErrRunNotFound) {
				return fmt.Errorf("no stored run %q; list runs with 'mediawatch runs'", runID)
			}
			return err
		}
		for _, path := range result.Artifacts {
			fmt.Printf("  %s\n", path)
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&outDir, "out-dir", "o", ".", "Directory for report files")
	reportCmd.Flags().StringSliceVarP(&formats, "format", "f", nil, "Report formats: "+strings.Join(report.AllFormats, ", "))
}

// --- runs command ---

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs stored yet. Start one with: mediawatch run")
			return nil
		}

		for _, r := range runs {
			failed := 0
			for _, s := range r.Sources {
				if s.Failed() {
					failed++
				}
			}
			fmt.Printf("  %s  %s  %-13s %4d articles  %d sources", r.ID,
				database.FormatWindow(r.StartedAt, r.DaysBack), r.Strategy, r.ResultCount, len(r.Sources))
			if failed > 0 {
				fmt.Printf(" (%d unavailable)", failed)
			}
			fmt.Println()
		}
		return nil
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete [run-id]",
	Short: "Delete a stored run and its matches",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteRun(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted run %s\n", args[0])
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show")
	runsCmd.AddCommand(runsDeleteCmd)
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		limits := report.Limits{
			TopTerms:          cfg.Report.TopTerms,
			NotFound:          cfg.Report.NotFoundLimit,
			ArticlesPerSource: cfg.Report.ArticlesPerSource,
			MentionsPerEntity: cfg.Report.MentionsPerEntity,
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, limits, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

func printSteps(result *pipeline.Result) {
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return database.Open(cfg.DBPath())
}
