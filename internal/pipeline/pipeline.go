package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/TobiSchelling/mediawatch/internal/aggregate"
	"github.com/TobiSchelling/mediawatch/internal/collect"
	"github.com/TobiSchelling/mediawatch/internal/config"
	"github.com/TobiSchelling/mediawatch/internal/database"
	"github.com/TobiSchelling/mediawatch/internal/match"
	"github.com/TobiSchelling/mediawatch/internal/normalize"
	"github.com/TobiSchelling/mediawatch/internal/report"
	"github.com/TobiSchelling/mediawatch/internal/roster"
	"github.com/TobiSchelling/mediawatch/internal/vocab"
)

// robotsTTL is how long a host's robots.txt answer is reused.
const robotsTTL = 6 * time.Hour

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunID     string
	Steps     []StepResult
	Report    *aggregate.Report
	Meta      report.Meta
	Artifacts []string
}

// Err returns the first step error, if any.
func (r *Result) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Pipeline runs load → collect → match → store → report.
type Pipeline struct {
	cfg       *config.Config
	db        *database.DB
	collector *collect.Collector
	now       func() time.Time
}

// New creates a pipeline from config. db may be nil, in which case runs are
// not stored.
func New(cfg *config.Config, db *database.DB) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		db:        db,
		collector: NewCollector(cfg),
		now:       time.Now,
	}
}

// WithCollector replaces the collector built from config.
func (p *Pipeline) WithCollector(c *collect.Collector) *Pipeline {
	p.collector = c
	return p
}

// WithClock replaces the wall clock used for the recency window.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// NewCollector builds the feed and NewsAPI sources described by config.
func NewCollector(cfg *config.Config) *collect.Collector {
	client := &http.Client{Timeout: cfg.Fetch.Timeout}
	limiter := collect.NewLimiter(cfg.Fetch.RequestsPerSecond, 1)
	var robots *collect.RobotsChecker
	if cfg.Fetch.RespectRobots {
		robots = collect.NewRobotsChecker(client, cfg.Fetch.UserAgent, robotsTTL)
	}

	retrievers := map[string]collect.Retriever{
		collect.KindFeed: collect.NewFeedRetriever(client, cfg.Fetch.UserAgent, limiter, robots),
	}
	sources := Sources(cfg)

	if napi := cfg.Sources.APIs.NewsAPI; napi.Enabled {
		r := collect.NewNewsAPIRetriever(client, collect.NewsAPIOptions{
			APIKeyEnv: napi.APIKeyEnv,
			Query:     napi.Query,
			PageSize:  napi.PageSize,
			DaysBack:  cfg.Search.DaysBack,
		})
		if r.IsConfigured() {
			retrievers[collect.KindNewsAPI] = r
			sources = append(sources, r.Source())
		} else {
			slog.Warn("NewsAPI enabled but key not set, skipping", "env", napi.APIKeyEnv)
		}
	}

	return collect.NewCollector(sources, retrievers, collect.Options{
		Concurrency:       cfg.Fetch.Concurrency,
		Timeout:           cfg.Fetch.Timeout,
		MaxItemsPerSource: cfg.Fetch.MaxItemsPerSource,
	})
}

// Sources returns the configured feeds as sources in declaration order.
func Sources(cfg *config.Config) []collect.Source {
	sources := make([]collect.Source, 0, len(cfg.Sources.Feeds))
	for _, f := range cfg.Sources.Feeds {
		sources = append(sources, collect.Source{ID: f.SourceID(), Name: f.DisplayName(), URL: f.URL, Kind: collect.KindFeed})
	}
	return sources
}

// LoadRoster reads the configured roster. A missing path or a load failure
// yields an empty roster; failures are logged and never abort the run.
func LoadRoster(cfg *config.Config) *roster.Roster {
	if cfg.Roster.Path == "" {
		slog.Info("no roster configured, entity matching disabled")
		return roster.Empty()
	}
	r, err := roster.LoadFile(cfg.RosterOptions())
	if err != nil {
		slog.Warn("continuing without roster", "error", err)
		return roster.Empty()
	}
	s := r.Stats()
	slog.Info("loaded roster", "contacts", s.Total, "eligible", s.Eligible,
		"with_email", s.WithEmail, "with_title", s.WithTitle, "accounts", s.UniqueAccounts)
	return r
}

// Run executes a full search run.
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &Result{}
	started := p.now()

	// Step 1: Load
	v, err := p.cfg.LoadVocabulary()
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load", Err: err})
		return r
	}
	strategy, err := match.ParseStrategy(p.cfg.Search.Strategy)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load", Err: err})
		return r
	}
	ros := LoadRoster(p.cfg)
	matcher := match.New(v, ros, match.Options{MaxEntities: p.cfg.Search.MaxEntities, Strategy: strategy})
	r.Steps = append(r.Steps, StepResult{
		Name: "Load",
		Summary: fmt.Sprintf("%d terms (%d distinct), %d contacts (%d scanned), %s matching",
			v.Len(), v.UniqueLen(), ros.Len(), matcher.EntitiesScanned(), strategy),
	})

	// Step 2: Collect
	slog.Info("collecting sources", "sources", len(p.collector.Sources()))
	batches := p.collector.Collect(ctx)
	outcomes, entries, failed := summarizeBatches(batches)
	r.Steps = append(r.Steps, StepResult{
		Name:    "Collect",
		Summary: fmt.Sprintf("Retrieved %d entries from %d sources (%d unavailable)", entries, len(batches), failed),
	})

	// Step 3: Match
	opts := normalize.Options{Now: started, DaysBack: p.cfg.Search.DaysBack}
	var (
		results []match.Result
		kept    int
	)
	for _, b := range batches {
		items := normalize.Batch(b, opts)
		kept += len(items)
		matched := matcher.MatchAll(items)
		slog.Info("matched source", "source", b.Source.ID, "items", len(items), "matches", len(matched))
		results = append(results, matched...)
	}
	r.Steps = append(r.Steps, StepResult{
		Name:    "Match",
		Summary: fmt.Sprintf("%d of %d recent items matched at least one term", len(results), kept),
	})

	// Step 4: Store
	if p.db != nil {
		run := &database.Run{
			StartedAt:   started,
			DaysBack:    p.cfg.Search.DaysBack,
			Strategy:    string(strategy),
			MaxEntities: p.cfg.Search.MaxEntities,
			Vocabulary:  v.Terms(),
			RosterSize:  ros.Len(),
			Sources:     outcomes,
		}
		step := p.store(run, results)
		r.RunID = run.ID
		r.Steps = append(r.Steps, step)
	}

	// Step 5: Report
	r.Report = aggregate.Aggregate(results, v)
	r.Meta = p.meta(r.RunID, started, string(strategy), len(batches), ros.Len())
	r.Steps = append(r.Steps, p.emit(r))

	return r
}

// Replay regenerates the artifacts of a stored run from its match results.
func (p *Pipeline) Replay(runID string) *Result {
	r := &Result{RunID: runID}
	if p.db == nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load", Err: errors.New("run history is disabled")})
		return r
	}

	run, rep, err := LoadRunReport(p.db, runID)
	if err != nil {
		r.Steps = append(r.Steps, StepResult{Name: "Load", Err: err})
		return r
	}
	r.RunID = run.ID
	r.Report = rep
	r.Meta = RunMeta(run, p.limits())
	r.Steps = append(r.Steps, StepResult{
		Name:    "Load",
		Summary: fmt.Sprintf("Loaded %d stored results of run %s", rep.TotalArticles(), run.ID),
	})
	r.Steps = append(r.Steps, p.emit(r))
	return r
}

// LoadRunReport rebuilds the aggregate report of a stored run. An empty
// runID selects the latest run.
func LoadRunReport(db *database.DB, runID string) (*database.Run, *aggregate.Report, error) {
	var (
		run *database.Run
		err error
	)
	if runID == "" {
		run, err = db.GetLatestRun()
	} else {
		run, err = db.GetRun(runID)
	}
	if err != nil {
		return nil, nil, err
	}
	results, err := db.LoadMatchResults(run.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading results of run %s: %w", run.ID, err)
	}
	return run, aggregate.Aggregate(results, vocab.New(run.Vocabulary)), nil
}

func (p *Pipeline) store(run *database.Run, results []match.Result) StepResult {
	if err := p.db.CreateRun(run); err != nil {
		return StepResult{Name: "Store", Err: err}
	}
	if err := p.db.SaveMatchResults(run.ID, results); err != nil {
		return StepResult{Name: "Store", Err: err}
	}
	if err := p.db.FinishRun(run.ID, p.now(), run.Sources, len(results)); err != nil {
		return StepResult{Name: "Store", Err: err}
	}
	return StepResult{
		Name:    "Store",
		Summary: fmt.Sprintf("Stored %d results as run %s", len(results), run.ID),
	}
}

func (p *Pipeline) emit(r *Result) StepResult {
	formats, err := report.ParseFormats(p.cfg.Report.Formats)
	if err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	paths, err := report.Emit(p.cfg.Report.OutputDir, formats, r.Report, r.Meta)
	r.Artifacts = paths
	if err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	return StepResult{
		Name:    "Report",
		Summary: fmt.Sprintf("%d articles, %d terms found, %d not found; wrote %d files to %s", r.Report.TotalArticles(), len(r.Report.Terms()), len(r.Report.NotFound()), len(paths), p.cfg.Report.OutputDir),
	}
}

func (p *Pipeline) meta(runID string, started time.Time, strategy string, sources, rosterSize int) report.Meta {
	return report.Meta{
		RunID:           runID,
		GeneratedAt:     started.UTC(),
		DaysBack:        p.cfg.Search.DaysBack,
		Strategy:        strategy,
		SourcesSearched: sources,
		RosterSize:      rosterSize,
		Limits:          p.limits(),
	}
}

func (p *Pipeline) limits() report.Limits {
	rc := p.cfg.Report
	return report.Limits{
		TopTerms:          rc.TopTerms,
		NotFound:          rc.NotFoundLimit,
		ArticlesPerSource: rc.ArticlesPerSource,
		MentionsPerEntity: rc.MentionsPerEntity,
	}
}

// RunMeta describes a stored run for report rendering.
func RunMeta(run *database.Run, limits report.Limits) report.Meta {
	return report.Meta{
		RunID:           run.ID,
		GeneratedAt:     run.StartedAt.UTC(),
		DaysBack:        run.DaysBack,
		Strategy:        run.Strategy,
		SourcesSearched: len(run.Sources),
		RosterSize:      run.RosterSize,
		Limits:          limits,
	}
}

func summarizeBatches(batches []collect.Batch) (outcomes []database.SourceOutcome, entries, failed int) {
	for _, b := range batches {
		o := database.SourceOutcome{
			ID:      b.Source.ID,
			Name:    b.Source.Name,
			URL:     b.Source.URL,
			Kind:    b.Source.Kind,
			Entries: len(b.Entries),
		}
		if b.Err != nil {
			o.Error = b.Err.Error()
			failed++
		}
		entries += len(b.Entries)
		outcomes = append(outcomes, o)
	}
	return outcomes, entries, failed
}
