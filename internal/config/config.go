package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/mediawatch/internal/collect"
	"github.com/TobiSchelling/mediawatch/internal/match"
	"github.com/TobiSchelling/mediawatch/internal/roster"
	"github.com/TobiSchelling/mediawatch/internal/vocab"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// ErrEmptyVocabulary is returned when no terms are configured.
var ErrEmptyVocabulary = errors.New("vocabulary is empty")

// Environment overrides, applied after the YAML file.
const (
	EnvDaysBack = "MEDIAWATCH_DAYS_BACK"
	EnvRoster   = "MEDIAWATCH_ROSTER"
	EnvDataDir  = "MEDIAWATCH_DATA_DIR"
)

type Config struct {
	Sources    Sources    `yaml:"sources"`
	Search     Search     `yaml:"search"`
	Vocabulary Vocabulary `yaml:"vocabulary"`
	Roster     Roster     `yaml:"roster"`
	Fetch      Fetch      `yaml:"fetch"`
	Report     Report     `yaml:"report"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Sources struct {
	Feeds []Feed     `yaml:"feeds"`
	APIs  APIsConfig `yaml:"apis"`
}

type Feed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// DisplayName returns the configured name or a label derived from the URL host.
func (f Feed) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return collect.SourceName(f.URL)
}

// SourceID returns the configured id or a slug of the display name.
func (f Feed) SourceID() string {
	if f.ID != "" {
		return f.ID
	}
	return collect.SourceID(f.DisplayName())
}

type APIsConfig struct {
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
}

type NewsAPIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKeyEnv string `yaml:"api_key_env"`
	Query     string `yaml:"query"`
	PageSize  int    `yaml:"page_size"`
}

type Search struct {
	DaysBack    int    `yaml:"days_back"`
	MaxEntities int    `yaml:"max_entities"`
	Strategy    string `yaml:"strategy"`
}

type Vocabulary struct {
	Terms []string `yaml:"terms"`
	File  string   `yaml:"file"`
}

type Roster struct {
	Path            string `yaml:"path"`
	Format          string `yaml:"format"`
	Sheet           string `yaml:"sheet"`
	SkipRows        int    `yaml:"skip_rows"`
	NameColumn      string `yaml:"name_column"`
	FirstNameColumn string `yaml:"first_name_column"`
	LastNameColumn  string `yaml:"last_name_column"`
}

type Fetch struct {
	Timeout           time.Duration `yaml:"timeout"`
	UserAgent         string        `yaml:"user_agent"`
	Concurrency       int           `yaml:"concurrency"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	RespectRobots     bool          `yaml:"respect_robots"`
	MaxItemsPerSource int           `yaml:"max_items_per_source"`
}

type Report struct {
	OutputDir         string   `yaml:"output_dir"`
	Formats           []string `yaml:"formats"`
	TopTerms          int      `yaml:"top_terms"`
	NotFoundLimit     int      `yaml:"not_found_limit"`
	ArticlesPerSource int      `yaml:"articles_per_source"`
	MentionsPerEntity int      `yaml:"mentions_per_entity"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for mediawatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "mediawatch")
}

// DataDir returns the XDG data directory for mediawatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "mediawatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/mediawatch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'mediawatch init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file, then applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			APIs: APIsConfig{
				NewsAPI: NewsAPIConfig{
					APIKeyEnv: "NEWSAPI_KEY",
					PageSize:  100,
				},
			},
		},
		Search: Search{
			DaysBack:    7,
			MaxEntities: match.DefaultMaxEntities,
			Strategy:    string(match.Substring),
		},
		Fetch: Fetch{
			Timeout:           30 * time.Second,
			UserAgent:         "mediawatch/1.0",
			Concurrency:       4,
			RequestsPerSecond: 2,
			RespectRobots:     true,
		},
		Report: Report{
			OutputDir:         ".",
			TopTerms:          20,
			NotFoundLimit:     20,
			ArticlesPerSource: 5,
			MentionsPerEntity: 3,
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDaysBack); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDaysBack, err)
		}
		c.Search.DaysBack = n
	}
	if v := os.Getenv(EnvRoster); v != "" {
		c.Roster.Path = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.Output.DataDir = v
	}
	return nil
}

// Validate checks settings that would make a run meaningless.
func (c *Config) Validate() error {
	if len(c.Vocabulary.Terms) == 0 && c.Vocabulary.File == "" {
		return ErrEmptyVocabulary
	}
	if _, err := match.ParseStrategy(c.Search.Strategy); err != nil {
		return err
	}
	if c.Search.DaysBack < 0 {
		return fmt.Errorf("search.days_back must not be negative, got %d", c.Search.DaysBack)
	}
	if len(c.Sources.Feeds) == 0 && !c.Sources.APIs.NewsAPI.Enabled {
		return errors.New("no sources configured")
	}
	ids := make(map[string]int, len(c.Sources.Feeds))
	if c.Sources.APIs.NewsAPI.Enabled {
		ids[collect.KindNewsAPI] = -1
	}
	for i, f := range c.Sources.Feeds {
		if f.URL == "" {
			return fmt.Errorf("sources.feeds[%d]: url is required", i)
		}
		id := f.SourceID()
		if j, dup := ids[id]; dup {
			if j < 0 {
				return fmt.Errorf("sources.feeds[%d]: id %q is reserved for newsapi", i, id)
			}
			return fmt.Errorf("sources.feeds[%d]: id %q already used by sources.feeds[%d]; set a distinct id or name", i, id, j)
		}
		ids[id] = i
	}
	return nil
}

// LoadVocabulary returns the inline terms followed by the terms of the
// vocabulary file, if any.
func (c *Config) LoadVocabulary() (*vocab.Vocabulary, error) {
	terms := append([]string(nil), c.Vocabulary.Terms...)
	if c.Vocabulary.File != "" {
		fromFile, err := vocab.LoadFile(c.Vocabulary.File)
		if err != nil {
			return nil, err
		}
		terms = append(terms, fromFile...)
	}
	v := vocab.New(terms)
	if v.Len() == 0 {
		return nil, ErrEmptyVocabulary
	}
	return v, nil
}

// RosterOptions returns the roster loader settings.
func (c *Config) RosterOptions() roster.Options {
	return roster.Options{
		Path:            c.Roster.Path,
		Format:          c.Roster.Format,
		Sheet:           c.Roster.Sheet,
		SkipRows:        c.Roster.SkipRows,
		NameColumn:      c.Roster.NameColumn,
		FirstNameColumn: c.Roster.FirstNameColumn,
		LastNameColumn:  c.Roster.LastNameColumn,
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the run history database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "mediawatch.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
