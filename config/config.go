/*
Package config loads runtime settings.

SOURCES (highest precedence first):
  1. Command-line flags bound by the cmd/server commands
  2. Environment, VSYNC_ prefix, dots become underscores
     (VSYNC_SOURCE_URL, VSYNC_QUEUE_FLOOR, ...)
  3. Config file given with --config (YAML, TOML or JSON)
  4. Defaults below

EXAMPLE (vsync.yaml):
  db: ./vsync.db
  source:
    url: https://data.cityofnewyork.us/resource/jz4z-kudi.json
    category: "charge_1_code_section like '%24-163%'"
  enrichment:
    url: http://localhost:9000/enrich
  schedule:
    sweep: 1h
    drain: 10m
*/
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/violation-sync/violations"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "VSYNC"

// FloorLayout is the format of queue.floor.
const FloorLayout = "2006-01-02"

type Config struct {
	DB   string `mapstructure:"db"`
	Port int    `mapstructure:"port"`

	Source     SourceConfig     `mapstructure:"source"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Links      LinksConfig      `mapstructure:"links"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Matcher    MatcherConfig    `mapstructure:"matcher"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Log        LogConfig        `mapstructure:"log"`
}

type SourceConfig struct {
	URL      string        `mapstructure:"url"`
	Category string        `mapstructure:"category"`
	Limit    int           `mapstructure:"limit"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type EnrichmentConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LinksConfig struct {
	Document string `mapstructure:"document"`
	Video    string `mapstructure:"video"`
}

type QueueConfig struct {
	Floor string `mapstructure:"floor"`
	Batch int    `mapstructure:"batch"`
}

type MatcherConfig struct {
	Collisions string `mapstructure:"collisions"`
}

// ScheduleConfig holds scheduler intervals. Zero disables that job.
type ScheduleConfig struct {
	Sweep time.Duration `mapstructure:"sweep"`
	Drain time.Duration `mapstructure:"drain"`
}

// RedisConfig selects the distributed sweep guard when URL is set.
type RedisConfig struct {
	URL string        `mapstructure:"url"`
	TTL time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// SetDefaults registers every key so environment lookups work for all of
// them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("db", "vsync.db")
	v.SetDefault("port", 8080)

	v.SetDefault("source.url", "https://data.cityofnewyork.us/resource/jz4z-kudi.json")
	v.SetDefault("source.category", "charge_1_code_section like '%24-163%'")
	v.SetDefault("source.limit", violations.DefaultPageSize)
	v.SetDefault("source.token", "")
	v.SetDefault("source.timeout", 30*time.Second)

	v.SetDefault("enrichment.url", "")
	v.SetDefault("enrichment.api_key", "")
	v.SetDefault("enrichment.timeout", 15*time.Second)

	v.SetDefault("links.document", violations.DefaultLinkTemplates.Document)
	v.SetDefault("links.video", violations.DefaultLinkTemplates.Video)

	v.SetDefault("queue.floor", violations.DefaultFloorDate.Format(FloorLayout))
	v.SetDefault("queue.batch", 25)

	v.SetDefault("matcher.collisions", string(violations.LastWins))

	v.SetDefault("schedule.sweep", time.Hour)
	v.SetDefault("schedule.drain", 10*time.Minute)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.ttl", 30*time.Minute)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and decodes v into a Config.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	if c.DB == "" {
		return fmt.Errorf("db is required")
	}
	if _, err := c.FloorDate(); err != nil {
		return err
	}
	if _, err := violations.ParseCollisionPolicy(c.Matcher.Collisions); err != nil {
		return err
	}
	for name, tmpl := range map[string]string{"links.document": c.Links.Document, "links.video": c.Links.Video} {
		if !strings.Contains(tmpl, violations.RefPlaceholder) {
			return fmt.Errorf("%s must contain %s", name, violations.RefPlaceholder)
		}
	}
	return nil
}

// FloorDate parses queue.floor. Empty means the default floor.
func (c Config) FloorDate() (time.Time, error) {
	if c.Queue.Floor == "" {
		return violations.DefaultFloorDate, nil
	}
	t, err := time.Parse(FloorLayout, c.Queue.Floor)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid queue.floor %q (use YYYY-MM-DD): %w", c.Queue.Floor, err)
	}
	return t, nil
}

// EngineConfig converts the sweep-related settings.
func (c Config) EngineConfig() (violations.EngineConfig, error) {
	policy, err := violations.ParseCollisionPolicy(c.Matcher.Collisions)
	if err != nil {
		return violations.EngineConfig{}, err
	}
	return violations.EngineConfig{
		Category:   c.Source.Category,
		PageSize:   c.Source.Limit,
		Links:      violations.LinkTemplates{Document: c.Links.Document, Video: c.Links.Video},
		Collisions: policy,
	}, nil
}
