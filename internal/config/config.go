package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Check           CheckConfig           `yaml:"check" mapstructure:"check"`
	Crossref        CrossrefConfig        `yaml:"crossref" mapstructure:"crossref"`
	OpenAlex        OpenAlexConfig        `yaml:"openalex" mapstructure:"openalex"`
	SemanticScholar SemanticScholarConfig `yaml:"semanticscholar" mapstructure:"semanticscholar"`
	PubMed          PubMedConfig          `yaml:"pubmed" mapstructure:"pubmed"`
	Anthropic       AnthropicConfig       `yaml:"anthropic" mapstructure:"anthropic"`
	Cache           CacheConfig           `yaml:"cache" mapstructure:"cache"`
	DBLP            DBLPConfig            `yaml:"dblp" mapstructure:"dblp"`
	Report          ReportConfig          `yaml:"report" mapstructure:"report"`
	History         HistoryConfig         `yaml:"history" mapstructure:"history"`
	Server          ServerConfig          `yaml:"server" mapstructure:"server"`
	Log             LogConfig             `yaml:"log" mapstructure:"log"`
}

// CheckConfig configures the validation orchestrator.
type CheckConfig struct {
	MaxConcurrentRefs int      `yaml:"max_concurrent_refs" mapstructure:"max_concurrent_refs"`
	DbTimeoutSecs     int      `yaml:"db_timeout_secs" mapstructure:"db_timeout_secs"`
	RetryTimeoutSecs  int      `yaml:"retry_timeout_secs" mapstructure:"retry_timeout_secs"`
	DisabledDBs       []string `yaml:"disabled_dbs" mapstructure:"disabled_dbs"`
	Overrides         string   `yaml:"overrides" mapstructure:"overrides"`
}

// CrossrefConfig holds CrossRef settings. A mailto admits requests to the
// polite pool, which triples the allowed rate.
type CrossrefConfig struct {
	Mailto string `yaml:"mailto" mapstructure:"mailto"`
}

// OpenAlexConfig holds OpenAlex settings.
type OpenAlexConfig struct {
	Mailto string `yaml:"mailto" mapstructure:"mailto"`
}

// SemanticScholarConfig holds Semantic Scholar settings.
type SemanticScholarConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// PubMedConfig holds NCBI E-utilities settings.
type PubMedConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// AnthropicConfig holds the reviewer-note annotator settings. Annotation is
// off unless a key is configured.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// CacheConfig configures the persistent query cache.
type CacheConfig struct {
	Path             string `yaml:"path" mapstructure:"path"`
	Disabled         bool   `yaml:"disabled" mapstructure:"disabled"`
	PositiveTTLHours int    `yaml:"positive_ttl_hours" mapstructure:"positive_ttl_hours"`
	NegativeTTLHours int    `yaml:"negative_ttl_hours" mapstructure:"negative_ttl_hours"`
}

// DBLPConfig configures the offline DBLP snapshot store.
type DBLPConfig struct {
	StorePath   string `yaml:"store_path" mapstructure:"store_path"`
	SnapshotURL string `yaml:"snapshot_url" mapstructure:"snapshot_url"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
}

// HistoryConfig configures the optional Postgres run history.
type HistoryConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// defaultDataDir is where the query cache and offline snapshot live unless
// overridden.
func defaultDataDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		return ".refcheck"
	}
	return filepath.Join(base, "refcheck")
}

// Load reads configuration from refcheck.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("refcheck")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "refcheck"))
	}

	// Environment
	v.SetEnvPrefix("REFCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credential keys default to empty so environment variables
	// bind even without a config file.
	v.SetDefault("check.max_concurrent_refs", 4)
	v.SetDefault("check.db_timeout_secs", 10)
	v.SetDefault("check.retry_timeout_secs", 5)
	v.SetDefault("check.disabled_dbs", []string{})
	v.SetDefault("check.overrides", "")
	v.SetDefault("crossref.mailto", "")
	v.SetDefault("openalex.mailto", "")
	v.SetDefault("semanticscholar.api_key", "")
	v.SetDefault("pubmed.api_key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("cache.path", filepath.Join(defaultDataDir(), "queries.db"))
	v.SetDefault("cache.disabled", false)
	v.SetDefault("cache.positive_ttl_hours", 24)
	v.SetDefault("cache.negative_ttl_hours", 6)
	v.SetDefault("dblp.store_path", filepath.Join(defaultDataDir(), "dblp.db"))
	v.SetDefault("dblp.snapshot_url", "https://dblp.org/xml/dblp.xml.gz")
	v.SetDefault("report.format", "markdown")
	v.SetDefault("history.dsn", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command depends on. Mode selects the command:
// "check", "serve", "runs", or "annotate". All problems are reported at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	checkRanges := func() {
		if c.Check.MaxConcurrentRefs < 1 || c.Check.MaxConcurrentRefs > 32 {
			problems = append(problems, "check.max_concurrent_refs must be between 1 and 32")
		}
		if c.Check.DbTimeoutSecs <= 0 {
			problems = append(problems, "check.db_timeout_secs must be > 0")
		}
		if c.Check.RetryTimeoutSecs <= 0 {
			problems = append(problems, "check.retry_timeout_secs must be > 0")
		}
	}

	switch mode {
	case "check":
		checkRanges()
	case "serve":
		checkRanges()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "runs":
		if c.History.DSN == "" {
			problems = append(problems, "history.dsn is required")
		}
	case "annotate":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(problems, "; ")))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
