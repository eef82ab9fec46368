// Package config loads the journal agent configuration from YAML, .env files
// and JOURNAL_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model,omitempty"`
	CacheSize int           `yaml:"cache_size,omitempty"`
	CacheTTL  time.Duration `yaml:"cache_ttl,omitempty"`
	CachePath string        `yaml:"cache_path,omitempty"`
}

type EmbeddingsConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model,omitempty"`
	Dimension int           `yaml:"dimension"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl,omitempty"`
}

type StoreConfig struct {
	Backend         string `yaml:"backend"`
	SQLitePath      string `yaml:"sqlite_path,omitempty"`
	PostgresDSN     string `yaml:"postgres_dsn,omitempty"`
	MongoURI        string `yaml:"mongo_uri,omitempty"`
	MongoDatabase   string `yaml:"mongo_database,omitempty"`
	MongoCollection string `yaml:"mongo_collection,omitempty"`
	Neo4jURI        string `yaml:"neo4j_uri,omitempty"`
	Neo4jUser       string `yaml:"neo4j_user,omitempty"`
	Neo4jPassword   string `yaml:"neo4j_password,omitempty"`
}

type WorkingMemoryConfig struct {
	Backend    string `yaml:"backend"`
	Capacity   int    `yaml:"capacity"`
	MongoURI   string `yaml:"mongo_uri,omitempty"`
	Database   string `yaml:"database,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

type CalendarConfig struct {
	Provider        string `yaml:"provider"`
	CalendarID      string `yaml:"calendar_id,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
	Timezone        string `yaml:"timezone,omitempty"`
	DaysAhead       int    `yaml:"days_ahead"`
	DaysBack        int    `yaml:"days_back"`
}

type SpeechConfig struct {
	STTStreamURL  string        `yaml:"stt_stream_url,omitempty"`
	TTSStreamURL  string        `yaml:"tts_stream_url,omitempty"`
	APIKey        string        `yaml:"api_key,omitempty"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
	Voice         string        `yaml:"voice,omitempty"`
	LanguageCode  string        `yaml:"language_code,omitempty"`
}

type AgentConfig struct {
	HistorySize         int           `yaml:"history_size"`
	RecencyBoost        float64       `yaml:"recency_boost"`
	ConversationTimeout time.Duration `yaml:"conversation_timeout"`
	MemoryTimeout       time.Duration `yaml:"memory_timeout"`
	CalendarTimeout     time.Duration `yaml:"calendar_timeout"`
	CalendarWorkers     int           `yaml:"calendar_workers"`
	MaxTokens           int           `yaml:"max_tokens"`
	MaxSessions         int           `yaml:"max_sessions"`
}

type ClassifierConfig struct {
	Strategy  string  `yaml:"strategy"`
	Threshold float64 `yaml:"threshold"`
}

type Config struct {
	UserID        string              `yaml:"user_id"`
	LLM           LLMConfig           `yaml:"llm"`
	Embeddings    EmbeddingsConfig    `yaml:"embeddings"`
	Store         StoreConfig         `yaml:"store"`
	WorkingMemory WorkingMemoryConfig `yaml:"working_memory"`
	Calendar      CalendarConfig      `yaml:"calendar"`
	Speech        SpeechConfig        `yaml:"speech"`
	Agent         AgentConfig         `yaml:"agent"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
}

func Default() *Config {
	return &Config{
		UserID: "default",
		LLM:    LLMConfig{Provider: "dummy", CacheTTL: 5 * time.Minute},
		Embeddings: EmbeddingsConfig{
			Provider:  "dummy",
			Dimension: 768,
			CacheSize: 512,
			CacheTTL:  time.Hour,
		},
		Store: StoreConfig{
			Backend:         "sqlite",
			SQLitePath:      "journal.db",
			MongoDatabase:   "journal",
			MongoCollection: "entries",
		},
		WorkingMemory: WorkingMemoryConfig{
			Backend:    "memory",
			Capacity:   40,
			Database:   "journal",
			Collection: "working_memory",
		},
		Calendar: CalendarConfig{Provider: "none", CalendarID: "primary", DaysAhead: 30},
		Speech:   SpeechConfig{StreamTimeout: 10 * time.Second, LanguageCode: "en-IN"},
		Agent: AgentConfig{
			HistorySize:         20,
			RecencyBoost:        0.3,
			ConversationTimeout: 2 * time.Second,
			MemoryTimeout:       5 * time.Second,
			CalendarTimeout:     8 * time.Second,
			CalendarWorkers:     4,
			MaxTokens:           120,
		},
		Classifier: ClassifierConfig{Strategy: "rules", Threshold: 0.5},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// LoadDotEnv loads .env style files into the process environment. Variables
// already set win; missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from JOURNAL_* variables.
func (c *Config) ApplyEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("JOURNAL_USER_ID", &c.UserID)
	str("JOURNAL_LLM_PROVIDER", &c.LLM.Provider)
	str("JOURNAL_LLM_MODEL", &c.LLM.Model)
	str("JOURNAL_EMBED_PROVIDER", &c.Embeddings.Provider)
	str("JOURNAL_EMBED_MODEL", &c.Embeddings.Model)
	str("JOURNAL_STORE_BACKEND", &c.Store.Backend)
	str("JOURNAL_SQLITE_PATH", &c.Store.SQLitePath)
	str("JOURNAL_POSTGRES_DSN", &c.Store.PostgresDSN)
	str("JOURNAL_MONGO_URI", &c.Store.MongoURI)
	str("JOURNAL_NEO4J_URI", &c.Store.Neo4jURI)
	str("JOURNAL_NEO4J_USER", &c.Store.Neo4jUser)
	str("JOURNAL_NEO4J_PASSWORD", &c.Store.Neo4jPassword)
	str("JOURNAL_WORKING_MEMORY", &c.WorkingMemory.Backend)
	str("JOURNAL_WORKING_MEMORY_MONGO_URI", &c.WorkingMemory.MongoURI)
	str("JOURNAL_CALENDAR", &c.Calendar.Provider)
	str("GOOGLE_CALENDAR_CREDENTIALS", &c.Calendar.CredentialsFile)
	str("JOURNAL_TIMEZONE", &c.Calendar.Timezone)
	str("JOURNAL_STT_WS_URL", &c.Speech.STTStreamURL)
	str("JOURNAL_TTS_WS_URL", &c.Speech.TTSStreamURL)
	str("JOURNAL_SPEECH_API_KEY", &c.Speech.APIKey)
	str("JOURNAL_CLASSIFIER", &c.Classifier.Strategy)

	if v := os.Getenv("JOURNAL_RECENCY_BOOST"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("JOURNAL_RECENCY_BOOST: %w", err)
		}
		c.Agent.RecencyBoost = f
	}
	if v := os.Getenv("JOURNAL_HISTORY_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("JOURNAL_HISTORY_SIZE: %w", err)
		}
		c.Agent.HistorySize = n
	}
	return nil
}

// Validate rejects values the agent cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.RecencyBoost < 0 || c.Agent.RecencyBoost > 1 {
		errs = append(errs, fmt.Errorf("agent.recency_boost must be in [0, 1], got %v", c.Agent.RecencyBoost))
	}
	if c.Agent.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("agent.history_size must be positive"))
	}
	if c.Embeddings.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.dimension must be positive"))
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("store.sqlite_path is required for the sqlite backend"))
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("store.postgres_dsn is required for the postgres backend"))
		}
	case "mongo":
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("store.mongo_uri is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	switch c.WorkingMemory.Backend {
	case "memory", "none":
	case "mongo":
		if c.WorkingMemory.MongoURI == "" && c.Store.MongoURI == "" {
			errs = append(errs, errors.New("working_memory.mongo_uri is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown working memory backend %q", c.WorkingMemory.Backend))
	}
	switch c.Calendar.Provider {
	case "none", "static", "google":
	default:
		errs = append(errs, fmt.Errorf("unknown calendar provider %q", c.Calendar.Provider))
	}
	switch c.Classifier.Strategy {
	case "rules", "semantic", "llm", "chain":
	default:
		errs = append(errs, fmt.Errorf("unknown classifier strategy %q", c.Classifier.Strategy))
	}
	return errors.Join(errs...)
}

// Location resolves the calendar timezone, defaulting to the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Calendar.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Calendar.Timezone)
}
