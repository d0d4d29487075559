package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mailgraph/internal/graph"
	"mailgraph/internal/textproc"
)

// PathEnv names the optional YAML config file.
const PathEnv = "MAILGRAPH_CONFIG"

const (
	StoreDynamo = "dynamo"
	StoreMongo  = "mongo"

	ModeAPI      = "api"
	ModeSchedule = "schedule"
)

type Config struct {
	LogLevel     string `yaml:"log_level"`
	HandlerMode  string `yaml:"handler_mode"`
	ScheduleDays int    `yaml:"schedule_days"`
	ParamPrefix  string `yaml:"param_prefix"`

	Pipeline Pipeline `yaml:"pipeline"`
	Graph    Graph    `yaml:"graph"`
	Store    Store    `yaml:"store"`
	Blob     Blob     `yaml:"blob"`
	IMAP     IMAP     `yaml:"imap"`
	LLM      LLM      `yaml:"llm"`
}

type Pipeline struct {
	Stages  []string                `yaml:"stages"`
	Cleaner textproc.CleanerOptions `yaml:"cleaner"`
}

type Graph struct {
	URI         string `yaml:"uri"`
	Username    string `yaml:"username"`
	Database    string `yaml:"database"`
	Partition   string `yaml:"partition"`
	Dialect     string `yaml:"dialect"`
	MaxPoolSize int    `yaml:"max_pool_size"`
}

// Store selects the document store for audits and run configuration.
type Store struct {
	Kind             string `yaml:"kind"`
	Table            string `yaml:"table"`
	Database         string `yaml:"database"`
	AuditCollection  string `yaml:"audit_collection"`
	ConfigCollection string `yaml:"config_collection"`
}

type Blob struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

type IMAP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Folder   string `yaml:"folder"`
}

type LLM struct {
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	Provider   string `yaml:"provider"`
	MaxRetries int    `yaml:"max_retries"`
}

func Default() Config {
	return Config{
		LogLevel:     "info",
		HandlerMode:  ModeAPI,
		ScheduleDays: 7,
		Pipeline: Pipeline{
			Stages:  []string{textproc.StageMarkup, textproc.StageBoilerplate},
			Cleaner: textproc.DefaultCleanerOptions(),
		},
		Graph: Graph{
			Username:  "neo4j",
			Partition: "default",
			Dialect:   string(graph.DialectNeo4j),
		},
		Store: Store{
			Kind:             StoreDynamo,
			AuditCollection:  "audits",
			ConfigCollection: "config",
		},
		IMAP: IMAP{
			Port:   993,
			Folder: "INBOX",
		},
		LLM: LLM{
			Model:      "gpt-4o-mini",
			Provider:   "openai",
			MaxRetries: 3,
		},
	}
}

// Load layers defaults, the YAML file at path (or $MAILGRAPH_CONFIG) and
// environment variables, in that order. A .env file in the working
// directory is loaded first when present; it never overrides variables
// already set.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Default()
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(c *Config) error {
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.HandlerMode, "HANDLER_MODE")
	str(&c.ParamPrefix, "PARAM_PREFIX")
	if v, ok := lookup("PIPELINE_STAGES"); ok {
		c.Pipeline.Stages = splitList(v)
	}
	str(&c.Graph.URI, "GRAPH_URI")
	str(&c.Graph.Username, "GRAPH_USERNAME")
	str(&c.Graph.Database, "GRAPH_DATABASE")
	str(&c.Graph.Partition, "GRAPH_PARTITION")
	str(&c.Graph.Dialect, "GRAPH_DIALECT")
	str(&c.Store.Kind, "STORE_KIND")
	str(&c.Store.Table, "STATE_TABLE")
	str(&c.Store.Database, "MONGO_DATABASE")
	str(&c.Blob.Bucket, "BLOB_BUCKET")
	str(&c.Blob.Prefix, "BLOB_PREFIX")
	str(&c.IMAP.Host, "IMAP_HOST")
	str(&c.IMAP.Username, "IMAP_USERNAME")
	str(&c.IMAP.Folder, "IMAP_FOLDER")
	str(&c.LLM.Model, "LLM_MODEL")
	str(&c.LLM.BaseURL, "LLM_BASE_URL")
	str(&c.LLM.Provider, "LLM_PROVIDER")

	for key, dst := range map[string]*int{
		"SCHEDULE_DAYS":       &c.ScheduleDays,
		"GRAPH_MAX_POOL_SIZE": &c.Graph.MaxPoolSize,
		"IMAP_PORT":           &c.IMAP.Port,
		"LLM_MAX_RETRIES":     &c.LLM.MaxRetries,
	} {
		if err := integer(dst, key); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*bool{
		"CLEANER_REMOVE_EMAILS":        &c.Pipeline.Cleaner.RemoveEmails,
		"CLEANER_NORMALIZE_WHITESPACE": &c.Pipeline.Cleaner.NormalizeWhitespace,
	} {
		if err := boolean(dst, key); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports the first missing or malformed setting.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ParamPrefix) == "":
		return errors.New("config: PARAM_PREFIX is required")
	case c.Graph.URI == "":
		return errors.New("config: GRAPH_URI is required")
	case c.IMAP.Host == "":
		return errors.New("config: IMAP_HOST is required")
	case c.IMAP.Username == "":
		return errors.New("config: IMAP_USERNAME is required")
	case c.Blob.Bucket == "":
		return errors.New("config: BLOB_BUCKET is required")
	case c.ScheduleDays <= 0:
		return errors.New("config: SCHEDULE_DAYS must be positive")
	case c.LLM.MaxRetries < 0:
		return errors.New("config: LLM_MAX_RETRIES must not be negative")
	}

	switch c.Store.Kind {
	case StoreDynamo:
		if c.Store.Table == "" {
			return errors.New("config: STATE_TABLE is required for the dynamo store")
		}
	case StoreMongo:
		if c.Store.Database == "" {
			return errors.New("config: MONGO_DATABASE is required for the mongo store")
		}
	default:
		return fmt.Errorf("config: unknown STORE_KIND %q", c.Store.Kind)
	}

	switch c.HandlerMode {
	case ModeAPI, ModeSchedule:
	default:
		return fmt.Errorf("config: unknown HANDLER_MODE %q", c.HandlerMode)
	}

	if _, err := graph.ParseDialect(c.Graph.Dialect); err != nil {
		return fmt.Errorf("config: GRAPH_DIALECT: %w", err)
	}
	if _, err := textproc.FromNames(c.Pipeline.Stages, c.Pipeline.Cleaner); err != nil {
		return fmt.Errorf("config: PIPELINE_STAGES: %w", err)
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func str(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func integer(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func boolean(dst *bool, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
