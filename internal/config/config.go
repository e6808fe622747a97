// Package config loads daemon settings from the YAML config file with
// environment variable overrides for secrets and deploy-specific values.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Database struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type Redis struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	StateKey string `yaml:"state_key"`
}

type NATS struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type Management struct {
	Addr       string `yaml:"addr"`
	SigningKey string `yaml:"-"`
}

type FaceSearch struct {
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"-"`
	CollectionID string        `yaml:"collection_id"`
	Timeout      time.Duration `yaml:"timeout"`
}

type Blob struct {
	BaseURL string `yaml:"base_url"`
	Bucket  string `yaml:"bucket"`
	APIKey  string `yaml:"-"`
}

type Ring struct {
	Enabled      bool          `yaml:"enabled"`
	BaseURL      string        `yaml:"base_url"`
	Username     string        `yaml:"-"`
	Password     string        `yaml:"-"`
	UserAgent    string        `yaml:"user_agent"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Engine holds the tunables of the poll loop and dispatcher. These are the
// values the config watcher can change at runtime.
type Engine struct {
	TickInterval      time.Duration `yaml:"tick_interval"`
	HeartbeatTicks    int           `yaml:"heartbeat_ticks"`
	StopTimeout       time.Duration `yaml:"stop_timeout"`
	UploadWorkers     int           `yaml:"upload_workers"`
	FaceSearchWorkers int           `yaml:"face_search_workers"`
	SubmitDelay       time.Duration `yaml:"submit_delay"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	DedupCacheSize    int           `yaml:"dedup_cache_size"`
	DedupTTL          time.Duration `yaml:"dedup_ttl"`
}

type Config struct {
	Database      Database   `yaml:"database"`
	Redis         Redis      `yaml:"redis"`
	NATS          NATS       `yaml:"nats"`
	Management    Management `yaml:"management"`
	FaceSearch    FaceSearch `yaml:"face_search"`
	Blob          Blob       `yaml:"blob"`
	Ring          Ring       `yaml:"ring"`
	Engine        Engine     `yaml:"engine"`
	StateFile     string     `yaml:"state_file"`
	CredentialKey string     `yaml:"-"`
	FFmpegPath    string     `yaml:"ffmpeg_path"`
}

func defaults() *Config {
	return &Config{
		Database: Database{
			Host:    "localhost",
			Port:    5432,
			SSLMode: "disable",
		},
		Redis: Redis{
			Addr:     "localhost:6379",
			StateKey: "watchtower:loop_state",
		},
		NATS: NATS{
			URL:     "nats://localhost:4222",
			Subject: "watchtower.events",
		},
		Management: Management{
			Addr: ":8080",
		},
		Ring: Ring{
			UserAgent:    "watchtower/1.0",
			PollInterval: 60 * time.Second,
		},
		Engine: Engine{
			TickInterval:      5 * time.Second,
			HeartbeatTicks:    60,
			StopTimeout:       30 * time.Second,
			UploadWorkers:     2,
			FaceSearchWorkers: 2,
			SubmitDelay:       100 * time.Millisecond,
			RetryAttempts:     3,
			RetryBaseDelay:    2 * time.Second,
			RetryMaxDelay:     10 * time.Second,
			DedupCacheSize:    4096,
			DedupTTL:          10 * time.Minute,
		},
		StateFile: "data/loop_state.json",
	}
}

// Load reads the YAML file at path (missing file is fine, defaults apply)
// then layers environment variable overrides on top.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.NATS.URL, "NATS_URL")
	setString(&c.Management.SigningKey, "JWT_SIGNING_KEY")
	setString(&c.FaceSearch.APIKey, "FACE_SEARCH_API_KEY")
	setString(&c.Blob.APIKey, "BLOB_API_KEY")
	setString(&c.Ring.Username, "RING_USERNAME")
	setString(&c.Ring.Password, "RING_PASSWORD")
	setString(&c.CredentialKey, "CREDENTIAL_KEY")
	setString(&c.StateFile, "STATE_FILE")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

// MissingFieldsError reports which required settings were absent, all at
// once, so the operator fixes them in a single pass.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing required config: " + strings.Join(e.Fields, ", ")
}

// Validate checks that the settings the enabled components need are present.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.User == "" {
		missing = append(missing, "database.user (DB_USER)")
	}
	if c.Database.Name == "" {
		missing = append(missing, "database.name (DB_NAME)")
	}
	if c.Management.SigningKey == "" {
		missing = append(missing, "management signing key (JWT_SIGNING_KEY)")
	}
	if c.CredentialKey == "" {
		missing = append(missing, "credential key (CREDENTIAL_KEY)")
	}
	if c.Ring.Enabled && c.Ring.Username == "" {
		missing = append(missing, "ring.username (RING_USERNAME)")
	}
	if c.FaceSearch.BaseURL == "" {
		missing = append(missing, "face_search.base_url")
	}
	if c.Blob.BaseURL == "" {
		missing = append(missing, "blob.base_url")
	}

	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}
	return nil
}
