package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for coursesync.
type Config struct {
	InstanceID string         `toml:"instance_id"`
	BaseDir    string         `toml:"base_dir"`
	LogDir     string         `toml:"log_dir"`
	Site       SiteConfig     `toml:"site"`
	Fetch      FetchConfig    `toml:"fetch"`
	Store      StoreConfig    `toml:"store"`
	Database   DatabaseConfig `toml:"database"`
	Spool      SpoolConfig    `toml:"spool"`
	Session    SessionConfig  `toml:"session"`
}

// SiteConfig describes the content site being crawled.
type SiteConfig struct {
	BaseURL            string  `toml:"base_url"` // e.g. "https://moodle.example.edu"
	UserAgent          string  `toml:"user_agent,omitempty"`
	PageTimeoutSeconds int     `toml:"page_timeout_seconds"`
	RequestsPerSecond  float64 `toml:"requests_per_second"`
	MaxCourses         int     `toml:"max_courses"`                 // 0 processes every listed course
	CloudflareBypass   bool    `toml:"cloudflare_bypass,omitempty"` // wrap the transport with cloudflare-bp
}

// PageTimeout returns the per-page navigation timeout.
func (c SiteConfig) PageTimeout() time.Duration {
	return time.Duration(c.PageTimeoutSeconds) * time.Second
}

// FetchConfig controls resource downloads.
type FetchConfig struct {
	Concurrency    int      `toml:"concurrency"` // simultaneous downloads per course
	TimeoutSeconds int      `toml:"timeout_seconds"`
	Ignore         []string `toml:"ignore"` // filename glob patterns that are never downloaded
}

// Timeout returns the per-download timeout.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StoreConfig represents configuration for the object store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // S3-compatible services such as MinIO
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
	S3PathStyle       bool   `toml:"s3_path_style,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// DatabaseConfig represents configuration for the course database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// SpoolConfig represents configuration for the local download spool.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type SpoolConfig struct {
	Type     string `toml:"type"`                // "memory" or "filesystem"
	SpoolDir string `toml:"spool_dir,omitempty"` // only used for type=filesystem
}

// SessionConfig locates the site session cookies.
type SessionConfig struct {
	Path string `toml:"path"` // age-encrypted cookie export written by "session import"
}

// NewConfig creates a new Config with the provided values and defaults for
// everything that has one.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		InstanceID: instanceID,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Site: SiteConfig{
			PageTimeoutSeconds: 30,
			RequestsPerSecond:  2,
		},
		Fetch: FetchConfig{
			Concurrency:    4,
			TimeoutSeconds: 120,
		},
		Store: StoreConfig{
			Type:   "filesystem",
			Name:   "local",
			FSRoot: filepath.Join(baseDir, "objects"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Spool: SpoolConfig{
			Type:     "filesystem",
			SpoolDir: filepath.Join(baseDir, "spool"),
		},
		Session: SessionConfig{
			Path: filepath.Join(baseDir, "session.age"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The config may carry S3 credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

// Validate checks the fields every command relies on.
func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url is required")
	}
	if c.Fetch.Concurrency < 0 {
		return fmt.Errorf("fetch.concurrency must not be negative")
	}
	if c.Site.MaxCourses < 0 {
		return fmt.Errorf("site.max_courses must not be negative")
	}
	for _, pattern := range c.Fetch.Ignore {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("fetch.ignore pattern %q: %w", pattern, err)
		}
	}
	return nil
}
