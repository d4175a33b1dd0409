package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Output     Output     `yaml:"output"`
	Index      Index      `yaml:"index"`
	Relational Relational `yaml:"relational"`
	Ingest     Ingest     `yaml:"ingest"`
	Sources    Sources    `yaml:"sources"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Index struct {
	Path string `yaml:"path"`
}

type Relational struct {
	Driver         string `yaml:"driver"`
	SQLitePath     string `yaml:"sqlite_path"`
	PostgresURLEnv string `yaml:"postgres_url_env"`
}

type Ingest struct {
	CommentAuthor string `yaml:"comment_author"`
}

type Sources struct {
	HTTPTimeout           time.Duration `yaml:"http_timeout"`
	S3                    S3            `yaml:"s3"`
	FeedRequestsPerSecond float64       `yaml:"feed_requests_per_second"`
	Feeds                 []Feed        `yaml:"feeds"`
}

type S3 struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Server struct {
	Host      string    `yaml:"host"`
	Port      int       `yaml:"port"`
	BasicAuth BasicAuth `yaml:"basic_auth"`
}

type BasicAuth struct {
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Relational store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ConfigDir returns the XDG config directory for textlib.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "textlib")
}

// DataDir returns the XDG data directory for textlib.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "textlib")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/textlib/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'textlib init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Index: Index{Path: "index.db"},
		Relational: Relational{
			Driver:         DriverSQLite,
			SQLitePath:     "textlib.db",
			PostgresURLEnv: "TEXTLIB_POSTGRES_URL",
		},
		Ingest: Ingest{CommentAuthor: "Unknown"},
		Sources: Sources{
			HTTPTimeout: 2 * time.Minute,
			S3:          S3{Region: "us-east-1"},
		},
		Server: Server{
			Host:      "127.0.0.1",
			Port:      8000,
			BasicAuth: BasicAuth{PasswordEnv: "TEXTLIB_API_PASSWORD"},
		},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.Relational.Driver = strings.ToLower(cfg.Relational.Driver)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Relational.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("invalid relational.driver %q: want %s or %s", c.Relational.Driver, DriverSQLite, DriverPostgres)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Sources.FeedRequestsPerSecond < 0 {
		return fmt.Errorf("sources.feed_requests_per_second must not be negative")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// IndexPath returns the location of the full-text index database.
func (c *Config) IndexPath() string {
	return c.resolve(c.Index.Path, "index.db")
}

// SQLitePath returns the location of the relational SQLite database.
func (c *Config) SQLitePath() string {
	return c.resolve(c.Relational.SQLitePath, "textlib.db")
}

// PostgresURL returns the connection string from the configured env var.
func (c *Config) PostgresURL() (string, error) {
	url := os.Getenv(c.Relational.PostgresURLEnv)
	if url == "" {
		return "", fmt.Errorf("%s is not set", c.Relational.PostgresURLEnv)
	}
	return url, nil
}

// BasicAuthPassword returns the API password from the configured env var.
func (c *Config) BasicAuthPassword() string {
	return os.Getenv(c.Server.BasicAuth.PasswordEnv)
}

// Debug reports whether verbose per-annotation logging is enabled.
func (c *Config) Debug() bool {
	return strings.EqualFold(c.Logging.Level, "DEBUG")
}

func (c *Config) resolve(p, def string) string {
	if p == "" {
		p = def
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.GetDataDir(), p)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
