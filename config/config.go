// Package config loads server and client settings. Priority, lowest first:
// defaults, TOML file, .env, environment variables, command-line flags.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
	Redis   RedisConfig   `toml:"redis"`
	Queue   QueueConfig   `toml:"queue"`
	Auth    AuthConfig    `toml:"auth"`
	AI      AIConfig      `toml:"ai"`
	Client  ClientConfig  `toml:"client"`
}

type ServerConfig struct {
	Listen   string `toml:"listen"`
	LogLevel string `toml:"log_level"`
	// Worker runs queue consumers inside the server process.
	Worker bool `toml:"worker"`
}

type StorageConfig struct {
	Type           string `toml:"type"` // memory, sqlite, filesystem, s3, mongo
	DataSourceName string `toml:"data_source_name"`
	LocalPath      string `toml:"local_path"`
	S3Bucket       string `toml:"s3_bucket"`
	MongoURI       string `toml:"mongo_uri"`
	MongoDatabase  string `toml:"mongo_database"`
}

type RedisConfig struct {
	URL      string   `toml:"url"`
	CacheTTL Duration `toml:"cache_ttl"`
}

type QueueConfig struct {
	Backend            string   `toml:"backend"` // memory, redis, direct
	Concurrency        int      `toml:"concurrency"`
	RatePerSecond      float64  `toml:"rate_per_second"`
	Attempts           int      `toml:"attempts"`
	Backoff            Duration `toml:"backoff"`
	CompletedRetention Duration `toml:"completed_retention"`
	CompletedMax       int64    `toml:"completed_max"`
	FailedMax          int64    `toml:"failed_max"`
}

type AuthConfig struct {
	JWTSecret          string `toml:"jwt_secret"`
	GitHubClientID     string `toml:"github_client_id"`
	GitHubClientSecret string `toml:"github_client_secret"`
	GitHubRedirectURL  string `toml:"github_redirect_url"`
	OIDCIssuerURL      string `toml:"oidc_issuer_url"`
	OIDCClientID       string `toml:"oidc_client_id"`
	OIDCClientSecret   string `toml:"oidc_client_secret"`
	OIDCRedirectURL    string `toml:"oidc_redirect_url"`
	// FrontendURL receives the token after a successful login.
	FrontendURL string `toml:"frontend_url"`
}

type AIConfig struct {
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

type ClientConfig struct {
	BaseURL  string   `toml:"base_url"`
	Token    string   `toml:"token"`
	CacheDir string   `toml:"cache_dir"`
	Debounce Duration `toml:"debounce"`
	Timeout  Duration `toml:"timeout"`

	// EraseRadius is how far, in scene units, the eraser reaches past an
	// object's bounds.
	EraseRadius float64 `toml:"erase_radius"`
}

// Duration is a time.Duration that can be unmarshaled from TOML strings.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for Duration.
func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:   ":8081",
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Type:           "memory",
			DataSourceName: "compass.db",
			LocalPath:      "./data",
			MongoDatabase:  "compass",
		},
		Redis: RedisConfig{
			CacheTTL: Duration(time.Hour),
		},
		Queue: QueueConfig{
			Backend:            "memory",
			Concurrency:        5,
			RatePerSecond:      10,
			Attempts:           3,
			Backoff:            Duration(time.Second),
			CompletedRetention: Duration(time.Hour),
			CompletedMax:       100,
			FailedMax:          1000,
		},
		AI: AIConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Client: ClientConfig{
			BaseURL:  "http://localhost:8081/api",
			CacheDir: ".compass",
			Debounce: Duration(500 * time.Millisecond),
			Timeout:  Duration(30 * time.Second),

			EraseRadius: 20,
		},
	}
}

// Load builds the configuration from defaults, the optional TOML file at
// path, an optional .env file and the environment. A missing file at path
// is only an error when path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = "compass.toml"
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	str("LISTEN_ADDR", &c.Server.Listen)
	str("LOG_LEVEL", &c.Server.LogLevel)

	str("STORAGE_TYPE", &c.Storage.Type)
	str("DATA_SOURCE_NAME", &c.Storage.DataSourceName)
	str("LOCAL_STORAGE_PATH", &c.Storage.LocalPath)
	str("S3_BUCKET_NAME", &c.Storage.S3Bucket)
	str("MONGO_URI", &c.Storage.MongoURI)
	str("MONGO_DATABASE", &c.Storage.MongoDatabase)

	str("REDIS_URL", &c.Redis.URL)
	if v := getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Redis.CacheTTL = Duration(d)
		}
	}

	str("QUEUE_BACKEND", &c.Queue.Backend)
	if v := getenv("QUEUE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Queue.Concurrency = n
		}
	}

	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("GITHUB_CLIENT_ID", &c.Auth.GitHubClientID)
	str("GITHUB_CLIENT_SECRET", &c.Auth.GitHubClientSecret)
	str("GITHUB_REDIRECT_URL", &c.Auth.GitHubRedirectURL)
	str("OIDC_ISSUER_URL", &c.Auth.OIDCIssuerURL)
	str("OIDC_CLIENT_ID", &c.Auth.OIDCClientID)
	str("OIDC_CLIENT_SECRET", &c.Auth.OIDCClientSecret)
	str("OIDC_REDIRECT_URL", &c.Auth.OIDCRedirectURL)
	str("FRONTEND_URL", &c.Auth.FrontendURL)

	str("OPENAI_API_KEY", &c.AI.APIKey)
	str("OPENAI_BASE_URL", &c.AI.BaseURL)
	str("OPENAI_MODEL", &c.AI.Model)

	str("COMPASS_API_URL", &c.Client.BaseURL)
	str("COMPASS_TOKEN", &c.Client.Token)
	str("COMPASS_CACHE_DIR", &c.Client.CacheDir)
	if v := getenv("COMPASS_ERASE_RADIUS"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r >= 0 {
			c.Client.EraseRadius = r
		}
	}
}
