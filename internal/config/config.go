package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "KEEPSAKE"

	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultLogLevel         = "info"
	defaultBlobBackend      = "sqlite"
	defaultSQLitePath       = "keepsake.db"
	defaultTokenTTLMinutes  = 60
	defaultBodyMaxChars     = 5000
	defaultListMaxItems     = 500
	defaultExcerptChars     = 200
	defaultFetchConcurrency = 4
	defaultRequestsPerSec   = 5.0
	defaultBurst            = 10
)

// BlobBackend selects which blob store implementation the server uses.
type BlobBackend string

const (
	// BlobBackendHTTP targets the hosted blob service.
	BlobBackendHTTP BlobBackend = "http"
	// BlobBackendSQLite keeps blobs in a local SQLite file.
	BlobBackendSQLite BlobBackend = "sqlite"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string

	BlobBackend    BlobBackend
	BlobBaseURL    string
	BlobReadToken  string
	BlobWriteToken string
	BlobSQLitePath string

	CDNCloudName string
	CDNAPIKey    string
	CDNAPISecret string

	AntibotSecret    string
	AntibotVerifyURL string

	CuratorPassword      string
	CuratorSigningSecret string
	CuratorTokenTTL      time.Duration

	BodyMaxChars     int
	ListMaxItems     int
	ExcerptChars     int
	FetchConcurrency int

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("blob.backend", defaultBlobBackend)
	configViper.SetDefault("blob.sqlite_path", defaultSQLitePath)
	configViper.SetDefault("curator.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("limits.body_max_chars", defaultBodyMaxChars)
	configViper.SetDefault("limits.list_max_items", defaultListMaxItems)
	configViper.SetDefault("limits.excerpt_chars", defaultExcerptChars)
	configViper.SetDefault("limits.fetch_concurrency", defaultFetchConcurrency)
	configViper.SetDefault("ratelimit.requests_per_second", defaultRequestsPerSec)
	configViper.SetDefault("ratelimit.burst", defaultBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		LogLevel:             configViper.GetString("log.level"),
		BlobBackend:          BlobBackend(strings.ToLower(configViper.GetString("blob.backend"))),
		BlobBaseURL:          configViper.GetString("blob.base_url"),
		BlobReadToken:        configViper.GetString("blob.read_token"),
		BlobWriteToken:       configViper.GetString("blob.write_token"),
		BlobSQLitePath:       configViper.GetString("blob.sqlite_path"),
		CDNCloudName:         configViper.GetString("cdn.cloud_name"),
		CDNAPIKey:            configViper.GetString("cdn.api_key"),
		CDNAPISecret:         configViper.GetString("cdn.api_secret"),
		AntibotSecret:        configViper.GetString("antibot.secret"),
		AntibotVerifyURL:     configViper.GetString("antibot.verify_url"),
		CuratorPassword:      configViper.GetString("curator.password"),
		CuratorSigningSecret: configViper.GetString("curator.signing_secret"),
		CuratorTokenTTL:      time.Duration(configViper.GetInt("curator.token_ttl_minutes")) * time.Minute,
		BodyMaxChars:         configViper.GetInt("limits.body_max_chars"),
		ListMaxItems:         configViper.GetInt("limits.list_max_items"),
		ExcerptChars:         configViper.GetInt("limits.excerpt_chars"),
		FetchConcurrency:     configViper.GetInt("limits.fetch_concurrency"),
		RateLimitPerSecond:   configViper.GetFloat64("ratelimit.requests_per_second"),
		RateLimitBurst:       configViper.GetInt("ratelimit.burst"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.CuratorSigningSecret) == "" {
		return fmt.Errorf("curator.signing_secret is required")
	}
	if strings.TrimSpace(c.CuratorPassword) == "" {
		return fmt.Errorf("curator.password is required")
	}
	switch c.BlobBackend {
	case BlobBackendSQLite:
		if strings.TrimSpace(c.BlobSQLitePath) == "" {
			return fmt.Errorf("blob.sqlite_path is required for the sqlite backend")
		}
	case BlobBackendHTTP:
		if strings.TrimSpace(c.BlobBaseURL) == "" {
			return fmt.Errorf("blob.base_url is required for the http backend")
		}
		if strings.TrimSpace(c.BlobWriteToken) == "" {
			return fmt.Errorf("blob.write_token is required for the http backend")
		}
	default:
		return fmt.Errorf("blob.backend must be %q or %q", BlobBackendHTTP, BlobBackendSQLite)
	}
	if c.BodyMaxChars <= 0 {
		return fmt.Errorf("limits.body_max_chars must be positive")
	}
	if c.ListMaxItems <= 0 {
		return fmt.Errorf("limits.list_max_items must be positive")
	}
	if c.ExcerptChars <= 0 {
		return fmt.Errorf("limits.excerpt_chars must be positive")
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("limits.fetch_concurrency must be positive")
	}
	return nil
}
