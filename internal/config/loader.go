package config

import (
	"fmt"
	"time"

	"github.com/qkbintel/registry/internal/db"
	"github.com/spf13/viper"
)

// Scraper holds upstream-source settings for ingestion runs.
type Scraper struct {
	BaseURL        string
	UserAgent      string
	RequestDelay   time.Duration
	RequestTimeout time.Duration
	RetryCount     int
	RetryDelay     time.Duration
	Concurrency    int
	PerItemTimeout time.Duration
	RunTimeout     time.Duration
}

// Server holds HTTP server settings.
type Server struct {
	Addr           string
	AllowedOrigins []string
}

// Config is the full application configuration.
type Config struct {
	Database db.Config
	Scraper  Scraper
	Server   Server
}

// DefaultScraper returns the polite defaults used against the public mirror.
func DefaultScraper() Scraper {
	return Scraper{
		BaseURL:        "https://opencorporates.al",
		UserAgent:      "QKBIntelligence/1.0 (research; contact@qkb.al)",
		RequestDelay:   1500 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		RetryCount:     2,
		RetryDelay:     5 * time.Second,
		Concurrency:    2,
		PerItemTimeout: 90 * time.Second,
		RunTimeout:     4 * time.Hour,
	}
}

// Load reads config.yaml from configPath with environment overrides
// (REG_DATABASE_HOST, REG_SCRAPER_CONCURRENCY, ...), falling back to defaults.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Database: db.DefaultConfig(),
		Scraper:  DefaultScraper(),
		Server:   Server{Addr: ":8080", AllowedOrigins: []string{"http://localhost:3000"}},
	}

	if configPath == "" {
		configPath = "."
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("REG")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("scraper.base_url")
	v.BindEnv("scraper.concurrency")
	v.BindEnv("server.addr")

	if err := v.ReadInConfig(); err != nil {
		// Config file not found? Just log it, use defaults + env
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("scraper.base_url") {
		cfg.Scraper.BaseURL = v.GetString("scraper.base_url")
	}
	if v.IsSet("scraper.user_agent") {
		cfg.Scraper.UserAgent = v.GetString("scraper.user_agent")
	}
	if v.IsSet("scraper.request_delay") {
		cfg.Scraper.RequestDelay = v.GetDuration("scraper.request_delay")
	}
	if v.IsSet("scraper.request_timeout") {
		cfg.Scraper.RequestTimeout = v.GetDuration("scraper.request_timeout")
	}
	if v.IsSet("scraper.retry_count") {
		cfg.Scraper.RetryCount = v.GetInt("scraper.retry_count")
	}
	if v.IsSet("scraper.retry_delay") {
		cfg.Scraper.RetryDelay = v.GetDuration("scraper.retry_delay")
	}
	if v.IsSet("scraper.concurrency") {
		cfg.Scraper.Concurrency = v.GetInt("scraper.concurrency")
	}
	if v.IsSet("scraper.per_item_timeout") {
		cfg.Scraper.PerItemTimeout = v.GetDuration("scraper.per_item_timeout")
	}
	if v.IsSet("scraper.run_timeout") {
		cfg.Scraper.RunTimeout = v.GetDuration("scraper.run_timeout")
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}

	return cfg, nil
}
