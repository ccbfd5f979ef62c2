package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Browser driver names.
const (
	BrowserPlaywright = "playwright"
	BrowserChromedp   = "chromedp"
)

// Config errors
var (
	ErrInvalidAppURL    = errors.New("app_url must be an absolute http(s) URL")
	ErrInvalidBrowser   = errors.New("browser must be one of: playwright, chromedp")
	ErrInvalidAPIPrefix = errors.New("api_prefix must start with '/'")
)

// Config holds harness settings.
type Config struct {
	AppURL       string        `mapstructure:"app_url"`
	APIPrefix    string        `mapstructure:"api_prefix"`
	AwaitTimeout time.Duration `mapstructure:"await_timeout"`
	LandingRoute string        `mapstructure:"landing_route"`
	LoginRoute   string        `mapstructure:"login_route"`
	Browser      string        `mapstructure:"browser"`
	Headless     bool          `mapstructure:"headless"`
	JournalPath  string        `mapstructure:"journal_path"`
	ListenAddr   string        `mapstructure:"listen_addr"`
	LogLevel     string        `mapstructure:"log_level"`
	ResendKey    string        `mapstructure:"resend_key"`
	ReportFrom   string        `mapstructure:"report_from"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		AppURL:       "http://localhost:4200",
		APIPrefix:    "/api",
		AwaitTimeout: 4 * time.Second,
		LandingRoute: "/sessions",
		LoginRoute:   "/login",
		Browser:      BrowserPlaywright,
		Headless:     true,
		ListenAddr:   "127.0.0.1:3001",
		LogLevel:     "info",
		ReportFrom:   "Yoga Harness <harness@yoga.test>",
	}
}

// Load reads .env (if present), then YOGA_* environment variables, then the
// optional config file at path. Environment wins over the file.
// PRE: path is "" or a readable toml/yaml/json file
// POST: Returns a validated Config
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config_event", "event", "no_dotenv", "reason", err.Error())
	}

	v := viper.New()
	d := Defaults()
	v.SetDefault("app_url", d.AppURL)
	v.SetDefault("api_prefix", d.APIPrefix)
	v.SetDefault("await_timeout", d.AwaitTimeout)
	v.SetDefault("landing_route", d.LandingRoute)
	v.SetDefault("login_route", d.LoginRoute)
	v.SetDefault("browser", d.Browser)
	v.SetDefault("headless", d.Headless)
	v.SetDefault("journal_path", d.JournalPath)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("resend_key", d.ResendKey)
	v.SetDefault("report_from", d.ReportFrom)

	v.SetEnvPrefix("YOGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks if the Config has valid data.
// PRE: Config struct is populated
// POST: Returns nil if valid, error otherwise
func (c *Config) Validate() error {
	u, err := url.Parse(c.AppURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidAppURL
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		return ErrInvalidAPIPrefix
	}
	if c.Browser != BrowserPlaywright && c.Browser != BrowserChromedp {
		return ErrInvalidBrowser
	}
	return nil
}

// URL joins route onto AppURL.
func (c Config) URL(route string) string {
	return strings.TrimRight(c.AppURL, "/") + "/" + strings.TrimLeft(route, "/")
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
