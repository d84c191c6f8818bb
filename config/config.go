package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. SCRAPER_PAGES.
const EnvPrefix = "SCRAPER"

// Selectors locate the listing markup on a page.
type Selectors struct {
	Entry  string
	Anchor string
	Price  string
	Rating string
	Next   string
}

// DefaultSelectors match the books.toscrape.com catalogue.
func DefaultSelectors() Selectors {
	return Selectors{
		Entry:  "article.product_pod",
		Anchor: "h3 a",
		Price:  "p.price_color",
		Rating: "p.star-rating",
		Next:   "li.next",
	}
}

// Config holds scraper configuration. It is not modified once a crawl starts.
type Config struct {
	StartURL string
	// MaxPages bounds the crawl; zero means unbounded.
	MaxPages     int
	Delay        time.Duration
	RandomDelay  time.Duration
	Timeout      time.Duration
	OutputFile   string
	OutputFormat string // csv, json, or dual
	UserAgent    string
	Verbose      bool
	MetricsAddr  string
	Selectors    Selectors
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		StartURL:     "http://books.toscrape.com/",
		MaxPages:     0,
		Delay:        1 * time.Second,
		RandomDelay:  1 * time.Second,
		Timeout:      10 * time.Second,
		OutputFile:   "books.csv",
		OutputFormat: "csv",
		UserAgent:    "Mozilla/5.0 (compatible; learning-bot/1.0)",
		Verbose:      false,
		MetricsAddr:  "",
		Selectors:    DefaultSelectors(),
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.StartURL == "" {
		return fmt.Errorf("start URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.StartURL)
	if err != nil {
		return fmt.Errorf("invalid start URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("start URL must include a host")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("start URL scheme must be http or https")
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.Selectors.Entry == "" || c.Selectors.Anchor == "" || c.Selectors.Next == "" {
		return fmt.Errorf("entry, anchor and next selectors are required")
	}

	return nil
}

// SetDefaults registers DefaultConfig values on v so that flags, env and
// config files only need to override what they change.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("start-url", d.StartURL)
	v.SetDefault("pages", d.MaxPages)
	v.SetDefault("delay", d.Delay)
	v.SetDefault("random-delay", d.RandomDelay)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("output", d.OutputFile)
	v.SetDefault("format", d.OutputFormat)
	v.SetDefault("user-agent", d.UserAgent)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("metrics-addr", d.MetricsAddr)
	v.SetDefault("selectors.entry", d.Selectors.Entry)
	v.SetDefault("selectors.anchor", d.Selectors.Anchor)
	v.SetDefault("selectors.price", d.Selectors.Price)
	v.SetDefault("selectors.rating", d.Selectors.Rating)
	v.SetDefault("selectors.next", d.Selectors.Next)
}

// BindEnv enables SCRAPER_* environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		StartURL:     strings.TrimSpace(v.GetString("start-url")),
		MaxPages:     v.GetInt("pages"),
		Delay:        v.GetDuration("delay"),
		RandomDelay:  v.GetDuration("random-delay"),
		Timeout:      v.GetDuration("timeout"),
		OutputFile:   v.GetString("output"),
		OutputFormat: strings.ToLower(v.GetString("format")),
		UserAgent:    v.GetString("user-agent"),
		Verbose:      v.GetBool("verbose"),
		MetricsAddr:  v.GetString("metrics-addr"),
		Selectors: Selectors{
			Entry:  v.GetString("selectors.entry"),
			Anchor: v.GetString("selectors.anchor"),
			Price:  v.GetString("selectors.price"),
			Rating: v.GetString("selectors.rating"),
			Next:   v.GetString("selectors.next"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
