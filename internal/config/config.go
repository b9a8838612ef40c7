package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultPageSize        = 100
	DefaultTimestampFile   = "lastupdate.txt"
	DefaultTimestampLayout = "02/01/2006, 15:04:05"
)

type Config struct {
	Site          SiteConfig          `yaml:"site"`
	Rod           RodConfig           `yaml:"rod"`
	HTTP          HttpConfig          `yaml:"http"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Normalize     NormalizeConfig     `yaml:"normalize"`
	Output        OutputConfig        `yaml:"output"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
	RunTimeoutS   int                 `yaml:"run_timeout_s"`
	ParallelRuns  bool                `yaml:"parallel_runs"`
	Runs          []RunConfig         `yaml:"runs"`
}

// SiteConfig describes the vendor site: where the session is opened and
// which fixed constants go on every listing request.
type SiteConfig struct {
	RootURL          string `yaml:"root_url"`
	ListingPath      string `yaml:"listing_path"`
	APIPathPattern   string `yaml:"api_path_pattern"`
	LocaleSelector   string `yaml:"locale_selector"`
	LocaleText       string `yaml:"locale_text"`
	APIBaseURL       string `yaml:"api_base_url"`
	ListingEndpoint  string `yaml:"listing_endpoint"`
	Agent            string `yaml:"agent"`
	Location         string `yaml:"location"`
	Eid              string `yaml:"eid"`
	ProductURLBase   string `yaml:"product_url_base"`
	MediaBaseURL     string `yaml:"media_base_url"`
	PlaceholderImage string `yaml:"placeholder_image"`
	Currency         string `yaml:"currency"`
}

type RodConfig struct {
	ChromePath       string `yaml:"chrome_path"`
	Headless         bool   `yaml:"headless"`
	TokenTimeoutS    int    `yaml:"token_timeout_s"`
	WaitLoadTimeoutS int    `yaml:"wait_load_timeout_s"`
	LocaleTimeoutS   int    `yaml:"locale_timeout_s"`
}

type HttpConfig struct {
	UserAgent      string `yaml:"user_agent"`
	TotalTimeoutMS int    `yaml:"total_timeout_ms"`
}

type RateLimitConfig struct {
	RPM int `yaml:"rpm"`
}

type NormalizeConfig struct {
	TrimNBSP       bool `yaml:"trim_nbsp"`
	CollapseSpaces bool `yaml:"collapse_spaces"`
	StripMarkup    bool `yaml:"strip_markup"`
}

type OutputConfig struct {
	Dir             string `yaml:"dir"`
	TimestampFile   string `yaml:"timestamp_file"`
	TimestampLayout string `yaml:"timestamp_layout"`
	TimeZone        string `yaml:"time_zone"`
}

type StorageConfig struct {
	MSSQL MSSQLConfig `yaml:"mssql"`
}

type MSSQLConfig struct {
	Enabled          bool   `yaml:"enabled"`
	DSN              string `yaml:"dsn"`
	CommandTimeoutMS int    `yaml:"command_timeout_ms"`
}

type ObservabilityConfig struct {
	LogPath       string `yaml:"log_path"`
	LogLevel      string `yaml:"log_level"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`
	Color         bool   `yaml:"color"`
	MetricsPath   string `yaml:"metrics_path"`
}

// RunConfig is one harvest: a category, where its snapshot goes and the
// discount policy applied to it.
type RunConfig struct {
	Name            string  `yaml:"name"`
	Category        string  `yaml:"category"`
	Dataset         string  `yaml:"dataset"`
	ProductListType string  `yaml:"product_list_type"`
	MaxPages        int     `yaml:"max_pages"`
	PageSize        int     `yaml:"page_size"`
	Threshold       float64 `yaml:"threshold"`
	OfferType       string  `yaml:"offer_type"`
}

func (c *Config) applyDefaults() {
	if c.Output.TimestampFile == "" {
		c.Output.TimestampFile = DefaultTimestampFile
	}
	if c.Output.TimestampLayout == "" {
		c.Output.TimestampLayout = DefaultTimestampLayout
	}
	if c.Site.Currency == "" {
		c.Site.Currency = "€"
	}
	for i := range c.Runs {
		if c.Runs[i].PageSize == 0 {
			c.Runs[i].PageSize = DefaultPageSize
		}
		if c.Runs[i].Name == "" {
			c.Runs[i].Name = c.Runs[i].Dataset
		}
	}
}

// Validation
func (c *Config) Validate() error {
	if err := validateURL("site.root_url", c.Site.RootURL); err != nil {
		return err
	}
	if err := validateURL("site.api_base_url", c.Site.APIBaseURL); err != nil {
		return err
	}
	if c.Site.ListingPath == "" {
		return fmt.Errorf("site.listing_path is required")
	}
	if c.Site.APIPathPattern == "" {
		return fmt.Errorf("site.api_path_pattern is required")
	}
	if c.Site.ListingEndpoint == "" {
		return fmt.Errorf("site.listing_endpoint is required")
	}
	if c.Site.ProductURLBase == "" {
		return fmt.Errorf("site.product_url_base is required")
	}
	if c.Site.MediaBaseURL == "" {
		return fmt.Errorf("site.media_base_url is required")
	}
	if c.Site.PlaceholderImage == "" {
		return fmt.Errorf("site.placeholder_image is required")
	}
	if c.Site.LocaleText != "" && c.Site.LocaleSelector == "" {
		return fmt.Errorf("site.locale_selector is required when site.locale_text is set")
	}
	if c.Rod.TokenTimeoutS <= 0 {
		return fmt.Errorf("rod.token_timeout_s must be > 0")
	}
	if c.Rod.WaitLoadTimeoutS <= 0 {
		return fmt.Errorf("rod.wait_load_timeout_s must be > 0")
	}
	if c.Rod.LocaleTimeoutS < 0 {
		return fmt.Errorf("rod.locale_timeout_s must be >= 0")
	}
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if c.HTTP.TotalTimeoutMS <= 0 {
		return fmt.Errorf("http.total_timeout_ms must be > 0")
	}
	if c.RateLimit.RPM <= 0 {
		return fmt.Errorf("rate_limit.rpm must be > 0")
	}
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Output.TimeZone != "" {
		if _, err := time.LoadLocation(c.Output.TimeZone); err != nil {
			return fmt.Errorf("output.time_zone is invalid: %w", err)
		}
	}
	if c.Storage.MSSQL.Enabled {
		if c.Storage.MSSQL.DSN == "" {
			return fmt.Errorf("storage.mssql.dsn is required when storage.mssql.enabled is true")
		}
		if c.Storage.MSSQL.CommandTimeoutMS <= 0 {
			return fmt.Errorf("storage.mssql.command_timeout_ms must be > 0")
		}
	}
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("observability.log_level is required")
	}
	if c.RunTimeoutS < 0 {
		return fmt.Errorf("run_timeout_s must be >= 0")
	}
	if len(c.Runs) == 0 {
		return fmt.Errorf("at least one run is required")
	}

	seen := make(map[string]bool, len(c.Runs))
	for i, r := range c.Runs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("runs[%d]: %w", i, err)
		}
		if seen[r.Dataset] {
			return fmt.Errorf("runs[%d]: dataset %q is used by another run", i, r.Dataset)
		}
		seen[r.Dataset] = true
	}
	return nil
}

func (r RunConfig) Validate() error {
	if r.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if r.ProductListType == "" {
		return fmt.Errorf("product_list_type is required")
	}
	if r.OfferType == "" {
		return fmt.Errorf("offer_type is required")
	}
	if r.MaxPages <= 0 {
		return fmt.Errorf("max_pages must be > 0")
	}
	if r.PageSize <= 0 {
		return fmt.Errorf("page_size must be > 0")
	}
	if r.Threshold < 0 || r.Threshold > 100 {
		return fmt.Errorf("threshold must be between 0 and 100")
	}
	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is invalid: %w", field, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", field)
	}
	return nil
}

// Run returns the run with the given name.
func (c *Config) Run(name string) (RunConfig, bool) {
	for _, r := range c.Runs {
		if r.Name == name {
			return r, true
		}
	}
	return RunConfig{}, false
}

// Getters
func (c *Config) GetTotalTimeout() time.Duration {
	return time.Duration(c.HTTP.TotalTimeoutMS) * time.Millisecond
}

func (c *Config) GetTokenTimeout() time.Duration {
	return time.Duration(c.Rod.TokenTimeoutS) * time.Second
}

func (c *Config) GetRodWaitLoadTimeout() time.Duration {
	return time.Duration(c.Rod.WaitLoadTimeoutS) * time.Second
}

func (c *Config) GetRodLocaleTimeout() time.Duration {
	return time.Duration(c.Rod.LocaleTimeoutS) * time.Second
}

func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Storage.MSSQL.CommandTimeoutMS) * time.Millisecond
}

func (c *Config) GetRunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutS) * time.Second
}

// GetTimeZone falls back to the local zone when none is configured.
func (c *Config) GetTimeZone() *time.Location {
	if c.Output.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Output.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}
