package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/kajix/internal/flagx"
	"github.com/dmitrijs2005/kajix/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "15m"-style strings or integer nanoseconds. Absent keys leave the current
// value untouched, so a file may set only what it cares about.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	LogLevel                     string         `json:"log_level"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`

	EmailConfirmationValidityDuration timex.Duration `json:"email_confirmation_validity_duration"`
	FrontendURL                       string         `json:"frontend_url"`

	TokenStore    string `json:"token_store"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       *int   `json:"redis_db"`

	ScrapeTimeout        timex.Duration `json:"scrape_timeout"`
	MaxLinksPerPage      *int           `json:"max_links_per_page"`
	MaxPagesPerCrawl     *int           `json:"max_pages_per_crawl"`
	IncludeExternalLinks *bool          `json:"include_external_links"`
	UserAgent            string         `json:"user_agent"`
	BrowserExecPath      string         `json:"browser_exec_path"`

	ArchiveSnapshots *bool  `json:"archive_snapshots"`
	S3RootUser       string `json:"s3_root_user"`
	S3RootPassword   string `json:"s3_root_password"`
	S3Bucket         string `json:"s3_bucket"`
	S3Region         string `json:"s3_region"`
	S3BaseEndpoint   string `json:"s3_base_endpoint"`

	LoginRateLimitPerMinute *int `json:"login_rate_limit_per_minute"`
}

// parseJson overlays the file named by -c/-config (or $KAJIX_CONFIG) onto
// config. No file configured is not an error.
func parseJson(config *Config) error {
	path := flagx.ConfigFilePath()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.LogLevel, c.LogLevel)
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.EmailConfirmationValidityDuration.Duration > 0 {
		config.EmailConfirmationValidityDuration = c.EmailConfirmationValidityDuration.Duration
	}
	setString(&config.FrontendURL, c.FrontendURL)

	setString(&config.TokenStore, c.TokenStore)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	setPtr(&config.RedisDB, c.RedisDB)

	if c.ScrapeTimeout.Duration > 0 {
		config.ScrapeTimeout = c.ScrapeTimeout.Duration
	}
	setPtr(&config.MaxLinksPerPage, c.MaxLinksPerPage)
	setPtr(&config.MaxPagesPerCrawl, c.MaxPagesPerCrawl)
	setPtr(&config.IncludeExternalLinks, c.IncludeExternalLinks)
	setString(&config.UserAgent, c.UserAgent)
	setString(&config.BrowserExecPath, c.BrowserExecPath)

	setPtr(&config.ArchiveSnapshots, c.ArchiveSnapshots)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setPtr(&config.LoginRateLimitPerMinute, c.LoginRateLimitPerMinute)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
