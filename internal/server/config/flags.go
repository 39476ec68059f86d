package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/kajix/internal/flagx"
)

var serverFlags = []string{
	"-a", "-d", "-s", "-t", "-r", "-k", "-x", "-w", "-l", "-m", "-i", "-v",
	"-u", "-p", "-b", "-g", "-e",
}

// parseFlags overlays command-line flags onto config.
//
//	-a string   HTTP bind address (":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-k string   token store: postgres | redis
//	-x string   redis address
//	-w int      scrape navigation timeout, seconds
//	-l int      max links extracted per page
//	-m int      max pages per crawl (0 = unbounded)
//	-i bool     include cross-host links as external entries (-i=true)
//	-v string   log level
//	-u/-p/-b/-g/-e  S3 user, password, bucket, region, endpoint
//
// Only the flags above are looked at; anything else in os.Args is ignored.
func parseFlags(config *Config) error {
	args := flagx.FilterArgs(os.Args[1:], serverFlags)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshMinutes := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")

	fs.StringVar(&config.TokenStore, "k", config.TokenStore, "token store (postgres|redis)")
	fs.StringVar(&config.RedisAddr, "x", config.RedisAddr, "redis address")

	scrapeSeconds := fs.Int("w", int(config.ScrapeTimeout.Seconds()), "scrape navigation timeout (in seconds)")
	fs.IntVar(&config.MaxLinksPerPage, "l", config.MaxLinksPerPage, "max links per page")
	fs.IntVar(&config.MaxPagesPerCrawl, "m", config.MaxPagesPerCrawl, "max pages per crawl, 0 for unbounded")
	fs.BoolVar(&config.IncludeExternalLinks, "i", config.IncludeExternalLinks, "include external links as content entries")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessMinutes) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshMinutes) * time.Minute
	config.ScrapeTimeout = time.Duration(*scrapeSeconds) * time.Second
	return nil
}
