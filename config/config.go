// Package config merges command-line flags, PHOTOSORTER_* environment
// variables and an optional config file into one Config.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"photosorter/geocoder"
	"photosorter/imageprocessor"
	"photosorter/utils"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, with dashes
// turned into underscores: PHOTOSORTER_GEOCODE_TIMEOUT.
const EnvPrefix = "PHOTOSORTER"

// Config is the resolved configuration of a run
type Config struct {
	Source  string
	Archive string
	Workers int

	Hasher    string
	CachePath string
	NoCache   bool
	Exiftool  bool

	Geocode GeocodeConfig

	DryRun     bool
	PruneEmpty bool
	Progress   bool
	Debug      bool
	LogFile    string
}

// GeocodeConfig configures reverse geocoding
type GeocodeConfig struct {
	Disabled  bool
	Endpoint  string
	UserAgent string
	Timeout   time.Duration
	Rate      float64
	CacheSize int
}

// RegisterFlags defines every configuration flag on fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("source", "s", "", "directory holding unsorted images")
	fs.StringP("archive", "a", "", "root of the sorted archive")
	fs.IntP("workers", "j", 0, "files processed in parallel (0 = auto)")
	fs.String("hasher", imageprocessor.BackendOpenCV, "fingerprint backend: opencv or native")
	fs.String("cache", utils.GetDefaultCachePath(), "fingerprint cache database")
	fs.Bool("no-cache", false, "do not use the fingerprint cache")
	fs.Bool("exiftool", true, "use exiftool, when installed, for files goexif cannot read")
	fs.String("geocode-endpoint", geocoder.DefaultEndpoint, "Nominatim base URL")
	fs.String("geocode-user-agent", geocoder.DefaultUserAgent, "User-Agent sent to Nominatim")
	fs.Duration("geocode-timeout", geocoder.DefaultTimeout, "timeout of one reverse geocoding request")
	fs.Float64("geocode-rate", geocoder.DefaultRequestsPerSecond, "reverse geocoding requests per second (0 = unlimited)")
	fs.Int("geocode-cache-size", geocoder.DefaultCacheSize, "memoized reverse geocoding answers")
	fs.Bool("no-geocode", false, "never look up place names")
	fs.Bool("dry-run", false, "report destinations without moving files")
	fs.Bool("prune-empty", false, "remove source directories left empty")
	fs.Bool("progress", true, "show a progress bar")
	fs.Bool("debug", false, "verbose logging")
	fs.String("logfile", "", "also write JSON logs to this file")
}

// Load resolves the configuration. Precedence, highest first: flags set
// on the command line, environment, config file, defaults.
func Load(fs *pflag.FlagSet, file string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	defaults := pflag.NewFlagSet("defaults", pflag.ContinueOnError)
	RegisterFlags(defaults)
	defaults.VisitAll(func(f *pflag.Flag) {
		v.SetDefault(f.Name, f.DefValue)
	})

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", file, err)
		}
	}

	return &Config{
		Source:     v.GetString("source"),
		Archive:    v.GetString("archive"),
		Workers:    v.GetInt("workers"),
		Hasher:     strings.ToLower(v.GetString("hasher")),
		CachePath:  v.GetString("cache"),
		NoCache:    v.GetBool("no-cache"),
		Exiftool:   v.GetBool("exiftool"),
		DryRun:     v.GetBool("dry-run"),
		PruneEmpty: v.GetBool("prune-empty"),
		Progress:   v.GetBool("progress"),
		Debug:      v.GetBool("debug"),
		LogFile:    v.GetString("logfile"),
		Geocode: GeocodeConfig{
			Disabled:  v.GetBool("no-geocode"),
			Endpoint:  v.GetString("geocode-endpoint"),
			UserAgent: v.GetString("geocode-user-agent"),
			Timeout:   v.GetDuration("geocode-timeout"),
			Rate:      v.GetFloat64("geocode-rate"),
			CacheSize: v.GetInt("geocode-cache-size"),
		},
	}, nil
}

// Validate checks the values a run cannot start without
func (c *Config) Validate() error {
	var errs []error

	if c.Source == "" {
		errs = append(errs, errors.New("source directory is required (--source)"))
	}
	if c.Archive == "" {
		errs = append(errs, errors.New("archive directory is required (--archive)"))
	}
	if c.Source != "" && c.Archive != "" {
		src, err1 := filepath.Abs(c.Source)
		dst, err2 := filepath.Abs(c.Archive)
		if err1 == nil && err2 == nil && src == dst {
			errs = append(errs, fmt.Errorf("source and archive must differ: %s", src))
		}
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", c.Workers))
	}
	if _, err := imageprocessor.NewHasher(c.Hasher); err != nil {
		errs = append(errs, err)
	}
	if c.Geocode.Rate < 0 {
		errs = append(errs, fmt.Errorf("geocode-rate must not be negative, got %v", c.Geocode.Rate))
	}
	if c.Geocode.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("geocode-timeout must be positive, got %v", c.Geocode.Timeout))
	}

	return errors.Join(errs...)
}

// GeocoderOptions converts the geocoding settings for geocoder.NewNominatim
func (c *Config) GeocoderOptions() geocoder.Options {
	return geocoder.Options{
		Endpoint:          c.Geocode.Endpoint,
		UserAgent:         c.Geocode.UserAgent,
		Timeout:           c.Geocode.Timeout,
		RequestsPerSecond: c.Geocode.Rate,
		CacheSize:         c.Geocode.CacheSize,
	}
}
