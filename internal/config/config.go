// Package config builds the run configuration once at startup: defaults, then
// an optional YAML file, then the environment (a .env file is loaded into the
// environment first). The result is passed down explicitly; nothing else in
// the program reads the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"icalmerge/internal/ical"
	"icalmerge/internal/icloud"
	"icalmerge/internal/models"
)

const (
	ProviderGoogle = "google"
	ProviderCalDAV = "caldav"

	DefaultHorizonDays = 183
)

// GoogleConfig holds the OAuth client and token locations.
type GoogleConfig struct {
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	CredentialsFile string `yaml:"credentials_file"`
	TokenFile       string `yaml:"token_file"`
}

// CalDAVConfig holds the CalDAV server and calendar to write to.
type CalDAVConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	CalendarName string `yaml:"calendar_name"`
}

// Config is the top-level run configuration.
type Config struct {
	// Sources maps a source key ("<room>.<listing>") to its iCal feed URL.
	Sources map[string]string `yaml:"sources"`

	// TargetCalendarID is the Google calendar receiving the booked events.
	TargetCalendarID string `yaml:"target_calendar_id"`

	// Provider selects the target calendar backend: "google" or "caldav".
	Provider string `yaml:"provider"`

	// HorizonDays is the length of the sync window starting today.
	HorizonDays int `yaml:"horizon_days"`

	// BlockedKeywords mark a feed event as a booking when found in its summary.
	BlockedKeywords []string `yaml:"blocked_keywords"`

	// FetchConcurrency bounds parallel feed downloads.
	FetchConcurrency int `yaml:"fetch_concurrency"`

	LogLevel string `yaml:"log_level"`

	Google GoogleConfig `yaml:"google"`
	CalDAV CalDAVConfig `yaml:"caldav"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Sources:          map[string]string{},
		Provider:         ProviderGoogle,
		HorizonDays:      DefaultHorizonDays,
		BlockedKeywords:  append([]string(nil), ical.DefaultKeywords...),
		FetchConcurrency: 4,
		LogLevel:         "info",
		Google: GoogleConfig{
			CredentialsFile: "credentials.json",
			TokenFile:       "token.json",
		},
		CalDAV: CalDAVConfig{Endpoint: icloud.DefaultEndpoint},
	}
}

// Load builds the configuration. path is an optional YAML file and envFile an
// optional dotenv file; a missing envFile is not an error. The result is not
// validated.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s is not a number: %q", key, v)
		}
		*dst = n
		return nil
	}

	if v, ok := lookup("ICAL_CONFIG_JSON"); ok && v != "" {
		sources := map[string]string{}
		if err := json.Unmarshal([]byte(v), &sources); err != nil {
			return fmt.Errorf("ICAL_CONFIG_JSON is not a valid JSON object: %w", err)
		}
		c.Sources = sources
	}
	if v, ok := lookup("BLOCKED_KEYWORDS"); ok && v != "" {
		c.BlockedKeywords = splitList(v)
	}

	str("TARGET_CALENDAR_ID", &c.TargetCalendarID)
	str("CALENDAR_PROVIDER", &c.Provider)
	str("LOG_LEVEL", &c.LogLevel)
	str("GOOGLE_CLIENT_ID", &c.Google.ClientID)
	str("GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	str("GOOGLE_CREDENTIALS_FILE", &c.Google.CredentialsFile)
	str("GOOGLE_TOKEN_FILE", &c.Google.TokenFile)
	str("CALDAV_ENDPOINT", &c.CalDAV.Endpoint)
	str("CALDAV_USERNAME", &c.CalDAV.Username)
	str("CALDAV_PASSWORD", &c.CalDAV.Password)
	str("CALDAV_CALENDAR_NAME", &c.CalDAV.CalendarName)

	if err := num("SYNC_HORIZON_DAYS", &c.HorizonDays); err != nil {
		return err
	}
	return num("FETCH_CONCURRENCY", &c.FetchConcurrency)
}

func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderGoogle
	}
	if c.Sources == nil {
		c.Sources = map[string]string{}
	}
	if len(c.BlockedKeywords) == 0 {
		c.BlockedKeywords = append([]string(nil), ical.DefaultKeywords...)
	}
	if c.CalDAV.Endpoint == "" {
		c.CalDAV.Endpoint = icloud.DefaultEndpoint
	}
}

// Validate reports the first problem that would make a sync run meaningless.
// Source keys that do not derive a room fail with models.ErrAmbiguousRoomMapping.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return errors.New("no sources configured: set ICAL_CONFIG_JSON or sources in the config file")
	}
	for _, src := range c.SourceList() {
		if _, err := models.RoomFromSource(src.Name); err != nil {
			return err
		}
		u, err := url.Parse(src.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source %q has an invalid feed URL", src.Name)
		}
	}
	if c.FetchConcurrency <= 0 {
		return fmt.Errorf("fetch_concurrency must be positive, got %d", c.FetchConcurrency)
	}
	return c.ValidateTarget()
}

// ValidateTarget checks only what is needed to reach the target calendar and
// compute the sync window. Passes that never read a feed use it instead of
// Validate.
func (c *Config) ValidateTarget() error {
	if c.HorizonDays <= 0 {
		return fmt.Errorf("horizon_days must be positive, got %d", c.HorizonDays)
	}

	switch c.Provider {
	case ProviderGoogle:
		if c.TargetCalendarID == "" {
			return errors.New("TARGET_CALENDAR_ID must be set for the google provider")
		}
	case ProviderCalDAV:
		if c.CalDAV.Username == "" || c.CalDAV.Password == "" || c.CalDAV.CalendarName == "" {
			return errors.New("CALDAV_USERNAME, CALDAV_PASSWORD and CALDAV_CALENDAR_NAME must be set for the caldav provider")
		}
	default:
		return fmt.Errorf("unknown calendar provider %q", c.Provider)
	}
	return nil
}

// SourceList returns the configured sources sorted by key.
func (c *Config) SourceList() []ical.Source {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ical.Source, 0, len(names))
	for _, name := range names {
		out = append(out, ical.Source{Name: name, URL: c.Sources[name]})
	}
	return out
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
