package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values used by Normalize.
const (
	DefaultSyncIntervalSec = 1800
	DefaultWindowDays      = 5
	DefaultTimezone        = "UTC"
)

// Config is the top-level application configuration.
//
// The environment is the primary source (see FromEnv); an optional YAML file
// may provide defaults underneath it, mainly for development setups.
type Config struct {
	// CalendarURL is the CalDAV endpoint of the calendar store.
	CalendarURL string `yaml:"calendar_url"`

	// CalendarUsername / CalendarPassword are the store credentials.
	CalendarUsername string `yaml:"calendar_username"`
	CalendarPassword string `yaml:"calendar_password"`

	// CalendarIDs is the subscription filter. Only calendars whose ID is in
	// this list are polled for events. Empty means no calendars selected.
	CalendarIDs []string `yaml:"calendar_ids"`

	// SyncIntervalSec is the resync cadence in seconds.
	SyncIntervalSec int `yaml:"sync_interval_in_sec"`

	// SyncCron, if set, is a cron expression that overrides the fixed
	// interval cadence (e.g. "*/30 * * * *").
	SyncCron string `yaml:"sync_cron"`

	// WindowDays is the forward event search window in days.
	WindowDays int `yaml:"fetch_event_window_in_days"`

	// NotifyBotToken / NotifyChatID are the notification channel credentials.
	NotifyBotToken string `yaml:"notify_bot_token"`
	NotifyChatID   string `yaml:"notify_chat_id"`

	// Timezone is the IANA zone used for all instant arithmetic.
	Timezone string `yaml:"timezone"`

	// LogLevel is the minimum log level (DEBUG/INFO/WARN/ERROR).
	LogLevel string `yaml:"log_level"`

	// Listen is the status HTTP listen address. Empty disables the server.
	Listen string `yaml:"listen"`
}

// FromEnv overlays recognized environment variables onto c. Unset variables
// leave the existing value untouched so file-provided defaults survive.
func (c *Config) FromEnv() {
	setString(&c.CalendarURL, "CALENDAR_URL")
	setString(&c.CalendarUsername, "CALENDAR_USERNAME")
	setString(&c.CalendarPassword, "CALENDAR_PASSWORD")
	if v, ok := os.LookupEnv("CALENDAR_IDS"); ok {
		c.CalendarIDs = SplitCalendarIDs(v)
	}
	setInt(&c.SyncIntervalSec, "SYNC_INTERVAL_IN_SEC")
	setString(&c.SyncCron, "SYNC_CRON")
	setInt(&c.WindowDays, "FETCH_EVENT_WINDOW_IN_DAYS")
	setString(&c.NotifyBotToken, "NOTIFY_BOT_TOKEN")
	setString(&c.NotifyChatID, "NOTIFY_CHAT_ID")
	setString(&c.Timezone, "TIMEZONE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Listen, "LISTEN")
}

// SplitCalendarIDs parses the CALENDAR_IDS value: a ";"-separated list of
// calendar identifiers. The literal "None" (or an empty string) selects no
// calendars at all.
func SplitCalendarIDs(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" || v == "None" {
		return nil
	}
	parts := strings.Split(v, ";")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ids = append(ids, p)
	}
	return ids
}

// Normalize fills in missing/zero values with defaults so that a
// partially-specified environment still behaves correctly.
func (c *Config) Normalize() {
	if c.SyncIntervalSec <= 0 {
		c.SyncIntervalSec = DefaultSyncIntervalSec
	}
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
	if c.Timezone == "" {
		c.Timezone = DefaultTimezone
	}
}

// Validate reports the startup-fatal configuration errors.
func (c *Config) Validate() error {
	if c.CalendarURL == "" {
		return errors.New("CALENDAR_URL not set")
	}
	if c.CalendarUsername == "" || c.CalendarPassword == "" {
		return errors.New("CALENDAR_USERNAME or CALENDAR_PASSWORD not set")
	}
	if c.NotifyBotToken == "" || c.NotifyChatID == "" {
		return errors.New("NOTIFY_BOT_TOKEN or NOTIFY_CHAT_ID not set")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured IANA timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// SyncInterval returns the resync cadence as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSec) * time.Second
}

// Window returns the forward event search window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

// Load builds the effective configuration: YAML file defaults (if path is
// non-empty and the file exists), overlaid by the environment, then
// normalized. A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, err
			}
		case errors.Is(err, fs.ErrNotExist):
			// No file; environment only.
		default:
			return nil, err
		}
	}

	cfg.FromEnv()
	cfg.Normalize()
	return &cfg, nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		// Leave the previous value; Normalize will fill a default if zero.
		return
	}
	*dst = n
}
