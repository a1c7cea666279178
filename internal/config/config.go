package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrInvalid is returned when the configuration cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Providers supported by the notifier.
const (
	ProviderTelegram = "telegram"
	ProviderSlack    = "slack"
)

// StartDateLayout is the format of schedule.start_date.
const StartDateLayout = "2006-01-02"

// Config holds all configuration for the application.
type Config struct {
	LogLevel    string `json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat   string `json:"log_format" validate:"oneof=text json"`
	LogFile     string `json:"log_file"`
	MetricsPort int    `json:"metrics_port" validate:"gte=0,lte=65535"`

	Questions struct {
		FilePath string `json:"file_path" validate:"required"`
		PerDay   int    `json:"per_day" validate:"min=1"`
	} `json:"questions"`

	Schedule struct {
		SendTime  string `json:"send_time" validate:"required,hhmm"`
		Policy    string `json:"policy" validate:"oneof=cursor date"`
		StartDate string `json:"start_date"`
		Timezone  string `json:"timezone" validate:"required,location"`
	} `json:"schedule"`

	Notifier struct {
		Provider    string   `json:"provider" validate:"oneof=telegram slack"`
		Channel     string   `json:"channel" validate:"required"`
		SendTimeout Duration `json:"send_timeout" validate:"min=1s"`
	} `json:"notifier"`

	Telegram struct {
		BotToken    string `json:"bot_token"`
		APIEndpoint string `json:"api_endpoint"` // e.g. https://api.telegram.org/bot%s/%s
	} `json:"telegram"`

	Slack struct {
		BotToken string `json:"bot_token"`
		APIURL   string `json:"api_url"` // e.g. https://slack.com/api/
	} `json:"slack"`

	History struct {
		DBPath    string   `json:"db_path"`
		Retention Duration `json:"retention" validate:"min=1h"`
	} `json:"history"`
}

// Duration is a wrapper around time.Duration that implements JSON marshaling/unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
		return nil
	case string:
		var err error
		d.Duration, err = time.ParseDuration(value)
		if err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("invalid duration")
	}
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{
		LogLevel:  "info",
		LogFormat: "text",
	}
	cfg.Questions.FilePath = "DSA_Practice_Questions.csv"
	cfg.Questions.PerDay = 6
	cfg.Schedule.SendTime = "09:30"
	cfg.Schedule.Policy = "cursor"
	cfg.Schedule.Timezone = "Local"
	cfg.Notifier.SendTimeout = Duration{30 * time.Second}
	cfg.History.Retention = Duration{90 * 24 * time.Hour}
	return cfg
}

// Load builds the configuration. Values come from the defaults, then the JSON
// file at path (skipped when path is empty), then the environment. envFiles
// are loaded into the environment first without overriding variables that
// are already set; missing env files are ignored. With no envFiles, ".env"
// is tried.
func Load(path string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing config file: %v", ErrInvalid, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("%w: applying environment overrides: %v", ErrInvalid, err)
	}
	cfg.resolveNotifier()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides overrides config fields with environment variables.
func (c *Config) applyEnvOverrides() error {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.LogFile, "LOG_FILE")
	if err := setInt(&c.MetricsPort, "METRICS_PORT"); err != nil {
		return err
	}

	// Questions overrides
	setString(&c.Questions.FilePath, "CSV_FILE")
	if err := setInt(&c.Questions.PerDay, "QUESTIONS_PER_DAY"); err != nil {
		return err
	}

	// Schedule overrides
	setString(&c.Schedule.SendTime, "SEND_TIME")
	setString(&c.Schedule.Policy, "SELECTION_POLICY")
	setString(&c.Schedule.StartDate, "START_DATE")
	setString(&c.Schedule.Timezone, "TIMEZONE")

	// Notifier overrides
	setString(&c.Notifier.Provider, "NOTIFIER_PROVIDER")
	setString(&c.Notifier.Channel, "NOTIFIER_CHANNEL")
	if err := setDuration(&c.Notifier.SendTimeout, "SEND_TIMEOUT"); err != nil {
		return err
	}
	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Slack.BotToken, "SLACK_BOT_TOKEN")
	setString(&c.Telegram.APIEndpoint, "TELEGRAM_API_ENDPOINT")
	setString(&c.Slack.APIURL, "SLACK_API_URL")

	// History overrides
	setString(&c.History.DBPath, "HISTORY_DB_PATH")
	return setDuration(&c.History.Retention, "HISTORY_RETENTION")
}

// resolveNotifier picks the provider when none was configured and falls back
// to the provider-specific channel variable.
func (c *Config) resolveNotifier() {
	c.Notifier.Provider = strings.ToLower(strings.TrimSpace(c.Notifier.Provider))
	if c.Notifier.Provider == "" {
		c.Notifier.Provider = ProviderTelegram
		if c.Slack.BotToken != "" {
			c.Notifier.Provider = ProviderSlack
		}
	}
	if c.Notifier.Channel != "" {
		return
	}
	switch c.Notifier.Provider {
	case ProviderSlack:
		c.Notifier.Channel = os.Getenv("SLACK_CHANNEL")
	case ProviderTelegram:
		c.Notifier.Channel = os.Getenv("TELEGRAM_CHANNEL")
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validate := validator.New()

	// Register custom validation for Duration
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if duration, ok := field.Interface().(Duration); ok {
			return duration.Duration
		}
		return nil
	}, Duration{})

	if err := validate.RegisterValidation("location", func(fl validator.FieldLevel) bool {
		_, err := time.LoadLocation(fl.Field().String())
		return err == nil
	}); err != nil {
		return err
	}

	if err := validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return IsClockTime(fl.Field().String())
	}); err != nil {
		return err
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	switch c.Notifier.Provider {
	case ProviderTelegram:
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("%w: TELEGRAM_BOT_TOKEN is required for the telegram provider", ErrInvalid)
		}
	case ProviderSlack:
		if c.Slack.BotToken == "" {
			return fmt.Errorf("%w: SLACK_BOT_TOKEN is required for the slack provider", ErrInvalid)
		}
	}

	return nil
}

// IsClockTime reports whether s is a 24-hour "HH:MM" time with two-digit
// hour and minute.
func IsClockTime(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	_, err := time.Parse("15:04", s)
	return err == nil
}

// Location returns the time zone the schedule runs in.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// ParseStartDate parses schedule.start_date as a calendar date in loc.
func (c *Config) ParseStartDate(loc *time.Location) (time.Time, error) {
	if c.Schedule.StartDate == "" {
		return time.Time{}, errors.New("start date is not set")
	}
	return time.ParseInLocation(StartDateLayout, c.Schedule.StartDate, loc)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = Duration{d}
	return nil
}
