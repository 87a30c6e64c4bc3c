package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

type StorageBackend string

const (
	StorageSQLite    StorageBackend = "sqlite"
	StorageFirestore StorageBackend = "firestore"
)

type NotifierBackend string

const (
	NotifierLog NotifierBackend = "log"
	NotifierFCM NotifierBackend = "fcm"
)

type Config struct {
	Database      DatabaseConfig      `toml:"database"`
	Storage       StorageConfig       `toml:"storage"`
	Firebase      FirebaseConfig      `toml:"firebase"`
	Predictor     PredictorConfig     `toml:"predictor"`
	Identity      IdentityConfig      `toml:"identity"`
	Survey        SurveyConfig        `toml:"survey"`
	Risk          RiskConfig          `toml:"risk"`
	Notifications NotificationsConfig `toml:"notifications"`
	Reminders     RemindersConfig     `toml:"reminders"`
	Logging       LoggingConfig       `toml:"logging"`
	Server        ServerConfig        `toml:"server"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type StorageConfig struct {
	Backend StorageBackend `toml:"backend"`
}

type FirebaseConfig struct {
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
}

type PredictorConfig struct {
	BaseURL         string `toml:"base_url"`
	SubmitFunction  string `toml:"submit_function"`
	PredictFunction string `toml:"predict_function"`
	Timeout         string `toml:"timeout"`
	Token           string `toml:"token"`
}

type IdentityConfig struct {
	UserID      string `toml:"user_id"`
	DisplayName string `toml:"display_name"`
}

type SurveyConfig struct {
	// Timezone is an IANA name; empty means the host zone.
	Timezone                   string `toml:"timezone"`
	RejectDuplicateSubmissions bool   `toml:"reject_duplicate_submissions"`
}

type RiskConfig struct {
	PollSchedule string   `toml:"poll_schedule"`
	Projects     []string `toml:"projects"`
}

type NotificationsConfig struct {
	Backend NotifierBackend `toml:"backend"`
}

type RemindersConfig struct {
	Enabled       bool                 `toml:"enabled"`
	Schedule      string               `toml:"schedule"`
	Subscriptions []SubscriptionConfig `toml:"subscriptions"`
}

type SubscriptionConfig struct {
	UserID      string `toml:"user_id"`
	ProjectID   string `toml:"project_id"`
	ProjectName string `toml:"project_name"`
	DeviceToken string `toml:"device_token"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type ServerConfig struct {
	Bind        string `toml:"bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Path: dbPath,
		},
		Storage: StorageConfig{
			Backend: StorageSQLite,
		},
		Predictor: PredictorConfig{
			SubmitFunction:  "submitDailySurvey",
			PredictFunction: "predictAllDelays",
			Timeout:         "30s",
		},
		Survey: SurveyConfig{
			RejectDuplicateSubmissions: true,
		},
		Risk: RiskConfig{
			PollSchedule: "0 */30 * * * *",
		},
		Notifications: NotificationsConfig{
			Backend: NotifierLog,
		},
		Reminders: RemindersConfig{
			Enabled:  false,
			Schedule: "0 0 16 * * *",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			Compress:   true,
		},
		Server: ServerConfig{
			Bind:        "127.0.0.1:5437",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case StorageSQLite:
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database path is required")
		}
	case StorageFirestore:
	default:
		return fmt.Errorf("invalid storage.backend: %q", c.Storage.Backend)
	}

	switch c.Notifications.Backend {
	case NotifierLog, NotifierFCM:
	default:
		return fmt.Errorf("invalid notifications.backend: %q", c.Notifications.Backend)
	}

	if _, err := c.PredictorTimeout(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if level := strings.TrimSpace(c.Logging.Level); level != "" {
		if _, err := log.ParseLevel(level); err != nil {
			return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
		}
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return errors.New("logging rotation limits must be >= 0")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if spec := strings.TrimSpace(c.Risk.PollSchedule); spec != "" {
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid risk.poll_schedule: %w", err)
		}
	}
	if c.Reminders.Enabled {
		if _, err := parser.Parse(strings.TrimSpace(c.Reminders.Schedule)); err != nil {
			return fmt.Errorf("invalid reminders.schedule: %w", err)
		}
	}
	seen := map[string]struct{}{}
	for idx, sub := range c.Reminders.Subscriptions {
		projectID := strings.TrimSpace(sub.ProjectID)
		token := strings.TrimSpace(sub.DeviceToken)
		if projectID == "" {
			return fmt.Errorf("reminders.subscriptions[%d].project_id is required", idx)
		}
		if token == "" {
			return fmt.Errorf("reminders.subscriptions[%d].device_token is required", idx)
		}
		key := projectID + "\x00" + token
		if _, ok := seen[key]; ok {
			return fmt.Errorf("reminders.subscriptions[%d] is duplicated", idx)
		}
		seen[key] = struct{}{}
	}

	for _, endpoint := range []string{c.Server.APIEndpoint, c.Server.MCPEndpoint} {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" && !strings.HasPrefix(endpoint, "/") {
			return fmt.Errorf("server endpoint %q must start with /", endpoint)
		}
	}
	return nil
}

// PredictorTimeout parses predictor.timeout; empty means 30s.
func (c Config) PredictorTimeout() (time.Duration, error) {
	raw := strings.TrimSpace(c.Predictor.Timeout)
	if raw == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid predictor.timeout: %q", c.Predictor.Timeout)
	}
	return d, nil
}

// Location resolves survey.timezone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Survey.Timezone)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid survey.timezone: %w", err)
	}
	return loc, nil
}

// RiskProjects returns the projects polled for risk: the configured list plus
// every subscribed project, without duplicates.
func (c Config) RiskProjects() []string {
	out := []string{}
	add := func(id string) {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, id := range c.Risk.Projects {
		add(id)
	}
	for _, sub := range c.Reminders.Subscriptions {
		add(sub.ProjectID)
	}
	return out
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
