package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenEnv overrides discord.token when set.
const TokenEnv = "CHANMOVER_TOKEN"

// Config is the root configuration for chanmover.
type Config struct {
	General     GeneralConfig     `json:"general" yaml:"general"`
	Discord     DiscordConfig     `json:"discord" yaml:"discord"`
	Pacing      PacingConfig      `json:"pacing" yaml:"pacing"`
	Attachments AttachmentsConfig `json:"attachments" yaml:"attachments"`
	Journal     JournalConfig     `json:"journal" yaml:"journal"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional log file path
}

type DiscordConfig struct {
	Token        string `json:"token" yaml:"token"`
	GuildID      string `json:"guildId,omitempty" yaml:"guildId,omitempty"` // slash commands are registered globally when empty
	HideRoleName string `json:"hideRoleName" yaml:"hideRoleName"`
	WebhookName  string `json:"webhookName" yaml:"webhookName"`
}

// PacingConfig holds the delays that keep the bot under the platform's
// rate limits.
type PacingConfig struct {
	HistoryPageDelay Duration `json:"historyPageDelay" yaml:"historyPageDelay"`
	MessageDelay     Duration `json:"messageDelay" yaml:"messageDelay"`
	ProgressInterval Duration `json:"progressInterval" yaml:"progressInterval"`
	DispatchTimeout  Duration `json:"dispatchTimeout" yaml:"dispatchTimeout"`
	BatchAgeLimit    Duration `json:"batchAgeLimit" yaml:"batchAgeLimit"`
	PageSize         int      `json:"pageSize" yaml:"pageSize"`
	BulkMax          int      `json:"bulkMax" yaml:"bulkMax"`
}

type AttachmentsConfig struct {
	DownloadTimeout Duration `json:"downloadTimeout" yaml:"downloadTimeout"`
	MaxRetries      int      `json:"maxRetries" yaml:"maxRetries"`
	MaxBytes        int64    `json:"maxBytes" yaml:"maxBytes"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

// MetricsConfig configures the Prometheus text endpoint served by `run`.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Addr     string `json:"addr" yaml:"addr"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// Duration is a time.Duration written as a Go duration string ("200ms").
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(v)
	return nil
}

// DefaultConfigDir returns the default config directory (~/.chanmover).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chanmover"
	}
	return filepath.Join(home, ".chanmover")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if tok := os.Getenv(TokenEnv); tok != "" {
		cfg.Discord.Token = tok
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without a default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""
		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file holds the bot token.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if strings.TrimSpace(cfg.Discord.WebhookName) == "" {
		errs = append(errs, "discord.webhookName must not be empty")
	}
	if len(cfg.Discord.WebhookName) > 80 {
		errs = append(errs, "discord.webhookName must be at most 80 characters")
	}

	p := cfg.Pacing
	for _, d := range []struct {
		name  string
		value Duration
	}{
		{"historyPageDelay", p.HistoryPageDelay},
		{"messageDelay", p.MessageDelay},
		{"progressInterval", p.ProgressInterval},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Sprintf("pacing.%s must be >= 0", d.name))
		}
	}
	if p.DispatchTimeout <= 0 {
		errs = append(errs, "pacing.dispatchTimeout must be > 0")
	}
	if p.BatchAgeLimit <= 0 {
		errs = append(errs, "pacing.batchAgeLimit must be > 0")
	}
	if p.PageSize < 1 || p.PageSize > 100 {
		errs = append(errs, "pacing.pageSize must be between 1 and 100")
	}
	if p.BulkMax < 2 || p.BulkMax > 100 {
		errs = append(errs, "pacing.bulkMax must be between 2 and 100")
	}

	if cfg.Attachments.DownloadTimeout <= 0 {
		errs = append(errs, "attachments.downloadTimeout must be > 0")
	}
	if cfg.Attachments.MaxRetries < 0 {
		errs = append(errs, "attachments.maxRetries must be >= 0")
	}
	if cfg.Attachments.MaxBytes < 1 {
		errs = append(errs, "attachments.maxBytes must be >= 1")
	}

	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when the journal is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}
	if cfg.Metrics.Endpoint != "" && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
