package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// setting is one key editable with `config get/set`.
type setting struct {
	get    func(*Config) string
	set    func(*Config, string) error
	secret bool
}

func stringSetting(field func(*Config) *string) setting {
	return setting{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			*field(c) = strings.TrimSpace(v)
			return nil
		},
	}
}

func durationSetting(field func(*Config) *Duration) setting {
	return setting{
		get: func(c *Config) string { return field(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid duration %q (use e.g. 250ms, 2s, 336h)", v)
			}
			*field(c) = Duration(d)
			return nil
		},
	}
}

func intSetting(field func(*Config) *int) setting {
	return setting{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid integer %q", v)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolSetting(field func(*Config) *bool) setting {
	return setting{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid boolean %q", v)
			}
			*field(c) = b
			return nil
		},
	}
}

var settings = map[string]setting{
	"general.logLevel": stringSetting(func(c *Config) *string { return &c.General.LogLevel }),
	"general.logFile":  stringSetting(func(c *Config) *string { return &c.General.LogFile }),

	"discord.token": func() setting {
		s := stringSetting(func(c *Config) *string { return &c.Discord.Token })
		s.secret = true
		return s
	}(),
	"discord.guildId":      stringSetting(func(c *Config) *string { return &c.Discord.GuildID }),
	"discord.hideRoleName": stringSetting(func(c *Config) *string { return &c.Discord.HideRoleName }),
	"discord.webhookName":  stringSetting(func(c *Config) *string { return &c.Discord.WebhookName }),

	"pacing.historyPageDelay": durationSetting(func(c *Config) *Duration { return &c.Pacing.HistoryPageDelay }),
	"pacing.messageDelay":     durationSetting(func(c *Config) *Duration { return &c.Pacing.MessageDelay }),
	"pacing.progressInterval": durationSetting(func(c *Config) *Duration { return &c.Pacing.ProgressInterval }),
	"pacing.dispatchTimeout":  durationSetting(func(c *Config) *Duration { return &c.Pacing.DispatchTimeout }),
	"pacing.batchAgeLimit":    durationSetting(func(c *Config) *Duration { return &c.Pacing.BatchAgeLimit }),
	"pacing.pageSize":         intSetting(func(c *Config) *int { return &c.Pacing.PageSize }),
	"pacing.bulkMax":          intSetting(func(c *Config) *int { return &c.Pacing.BulkMax }),

	"attachments.downloadTimeout": durationSetting(func(c *Config) *Duration { return &c.Attachments.DownloadTimeout }),
	"attachments.maxRetries":      intSetting(func(c *Config) *int { return &c.Attachments.MaxRetries }),
	"attachments.maxBytes": {
		get: func(c *Config) string { return strconv.FormatInt(c.Attachments.MaxBytes, 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid byte count %q", v)
			}
			c.Attachments.MaxBytes = n
			return nil
		},
	},

	"journal.enabled": boolSetting(func(c *Config) *bool { return &c.Journal.Enabled }),
	"journal.dbPath":  stringSetting(func(c *Config) *string { return &c.Journal.DBPath }),

	"metrics.enabled":  boolSetting(func(c *Config) *bool { return &c.Metrics.Enabled }),
	"metrics.addr":     stringSetting(func(c *Config) *string { return &c.Metrics.Addr }),
	"metrics.endpoint": stringSetting(func(c *Config) *string { return &c.Metrics.Endpoint }),
}

// Paths returns every settable path, sorted.
func Paths() []string {
	out := make([]string, 0, len(settings))
	for p := range settings {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func lookup(path string) (setting, error) {
	s, ok := settings[path]
	if !ok {
		return setting{}, fmt.Errorf("unknown config path %q (see `chanmover config list`)", path)
	}
	return s, nil
}

// GetByPath returns the value at a dot-notation path (e.g.
// "pacing.messageDelay"). Secrets come back masked.
func GetByPath(cfg *Config, path string) (string, error) {
	s, err := lookup(path)
	if err != nil {
		return "", err
	}
	v := s.get(cfg)
	if s.secret && v != "" {
		v = maskString(v)
	}
	return v, nil
}

// SetByPath parses raw into the value at path. The change only lands when
// the resulting config still passes Validate.
func SetByPath(cfg *Config, path, raw string) error {
	s, err := lookup(path)
	if err != nil {
		return err
	}
	next := *cfg
	if err := s.set(&next, raw); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(&next); err != nil {
		return err
	}
	*cfg = next
	return nil
}

// ListPaths returns every settable path with its current value, secrets
// masked.
func ListPaths(cfg *Config) map[string]string {
	out := make(map[string]string, len(settings))
	for p := range settings {
		v, _ := GetByPath(cfg, p)
		out[p] = v
	}
	return out
}

// maskString shows first 4 and last 4 chars, masks the rest.
func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
