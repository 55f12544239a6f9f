package config

import "time"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Discord: DiscordConfig{
			HideRoleName: "Hide",
			WebhookName:  "interchannel message mover",
		},
		Pacing: PacingConfig{
			HistoryPageDelay: Duration(100 * time.Millisecond),
			MessageDelay:     Duration(200 * time.Millisecond),
			ProgressInterval: Duration(4 * time.Second),
			DispatchTimeout:  Duration(60 * time.Second),
			BatchAgeLimit:    Duration(1209600 * time.Second), // 14 days
			PageSize:         100,
			BulkMax:          100,
		},
		Attachments: AttachmentsConfig{
			DownloadTimeout: Duration(30 * time.Second),
			MaxRetries:      3,
			MaxBytes:        25 << 20,
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  "~/.chanmover/journal.db",
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:9464",
			Endpoint: "/metrics",
		},
	}
}
