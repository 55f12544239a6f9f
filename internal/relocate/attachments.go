package relocate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chanmover/internal/domain"
	"chanmover/internal/metrics"

	"github.com/cenkalti/backoff/v4"
)

// SpoilerPrefix marks an uploaded file as a spoiler.
const SpoilerPrefix = "SPOILER_"

// Fetcher downloads attachment payloads so they can be re-uploaded.
type Fetcher struct {
	client       *http.Client
	maxRetries   uint64
	maxBytes     int64
	initialDelay time.Duration
	logger       *slog.Logger
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Client       *http.Client
	MaxRetries   int
	MaxBytes     int64 // 0 means unlimited
	InitialDelay time.Duration
	Logger       *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	if cfg.Client == nil {
		cfg.Client = NewHTTPClient(0)
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		client:       cfg.Client,
		maxRetries:   uint64(cfg.MaxRetries),
		maxBytes:     cfg.MaxBytes,
		initialDelay: cfg.InitialDelay,
		logger:       cfg.Logger,
	}
}

// Files downloads every attachment of msg in order. Files are renamed as
// spoilers when the message is flagged sensitive.
func (f *Fetcher) Files(ctx context.Context, msg domain.Message) ([]domain.WebhookFile, error) {
	if len(msg.Attachments) == 0 {
		return nil, nil
	}
	files := make([]domain.WebhookFile, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		data, err := f.Fetch(ctx, att.URL)
		if err != nil {
			return nil, fmt.Errorf("download attachment %s: %w", att.Filename, err)
		}
		f.logger.Debug("downloaded attachment", "bytes", len(data), "url", att.URL)
		files = append(files, domain.WebhookFile{
			Name:        UploadName(att, msg.Sensitive()),
			ContentType: att.ContentType,
			Description: att.Description,
			Data:        data,
		})
	}
	return files, nil
}

// UploadName returns the file name to upload att under.
func UploadName(att domain.Attachment, sensitive bool) string {
	if (sensitive || att.Spoiler) && !strings.HasPrefix(att.Filename, SpoilerPrefix) {
		return SpoilerPrefix + att.Filename
	}
	return att.Filename
}

// Fetch downloads url, retrying network failures, 5xx and 429 responses
// with exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.initialDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, f.maxRetries), ctx)

	attempt := 0
	data, err := backoff.RetryWithData(func() ([]byte, error) {
		attempt++
		return f.get(ctx, url)
	}, policy)
	if err != nil {
		return nil, domain.TransportError("download attachment", err)
	}
	if attempt > 1 {
		f.logger.Info("attachment downloaded after retry", "url", url, "attempts", attempt)
	}
	metrics.AttachmentBytes.Add(float64(len(data)))
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("attachment download failed, will retry", "url", url, "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		f.logger.Warn("attachment server error, will retry", "url", url, "status", resp.StatusCode)
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, backoff.Permanent(fmt.Errorf("attachment larger than %d bytes", f.maxBytes))
	}
	return data, nil
}
