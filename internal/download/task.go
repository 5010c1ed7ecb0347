package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/aristath/gitbridge/internal/config"
	"github.com/aristath/gitbridge/internal/events"
	"github.com/aristath/gitbridge/internal/task"
)

// ErrChecksumMismatch is returned when the downloaded file does not match the
// expected SHA-256 digest.
var ErrChecksumMismatch = errors.New("checksum mismatch")

const progressInterval = 100 * time.Millisecond

// RetryConfig controls how often a failed download is attempted again.
type RetryConfig struct {
	Count           int           // Extra attempts after the first
	InitialInterval time.Duration // 0 retries immediately
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns 2 retries starting at 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Count:           2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

func (c RetryConfig) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if c.InitialInterval > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.InitialInterval
		if c.MaxInterval > 0 {
			exp.MaxInterval = c.MaxInterval
		}
		exp.MaxElapsedTime = 0 // Bounded by Count
		b = exp
	}
	count := c.Count
	if count < 0 {
		count = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(count)), ctx)
}

// Downloader holds what every download task shares.
type Downloader struct {
	Transport Transport
	Breakers  *BreakerRegistry // optional
	Retry     RetryConfig
	Bus       *events.EventBus // optional
	Logger    *log.Logger
}

// NewDownloader builds an HTTP downloader from configuration.
func NewDownloader(cfg config.DownloadConfig, bus *events.EventBus, logger *log.Logger) *Downloader {
	if logger == nil {
		logger = log.Default()
	}
	return &Downloader{
		Transport: NewHTTPTransport(cfg.Timeout.Std(), cfg.UserAgent),
		Breakers: NewBreakerRegistry(BreakerConfig{
			Threshold: cfg.BreakerThreshold,
			Timeout:   cfg.BreakerTimeout.Std(),
		}, logger),
		Retry: RetryConfig{
			Count:           cfg.RetryCount,
			InitialInterval: cfg.InitialInterval.Std(),
			MaxInterval:     cfg.MaxInterval.Std(),
		},
		Bus:    bus,
		Logger: logger,
	}
}

// Task is a task node that downloads a URL to a file. Its result is the
// destination path.
type Task struct {
	*task.Node
	d      *Downloader
	url    string
	dest   string
	sha256 string

	mu       sync.Mutex
	attempts int
	done     bool
}

// New builds a download task. The task runs on the concurrent lane unless an
// affinity option says otherwise.
func (d *Downloader) New(m *task.Manager, url, dest string, opts ...task.Option) *Task {
	if d == nil || d.Transport == nil {
		panic("download: nil downloader or transport")
	}
	if url == "" || dest == "" {
		panic("download: empty url or destination")
	}
	t := &Task{d: d, url: url, dest: dest}
	t.Node = task.NewNode(m, t, append([]task.Option{task.WithName("download " + url)}, opts...)...)
	return t
}

// WithSHA256 makes the task verify the file against a hex digest.
func (t *Task) WithSHA256(digest string) *Task {
	t.sha256 = strings.ToLower(strings.TrimSpace(digest))
	return t
}

// URL returns the source.
func (t *Task) URL() string { return t.url }

// Attempts returns how many times the transport was tried.
func (t *Task) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// Result returns the destination path once the download succeeded.
func (t *Task) Result() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.done {
		return ""
	}
	return t.dest
}

func (t *Task) Run(ctx context.Context, _ bool) error {
	logger := t.d.Logger
	if logger == nil {
		logger = log.Default()
	}

	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		t.mu.Lock()
		t.attempts++
		t.mu.Unlock()

		err := t.attempt(ctx)
		if err == nil {
			return nil
		}
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return err
		}
		if ctx.Err() != nil || isBreakerRejection(err) || !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Printf("WARNING: download %s attempt %d failed: %v (retrying in %s)", t.url, t.Attempts(), err, wait)
	}

	if err := backoff.RetryNotify(operation, t.d.Retry.backOff(ctx), notify); err != nil {
		if !task.IsCancellation(err) {
			t.SetErrors(err.Error())
		}
		return err
	}

	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	return nil
}

func (t *Task) attempt(ctx context.Context) error {
	dir := filepath.Dir(t.dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return backoff.Permanent(fmt.Errorf("creating %s: %w", dir, err))
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return backoff.Permanent(fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmp.Name()
	keep := false
	defer func() {
		if !keep {
			os.Remove(tmpPath)
		}
	}()

	hash := sha256.New()
	w := io.MultiWriter(tmp, hash)

	fetch := func() (interface{}, error) {
		return nil, t.d.Transport.Fetch(ctx, t.url, w, t.progress())
	}
	if t.d.Breakers != nil {
		_, err = t.d.Breakers.ForURL(t.url).Execute(fetch)
	} else {
		_, err = fetch()
	}
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("writing %s: %w", tmpPath, cerr)
	}
	if err != nil {
		return err
	}

	if t.sha256 != "" {
		got := hex.EncodeToString(hash.Sum(nil))
		if got != t.sha256 {
			return fmt.Errorf("%w: %s: got %s, want %s", ErrChecksumMismatch, t.url, got, t.sha256)
		}
	}

	if err := os.Rename(tmpPath, t.dest); err != nil {
		return backoff.Permanent(fmt.Errorf("moving download into place: %w", err))
	}
	keep = true
	return nil
}

// progress returns a throttled progress publisher, or nil without a bus.
func (t *Task) progress() func(written, total int64) {
	if t.d.Bus == nil {
		return nil
	}
	var last time.Time
	return func(written, total int64) {
		now := time.Now()
		if now.Sub(last) < progressInterval && written != total {
			return
		}
		last = now
		t.d.Bus.Publish(events.TopicDownload, events.DownloadProgressEvent{
			ID:        t.ID(),
			URL:       t.url,
			Written:   written,
			Total:     total,
			Timestamp: now,
		})
	}
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	return true
}
