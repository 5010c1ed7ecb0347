package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/gitbridge/internal/events"
	"github.com/aristath/gitbridge/internal/task"
)

// flakyTransport fails the first failures calls, then writes body.
type flakyTransport struct {
	failures int
	body     string
	calls    atomic.Int32
}

func (f *flakyTransport) Fetch(_ context.Context, _ string, w io.Writer, progress func(int64, int64)) error {
	n := int(f.calls.Add(1))
	if n <= f.failures {
		return fmt.Errorf("attempt %d: connection reset", n)
	}
	if _, err := io.WriteString(w, f.body); err != nil {
		return err
	}
	if progress != nil {
		progress(int64(len(f.body)), int64(len(f.body)))
	}
	return nil
}

func newManager(t *testing.T) *task.Manager {
	t.Helper()
	m := task.NewManager(context.Background(), task.Config{
		MaxConcurrency: 2,
		Logger:         log.New(io.Discard, "", 0),
	})
	t.Cleanup(m.Stop)
	return m
}

func newDownloader(tr Transport, retries int) *Downloader {
	return &Downloader{
		Transport: tr,
		Retry:     RetryConfig{Count: retries},
		Logger:    log.New(io.Discard, "", 0),
	}
}

func TestTask_SucceedsOnThirdAttempt(t *testing.T) {
	m := newManager(t)
	tr := &flakyTransport{failures: 2, body: "payload"}
	dest := filepath.Join(t.TempDir(), "file.bin")

	dl := newDownloader(tr, 2).New(m, "https://example.com/file.bin", dest)
	dl.Start()

	require.NoError(t, dl.Wait())
	assert.Equal(t, task.RanToCompletion, dl.State())
	assert.Equal(t, 3, dl.Attempts())
	assert.Equal(t, dest, dl.Result())

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestTask_FaultsWithLastError(t *testing.T) {
	m := newManager(t)
	tr := &flakyTransport{failures: 1000}
	dir := t.TempDir()
	dest := filepath.Join(dir, "file.bin")

	dl := newDownloader(tr, 2).New(m, "https://example.com/file.bin", dest)
	dl.Start()

	err := dl.Wait()
	require.Error(t, err)
	assert.Equal(t, task.Faulted, dl.State())
	assert.Equal(t, 3, dl.Attempts())
	assert.Contains(t, err.Error(), "attempt 3")
	assert.Contains(t, dl.Errors(), "attempt 3")
	assert.Empty(t, dl.Result())

	// No partial files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTask_CatchClaimsDownloadFault(t *testing.T) {
	m := newManager(t)
	dl := newDownloader(&flakyTransport{failures: 1000}, 0).New(m, "https://example.com/x", filepath.Join(t.TempDir(), "x"))

	var caught atomic.Int32
	unhandled := make(chan error, 1)
	m.OnUnhandled(func(_ task.Task, err error) { unhandled <- err })

	dl.Catch(func(err error) bool {
		caught.Add(1)
		return true
	})
	dl.Start()

	require.Error(t, dl.Wait())
	assert.Equal(t, int32(1), caught.Load())
	assert.Equal(t, 1, dl.Attempts())
	select {
	case err := <-unhandled:
		t.Fatalf("claimed fault reported as unhandled: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTask_ChecksumMismatch(t *testing.T) {
	m := newManager(t)
	dest := filepath.Join(t.TempDir(), "file.bin")
	dl := newDownloader(&flakyTransport{body: "payload"}, 1).New(m, "https://example.com/file.bin", dest).
		WithSHA256("00")
	dl.Start()

	err := dl.Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChecksumMismatch))
	assert.Equal(t, 2, dl.Attempts())
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestTask_ChecksumMatch(t *testing.T) {
	m := newManager(t)
	sum := sha256.Sum256([]byte("payload"))
	dest := filepath.Join(t.TempDir(), "nested", "file.bin")
	dl := newDownloader(&flakyTransport{body: "payload"}, 0).New(m, "https://example.com/file.bin", dest).
		WithSHA256(hex.EncodeToString(sum[:]))
	dl.Start()

	require.NoError(t, dl.Wait())
	assert.Equal(t, dest, dl.Result())
}

func TestTask_ChainsPathIntoContinuation(t *testing.T) {
	m := newManager(t)
	dest := filepath.Join(t.TempDir(), "file.bin")
	dl := newDownloader(&flakyTransport{body: "abc"}, 0).New(m, "https://example.com/file.bin", dest)

	size := task.NewFuncFrom(m, func(_ context.Context, _ bool, path string) (int64, error) {
		info, err := os.Stat(path)
		if err != nil {
			return 0, err
		}
		return info.Size(), nil
	})
	dl.Then(size, false)
	size.Start()

	require.NoError(t, size.Wait())
	assert.Equal(t, int64(3), size.Result())
}

func TestTask_HTTP(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "gitbridge-test", r.Header.Get("User-Agent"))
		io.WriteString(w, "hello over http")
	}))
	defer srv.Close()

	bus := events.NewEventBus()
	defer bus.Close()
	progress := bus.Subscribe(events.TopicDownload, 16)

	m := newManager(t)
	d := &Downloader{
		Transport: NewHTTPTransport(5*time.Second, "gitbridge-test"),
		Breakers:  NewBreakerRegistry(DefaultBreakerConfig(), log.New(io.Discard, "", 0)),
		Retry:     RetryConfig{Count: 2, InitialInterval: time.Millisecond},
		Bus:       bus,
		Logger:    log.New(io.Discard, "", 0),
	}
	dest := filepath.Join(t.TempDir(), "out.txt")
	dl := d.New(m, srv.URL+"/out.txt", dest)
	dl.Start()

	require.NoError(t, dl.Wait())
	assert.Equal(t, 2, dl.Attempts())
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello over http", string(data))

	select {
	case ev := <-progress:
		p, ok := ev.(events.DownloadProgressEvent)
		require.True(t, ok)
		assert.Equal(t, dl.ID(), p.ID)
		assert.Equal(t, int64(len("hello over http")), p.Written)
	case <-time.After(time.Second):
		t.Fatal("no progress event")
	}
}

func TestTask_HTTPClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	m := newManager(t)
	d := newDownloader(NewHTTPTransport(5*time.Second, ""), 3)
	dl := d.New(m, srv.URL+"/missing", filepath.Join(t.TempDir(), "missing"))
	dl.Start()

	err := dl.Wait()
	var status *StatusError
	require.True(t, errors.As(err, &status), "got %v", err)
	assert.Equal(t, http.StatusNotFound, status.Code)
	assert.False(t, status.Temporary())
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, dl.Attempts())
}

// blockingTransport waits for cancellation.
type blockingTransport struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingTransport) Fetch(ctx context.Context, _ string, _ io.Writer, _ func(int64, int64)) error {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return ctx.Err()
}

func TestTask_CancelledByManager(t *testing.T) {
	m := newManager(t)
	tr := &blockingTransport{started: make(chan struct{})}
	dl := newDownloader(tr, 5).New(m, "https://example.com/slow", filepath.Join(t.TempDir(), "slow"))
	dl.Start()

	<-tr.started
	m.Cancel()

	<-dl.Done()
	assert.Equal(t, task.Cancelled, dl.State())
	assert.Equal(t, 1, dl.Attempts())
	assert.Empty(t, dl.Errors())
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	reg := NewBreakerRegistry(BreakerConfig{Threshold: 2, Timeout: time.Minute}, log.New(io.Discard, "", 0))
	m := newManager(t)
	d := &Downloader{
		Transport: &flakyTransport{failures: 1000},
		Breakers:  reg,
		Retry:     RetryConfig{Count: 5},
		Logger:    log.New(io.Discard, "", 0),
	}

	dl := d.New(m, "https://flaky.example.com/a", filepath.Join(t.TempDir(), "a"))
	dl.Start()

	err := dl.Wait()
	require.Error(t, err)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState), "got %v", err)
	// Two failures trip the breaker, the third attempt is rejected without retrying
	assert.Equal(t, 3, dl.Attempts())
	assert.Equal(t, gobreaker.StateOpen, reg.ForURL("https://flaky.example.com/b").State())
	assert.Equal(t, gobreaker.StateClosed, reg.Get("other.example.com").State())
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	reg := NewBreakerRegistry(BreakerConfig{Threshold: 1, Timeout: time.Minute}, log.New(io.Discard, "", 0))
	cb := reg.Get("host")

	_, err := cb.Execute(func() (interface{}, error) { return nil, context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestRegistryReturnsSameBreaker(t *testing.T) {
	reg := NewBreakerRegistry(BreakerConfig{}, nil)
	assert.Same(t, reg.Get("a"), reg.ForURL("https://a/path"))
	assert.NotSame(t, reg.Get("a"), reg.Get("b"))
}
