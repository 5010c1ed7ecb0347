package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration is a time.Duration that reads and writes JSON as "1.5s" style strings.
// Plain numbers are read as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig sizes the task engine.
type EngineConfig struct {
	MaxConcurrency int `json:"max_concurrency"` // Concurrent lane bound; 0 means GOMAXPROCS
}

// GitConfig configures how the git executable is invoked.
type GitConfig struct {
	Executable     string   `json:"executable"`        // git binary name or path
	Env            []string `json:"env,omitempty"`     // KEY=VALUE overrides for every invocation
	RetryCount     int      `json:"retry_count"`       // Extra attempts for read-only commands
	RetryInterval  Duration `json:"retry_interval"`    // Pause between attempts
	DisablePrompts bool     `json:"disable_prompts"`   // Sets GIT_TERMINAL_PROMPT=0
	Timeout        Duration `json:"timeout,omitempty"` // Per-command timeout; 0 disables
}

// DownloadConfig configures the download task.
type DownloadConfig struct {
	RetryCount       int      `json:"retry_count"`       // Extra attempts after the first
	InitialInterval  Duration `json:"initial_interval"`  // First pause between attempts; 0 retries immediately
	MaxInterval      Duration `json:"max_interval"`      // Cap for the growing pause
	Timeout          Duration `json:"timeout"`           // Per-request timeout
	BreakerThreshold uint32   `json:"breaker_threshold"` // Consecutive failures that open a host's breaker
	BreakerTimeout   Duration `json:"breaker_timeout"`   // How long an open breaker rejects requests
	UserAgent        string   `json:"user_agent,omitempty"`
}

// HistoryConfig configures the run history store.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"` // Empty means ~/.gitbridge/history.db
}

// Config is the top-level configuration.
type Config struct {
	Engine       EngineConfig      `json:"engine"`
	Git          GitConfig         `json:"git"`
	Download     DownloadConfig    `json:"download"`
	History      HistoryConfig     `json:"history"`
	Repositories map[string]string `json:"repositories"` // Named repository paths usable with --repo
}
