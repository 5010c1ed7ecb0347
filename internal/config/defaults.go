package config

import (
	"errors"
	"fmt"
	"time"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{},
		Git: GitConfig{
			Executable:     "git",
			RetryCount:     0,
			RetryInterval:  Duration(500 * time.Millisecond),
			DisablePrompts: true,
		},
		Download: DownloadConfig{
			RetryCount:       2,
			InitialInterval:  Duration(500 * time.Millisecond),
			MaxInterval:      Duration(10 * time.Second),
			Timeout:          Duration(5 * time.Minute),
			BreakerThreshold: 5,
			BreakerTimeout:   Duration(30 * time.Second),
			UserAgent:        "gitbridge",
		},
		History: HistoryConfig{
			Enabled: true,
		},
		Repositories: map[string]string{},
	}
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("engine.max_concurrency must be >= 0, got %d", c.Engine.MaxConcurrency))
	}
	if c.Git.Executable == "" {
		errs = append(errs, errors.New("git.executable must not be empty"))
	}
	if c.Git.RetryCount < 0 {
		errs = append(errs, fmt.Errorf("git.retry_count must be >= 0, got %d", c.Git.RetryCount))
	}
	if c.Download.RetryCount < 0 {
		errs = append(errs, fmt.Errorf("download.retry_count must be >= 0, got %d", c.Download.RetryCount))
	}
	if c.Download.MaxInterval < c.Download.InitialInterval {
		errs = append(errs, errors.New("download.max_interval must not be below download.initial_interval"))
	}
	for name, path := range c.Repositories {
		if path == "" {
			errs = append(errs, fmt.Errorf("repositories.%s has an empty path", name))
		}
	}
	return errors.Join(errs...)
}
