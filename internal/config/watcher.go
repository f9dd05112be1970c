package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

const defaultPollInterval = 5 * time.Second

// ReloadFunc receives the previous and new configs plus the computed
// [ConfigDiff] whenever the watched file is replaced with different, valid
// content. It runs outside the watcher's lock, so calling [Watcher.Current]
// from inside it is safe.
type ReloadFunc func(old, new *Config, diff ConfigDiff)

// Watcher polls the service config file and reports validated reloads.
// Config edits are operator-driven, so polling on a multi-second interval is
// plenty and keeps the binary free of a filesystem-notification dependency.
//
// Two classes of change never reach the callback: content that fails to parse
// or validate (the current config stays in effect), and edits that leave the
// effective config unchanged, such as comment or formatting touch-ups.
type Watcher struct {
	path     string
	interval time.Duration
	onReload ReloadFunc

	mu      sync.Mutex
	current *Config
	modTime time.Time
	sum     [sha256.Size]byte

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides the default 5 s polling interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path and starts polling it in a background
// goroutine. The initial load must succeed; a service should not start on a
// config it cannot parse.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}

	w.current = cfg
	w.sum = sha256.Sum256(data)
	w.modTime = info.ModTime()

	go w.loop()
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

// reload re-reads the file when its mtime moved and swaps in the new config
// when the content parses, validates, and actually changes something the
// service acts on.
func (w *Watcher) reload() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config reload: stat failed", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	sameMtime := info.ModTime().Equal(w.modTime)
	w.mu.Unlock()
	if sameMtime {
		return
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		slog.Warn("config reload: read failed", "path", w.path, "err", err)
		return
	}
	sum := sha256.Sum256(data)

	w.mu.Lock()
	if sum == w.sum {
		// Touched, identical bytes.
		w.modTime = info.ModTime()
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		slog.Warn("config reload: new content rejected, keeping current config",
			"path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	old := w.current
	diff := Diff(old, cfg)
	w.current = cfg
	w.sum = sum
	w.modTime = info.ModTime()
	w.mu.Unlock()

	if diff == (ConfigDiff{}) {
		// Comment or formatting edit: new bytes, same effective config.
		return
	}

	slog.Info("configuration reloaded",
		"path", w.path,
		"restart_required", diff.RestartRequired,
	)
	if w.onReload != nil {
		w.onReload(old, cfg, diff)
	}
}
