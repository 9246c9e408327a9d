package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// defaultPollInterval is how often the config file is re-examined.
const defaultPollInterval = 5 * time.Second

// fingerprint identifies one on-disk revision of the config file.
type fingerprint struct {
	mtime time.Time
	sum   [sha256.Size]byte
}

// Watcher polls the config file and reports edits through a callback,
// driving hot reload of the wakeword, fast-path patterns, device registry,
// and log level. Polling with an mtime short-circuit covers editors, bind
// mounts, and symlink swaps alike without an fsnotify dependency.
//
// A revision that fails to parse or validate is logged and skipped; the
// previous config stays in effect.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	seen    fingerprint

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval overrides the 5 second polling interval.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d <= 0 {
			return
		}
		w.interval = d
	}
}

// NewWatcher loads path once, then polls it in a background goroutine until
// [Watcher.Stop]. Every content change that parses and validates invokes
// onChange with the previous and the new config.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: defaultPollInterval,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, fp, err := w.snapshot()
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	w.current, w.seen = cfg, fp

	go w.loop()
	return w, nil
}

// Current returns the most recently accepted config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) loop() {
	tick := time.NewTicker(w.interval)
	defer tick.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-tick.C:
			w.inspect()
		}
	}
}

// inspect applies one poll cycle: cheap mtime comparison first, full
// read/hash/parse only when the file looks touched.
func (w *Watcher) inspect() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seen.mtime)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, fp, err := w.snapshot()
	if err != nil {
		slog.Warn("config watcher: rejected new revision", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if fp.sum == w.seen.sum {
		// Touched but identical content (a save without edits).
		w.seen.mtime = fp.mtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current, w.seen = cfg, fp
	w.mu.Unlock()

	slog.Info("config watcher: config reloaded", "path", w.path)

	// Outside the lock: the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// snapshot reads, hashes, parses, and validates the file in one open.
func (w *Watcher) snapshot() (*Config, fingerprint, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, fingerprint{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fingerprint{}, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fingerprint{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fingerprint{}, err
	}
	return cfg, fingerprint{mtime: info.ModTime(), sum: sha256.Sum256(data)}, nil
}
