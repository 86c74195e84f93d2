// Package appconfig loads the YAML configuration file consumed by
// cmd/mysqlgo-cli and the debug dashboard: the target DSN (which carries
// the pool bounds as query parameters), init statements, and conn_ttl, with ${VAR} environment substitution and
// optional fsnotify-driven hot reload.
package appconfig

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config is the top-level CLI/dashboard configuration.
type Config struct {
	DSN       string        `yaml:"dsn"`
	APIBind   string        `yaml:"api_bind"`
	APIPort   int           `yaml:"api_port"`
	ConnTTL   time.Duration `yaml:"conn_ttl"`
	InitStmts []string      `yaml:"init_statements"`
}

const (
	defaultAPIBind = "127.0.0.1"
	defaultAPIPort = 8080
)

func (cfg *Config) setDefaults() {
	if cfg.APIBind == "" {
		cfg.APIBind = defaultAPIBind
	}
	if cfg.APIPort == 0 {
		cfg.APIPort = defaultAPIPort
	}
}

func (cfg *Config) validate() error {
	if cfg.DSN == "" {
		return fmt.Errorf("dsn is required")
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces every ${VAR_NAME} in data with the environment
// variable's value, leaving the pattern untouched when the variable is
// unset.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(name)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads path, expands ${VAR} references against the process
// environment, decodes the result as YAML, validates it, and fills in any
// unset defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("appconfig: reading %s: %w", path, err)
	}

	cfg := new(Config)
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(raw)))
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("appconfig: parsing %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("appconfig: %s: %w", path, err)
	}
	cfg.setDefaults()
	return cfg, nil
}

// reloadDebounce is how long the Watcher waits after the last filesystem
// event before re-reading the config, so an editor's series of write+rename
// events collapses into a single reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher re-reads a config file after the write/create events fsnotify
// reports for it (a burst of events is debounced into one reload) and
// hands the result to callback. Only DSN-independent
// fields (conn_ttl, init statements, API bind/port) are meant to be
// hot-swapped this way — changing the DSN itself requires a restart since it
// would mean tearing down the pool mid-flight.
type Watcher struct {
	path     string
	callback func(*Config)

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	events chan struct{}
	done   chan struct{}
}

// NewWatcher starts watching path and returns once the watch is
// established; reload events fire on a background goroutine until Stop is
// called.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("appconfig: creating watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("appconfig: watching %s: %w", path, err)
	}

	w := &Watcher{
		path:     path,
		callback: callback,
		fsw:      fsw,
		events:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.pump()
	go w.debounceAndReload()
	return w, nil
}

// pump forwards raw fsnotify write/create events into a coalesced signal
// channel, so bursts of events (editors often emit several per save) collapse
// to at most one pending reload.
func (w *Watcher) pump() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case w.events <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("appconfig: watcher error", "path", w.path, "error", err)
		case <-w.done:
			return
		}
	}
}

// debounceAndReload waits reloadDebounce after each signal from pump before
// reloading, restarting the wait if another signal arrives first.
func (w *Watcher) debounceAndReload() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-w.events:
			pending = true
			timer.Reset(reloadDebounce)
		case <-timer.C:
			if pending {
				pending = false
				w.reload()
			}
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("appconfig: hot-reload failed", "path", w.path, "error", err)
		return
	}
	slog.Info("appconfig: configuration reloaded", "path", w.path)

	w.mu.Lock()
	cb := w.callback
	w.mu.Unlock()
	cb(cfg)
}

// Stop stops the watcher and releases its fsnotify handle.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsw.Close()
}
