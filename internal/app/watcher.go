package app

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/kai-zer-ru/max-notify-ha/internal/config"
)

const reloadDebounce = 250 * time.Millisecond

// ConfigWatcher hot-reloads the config file. Editors tend to fire several
// events per save (and some replace the file entirely), so the watcher sits
// on the directory, debounces, and compares content hashes before applying
// anything. A config that fails validation is rejected and the running one
// stays in force.
type ConfigWatcher struct {
	path     string
	onChange func(*config.Config)
	log      *zerolog.Logger

	mu       sync.Mutex
	timer    *time.Timer
	lastHash uint64
}

func NewConfigWatcher(path string, onChange func(*config.Config), logger *zerolog.Logger) *ConfigWatcher {
	l := logger.With().Str("component", "config_watcher").Logger()
	return &ConfigWatcher{path: path, onChange: onChange, log: &l}
}

// Prime records the currently applied config content so the first watch
// event does not trigger a spurious reload.
func (w *ConfigWatcher) Prime() {
	if b, err := os.ReadFile(w.path); err == nil {
		w.mu.Lock()
		w.lastHash = hashBytes(b)
		w.mu.Unlock()
	}
}

// Run watches until ctx is cancelled.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(dir); err != nil {
		return err
	}
	w.log.Debug().Str("dir", dir).Str("file", file).Msg("config watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
				w.schedule()
			}
		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(werr).Msg("config watch error")
		}
	}
}

func (w *ConfigWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(reloadDebounce, w.reload)
}

func (w *ConfigWatcher) reload() {
	b, err := os.ReadFile(w.path)
	if err != nil {
		w.log.Warn().Err(err).Msg("config read failed, keeping current config")
		return
	}

	h := hashBytes(b)
	w.mu.Lock()
	unchanged := h == w.lastHash
	w.mu.Unlock()
	if unchanged {
		w.log.Debug().Msg("config content unchanged")
		return
	}

	cfg, err := config.Parse(b)
	if err != nil {
		w.log.Warn().Err(err).Msg("reloaded config rejected, keeping current config")
		return
	}

	w.mu.Lock()
	w.lastHash = h
	w.mu.Unlock()

	w.log.Info().Msg("config changed")
	w.onChange(cfg)
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b)
	return h.Sum64()
}
