package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// reloadDelay coalesces bursts of file events into one reload.
const reloadDelay = 200 * time.Millisecond

// Loader reads voice files from a directory and keeps the current catalog.
type Loader struct {
	dir string
	def string
	cur atomic.Pointer[Catalog]
}

// NewLoader creates a loader for dir. def names the default voice.
func NewLoader(dir, def string) *Loader {
	return &Loader{dir: dir, def: def}
}

// Load reads every .yaml and .yml file in the directory and replaces the
// current catalog. On error the previous catalog stays in place.
func (l *Loader) Load() (*Catalog, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read voice dir %q: %w", l.dir, err)
	}

	var voices []*Voice
	for _, entry := range entries {
		if entry.IsDir() || !isVoiceFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		v, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		voices = append(voices, v)
	}

	c, err := NewCatalog(voices, l.def)
	if err != nil {
		return nil, err
	}
	l.cur.Store(c)
	return c, nil
}

// Catalog returns the most recently loaded catalog, or an empty one.
func (l *Loader) Catalog() *Catalog {
	if c := l.cur.Load(); c != nil {
		return c
	}
	return &Catalog{voices: map[string]*Voice{}}
}

// LoadFile reads one voice definition.
func LoadFile(path string) (*Voice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var v Voice
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if v.Name == "" {
		base := filepath.Base(path)
		v.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	if err := v.validate(); err != nil {
		return nil, err
	}
	v.resolve(filepath.Dir(path))
	return &v, nil
}

func isVoiceFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// Watch reloads the catalog whenever a voice file changes. It blocks until
// ctx is cancelled. Reload failures are logged and the previous catalog is
// kept.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isVoiceFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending = time.After(reloadDelay)
			}
		case <-pending:
			pending = nil
			c, err := l.Load()
			if err != nil {
				slog.Warn("voice reload failed, keeping previous catalog", "dir", l.dir, "error", err)
				continue
			}
			slog.Info("voice catalog reloaded", "voices", c.Names(), "default", c.Default())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
