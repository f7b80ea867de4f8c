package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// ErrConflictingPreference is returned when PREFER_COST and PREFER_QUALITY
// are both set true in the same config.
var ErrConflictingPreference = errors.New("config: PREFER_COST and PREFER_QUALITY are mutually exclusive")

var generationCounter uint64

// DefaultPath returns the default env-file location, honoring
// FORGE_ENV_FILE.
func DefaultPath() (string, error) {
	if p := os.Getenv("FORGE_ENV_FILE"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".forge.env"), nil
}

// Load reads the env-file at path (if it exists — a missing file is not an
// error, matching the teacher's tolerant env-overlay behavior) and overlays
// the process environment, then produces a frozen Settings. Unknown keys in
// the file are preserved in the file but simply ignored by the loader, per
// §6.
func Load(path string) (*Settings, error) {
	fileVars := map[string]string{}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			vars, err := godotenv.Read(path)
			if err != nil {
				return nil, fmt.Errorf("parse env file %s: %w", path, err)
			}
			fileVars = vars
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat env file %s: %w", path, err)
		}
	}

	// Process environment always wins over the file. Unlike the teacher's
	// LoadFromEnv (which reads os.Getenv directly against a pre-seeded
	// process environment), the merge happens in memory here so Load never
	// mutates the calling process's environment as a side effect.
	s := &Settings{}
	if err := loadFromEnv(reflect.ValueOf(s).Elem(), fileVars); err != nil {
		return nil, err
	}

	if s.PreferCost && s.PreferQuality {
		return nil, ErrConflictingPreference
	}

	if s.LogLevel == "" {
		s.LogLevel = "info"
	}

	s.generation = atomic.AddUint64(&generationCounter, 1)

	return s, nil
}

// loadFromEnv walks a struct's fields looking for `env:"KEY"` tags,
// generalized from the teacher's internal/config/envloader.go
// LoadFromEnv/setFieldValue pair to the subset of field kinds Settings
// actually uses (string, int, bool).
func loadFromEnv(v reflect.Value, fileVars map[string]string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}
		tag := t.Field(i).Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, ok := os.LookupEnv(tag)
		if !ok || raw == "" {
			raw, ok = fileVars[tag]
		}
		if !ok || raw == "" {
			continue
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(raw)
		case reflect.Int:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("invalid integer for %s: %w", tag, err)
			}
			field.SetInt(int64(n))
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("invalid boolean for %s: %w", tag, err)
			}
			field.SetBool(b)
		default:
			return fmt.Errorf("unsupported field kind %s for env %s", field.Kind(), tag)
		}
	}
	return nil
}

// Loader owns a reloadable Settings snapshot and an optional fsnotify watch
// on the env-file's directory. Reload replaces the snapshot Current
// returns and runs the OnChange callbacks; a *Settings already handed out
// (such as the one a role daemon's tool server is built with) is not
// updated.
type Loader struct {
	path string

	mu       sync.RWMutex
	current  *Settings
	watcher  *fsnotify.Watcher
	onChange []func()
}

// NewLoader loads the initial Settings and returns a Loader for subsequent
// reloads.
func NewLoader(path string) (*Loader, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Loader{path: path, current: s}, nil
}

// Current returns the most recently loaded Settings.
func (l *Loader) Current() *Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Reload re-reads the env-file and process environment, replacing Current
// atomically, and notifies every registered OnChange callback.
func (l *Loader) Reload() (*Settings, error) {
	s, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = s
	callbacks := append([]func(){}, l.onChange...)
	l.mu.Unlock()
	for _, cb := range callbacks {
		cb()
	}
	return s, nil
}

// OnChange registers a callback invoked after every successful Reload.
func (l *Loader) OnChange(cb func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, cb)
}

// Watch starts an fsnotify watch on the env-file's parent directory and
// triggers Reload on any write/create/rename event targeting the file
// itself. It returns immediately; the watch runs until Close is called.
func (l *Loader) Watch() error {
	if l.path == "" {
		return nil
	}
	dir := filepath.Dir(l.path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	l.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(l.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				_, _ = l.Reload()
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// Close stops the fsnotify watch, if any.
func (l *Loader) Close() error {
	if l.watcher == nil {
		return nil
	}
	return l.watcher.Close()
}
