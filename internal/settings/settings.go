// Package settings loads the proxy's OAuth client settings (client_secret,
// token_url) from a Settings source in the working directory.
//
// The source may be any format viper understands: Settings.toml,
// Settings.yaml, Settings.json and so on.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Well-known settings keys.
const (
	KeyClientSecret = "client_secret"
	KeyTokenURL     = "token_url"
)

// KeyError reports a settings key that is absent from the source.
type KeyError struct {
	Key string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("configuration property %q not found", e.Key)
}

// Settings is an immutable snapshot of one settings load.
type Settings struct {
	values map[string]any
	path   string
}

// New returns Settings backed by the given values. Keys are matched
// case-insensitively, as when loading from a file.
func New(values map[string]any) *Settings {
	lowered := make(map[string]any, len(values))
	for k, v := range values {
		lowered[strings.ToLower(k)] = v
	}
	return &Settings{values: lowered}
}

// Path returns the file the settings were read from, or "" for in-memory settings.
func (s *Settings) Path() string {
	return s.path
}

// String returns the value at key converted to a string. Dotted keys address
// nested tables. Scalar values (numbers, booleans) are converted; tables and
// arrays are rejected.
func (s *Settings) String(key string) (string, error) {
	v, ok := lookup(s.values, strings.ToLower(key))
	if !ok || v == nil {
		return "", &KeyError{Key: key}
	}
	switch v.(type) {
	case map[string]any, []any:
		return "", fmt.Errorf("configuration property %q is not a string (got %T)", key, v)
	}
	str, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("configuration property %q: %w", key, err)
	}
	return str, nil
}

func lookup(values map[string]any, key string) (any, bool) {
	if v, ok := values[key]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(key, ".")
	if !found {
		return nil, false
	}
	nested, ok := values[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(nested, rest)
}

// WarnPermissions logs a warning if the settings file is readable by group or others.
// The file holds the client secret.
func (s *Settings) WarnPermissions(logger *slog.Logger) {
	if s.path == "" {
		return
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("settings file is readable by group/others; consider chmod 600",
			"path", s.path,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}

// Loader produces Settings.
type Loader interface {
	Load() (*Settings, error)
}

// FileLoader reads a named settings source from a directory on every Load.
type FileLoader struct {
	Name string
	Dir  string
}

// NewFileLoader creates a FileLoader for name (without extension) in dir.
func NewFileLoader(name, dir string) *FileLoader {
	return &FileLoader{Name: name, Dir: dir}
}

// Load reads the settings source with a fresh viper instance, so concurrent
// loads share nothing.
func (l *FileLoader) Load() (*Settings, error) {
	v := viper.New()
	v.SetConfigName(l.Name)
	v.AddConfigPath(l.Dir)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read settings %q in %s: %w", l.Name, l.Dir, err)
	}

	return &Settings{
		values: v.AllSettings(),
		path:   v.ConfigFileUsed(),
	}, nil
}

// CachedLoader keeps the first successful load of the wrapped Loader.
// Failed loads are not cached and are retried on the next call.
type CachedLoader struct {
	next Loader

	mu     sync.Mutex
	cached *Settings
}

// NewCachedLoader wraps next with a cache.
func NewCachedLoader(next Loader) *CachedLoader {
	return &CachedLoader{next: next}
}

// Load returns the cached settings, loading them on first use.
func (c *CachedLoader) Load() (*Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil {
		return c.cached, nil
	}
	s, err := c.next.Load()
	if err != nil {
		return nil, err
	}
	c.cached = s
	return s, nil
}
