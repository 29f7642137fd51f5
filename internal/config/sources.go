package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-qualitygate/internal/ports"
)

var (
	_ ports.SecretSource = (*EnvSource)(nil)
	_ ports.SecretSource = (*FileSource)(nil)
	_ ports.SecretSource = MapSource(nil)
)

// EnvSource reads settings from the process environment.
type EnvSource struct {
	lookupEnv func(string) (string, bool)
}

// NewEnvSource returns a source backed by os.LookupEnv.
func NewEnvSource() *EnvSource { return &EnvSource{lookupEnv: os.LookupEnv} }

// Name implements ports.SecretSource.
func (s *EnvSource) Name() string { return "env" }

// Lookup implements ports.SecretSource.
func (s *EnvSource) Lookup(_ context.Context, key string) (string, bool, error) {
	val, ok := s.lookupEnv(key)
	return val, ok, nil
}

// DefaultSecretsPath returns the secrets file location. QUALITYGATE_SECRETS_PATH
// overrides the default of <user config dir>/qualitygate/secrets.yaml, which
// honours XDG_CONFIG_HOME on Linux.
func DefaultSecretsPath() string {
	if p := os.Getenv(KeySecretsPath); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "secrets.yaml")
	}
	return filepath.Join(dir, "qualitygate", "secrets.yaml")
}

// FileSource reads settings from a local YAML or JSON secrets file holding a
// flat map of keys to values. Keys may be written in either the
// environment spelling (FOUNDRY_API_KEY) or the hyphenated user-secrets
// spelling (FOUNDRY-API-KEY). A missing file yields no values rather than an
// error.
type FileSource struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

// NewFileSource returns a source for the secrets file at path. The file is
// read lazily on first lookup.
func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

// Name implements ports.SecretSource.
func (s *FileSource) Name() string { return "file:" + s.path }

// Lookup implements ports.SecretSource. The environment spelling is tried
// before the hyphenated one, and a blank value under either yields to the
// other.
func (s *FileSource) Lookup(_ context.Context, key string) (string, bool, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return "", false, s.err
	}
	found := false
	for _, k := range []string{key, strings.ReplaceAll(key, "_", "-")} {
		val, ok := s.values[k]
		if !ok {
			continue
		}
		found = true
		if strings.TrimSpace(val) != "" {
			return val, true, nil
		}
	}
	return "", found, nil
}

func (s *FileSource) load() {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.values = map[string]string{}
		return
	}
	if err != nil {
		s.err = fmt.Errorf("read secrets file: %w", err)
		return
	}

	// JSON is a subset of YAML, so a single decoder covers both formats.
	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		s.err = fmt.Errorf("parse secrets file %s: %w", s.path, err)
		return
	}
	s.values = values
}

// MapSource is an in-memory source, useful for tests and for settings
// supplied programmatically.
type MapSource map[string]string

// Name implements ports.SecretSource.
func (m MapSource) Name() string { return "map" }

// Lookup implements ports.SecretSource.
func (m MapSource) Lookup(_ context.Context, key string) (string, bool, error) {
	val, ok := m[key]
	return val, ok, nil
}
