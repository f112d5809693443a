// Package config holds the launcher configuration: its YAML layout on disk,
// defaults and validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const fileHeader = "# ys-launcher configuration. Paths are relative to install.base_dir.\n"

// Load reads the file at path over the defaults and validates the result.
// The file must exist.
func Load(path string) (*LauncherConfig, error) {
	cfg := DefaultLauncherConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOptional is Load for a file that may be absent, in which case the
// validated defaults are returned and found is false.
func LoadOptional(path string) (cfg *LauncherConfig, found bool, err error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		def := DefaultLauncherConfig()
		return &def, false, def.Validate()
	}
	cfg, err = Load(path)
	return cfg, true, err
}

// decodeFile decodes the YAML at path into cfg. Keys missing from the file
// keep their current values and ${VAR} references are expanded from the
// environment. Unknown keys are an error so a misspelt key cannot silently
// fall back to its default.
func decodeFile(path string, cfg *LauncherConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Save writes cfg to path. The file is replaced atomically and kept private
// because it may hold the API token.
func Save(path string, cfg *LauncherConfig) error {
	body, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if _, err := io.WriteString(tmp, fileHeader+string(body)); err != nil {
		tmp.Close()
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Backup copies the file at path next to itself under a timestamped name and
// returns that name. An existing backup is never overwritten.
func Backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config %s: %w", path, err)
	}

	stamp := time.Now().Format("20060102-150405")
	for n := 0; ; n++ {
		name := fmt.Sprintf("%s.%s.bak", path, stamp)
		if n > 0 {
			name = fmt.Sprintf("%s.%s-%d.bak", path, stamp, n)
		}
		f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create backup: %w", err)
		}
		_, werr := f.Write(data)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			os.Remove(name)
			return "", fmt.Errorf("write backup: %w", werr)
		}
		return name, nil
	}
}
