// Package versioncheck compares remote and local build identifiers.
package versioncheck

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ParseToken parses a version token. Surrounding whitespace is ignored and
// either '.' or ',' is accepted as the decimal separator.
func ParseToken(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// IsUpdateRequired reports whether remote is a newer build than local. An
// unknown local version always requires an update; an unknown remote version
// never does.
func IsUpdateRequired(remote, local string) bool {
	l, ok := ParseToken(local)
	if !ok {
		return true
	}
	r, ok := ParseToken(remote)
	if !ok {
		return false
	}
	return r > l
}

// IsLauncherUpdateRequired reports whether remote is newer than the running
// launcher build. Any unparseable remote token yields false.
func IsLauncherUpdateRequired(remote string, local int) bool {
	r, ok := ParseToken(remote)
	if !ok {
		return false
	}
	return r > float64(local)
}

// ReadMarker returns the trimmed content of the version marker at path, or ""
// when it is absent or unreadable.
func ReadMarker(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// WriteMarker replaces the version marker at path with token.
func WriteMarker(path, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("empty version token")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0644); err != nil {
		return fmt.Errorf("write version marker: %w", err)
	}
	return nil
}
