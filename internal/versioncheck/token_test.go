package versioncheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1", 1, true},
		{" 2.5\n", 2.5, true},
		{"\t3,25 ", 3.25, true},
		{"1e2", 100, true},
		{"", 0, false},
		{"   ", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1,000.5", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseToken(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}

func TestIsUpdateRequired(t *testing.T) {
	tests := []struct {
		remote, local string
		want          bool
	}{
		{"2.0", "1.5", true},
		{"1.5", "2.0", false},
		{"abc", "1.0", false},
		{"2.0", "", true},
		{"", "", true},
		{"abc", "xyz", true},
		{"", "1.0", false},
		{"1.0", "1.0", false},
		{"1.01", "1.0", true},
		{" 3 ", "2\n", true},
		{"1,5", "1.4", true},
	}

	for _, tt := range tests {
		t.Run(tt.remote+"_vs_"+tt.local, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUpdateRequired(tt.remote, tt.local))
		})
	}
}

func TestIsLauncherUpdateRequired(t *testing.T) {
	assert.True(t, IsLauncherUpdateRequired("5", 4))
	assert.True(t, IsLauncherUpdateRequired("4.5", 4))
	assert.False(t, IsLauncherUpdateRequired("4", 4))
	assert.False(t, IsLauncherUpdateRequired("3", 4))
	assert.False(t, IsLauncherUpdateRequired("", 4))
	assert.False(t, IsLauncherUpdateRequired("<html>", 0))
}

func TestMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "YandereSimulator", "GameVersion.txt")

	assert.Empty(t, ReadMarker(path))

	require.NoError(t, WriteMarker(path, " 3.0 "))
	assert.Equal(t, "3.0", ReadMarker(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3.0\n", string(data))

	require.NoError(t, WriteMarker(path, "3.1"))
	assert.Equal(t, "3.1", ReadMarker(path))

	assert.Error(t, WriteMarker(path, "  "))
	assert.Equal(t, "3.1", ReadMarker(path))
}

func TestReadMarker_Directory(t *testing.T) {
	assert.Empty(t, ReadMarker(t.TempDir()))
}
