package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, filepath.Join("/custom/data", "dorepo"), DefaultDataDir())
}

func TestDefaultDataDirWithoutXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	got := DefaultDataDir()
	assert.NotEmpty(t, got)
	assert.True(t, strings.Contains(strings.ToLower(got), "dorepo") || got == "./data", got)
	assert.Equal(t, got, DefaultDataDir(), "must be stable across calls")
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "")
	t.Setenv("USERPROFILE", "")
	got := DefaultDataDir()
	assert.NotEmpty(t, got)
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	assert.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	assert.True(t, isDir(dir))
	assert.False(t, isDir(file))
	assert.False(t, isDir(filepath.Join(dir, "missing")))
}
