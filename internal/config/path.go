package config

import (
	"os"
	"path/filepath"
)

const appDirName = "dorepo"

// DefaultDataDir picks the repository data directory when none is
// configured. XDG_DATA_HOME wins; otherwise the first platform location whose
// parent exists is used, falling back to ~/.dorepo and finally ./data.
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	candidates := []struct{ parent, dir string }{
		{"/var/lib", filepath.Join("/var/lib", appDirName)},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", "Dorepo")},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", "Dorepo")},
	}
	for _, c := range candidates {
		if isDir(c.parent) {
			return c.dir
		}
	}
	return filepath.Join(home, "."+appDirName)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
