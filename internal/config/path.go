package config

import (
	"os"
	"path/filepath"
)

const appDir = "buildlog"

// DefaultDataDir picks the data directory for the host: $XDG_DATA_HOME,
// then /var/lib when present, then the per-user application folders of
// macOS and Windows, then ~/.buildlog. Without a home directory it is
// ./data.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDir)
	}
	for _, c := range []struct{ probe, dir string }{
		{"/var/lib", filepath.Join("/var/lib", appDir)},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", appDir)},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", appDir)},
	} {
		if isDir(c.probe) {
			return c.dir
		}
	}
	return filepath.Join(home, "."+appDir)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
