package paths

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.fastsm.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".fastsm")
}

// AccountDir returns the account-specific directory.
func AccountDir(name string) string {
	return filepath.Join(BaseDir(), "accounts", name)
}

// CacheDBPath returns the account's timeline cache database path.
func CacheDBPath(name string) string {
	return filepath.Join(AccountDir(name), "timeline_cache.db")
}

// PrefsPath returns the account's open-timeline preferences file.
func PrefsPath(name string) string {
	return filepath.Join(AccountDir(name), "prefs.json")
}

// LogDir returns the log directory for an account.
func LogDir(name string) string {
	return filepath.Join(AccountDir(name), "logs")
}

// LogPath returns the account log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "fastsm.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureAccountDir creates the account directory tree with proper permissions.
func EnsureAccountDir(name string) error {
	dirs := []string{
		AccountDir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
