package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.pigeon.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".pigeon")
}

// Dir returns the profile-specific directory.
func Dir(profile string) string {
	return filepath.Join(BaseDir(), "profiles", profile)
}

// DBPath returns the server message database path for a profile.
func DBPath(profile string) string {
	return filepath.Join(Dir(profile), "pigeon.db")
}

// MediaDir returns the directory for locally stored media blobs.
func MediaDir(profile string) string {
	return filepath.Join(Dir(profile), "media")
}

// CacheDir returns the client conversation cache directory.
func CacheDir(profile string) string {
	return filepath.Join(Dir(profile), "cache")
}

// LogDir returns the log directory for a profile.
func LogDir(profile string) string {
	return filepath.Join(Dir(profile), "logs")
}

// ServerLogPath returns the pigeond log file path.
func ServerLogPath(profile string) string {
	return filepath.Join(LogDir(profile), "pigeond.log")
}

// ClientLogPath returns the client log file path.
func ClientLogPath(profile string) string {
	return filepath.Join(LogDir(profile), "client.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(profile string) error {
	dirs := []string{
		Dir(profile),
		CacheDir(profile),
		MediaDir(profile),
		LogDir(profile),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
