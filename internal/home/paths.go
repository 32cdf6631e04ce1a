package home

import (
	"os"
	"path/filepath"
)

// Default returns ~/.basilisk.
func Default() string {
	dir, _ := os.UserHomeDir()
	return filepath.Join(dir, ".basilisk")
}

// ConfigPath returns the config file path under base.
func ConfigPath(base string) string {
	return filepath.Join(base, "config.toml")
}

// DBPath returns the chat database path under base.
func DBPath(base string) string {
	return filepath.Join(base, "basilisk.db")
}

// IdentityPath returns the node key file path under base.
func IdentityPath(base string) string {
	return filepath.Join(base, "identity.key")
}

// SocketPath returns the UI bridge socket path under base.
func SocketPath(base string) string {
	return filepath.Join(base, "bridge.sock")
}

// LogDir returns the log directory under base.
func LogDir(base string) string {
	return filepath.Join(base, "logs")
}

// LogPath returns the daemon log file path under base.
func LogPath(base string) string {
	return filepath.Join(LogDir(base), "basiliskd.log")
}

// EnsureDirs creates the data directory tree with proper permissions.
func EnsureDirs(base string) error {
	for _, d := range []string{base, LogDir(base)} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}
