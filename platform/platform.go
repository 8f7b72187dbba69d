// Package platform provides cross-platform utilities for directory paths
// and shared-library naming.
package platform

import (
	"os"
	"path/filepath"
)

// AppName is the application name used for directory naming
const AppName = "prism-depth"

// AppDisplayName is the display name used on Windows and macOS
const AppDisplayName = "Prism Depth"

// GetDataDir returns the application data directory.
// Windows: %APPDATA%\Prism Depth
// Linux: ~/.local/share/prism-depth
// Falls back to ~/.prism-depth if XDG is not available.
func GetDataDir() string {
	return getDataDir()
}

// GetCacheDir returns the cache directory for the conversion index.
// Windows: %APPDATA%\Prism Depth
// Linux: ~/.cache/prism-depth
func GetCacheDir() string {
	return getCacheDir()
}

// SharedLibExtension returns the shared library extension for the current platform.
// Windows: ".dll"
// Linux: ".so"
func SharedLibExtension() string {
	return sharedLibExtension()
}

// DefaultORTLibraryName returns the onnxruntime shared library file name for
// the current platform.
func DefaultORTLibraryName() string {
	return "libonnxruntime" + sharedLibExtension()
}

// UserHomeDir returns the user's home directory with a fallback.
func UserHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// JoinPath is a convenience wrapper around filepath.Join
func JoinPath(elem ...string) string {
	return filepath.Join(elem...)
}
