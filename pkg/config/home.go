package config

import (
	"os"
	"path/filepath"
	"sync"
)

// HomeEnv overrides the steadyhand home directory.
const HomeEnv = "STEADYHAND_HOME"

var home struct {
	once sync.Once
	dir  string
}

// GetHome returns the directory steadyhand keeps downloaded browsers and
// rotated logs under. It is resolved once per process from, in order:
// $STEADYHAND_HOME, $XDG_DATA_HOME/steadyhand, ~/.steadyhand, and a
// steadyhand directory in the system temp dir.
func GetHome() string {
	home.once.Do(func() {
		home.dir = lookupHome(os.Getenv, os.UserHomeDir)
	})
	return home.dir
}

// GetLogDir returns the default directory for --log-file names without a path.
func GetLogDir() string {
	return filepath.Join(GetHome(), "logs")
}

// GetBrowsersDir returns the per-backend directory for downloaded browser
// builds and driver bundles.
func GetBrowsersDir(driver string) string {
	return filepath.Join(GetHome(), "browsers", driver)
}

// ResetHome forgets the resolved home so the next GetHome looks again.
func ResetHome() {
	home.once = sync.Once{}
	home.dir = ""
}

func lookupHome(getenv func(string) string, userHome func() (string, error)) string {
	if dir := getenv(HomeEnv); dir != "" {
		return filepath.Clean(dir)
	}
	if xdg := getenv("XDG_DATA_HOME"); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, "steadyhand")
	}
	if dir, err := userHome(); err == nil && dir != "" {
		return filepath.Join(dir, ".steadyhand")
	}
	return filepath.Join(os.TempDir(), "steadyhand")
}
