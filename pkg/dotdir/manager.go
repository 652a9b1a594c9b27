// Package dotdir resolves the .truthstore/ directory that holds config.toml
// and, by default, the SQLite database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DirName is the name of the truthstore directory.
	DirName = ".truthstore"

	// HomeEnv names a directory used in place of ./.truthstore/ and
	// ~/.truthstore/.
	HomeEnv = "TRUTHSTORE_HOME"
)

// LocalDir is the .truthstore/ directory inside cwd.
func LocalDir(cwd string) string {
	return filepath.Join(cwd, DirName)
}

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .truthstore/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. $TRUTHSTORE_HOME
//  3. Local ./.truthstore/ dir
//  4. Home ~/.truthstore/ dir
//
// The chosen directory is created if missing.
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string
	envDir := strings.TrimSpace(os.Getenv(HomeEnv))

	switch {
	case overrideDir != "":
		dir = overrideDir

	case envDir != "":
		dir = envDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = LocalDir(cwd)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, DirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating truthstore directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Resolve joins a relative path onto the target directory. Absolute paths
// and the SQLite ":memory:" name are returned unchanged.
func (m *Manager) Resolve(overrideDir, path string) (string, error) {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path, nil
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, path), nil
}

// localDirExists checks whether a .truthstore/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(LocalDir(cwd))
	return err == nil && info.IsDir()
}
