package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the docupie home directory.
	DefaultDirName = ".docupie"

	// RunsDirName is the subdirectory for per-run scratch data.
	RunsDirName = "runs"

	// OutputsDirName is the subdirectory for saved results.
	OutputsDirName = "outputs"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the docupie home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.docupie).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// RunsDir returns the parent of all per-run directories.
func (d *Dir) RunsDir() string {
	return filepath.Join(d.path, RunsDirName)
}

// OutputsDir returns the directory for saved results.
func (d *Dir) OutputsDir() string {
	return filepath.Join(d.path, OutputsDirName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.RunsDir(), d.OutputsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// PagesDir returns the directory for rendered page images of a run.
func (d *Dir) PagesDir(runID string) string {
	return filepath.Join(d.RunsDir(), runID, "pages")
}

// EnsurePagesDir creates the page image directory for a run.
func (d *Dir) EnsurePagesDir(runID string) error {
	return os.MkdirAll(d.PagesDir(runID), 0o755)
}

// RemoveRun deletes all scratch data for a run.
func (d *Dir) RemoveRun(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	return os.RemoveAll(filepath.Join(d.RunsDir(), runID))
}

// OutputPath returns where the result for a file name is saved.
func (d *Dir) OutputPath(fileName, ext string) string {
	return filepath.Join(d.OutputsDir(), fileName+"."+ext)
}
