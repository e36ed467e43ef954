package config

import (
	"os"
	"path/filepath"
)

// DataDir is the base directory for local files used in standalone
// operation: the SQLite feedback database and JSON exports.
type DataDir string

// DefaultDataDir returns ~/.neurodx, or ./.neurodx when the home
// directory cannot be resolved.
func DefaultDataDir() DataDir {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DataDir(".neurodx")
	}
	return DataDir(filepath.Join(homeDir, ".neurodx"))
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (d DataDir) FeedbackDBPath() string {
	return filepath.Join(string(d), "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (d DataDir) ExportDir() string {
	return filepath.Join(string(d), "exports")
}

// Ensure creates the data and export directories if they don't exist.
func (d DataDir) Ensure() error {
	if err := os.MkdirAll(string(d), 0755); err != nil {
		return err
	}
	return os.MkdirAll(d.ExportDir(), 0755)
}
