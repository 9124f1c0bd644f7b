package tui

import (
	"os"
	"path/filepath"
)

// GetLogFilePath returns the path to the log file.
// If RUNWAY_LOG_FILE is set, uses that path.
// Otherwise, uses ~/.runway/logs/runway.log
func GetLogFilePath() string {
	if customPath := os.Getenv("RUNWAY_LOG_FILE"); customPath != "" {
		return customPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if we can't get home dir
		return "runway.log"
	}

	return filepath.Join(homeDir, ".runway", "logs", "runway.log")
}
