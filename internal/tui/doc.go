// Package tui provides the terminal user interface for runway.
//
// It handles:
//   - Structured logging and status reporting (Splog)
//   - Release progress display (using bubbletea, with a plain fallback)
//   - Confirmation prompts (using survey)
//   - Terminal styling and colors (using lipgloss)
package tui
