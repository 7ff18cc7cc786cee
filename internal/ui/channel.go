package ui

import (
	"context"
	"time"
)

// Level grades messages shown to the user.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Channel is the user-interface surface used by confirmation and escalation.
// A nil Channel means no channel is configured; callers must handle that mode
// without blocking.
type Channel interface {
	// Display shows a message to the user.
	Display(ctx context.Context, message string, level Level) error

	// Prompt asks the user a question, optionally with a fixed option list,
	// and waits up to timeout for free text or a selected option. A zero
	// timeout waits indefinitely.
	Prompt(ctx context.Context, question string, options []string, timeout time.Duration) (string, error)
}
