package ui

import "time"

// Terminal width thresholds for responsive layouts.
const (
	// LayoutCompactWidth is the threshold below which the side-by-side
	// queue and search panes stack vertically.
	LayoutCompactWidth = 100

	// LayoutMinProgressWidth is the narrowest progress bar drawn.
	LayoutMinProgressWidth = 10
)

// Display limits.
const (
	// QueueDisplayLimit caps the queue rows shown, whatever the height.
	QueueDisplayLimit = 50

	// ToastLimit is the number of toasts on screen at once.
	ToastLimit = 3

	// LogBufferLimit is the maximum number of log lines read from the tail.
	LogBufferLimit = 2000
)

// Timing constants.
const (
	// DefaultUIInterval is how often the panel re-reads the store and
	// advances the interpolated progress bar.
	DefaultUIInterval = 500 * time.Millisecond

	// LogRefreshInterval is how often a following logs view re-reads the file.
	LogRefreshInterval = 2 * time.Second

	// CommandTimeout bounds a single remote command.
	CommandTimeout = 10 * time.Second

	// ConnectTimeout bounds the interactive authorization flow.
	ConnectTimeout = 5 * time.Minute
)
