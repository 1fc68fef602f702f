// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat carries user-visible status lines from the bridge to
// the nearby-chat panel. The bridge reports lifecycle progress and
// failures here rather than to the log so the user sees them without
// opening a console.
package chat

import (
	"log/slog"
	"sync"
)

// Reporter receives user-facing status messages.
type Reporter interface {
	Report(message string)
}

// LogReporter forwards messages to a structured logger, for headless
// runs where there is no chat panel.
type LogReporter struct {
	Logger *slog.Logger
}

func (r *LogReporter) Report(message string) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("nearby chat", "message", message)
}

// Recorder captures reported messages for assertions in tests.
type Recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *Recorder) Report(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
}

// Messages returns a copy of everything reported so far.
func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
