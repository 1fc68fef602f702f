// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package settings implements the per-account mutable settings store:
// string-keyed typed values with registered defaults, persistence, and
// per-key change observers. The on-disk format is JSONC (JSON with //
// comments and trailing commas) so hand-edited settings files stay
// readable; saves write plain JSON.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tidwall/jsonc"
)

// Setting keys used by the bridge and restriction subsystems.
const (
	KeyUseLSLBridge            = "UseLSLBridge"
	KeyNoInventoryLibrary      = "NoInventoryLibrary"
	KeyUseAO                   = "UseAO"
	KeyUseMoveLock             = "UseMoveLock"
	KeyRelockAfterMovement     = "RelockMoveLockAfterMovement"
	KeyRelockAfterRegionChange = "RelockMoveLockAfterRegionChange"
	KeyFlightAssist            = "UseLSLFlightAssist"
	KeyIntegrationOC           = "BridgeIntegrationOC"
	KeyIntegrationLM           = "BridgeIntegrationLM"
	KeyWearReplaceUnlocked     = "RLVaWearReplaceUnlocked"
)

// Defaults returns the default value set for a fresh account.
func Defaults() map[string]any {
	return map[string]any{
		KeyUseLSLBridge:            true,
		KeyNoInventoryLibrary:      false,
		KeyUseAO:                   false,
		KeyUseMoveLock:             false,
		KeyRelockAfterMovement:     false,
		KeyRelockAfterRegionChange: true,
		KeyFlightAssist:            0.0,
		KeyIntegrationOC:           false,
		KeyIntegrationLM:           false,
		KeyWearReplaceUnlocked:     false,
	}
}

// Observer is invoked after a setting changes value. Observers run
// synchronously on the mutating goroutine; keep them short.
type Observer func(key string)

// Store holds typed settings with change notification. Safe for
// concurrent use.
type Store struct {
	mu        sync.Mutex
	values    map[string]any
	observers map[string][]Observer
	path      string
}

// New returns a Store seeded with the given defaults.
func New(defaults map[string]any) *Store {
	values := make(map[string]any, len(defaults))
	for key, value := range defaults {
		values[key] = value
	}
	return &Store{
		values:    values,
		observers: make(map[string][]Observer),
	}
}

// Load overlays the store with values from a JSONC file and remembers
// the path for Save. A missing file is not an error: the defaults
// stand and the file is created on first Save.
func (s *Store) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("settings: reading %s: %w", path, err)
	}

	loaded := make(map[string]any)
	if err := json.Unmarshal(jsonc.ToJSON(data), &loaded); err != nil {
		return fmt.Errorf("settings: parsing %s: %w", path, err)
	}
	for key, value := range loaded {
		s.values[key] = value
	}
	return nil
}

// Save writes the current values as JSON to the Load path, atomically
// (temp file + rename). Keys are sorted for stable diffs.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return fmt.Errorf("settings: no file path (Load was never called)")
	}

	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(s.values))
	for _, key := range keys {
		ordered[key] = s.values[key]
	}
	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encoding: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("settings: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("settings: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("settings: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("settings: replacing %s: %w", s.path, err)
	}
	return nil
}

// Bool returns the boolean value for key, or false if the key is
// unset or holds another type.
func (s *Store) Bool(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.values[key].(bool)
	return v
}

// Float returns the numeric value for key, or 0.
func (s *Store) Float(key string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch v := s.values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// String returns the string value for key, or "".
func (s *Store) String(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.values[key].(string)
	return v
}

// SetBool stores a boolean and notifies observers if it changed.
func (s *Store) SetBool(key string, value bool) { s.set(key, value) }

// SetFloat stores a number and notifies observers if it changed.
func (s *Store) SetFloat(key string, value float64) { s.set(key, value) }

// SetString stores a string and notifies observers if it changed.
func (s *Store) SetString(key, value string) { s.set(key, value) }

func (s *Store) set(key string, value any) {
	s.mu.Lock()
	previous, existed := s.values[key]
	s.values[key] = value
	changed := !existed || previous != value
	var observers []Observer
	if changed {
		observers = append(observers, s.observers[key]...)
	}
	s.mu.Unlock()

	for _, observer := range observers {
		observer(key)
	}
}

// OnChange registers an observer for a key, the analog of the
// viewer's per-control commit signal.
func (s *Store) OnChange(key string, observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers[key] = append(s.observers[key], observer)
}
