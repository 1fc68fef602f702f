// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package statefile persists the bridge's durable identity between
// sessions: the authentication token embedded in the bridge script,
// the inventory item holding the bridge, and when it was created.
// The file is CBOR on disk, written atomically, readable only by the
// owning user because the token acts as a shared secret with the
// in-world script.
package statefile

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"

	"github.com/firestorm-community/lslbridge/lib/codec"
	"github.com/firestorm-community/lslbridge/lib/ref"
)

// FileName is the state file's name inside the configured state
// directory.
const FileName = "bridge-state.cbor"

// State is the persisted bridge identity.
type State struct {
	AuthToken  string     `cbor:"auth_token"`
	BridgeItem ref.ItemID `cbor:"bridge_item"`
	ScriptItem ref.ItemID `cbor:"script_item"`
	CreatedAt  time.Time  `cbor:"created_at"`
}

// IsZero reports whether the state carries no bridge identity.
func (s State) IsZero() bool {
	return s.AuthToken == "" && s.BridgeItem.IsZero()
}

// TokenFingerprint returns a short stable digest of the auth token,
// safe to log. The token itself must never appear in logs.
func (s State) TokenFingerprint() string {
	if s.AuthToken == "" {
		return ""
	}
	sum := blake3.Sum256([]byte(s.AuthToken))
	return hex.EncodeToString(sum[:4])
}

// Load reads the state file from dir. A missing file yields a zero
// State and no error.
func Load(dir string) (State, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("statefile: reading %s: %w", path, err)
	}
	var state State
	if err := codec.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("statefile: decoding %s: %w", path, err)
	}
	return state, nil
}

// Save writes the state file into dir atomically with mode 0600. The
// temp file is synced before the rename so a crash cannot leave a
// torn state file behind.
func Save(dir string, state State) error {
	data, err := codec.Marshal(state)
	if err != nil {
		return fmt.Errorf("statefile: encoding: %w", err)
	}

	path := filepath.Join(dir, FileName)
	tmp, err := os.CreateTemp(dir, ".bridge-state-*")
	if err != nil {
		return fmt.Errorf("statefile: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}
	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		return fmt.Errorf("statefile: setting mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("statefile: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("statefile: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statefile: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("statefile: replacing %s: %w", path, err)
	}
	return nil
}

// Clear removes the state file from dir. Removing a file that does
// not exist is not an error.
func Clear(dir string) error {
	err := os.Remove(filepath.Join(dir, FileName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("statefile: removing: %w", err)
	}
	return nil
}
