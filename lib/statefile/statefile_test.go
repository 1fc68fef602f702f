// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package statefile

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/firestorm-community/lslbridge/lib/ref"
)

func TestLoadMissingFileReturnsZeroState(t *testing.T) {
	state, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !state.IsZero() {
		t.Errorf("state = %+v, want zero", state)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	saved := State{
		AuthToken:  "8a7c1f02-9f34-4a6e-b1d0-3c5e7a9b2d41",
		BridgeItem: ref.NewItemID(),
		ScriptItem: ref.NewItemID(),
		CreatedAt:  time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}
	if err := Save(dir, saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.AuthToken != saved.AuthToken {
		t.Errorf("AuthToken = %q, want %q", loaded.AuthToken, saved.AuthToken)
	}
	if loaded.BridgeItem != saved.BridgeItem {
		t.Errorf("BridgeItem = %v, want %v", loaded.BridgeItem, saved.BridgeItem)
	}
	if loaded.ScriptItem != saved.ScriptItem {
		t.Errorf("ScriptItem = %v, want %v", loaded.ScriptItem, saved.ScriptItem)
	}
	if !loaded.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", loaded.CreatedAt, saved.CreatedAt)
	}
}

func TestSaveRestrictsMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}
	dir := t.TempDir()
	if err := Save(dir, State{AuthToken: "secret"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		t.Errorf("mode = %o, want 600", mode)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	if err := Save(dir, State{AuthToken: "secret"}); err != nil {
		t.Fatal(err)
	}
	if err := Clear(dir); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	state, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !state.IsZero() {
		t.Error("state should be zero after Clear")
	}
	if err := Clear(dir); err != nil {
		t.Errorf("Clear of missing file: %v", err)
	}
}

func TestTokenFingerprint(t *testing.T) {
	a := State{AuthToken: "token-a"}
	b := State{AuthToken: "token-b"}
	if a.TokenFingerprint() == "" {
		t.Error("non-empty token should produce a fingerprint")
	}
	if a.TokenFingerprint() == b.TokenFingerprint() {
		t.Error("distinct tokens should produce distinct fingerprints")
	}
	if got := a.TokenFingerprint(); len(got) != 8 {
		t.Errorf("fingerprint %q has length %d, want 8", got, len(got))
	}
	if (State{}).TokenFingerprint() != "" {
		t.Error("zero state should have an empty fingerprint")
	}
	if a.TokenFingerprint() == a.AuthToken {
		t.Error("fingerprint must not expose the raw token")
	}
}
