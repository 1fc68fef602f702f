// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"testing"
	"time"

	"github.com/firestorm-community/lslbridge/lib/clock"
	"github.com/firestorm-community/lslbridge/lib/config"
	"github.com/firestorm-community/lslbridge/lib/ref"
	"github.com/firestorm-community/lslbridge/lib/settings"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	cfg := config.Config{
		StateDir:    t.TempDir(),
		HTTPTimeout: time.Second,
	}
	s, err := New(cfg, nil, Options{
		Clock: clock.Fake(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewWiresAllServices(t *testing.T) {
	s := newTestSession(t)
	if s.Settings == nil || s.Inventory == nil || s.Avatar == nil || s.Bridge == nil {
		t.Fatal("session should wire every service")
	}
	if s.Locks == nil || s.Locks.Attachments == nil || s.Locks.Wearables == nil || s.Locks.Watchdog == nil {
		t.Fatal("session should wire the lock registries and watchdog")
	}
	if !s.Settings.Bool(settings.KeyUseLSLBridge) {
		t.Error("defaults should be loaded")
	}
	if _, ok := s.Inventory.LibraryCategory(); !ok {
		t.Error("library should be present by default")
	}
}

func TestLibraryDisabledBySetting(t *testing.T) {
	dir := t.TempDir()
	settingsPath := dir + "/settings.jsonc"
	store := settings.New(settings.Defaults())
	if err := store.Load(settingsPath); err != nil {
		t.Fatal(err)
	}
	store.SetBool(settings.KeyNoInventoryLibrary, true)
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	s, err := New(config.Config{StateDir: dir, SettingsFile: settingsPath}, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Inventory.LibraryCategory(); ok {
		t.Error("library should be absent when disabled by setting")
	}
}

func TestStartAndCloseAreClean(t *testing.T) {
	s := newTestSession(t)
	// The empty grid has no library folders, so the bridge cannot
	// initialize; the session must still start and close cleanly.
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}
	s.Close()
	s.Close() // idempotent
}

func TestEventLoopFeedsWatchdog(t *testing.T) {
	s := newTestSession(t)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	point := ref.AttachPointByName("spine")
	item := ref.NewItemID()
	object, err := s.Avatar.RequestAttach(item, point, false)
	if err != nil {
		t.Fatal(err)
	}
	s.Locks.Attachments.AddObjectLock(object, ref.NewObjectID())

	if err := s.Avatar.DetachIntoInventory(object); err != nil {
		t.Fatal(err)
	}

	// The loop runs asynchronously; wait for enforcement to land.
	deadline := time.Now().Add(2 * time.Second)
	for !s.Avatar.IsWorn(item) {
		if time.Now().After(deadline) {
			t.Fatal("watchdog should reattach the locked item")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
