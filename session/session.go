// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package session owns one logged-in avatar's services: settings,
// inventory, worn state, the restriction registry with its watchdog,
// and the bridge manager. Everything is constructed here and wired
// through explicit references; nothing is global. A session starts at
// login and closes at logout.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/firestorm-community/lslbridge/avatar"
	"github.com/firestorm-community/lslbridge/bridge"
	"github.com/firestorm-community/lslbridge/chat"
	"github.com/firestorm-community/lslbridge/inventory"
	"github.com/firestorm-community/lslbridge/lib/clock"
	"github.com/firestorm-community/lslbridge/lib/config"
	"github.com/firestorm-community/lslbridge/lib/ref"
	"github.com/firestorm-community/lslbridge/lib/settings"
	"github.com/firestorm-community/lslbridge/rlv"
	"github.com/firestorm-community/lslbridge/transport"
)

// Session is the per-login service container.
type Session struct {
	Settings  *settings.Store
	Inventory *inventory.Model
	Avatar    *avatar.Avatar
	Locks     *rlvLocks
	Bridge    *bridge.Manager

	logger *slog.Logger
	clock  clock.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// rlvLocks bundles the two lock registries and their watchdog.
type rlvLocks struct {
	Attachments *rlv.AttachmentLocks
	Wearables   *rlv.WearableLocks
	Watchdog    *rlv.Watchdog
}

// Options tunes session construction. The zero value is production
// behavior.
type Options struct {
	// Clock overrides the real clock, for tests.
	Clock clock.Clock

	// LocalAgent identifies the logged-in agent. Zero generates one,
	// standing in for the login handshake.
	LocalAgent ref.AgentID

	// Tasks overrides the bridge's content-audit querier.
	Tasks bridge.TaskInventoryQuerier
}

// New builds a session from daemon configuration. Settings are loaded
// from the configured file; all services are wired but nothing runs
// until Start.
func New(cfg config.Config, logger *slog.Logger, opts Options) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	localAgent := opts.LocalAgent
	if localAgent.IsZero() {
		localAgent = ref.NewAgentID()
	}

	store := settings.New(settings.Defaults())
	if cfg.SettingsFile != "" {
		if err := store.Load(cfg.SettingsFile); err != nil {
			return nil, fmt.Errorf("session: %w", err)
		}
	}

	model := inventory.NewModel()
	model.SetOwner(localAgent)
	if !store.Bool(settings.KeyNoInventoryLibrary) {
		model.WithLibrary()
	}
	av := avatar.New()

	attachLocks := rlv.NewAttachmentLocks(av, model)
	wearLocks := rlv.NewWearableLocks(av, model)
	watchdog := rlv.NewWatchdog(attachLocks, av, clk, logger)

	manager := &bridge.Manager{
		Settings:       store,
		Inventory:      model,
		Avatar:         av,
		Client:         &transport.Client{Timeout: cfg.HTTPTimeout, Logger: logger},
		Uploader:       &transport.ScriptUploader{Logger: logger},
		Reporter:       &chat.LogReporter{Logger: logger},
		Clock:          clk,
		Tasks:          opts.Tasks,
		Sanctioner:     watchdog,
		Logger:         logger,
		StateDir:       cfg.StateDir,
		ScriptResource: cfg.ScriptResource,
		LocalAgent:     localAgent,
	}

	return &Session{
		Settings:  store,
		Inventory: model,
		Avatar:    av,
		Locks: &rlvLocks{
			Attachments: attachLocks,
			Wearables:   wearLocks,
			Watchdog:    watchdog,
		},
		Bridge: manager,
		logger: logger,
		clock:  clk,
	}, nil
}

// SetUploadCapability points the script uploader at the region's
// capability URL. The grid grants it after login or region change.
func (s *Session) SetUploadCapability(url string) {
	s.Bridge.Uploader.CapabilityURL = url
}

// Start launches the event loop and initializes the bridge. The loop
// serializes worn-state events into the bridge manager and the lock
// watchdog, and drives the watchdog's retry timer.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("session: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	events, unsubscribe := s.Avatar.Subscribe()
	ticker := s.clock.NewTicker(rlv.WatchdogTick)

	go func() {
		defer close(s.done)
		defer unsubscribe()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-events:
				s.Locks.Watchdog.HandleEvent(event)
				switch event.Kind {
				case avatar.EventAttached:
					s.Bridge.ProcessAttach(event.Object, event.Point)
				case avatar.EventDetached:
					s.Bridge.ProcessDetach(event.Object, event.Point)
				}
			case <-ticker.C:
				s.Locks.Watchdog.Tick()
			}
		}
	}()

	if err := s.Bridge.Init(ctx); err != nil {
		s.logger.Error("bridge initialization failed", "error", err)
	}
	return nil
}

// HandleChat routes one inbound nearby-chat line to the bridge.
func (s *Session) HandleChat(ctx context.Context, message string, from ref.ObjectID) error {
	return s.Bridge.HandleChat(ctx, message, from)
}

// Close stops the event loop and waits for it to drain.
func (s *Session) Close() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("session closed")
}
