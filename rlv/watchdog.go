// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package rlv

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/firestorm-community/lslbridge/avatar"
	"github.com/firestorm-community/lslbridge/lib/clock"
	"github.com/firestorm-community/lslbridge/lib/ref"
)

// Watchdog timing. A locked attachment that disappears is reattached
// immediately, then retried on a widening schedule before giving up.
// Sanctioned wear records expire after wearExpiry so a wear that
// never produced an attach cannot whitelist a later one.
const (
	// WatchdogTick is the enforcement timer period; the session's
	// event loop drives Tick at this rate.
	WatchdogTick       = 5 * time.Second
	reattachRetryDelay = 15 * time.Second
	maxReattachTries   = 3
	wearExpiry         = 60 * time.Second
)

type pendingAttach struct {
	point     ref.AttachPoint
	nextRetry time.Time
	attempts  int
}

type pendingWear struct {
	point    ref.AttachPoint
	recorded time.Time
}

// displacedItem remembers an attachment pushed off an add-locked
// point, so enforcement can put it back after kicking the intruder.
type displacedItem struct {
	item     ref.ItemID
	recorded time.Time
}

// Watchdog enforces remove locks against the worn state: a locked
// attachment that is detached by anything other than a sanctioned
// operation gets reattached, and an attach onto an add-locked point
// that was not sanctioned gets kicked back into inventory, with
// whatever it displaced restored.
//
// Run consumes avatar events; HandleEvent and Tick are exported so
// tests can drive the same logic deterministically. All methods are
// safe for concurrent use.
type Watchdog struct {
	Locks  *AttachmentLocks
	Avatar *avatar.Avatar
	Clock  clock.Clock
	Logger *slog.Logger

	mu        sync.Mutex
	pending   map[ref.ItemID]*pendingAttach
	wears     map[ref.ItemID]pendingWear
	expected  map[ref.ObjectID]bool
	displaced map[ref.AttachPoint][]displacedItem
}

// NewWatchdog returns a watchdog over the given registry and worn
// state.
func NewWatchdog(locks *AttachmentLocks, av *avatar.Avatar, clk clock.Clock, logger *slog.Logger) *Watchdog {
	return &Watchdog{
		Locks:     locks,
		Avatar:    av,
		Clock:     clk,
		Logger:    logger,
		pending:   make(map[ref.ItemID]*pendingAttach),
		wears:     make(map[ref.ItemID]pendingWear),
		expected:  make(map[ref.ObjectID]bool),
		displaced: make(map[ref.AttachPoint][]displacedItem),
	}
}

func (w *Watchdog) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// Run processes worn-state events until the context is done.
func (w *Watchdog) Run(ctx context.Context) error {
	events, cancel := w.Avatar.Subscribe()
	defer cancel()

	ticker := w.Clock.NewTicker(WatchdogTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-events:
			w.HandleEvent(event)
		case <-ticker.C:
			w.Tick()
		}
	}
}

// ExpectDetach sanctions one upcoming detach of an object so that
// enforcement does not fight a deliberate removal, such as the bridge
// recreating itself.
func (w *Watchdog) ExpectDetach(object ref.ObjectID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.expected[object] = true
}

// NoteWear sanctions one upcoming attach of an item, recorded when a
// wear operation passes the lock checks. The record expires.
func (w *Watchdog) NoteWear(item ref.ItemID, point ref.AttachPoint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.wears[item] = pendingWear{point: point, recorded: w.Clock.Now()}
}

// HandleEvent applies enforcement to one worn-state change.
func (w *Watchdog) HandleEvent(event avatar.Event) {
	switch event.Kind {
	case avatar.EventDetached:
		w.onDetached(event)
	case avatar.EventAttached:
		w.onAttached(event)
	}
}

func (w *Watchdog) onDetached(event avatar.Event) {
	w.mu.Lock()
	if w.expected[event.Object] {
		delete(w.expected, event.Object)
		w.mu.Unlock()
		return
	}
	locked := w.Locks.IsObjectLocked(event.Object) ||
		w.Locks.IsPointLocked(event.Point, LockRemove)
	if !locked {
		// Not lock-protected itself, but if its point is add-locked
		// this detach is likely a replace in flight. Remember it so
		// it can be restored once the intruder is kicked.
		if w.Locks.IsPointLocked(event.Point, LockAdd) {
			w.displaced[event.Point] = append(w.displaced[event.Point],
				displacedItem{item: event.Item, recorded: w.Clock.Now()})
		}
		w.mu.Unlock()
		return
	}
	w.pending[event.Item] = &pendingAttach{
		point:     event.Point,
		nextRetry: w.Clock.Now().Add(reattachRetryDelay),
		attempts:  1,
	}
	w.mu.Unlock()

	w.logger().Warn("locked attachment detached, reattaching",
		"item", event.Item, "point", event.Point)
	if _, err := w.Avatar.RequestAttach(event.Item, event.Point, false); err != nil {
		w.logger().Error("reattach request failed", "item", event.Item, "error", err)
	}
}

func (w *Watchdog) onAttached(event avatar.Event) {
	w.mu.Lock()
	if _, reattaching := w.pending[event.Item]; reattaching {
		delete(w.pending, event.Item)
		delete(w.wears, event.Item)
		w.mu.Unlock()
		return
	}
	if _, sanctioned := w.wears[event.Item]; sanctioned {
		delete(w.wears, event.Item)
		w.mu.Unlock()
		return
	}
	if !w.Locks.IsPointLocked(event.Point, LockAdd) {
		w.mu.Unlock()
		return
	}

	w.expected[event.Object] = true
	restore := w.displaced[event.Point]
	delete(w.displaced, event.Point)
	now := w.Clock.Now()
	for _, d := range restore {
		w.pending[d.item] = &pendingAttach{
			point:     event.Point,
			nextRetry: now.Add(reattachRetryDelay),
			attempts:  1,
		}
	}
	w.mu.Unlock()

	w.logger().Warn("unsanctioned attach onto locked point, detaching",
		"item", event.Item, "point", event.Point)
	if err := w.Avatar.DetachIntoInventory(event.Object); err != nil {
		w.mu.Lock()
		delete(w.expected, event.Object)
		w.mu.Unlock()
		w.logger().Error("enforcement detach failed", "object", event.Object, "error", err)
	}
	for _, d := range restore {
		if _, err := w.Avatar.RequestAttach(d.item, event.Point, false); err != nil {
			w.logger().Error("displaced restore failed", "item", d.item, "error", err)
		}
	}
}

// Tick retries overdue reattaches and expires stale wear and
// displacement records. Each retry waits longer than the last.
func (w *Watchdog) Tick() {
	now := w.Clock.Now()

	type retry struct {
		item  ref.ItemID
		point ref.AttachPoint
	}
	var retries []retry

	w.mu.Lock()
	for item, p := range w.pending {
		if now.Before(p.nextRetry) {
			continue
		}
		if w.Avatar.IsWorn(item) {
			delete(w.pending, item)
			continue
		}
		if p.attempts >= maxReattachTries {
			w.logger().Error("giving up on reattach", "item", item, "attempts", p.attempts)
			delete(w.pending, item)
			continue
		}
		p.attempts++
		p.nextRetry = now.Add(reattachRetryDelay * time.Duration(p.attempts))
		retries = append(retries, retry{item: item, point: p.point})
	}

	for item, wear := range w.wears {
		if now.Sub(wear.recorded) >= wearExpiry {
			delete(w.wears, item)
		}
	}
	for point, list := range w.displaced {
		kept := list[:0]
		for _, d := range list {
			if now.Sub(d.recorded) < wearExpiry {
				kept = append(kept, d)
			}
		}
		if len(kept) == 0 {
			delete(w.displaced, point)
		} else {
			w.displaced[point] = kept
		}
	}
	w.mu.Unlock()

	for _, r := range retries {
		if _, err := w.Avatar.RequestAttach(r.item, r.point, false); err != nil {
			w.logger().Error("reattach retry failed", "item", r.item, "error", err)
		}
	}
}
