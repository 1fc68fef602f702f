// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package rlv implements the restriction lock registry: reference-
// counted attach and detach locks on skeleton points, rezzed objects,
// and wearable layers, held by scripted source objects. Queries fail
// closed: anything the registry cannot resolve is reported locked.
package rlv

import (
	"sync"

	"github.com/firestorm-community/lslbridge/avatar"
	"github.com/firestorm-community/lslbridge/inventory"
	"github.com/firestorm-community/lslbridge/lib/ref"
)

// LockMask selects which directions of a lock apply. An add lock
// forbids attaching or wearing more on the target; a remove lock
// forbids detaching or removing what is there.
type LockMask int

const (
	LockAdd LockMask = 1 << iota
	LockRemove

	LockAny = LockAdd | LockRemove
)

// pointLockKey identifies one holder's lock on one skeleton point.
type pointLockKey struct {
	point  ref.AttachPoint
	holder ref.ObjectID
}

// objectLockKey identifies one holder's lock on one rezzed object.
type objectLockKey struct {
	object ref.ObjectID
	holder ref.ObjectID
}

// AttachmentLocks tracks locks on attachment points and attached
// objects. Every lock is reference counted per holder: a holder that
// issues the same restriction twice must release it twice. Safe for
// concurrent use.
type AttachmentLocks struct {
	mu        sync.Mutex
	pointAdd  map[pointLockKey]int
	pointRem  map[pointLockKey]int
	objectRem map[objectLockKey]int

	// avatar resolves objects to the points they occupy for detach
	// queries and HUD accounting. Nil means every object query fails
	// closed.
	avatar *avatar.Avatar

	// inventory resolves item IDs for the item-level queries. Nil
	// means every item query fails closed.
	inventory inventory.Inventory
}

// NewAttachmentLocks returns an empty registry backed by the given
// worn state and inventory.
func NewAttachmentLocks(av *avatar.Avatar, inv inventory.Inventory) *AttachmentLocks {
	return &AttachmentLocks{
		pointAdd:  make(map[pointLockKey]int),
		pointRem:  make(map[pointLockKey]int),
		objectRem: make(map[objectLockKey]int),
		avatar:    av,
		inventory: inv,
	}
}

// AddPointLock records one lock reference on a point for a holder.
// Invalid points are ignored; the restriction protocol has already
// rejected them.
func (l *AttachmentLocks) AddPointLock(point ref.AttachPoint, holder ref.ObjectID, mask LockMask) {
	if !point.IsValid() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := pointLockKey{point: point, holder: holder}
	if mask&LockAdd != 0 {
		l.pointAdd[key]++
	}
	if mask&LockRemove != 0 {
		l.pointRem[key]++
	}
}

// RemovePointLock releases one lock reference. Releasing a reference
// the holder does not hold is a no-op.
func (l *AttachmentLocks) RemovePointLock(point ref.AttachPoint, holder ref.ObjectID, mask LockMask) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := pointLockKey{point: point, holder: holder}
	if mask&LockAdd != 0 {
		decrement(l.pointAdd, key)
	}
	if mask&LockRemove != 0 {
		decrement(l.pointRem, key)
	}
}

// AddObjectLock records one detach lock reference on a rezzed object.
func (l *AttachmentLocks) AddObjectLock(object, holder ref.ObjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.objectRem[objectLockKey{object: object, holder: holder}]++
}

// RemoveObjectLock releases one detach lock reference.
func (l *AttachmentLocks) RemoveObjectLock(object, holder ref.ObjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	decrement(l.objectRem, objectLockKey{object: object, holder: holder})
}

func decrement[K comparable](counts map[K]int, key K) {
	if counts[key] <= 1 {
		delete(counts, key)
		return
	}
	counts[key]--
}

// IsPointLocked reports whether any holder locks the point in any of
// the masked directions. Invalid points report locked.
func (l *AttachmentLocks) IsPointLocked(point ref.AttachPoint, mask LockMask) bool {
	return l.IsPointLockedExcept(point, mask, ref.ObjectID{})
}

// IsPointLockedExcept is IsPointLocked ignoring locks held by the
// given holder. A zero holder excludes nothing.
func (l *AttachmentLocks) IsPointLockedExcept(point ref.AttachPoint, mask LockMask, except ref.ObjectID) bool {
	if !point.IsValid() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if mask&LockAdd != 0 && hasLockExcept(l.pointAdd, point, except) {
		return true
	}
	if mask&LockRemove != 0 && hasLockExcept(l.pointRem, point, except) {
		return true
	}
	return false
}

func hasLockExcept(counts map[pointLockKey]int, point ref.AttachPoint, except ref.ObjectID) bool {
	for key := range counts {
		if key.point == point && key.holder != except {
			return true
		}
	}
	return false
}

// CanDetach reports whether a rezzed object may be detached: no
// holder locks the object itself and no holder remove-locks its
// point. Objects the worn state cannot resolve report not detachable.
func (l *AttachmentLocks) CanDetach(object ref.ObjectID) bool {
	return l.CanDetachExcept(object, ref.ObjectID{})
}

// CanDetachExcept is CanDetach ignoring locks held by one holder.
func (l *AttachmentLocks) CanDetachExcept(object ref.ObjectID, except ref.ObjectID) bool {
	if l.avatar == nil {
		return false
	}
	attachment, worn := l.avatar.Attachment(object)
	if !worn {
		return false
	}
	l.mu.Lock()
	for key := range l.objectRem {
		if key.object == object && key.holder != except {
			l.mu.Unlock()
			return false
		}
	}
	l.mu.Unlock()
	return !l.IsPointLockedExcept(attachment.Point, LockRemove, except)
}

// IsObjectLocked reports whether any holder locks the object itself,
// regardless of whether it is currently attached. The watchdog uses
// this after a detach, when the worn state no longer resolves the
// object.
func (l *AttachmentLocks) IsObjectLocked(object ref.ObjectID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.objectRem {
		if key.object == object {
			return true
		}
	}
	return false
}

// CanWear answers what attach actions are permitted on a point. Add
// requires the point not be add-locked; replace additionally requires
// everything currently on the point be detachable.
func (l *AttachmentLocks) CanWear(point ref.AttachPoint) ref.WearMask {
	if !point.IsValid() {
		return ref.WearLocked
	}
	if l.IsPointLocked(point, LockAdd) {
		return ref.WearLocked
	}
	mask := ref.WearAdd
	if l.avatar != nil {
		replaceable := true
		for _, attachment := range l.avatar.ObjectsAtPoint(point) {
			if !l.CanDetach(attachment.Object) {
				replaceable = false
				break
			}
		}
		if replaceable {
			mask |= ref.WearReplace
		}
	}
	return mask
}

// CanAttach answers what attach actions are permitted for an
// inventory item. Items the inventory cannot resolve report locked.
// For an item already worn the answer covers its current point; for
// anything else it covers the point a default-point attach would land
// on.
func (l *AttachmentLocks) CanAttach(item ref.ItemID) ref.WearMask {
	if l.inventory == nil || l.avatar == nil {
		return ref.WearLocked
	}
	if _, ok := l.inventory.Item(item); !ok {
		return ref.WearLocked
	}
	if attachment, worn := l.avatar.AttachmentForItem(item); worn {
		return l.CanWear(attachment.Point)
	}
	return l.CanWear(l.avatar.ResolvePoint(ref.DefaultPoint))
}

// CanDetachItem reports whether the attachment backed by an inventory
// item may be detached. Items the inventory cannot resolve, or that
// are not worn, report not detachable.
func (l *AttachmentLocks) CanDetachItem(item ref.ItemID) bool {
	if l.inventory == nil || l.avatar == nil {
		return false
	}
	if _, ok := l.inventory.Item(item); !ok {
		return false
	}
	attachment, worn := l.avatar.AttachmentForItem(item)
	if !worn {
		return false
	}
	return l.CanDetach(attachment.Object)
}

// HasLockedHUD reports whether any remove lock currently covers an
// object on a HUD point. A locked HUD cannot be hidden, so callers
// use this to keep HUD rendering forced on.
func (l *AttachmentLocks) HasLockedHUD() bool {
	if l.avatar == nil {
		return false
	}
	l.mu.Lock()
	objectLocked := make(map[ref.ObjectID]bool, len(l.objectRem))
	for key := range l.objectRem {
		objectLocked[key.object] = true
	}
	pointLocked := make(map[ref.AttachPoint]bool, len(l.pointRem))
	for key := range l.pointRem {
		pointLocked[key.point] = true
	}
	l.mu.Unlock()

	for _, attachment := range l.avatar.Attachments() {
		if !attachment.Point.IsHUD() {
			continue
		}
		if objectLocked[attachment.Object] || pointLocked[attachment.Point] {
			return true
		}
	}
	return false
}

// HoldsAnyLock reports whether the holder still has any lock
// reference in the registry.
func (l *AttachmentLocks) HoldsAnyLock(holder ref.ObjectID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.pointAdd {
		if key.holder == holder {
			return true
		}
	}
	for key := range l.pointRem {
		if key.holder == holder {
			return true
		}
	}
	for key := range l.objectRem {
		if key.holder == holder {
			return true
		}
	}
	return false
}

// ReleaseHolder drops every lock reference a holder has, in all
// tables. Used when a source object leaves the world without
// releasing its restrictions.
func (l *AttachmentLocks) ReleaseHolder(holder ref.ObjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.pointAdd {
		if key.holder == holder {
			delete(l.pointAdd, key)
		}
	}
	for key := range l.pointRem {
		if key.holder == holder {
			delete(l.pointRem, key)
		}
	}
	for key := range l.objectRem {
		if key.holder == holder {
			delete(l.objectRem, key)
		}
	}
}

// Verify counts object locks whose target is no longer attached.
// Stale locks stay registered and inert; the count is for diagnostics.
func (l *AttachmentLocks) Verify() int {
	if l.avatar == nil {
		return 0
	}
	l.mu.Lock()
	objects := make(map[ref.ObjectID]bool, len(l.objectRem))
	for key := range l.objectRem {
		objects[key.object] = true
	}
	l.mu.Unlock()

	stale := 0
	for object := range objects {
		if _, worn := l.avatar.Attachment(object); !worn {
			stale++
		}
	}
	return stale
}
