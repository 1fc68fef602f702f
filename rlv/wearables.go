// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package rlv

import (
	"sync"

	"github.com/firestorm-community/lslbridge/avatar"
	"github.com/firestorm-community/lslbridge/inventory"
	"github.com/firestorm-community/lslbridge/lib/ref"
)

// layerLockKey identifies one holder's lock on one wearable layer.
type layerLockKey struct {
	layer  ref.WearableType
	holder ref.ObjectID
}

// WearableLocks tracks locks on clothing and body-part layers, with
// the same per-holder reference counting as attachment locks. Safe
// for concurrent use.
type WearableLocks struct {
	mu       sync.Mutex
	layerAdd map[layerLockKey]int
	layerRem map[layerLockKey]int

	// avatar supplies per-layer worn counts for the layering cap. Nil
	// means no cap is applied.
	avatar *avatar.Avatar

	// inventory resolves item IDs for the item-level queries. Nil
	// means every item query fails closed.
	inventory inventory.Inventory
}

// NewWearableLocks returns an empty layer registry backed by the
// given worn state and inventory.
func NewWearableLocks(av *avatar.Avatar, inv inventory.Inventory) *WearableLocks {
	return &WearableLocks{
		layerAdd:  make(map[layerLockKey]int),
		layerRem:  make(map[layerLockKey]int),
		avatar:    av,
		inventory: inv,
	}
}

// AddLock records one lock reference on a layer for a holder.
func (l *WearableLocks) AddLock(layer ref.WearableType, holder ref.ObjectID, mask LockMask) {
	if !layer.IsValid() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := layerLockKey{layer: layer, holder: holder}
	if mask&LockAdd != 0 {
		l.layerAdd[key]++
	}
	if mask&LockRemove != 0 {
		l.layerRem[key]++
	}
}

// RemoveLock releases one lock reference.
func (l *WearableLocks) RemoveLock(layer ref.WearableType, holder ref.ObjectID, mask LockMask) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := layerLockKey{layer: layer, holder: holder}
	if mask&LockAdd != 0 {
		decrement(l.layerAdd, key)
	}
	if mask&LockRemove != 0 {
		decrement(l.layerRem, key)
	}
}

// IsLocked reports whether any holder locks the layer in any masked
// direction. Invalid layers report locked.
func (l *WearableLocks) IsLocked(layer ref.WearableType, mask LockMask) bool {
	return l.IsLockedExcept(layer, mask, ref.ObjectID{})
}

// IsLockedExcept is IsLocked ignoring one holder's locks.
func (l *WearableLocks) IsLockedExcept(layer ref.WearableType, mask LockMask, except ref.ObjectID) bool {
	if !layer.IsValid() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if mask&LockAdd != 0 {
		for key := range l.layerAdd {
			if key.layer == layer && key.holder != except {
				return true
			}
		}
	}
	if mask&LockRemove != 0 {
		for key := range l.layerRem {
			if key.layer == layer && key.holder != except {
				return true
			}
		}
	}
	return false
}

// CanRemove reports whether wearables on the layer may be taken off.
// Body parts can never be removed, only replaced.
func (l *WearableLocks) CanRemove(layer ref.WearableType) bool {
	if !layer.IsValid() || layer.IsBodyPart() {
		return false
	}
	return !l.IsLocked(layer, LockRemove)
}

// CanWear answers what wear actions are permitted on a layer. Add
// requires the layer not be add-locked and the layer to have room
// under the stacking cap; replace additionally requires the existing
// wearables be removable.
func (l *WearableLocks) CanWear(layer ref.WearableType) ref.WearMask {
	if !layer.IsValid() {
		return ref.WearLocked
	}
	if l.IsLocked(layer, LockAdd) {
		return ref.WearLocked
	}
	var mask ref.WearMask
	if l.avatar == nil || l.avatar.WornCount(layer) < ref.MaxWearablesPerType {
		mask |= ref.WearAdd
	}
	if !l.IsLocked(layer, LockRemove) {
		mask |= ref.WearReplace
	}
	return mask
}

// CanWearItem is CanWear for one inventory item destined for a layer.
// Items the inventory cannot resolve report locked.
func (l *WearableLocks) CanWearItem(item ref.ItemID, layer ref.WearableType) ref.WearMask {
	if l.inventory == nil {
		return ref.WearLocked
	}
	if _, ok := l.inventory.Item(item); !ok {
		return ref.WearLocked
	}
	return l.CanWear(layer)
}

// CanRemoveItem is CanRemove for one inventory item worn on a layer.
// Items the inventory cannot resolve report not removable.
func (l *WearableLocks) CanRemoveItem(item ref.ItemID, layer ref.WearableType) bool {
	if l.inventory == nil {
		return false
	}
	if _, ok := l.inventory.Item(item); !ok {
		return false
	}
	return l.CanRemove(layer)
}

// ReleaseHolder drops every lock reference a holder has.
func (l *WearableLocks) ReleaseHolder(holder ref.ObjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.layerAdd {
		if key.holder == holder {
			delete(l.layerAdd, key)
		}
	}
	for key := range l.layerRem {
		if key.holder == holder {
			delete(l.layerRem, key)
		}
	}
}
