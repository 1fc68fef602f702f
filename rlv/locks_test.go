// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package rlv

import (
	"testing"

	"github.com/firestorm-community/lslbridge/avatar"
	"github.com/firestorm-community/lslbridge/inventory"
	"github.com/firestorm-community/lslbridge/lib/ref"
)

func TestPointLockReferenceCounting(t *testing.T) {
	locks := NewAttachmentLocks(avatar.New(), nil)
	holder := ref.NewObjectID()
	point := ref.AttachPointByName("chest")

	locks.AddPointLock(point, holder, LockAdd)
	locks.AddPointLock(point, holder, LockAdd)
	if !locks.IsPointLocked(point, LockAdd) {
		t.Fatal("point should be add-locked")
	}

	locks.RemovePointLock(point, holder, LockAdd)
	if !locks.IsPointLocked(point, LockAdd) {
		t.Error("one release of two references must keep the lock")
	}
	locks.RemovePointLock(point, holder, LockAdd)
	if locks.IsPointLocked(point, LockAdd) {
		t.Error("releasing the last reference must clear the lock")
	}

	// Over-release is a no-op, not an underflow.
	locks.RemovePointLock(point, holder, LockAdd)
	if locks.IsPointLocked(point, LockAdd) {
		t.Error("over-release must not lock the point")
	}
}

func TestIndependentHolders(t *testing.T) {
	locks := NewAttachmentLocks(avatar.New(), nil)
	point := ref.AttachPointByName("spine")
	first := ref.NewObjectID()
	second := ref.NewObjectID()

	locks.AddPointLock(point, first, LockRemove)
	locks.AddPointLock(point, second, LockRemove)
	locks.RemovePointLock(point, first, LockRemove)
	if !locks.IsPointLocked(point, LockRemove) {
		t.Error("second holder's lock must survive the first holder's release")
	}
	if locks.IsPointLockedExcept(point, LockRemove, second) {
		t.Error("except-query should ignore the remaining holder")
	}
}

func TestLockMaskDirections(t *testing.T) {
	locks := NewAttachmentLocks(avatar.New(), nil)
	point := ref.AttachPointByName("skull")
	holder := ref.NewObjectID()

	locks.AddPointLock(point, holder, LockAdd)
	if locks.IsPointLocked(point, LockRemove) {
		t.Error("add lock must not report as remove lock")
	}
	if !locks.IsPointLocked(point, LockAny) {
		t.Error("any-mask must see the add lock")
	}
}

func TestFailClosedQueries(t *testing.T) {
	locks := NewAttachmentLocks(avatar.New(), nil)
	if !locks.IsPointLocked(ref.DefaultPoint, LockAny) {
		t.Error("the default point must report locked")
	}
	if !locks.IsPointLocked(ref.AttachPoint(99), LockAny) {
		t.Error("an out-of-table point must report locked")
	}
	if locks.CanDetach(ref.NewObjectID()) {
		t.Error("an unknown object must report not detachable")
	}
	if got := locks.CanWear(ref.DefaultPoint); got != ref.WearLocked {
		t.Errorf("CanWear(default) = %v, want locked", got)
	}
}

func TestCanDetachObjectAndPointLocks(t *testing.T) {
	av := avatar.New()
	locks := NewAttachmentLocks(av, nil)
	holder := ref.NewObjectID()
	point := ref.AttachPointByName("pelvis")

	object, err := av.RequestAttach(ref.NewItemID(), point, false)
	if err != nil {
		t.Fatal(err)
	}
	if !locks.CanDetach(object) {
		t.Fatal("unlocked attachment should be detachable")
	}

	locks.AddObjectLock(object, holder)
	if locks.CanDetach(object) {
		t.Error("object lock must block detach")
	}
	if !locks.CanDetachExcept(object, holder) {
		t.Error("except-query should ignore the holder's own object lock")
	}
	locks.RemoveObjectLock(object, holder)

	locks.AddPointLock(point, holder, LockRemove)
	if locks.CanDetach(object) {
		t.Error("point remove lock must block detach of its occupant")
	}
}

func TestCanWearComposition(t *testing.T) {
	av := avatar.New()
	locks := NewAttachmentLocks(av, nil)
	holder := ref.NewObjectID()
	point := ref.AttachPointByName("left hand")

	if got := locks.CanWear(point); !got.CanAdd() || !got.CanReplace() {
		t.Errorf("unlocked empty point: CanWear = %v", got)
	}

	// A non-detachable occupant forbids replace but not add.
	object, _ := av.RequestAttach(ref.NewItemID(), point, false)
	locks.AddObjectLock(object, holder)
	got := locks.CanWear(point)
	if !got.CanAdd() {
		t.Error("locked occupant must still allow add")
	}
	if got.CanReplace() {
		t.Error("locked occupant must forbid replace")
	}

	// An add lock forbids everything.
	locks.AddPointLock(point, holder, LockAdd)
	if got := locks.CanWear(point); got != ref.WearLocked {
		t.Errorf("add-locked point: CanWear = %v, want locked", got)
	}
}

func TestHasLockedHUD(t *testing.T) {
	av := avatar.New()
	locks := NewAttachmentLocks(av, nil)
	holder := ref.NewObjectID()

	if locks.HasLockedHUD() {
		t.Fatal("no locks, no locked HUD")
	}

	hudPoint := ref.AttachPointByName("top left")
	hud, _ := av.RequestAttach(ref.NewItemID(), hudPoint, false)
	bodyPoint := ref.AttachPointByName("chest")
	body, _ := av.RequestAttach(ref.NewItemID(), bodyPoint, false)

	locks.AddObjectLock(body, holder)
	if locks.HasLockedHUD() {
		t.Error("a locked body attachment is not a locked HUD")
	}
	locks.AddObjectLock(hud, holder)
	if !locks.HasLockedHUD() {
		t.Error("object lock on a HUD attachment should report a locked HUD")
	}
	locks.RemoveObjectLock(hud, holder)
	locks.AddPointLock(hudPoint, holder, LockRemove)
	if !locks.HasLockedHUD() {
		t.Error("remove lock on an occupied HUD point should report a locked HUD")
	}
}

func TestReleaseHolderAndVerify(t *testing.T) {
	av := avatar.New()
	locks := NewAttachmentLocks(av, nil)
	holder := ref.NewObjectID()
	point := ref.AttachPointByName("neck")

	object, _ := av.RequestAttach(ref.NewItemID(), point, false)
	locks.AddPointLock(point, holder, LockAny)
	locks.AddObjectLock(object, holder)
	if !locks.HoldsAnyLock(holder) {
		t.Fatal("holder should hold locks")
	}

	// The lock on a detached object goes stale but stays registered.
	if err := av.DetachIntoInventory(object); err != nil {
		t.Fatal(err)
	}
	if got := locks.Verify(); got != 1 {
		t.Errorf("Verify = %d stale locks, want 1", got)
	}
	if !locks.IsObjectLocked(object) {
		t.Error("stale lock must stay registered")
	}

	locks.ReleaseHolder(holder)
	if locks.HoldsAnyLock(holder) {
		t.Error("ReleaseHolder should drop everything")
	}
	if locks.IsPointLocked(point, LockAny) {
		t.Error("point lock should be gone after ReleaseHolder")
	}
}

func TestItemQueriesFailClosed(t *testing.T) {
	av := avatar.New()

	// No inventory wired: every item query is locked.
	bare := NewAttachmentLocks(av, nil)
	if got := bare.CanAttach(ref.NewItemID()); got != ref.WearLocked {
		t.Errorf("CanAttach without inventory = %v, want locked", got)
	}
	if bare.CanDetachItem(ref.NewItemID()) {
		t.Error("CanDetachItem without inventory must report not detachable")
	}

	// Inventory wired, but the item does not resolve.
	model := inventory.NewModel()
	locks := NewAttachmentLocks(av, model)
	if got := locks.CanAttach(ref.NewItemID()); got != ref.WearLocked {
		t.Errorf("CanAttach of unknown item = %v, want locked", got)
	}
	if locks.CanDetachItem(ref.NewItemID()) {
		t.Error("CanDetachItem of unknown item must report not detachable")
	}

	wearables := NewWearableLocks(av, model)
	if got := wearables.CanWearItem(ref.NewItemID(), ref.WearableShirt); got != ref.WearLocked {
		t.Errorf("CanWearItem of unknown item = %v, want locked", got)
	}
	if wearables.CanRemoveItem(ref.NewItemID(), ref.WearableShirt) {
		t.Error("CanRemoveItem of unknown item must report not removable")
	}
}

func TestCanAttachResolvesWornPoint(t *testing.T) {
	av := avatar.New()
	model := inventory.NewModel()
	locks := NewAttachmentLocks(av, model)
	holder := ref.NewObjectID()
	chest := ref.AttachPointByName("chest")

	item := model.AddItem(model.RootCategory(), "collar", inventory.AssetObject)
	if _, err := av.RequestAttach(item, chest, false); err != nil {
		t.Fatal(err)
	}

	if got := locks.CanAttach(item); !got.CanAdd() {
		t.Errorf("worn item on unlocked point: CanAttach = %v", got)
	}
	locks.AddPointLock(chest, holder, LockAdd)
	if got := locks.CanAttach(item); got != ref.WearLocked {
		t.Errorf("worn item on add-locked point: CanAttach = %v, want locked", got)
	}

	if !locks.CanDetachItem(item) {
		t.Error("worn item without remove locks should be detachable")
	}
	locks.AddPointLock(chest, holder, LockRemove)
	if locks.CanDetachItem(item) {
		t.Error("remove-locked point must block CanDetachItem")
	}
}

func TestCanAttachUnwornUsesDefaultPoint(t *testing.T) {
	av := avatar.New()
	model := inventory.NewModel()
	locks := NewAttachmentLocks(av, model)
	holder := ref.NewObjectID()

	item := model.AddItem(model.RootCategory(), "bracelet", inventory.AssetObject)
	if got := locks.CanAttach(item); !got.CanAdd() {
		t.Fatalf("unworn item: CanAttach = %v", got)
	}

	// An unworn item lands on the resolved default point; locking it
	// locks the item.
	locks.AddPointLock(av.ResolvePoint(ref.DefaultPoint), holder, LockAdd)
	if got := locks.CanAttach(item); got != ref.WearLocked {
		t.Errorf("unworn item with locked landing point: CanAttach = %v, want locked", got)
	}
}

func TestWearableLockCounting(t *testing.T) {
	locks := NewWearableLocks(nil, nil)
	holder := ref.NewObjectID()

	locks.AddLock(ref.WearableShirt, holder, LockRemove)
	locks.AddLock(ref.WearableShirt, holder, LockRemove)
	if locks.CanRemove(ref.WearableShirt) {
		t.Fatal("remove-locked layer should not be removable")
	}
	locks.RemoveLock(ref.WearableShirt, holder, LockRemove)
	if locks.CanRemove(ref.WearableShirt) {
		t.Error("one release of two references must keep the lock")
	}
	locks.RemoveLock(ref.WearableShirt, holder, LockRemove)
	if !locks.CanRemove(ref.WearableShirt) {
		t.Error("layer should be removable after the last release")
	}
}

func TestWearableBodyPartsNeverRemovable(t *testing.T) {
	locks := NewWearableLocks(nil, nil)
	if locks.CanRemove(ref.WearableShape) {
		t.Error("body parts cannot be removed even unlocked")
	}
	if got := locks.CanWear(ref.WearableShape); !got.CanReplace() {
		t.Errorf("unlocked body part should allow replace, got %v", got)
	}
}

func TestWearableCanWearComposition(t *testing.T) {
	locks := NewWearableLocks(nil, nil)
	holder := ref.NewObjectID()

	locks.AddLock(ref.WearablePants, holder, LockRemove)
	got := locks.CanWear(ref.WearablePants)
	if !got.CanAdd() || got.CanReplace() {
		t.Errorf("remove-locked layer: CanWear = %v, want add only", got)
	}

	locks.AddLock(ref.WearablePants, holder, LockAdd)
	if got := locks.CanWear(ref.WearablePants); got != ref.WearLocked {
		t.Errorf("add-locked layer: CanWear = %v, want locked", got)
	}

	if got := locks.CanWear(ref.WearableInvalid); got != ref.WearLocked {
		t.Errorf("invalid layer: CanWear = %v, want locked", got)
	}
}

func TestWearableCapBlocksAdd(t *testing.T) {
	av := avatar.New()
	locks := NewWearableLocks(av, inventory.NewModel())

	for i := 0; i < ref.MaxWearablesPerType; i++ {
		if err := av.WearLayer(ref.WearableShirt, ref.NewItemID()); err != nil {
			t.Fatal(err)
		}
	}

	got := locks.CanWear(ref.WearableShirt)
	if got.CanAdd() {
		t.Error("full layer must not allow add")
	}
	if !got.CanReplace() {
		t.Error("full unlocked layer should still allow replace")
	}

	// A layer with room keeps both actions.
	if got := locks.CanWear(ref.WearablePants); !got.CanAdd() || !got.CanReplace() {
		t.Errorf("empty layer: CanWear = %v", got)
	}
}
