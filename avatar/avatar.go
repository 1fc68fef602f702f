// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package avatar models the agent's worn state: rezzed attachments on
// skeleton points and layered wearables. The bridge manager and the
// lock watchdog both drive and observe this state through attach and
// detach requests plus an event stream.
package avatar

import (
	"fmt"
	"sync"

	"github.com/firestorm-community/lslbridge/lib/ref"
)

// EventKind labels a worn-state change.
type EventKind int

const (
	EventAttached EventKind = iota
	EventDetached
)

func (k EventKind) String() string {
	switch k {
	case EventAttached:
		return "attached"
	case EventDetached:
		return "detached"
	}
	return "unknown"
}

// Event is one attachment change. Item is the inventory item backing
// the object; Point is the resolved skeleton slot, never the default
// point.
type Event struct {
	Kind   EventKind
	Object ref.ObjectID
	Item   ref.ItemID
	Point  ref.AttachPoint
}

// Attachment is one rezzed object on the avatar.
type Attachment struct {
	Object ref.ObjectID
	Item   ref.ItemID
	Point  ref.AttachPoint
}

// Avatar holds the worn state. Safe for concurrent use. Attach and
// detach requests complete synchronously; events are delivered to
// subscribers in order, after the state change is visible.
type Avatar struct {
	mu          sync.Mutex
	attachments map[ref.ObjectID]Attachment
	byItem      map[ref.ItemID]ref.ObjectID
	wearables   map[ref.WearableType][]ref.ItemID
	subscribers []chan Event

	// DefaultAttach is the slot substituted for attach requests that
	// name the default point. Zero value means right hand.
	DefaultAttach ref.AttachPoint
}

// New returns an empty avatar.
func New() *Avatar {
	return &Avatar{
		attachments: make(map[ref.ObjectID]Attachment),
		byItem:      make(map[ref.ItemID]ref.ObjectID),
		wearables:   make(map[ref.WearableType][]ref.ItemID),
	}
}

// Subscribe returns a channel of worn-state events and a cancel
// function. The channel is buffered; a subscriber that stops reading
// blocks delivery, so consume promptly or cancel.
func (a *Avatar) Subscribe() (<-chan Event, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch := make(chan Event, 16)
	a.subscribers = append(a.subscribers, ch)
	return ch, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		for i, sub := range a.subscribers {
			if sub == ch {
				a.subscribers = append(a.subscribers[:i], a.subscribers[i+1:]...)
				close(ch)
				return
			}
		}
	}
}

func (a *Avatar) publish(event Event) {
	a.mu.Lock()
	subscribers := append([]chan Event(nil), a.subscribers...)
	a.mu.Unlock()
	for _, ch := range subscribers {
		ch <- event
	}
}

// ResolvePoint maps the default point to the avatar's configured
// default slot, so locks and permission checks always see the point an
// attach would actually land on. Named points pass through unchanged.
func (a *Avatar) ResolvePoint(point ref.AttachPoint) ref.AttachPoint {
	if point != ref.DefaultPoint {
		return point
	}
	if a.DefaultAttach != ref.DefaultPoint {
		return a.DefaultAttach
	}
	return ref.AttachPointByName("right hand")
}

// RequestAttach wears an inventory item on a point. The default point
// resolves to DefaultAttach. When replace is true any object already
// on the resolved point is detached first; otherwise the new object
// is added alongside. Attaching an item that is already worn is a
// no-op returning the existing object.
func (a *Avatar) RequestAttach(item ref.ItemID, point ref.AttachPoint, replace bool) (ref.ObjectID, error) {
	if item.IsZero() {
		return ref.ObjectID{}, fmt.Errorf("avatar: attach of zero item")
	}

	a.mu.Lock()
	if existing, worn := a.byItem[item]; worn {
		a.mu.Unlock()
		return existing, nil
	}
	resolved := a.ResolvePoint(point)
	if !resolved.IsValid() {
		a.mu.Unlock()
		return ref.ObjectID{}, fmt.Errorf("avatar: invalid attach point %d", int(point))
	}

	var detached []Attachment
	if replace {
		for id, att := range a.attachments {
			if att.Point == resolved {
				detached = append(detached, att)
				delete(a.attachments, id)
				delete(a.byItem, att.Item)
			}
		}
	}
	object := ref.NewObjectID()
	attachment := Attachment{Object: object, Item: item, Point: resolved}
	a.attachments[object] = attachment
	a.byItem[item] = object
	a.mu.Unlock()

	for _, att := range detached {
		a.publish(Event{Kind: EventDetached, Object: att.Object, Item: att.Item, Point: att.Point})
	}
	a.publish(Event{Kind: EventAttached, Object: object, Item: item, Point: resolved})
	return object, nil
}

// DetachIntoInventory removes a rezzed object from the avatar. The
// backing item stays in inventory.
func (a *Avatar) DetachIntoInventory(object ref.ObjectID) error {
	a.mu.Lock()
	attachment, ok := a.attachments[object]
	if !ok {
		a.mu.Unlock()
		return fmt.Errorf("avatar: object %s is not attached", object)
	}
	delete(a.attachments, object)
	delete(a.byItem, attachment.Item)
	a.mu.Unlock()

	a.publish(Event{Kind: EventDetached, Object: object, Item: attachment.Item, Point: attachment.Point})
	return nil
}

// Attachments returns a snapshot of everything rezzed on the avatar.
func (a *Avatar) Attachments() []Attachment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Attachment, 0, len(a.attachments))
	for _, att := range a.attachments {
		out = append(out, att)
	}
	return out
}

// ObjectsAtPoint lists the attachments rezzed on one slot.
func (a *Avatar) ObjectsAtPoint(point ref.AttachPoint) []Attachment {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []Attachment
	for _, att := range a.attachments {
		if att.Point == point {
			out = append(out, att)
		}
	}
	return out
}

// AttachmentForItem looks up the rezzed object backing an item.
func (a *Avatar) AttachmentForItem(item ref.ItemID) (Attachment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	object, ok := a.byItem[item]
	if !ok {
		return Attachment{}, false
	}
	return a.attachments[object], true
}

// Attachment looks up one rezzed object.
func (a *Avatar) Attachment(object ref.ObjectID) (Attachment, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	att, ok := a.attachments[object]
	return att, ok
}

// IsWorn reports whether an inventory item is currently attached.
func (a *Avatar) IsWorn(item ref.ItemID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.byItem[item]
	return ok
}

// WearLayer adds a wearable item on a layer. Layers cap out at
// MaxWearablesPerType.
func (a *Avatar) WearLayer(typ ref.WearableType, item ref.ItemID) error {
	if !typ.IsValid() {
		return fmt.Errorf("avatar: invalid wearable type %d", int(typ))
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.wearables[typ]) >= ref.MaxWearablesPerType {
		return fmt.Errorf("avatar: layer %s is full", typ)
	}
	a.wearables[typ] = append(a.wearables[typ], item)
	return nil
}

// RemoveLayer takes one wearable item off a layer.
func (a *Avatar) RemoveLayer(typ ref.WearableType, item ref.ItemID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	worn := a.wearables[typ]
	for i, id := range worn {
		if id == item {
			a.wearables[typ] = append(worn[:i], worn[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("avatar: item %s is not worn on layer %s", item, typ)
}

// WornCount reports how many wearables are layered on a type.
func (a *Avatar) WornCount(typ ref.WearableType) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.wearables[typ])
}

// WornOn returns the item IDs layered on a type, bottom first.
func (a *Avatar) WornOn(typ ref.WearableType) []ref.ItemID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]ref.ItemID(nil), a.wearables[typ]...)
}
