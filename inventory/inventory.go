// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package inventory defines the agent-inventory surface the bridge
// depends on: category and item lookup, asynchronous item copy and
// script creation, and change notification. The bridge never walks
// the full inventory; it works inside its own folder plus one library
// container.
package inventory

import (
	"github.com/firestorm-community/lslbridge/lib/ref"
)

// AssetType distinguishes the two item kinds the bridge handles.
type AssetType int

const (
	AssetObject AssetType = iota
	AssetScript
)

func (t AssetType) String() string {
	switch t {
	case AssetObject:
		return "object"
	case AssetScript:
		return "script"
	}
	return "unknown"
}

// Item is a snapshot of one inventory item.
type Item struct {
	ID          ref.ItemID
	Parent      ref.CategoryID
	Name        string
	Type        AssetType
	Creator     ref.AgentID
	Description string

	// Link marks an item that references another item rather than
	// owning its asset. Links are skipped by permission resolution.
	Link bool
}

// Category is a snapshot of one inventory folder.
type Category struct {
	ID     ref.CategoryID
	Parent ref.CategoryID
	Name   string
}

// CompletionFunc receives the outcome of an asynchronous inventory
// operation. On failure the item ID is zero.
type CompletionFunc func(item ref.ItemID, err error)

// ChangeFunc receives the IDs of items that changed, were added, or
// were removed.
type ChangeFunc func(changed []ref.ItemID)

// Inventory is the bridge's view of agent inventory. Implementations
// must be safe for concurrent use. Copy and CreateItem complete
// asynchronously; the completion runs at most once.
type Inventory interface {
	// RootCategory is the agent's top-level inventory folder.
	RootCategory() ref.CategoryID

	// LibraryCategory is the shared library root, absent when the
	// grid hides the library.
	LibraryCategory() (ref.CategoryID, bool)

	// FindCategory finds a direct child folder by exact name.
	FindCategory(parent ref.CategoryID, name string) (Category, bool)

	// CreateCategory makes a new child folder and returns its ID.
	CreateCategory(parent ref.CategoryID, name string) (ref.CategoryID, error)

	// Item looks up one item by ID.
	Item(id ref.ItemID) (Item, bool)

	// ItemsIn lists the direct item children of a folder.
	ItemsIn(category ref.CategoryID) []Item

	// CollectDescendents gathers items under a folder that satisfy
	// match, descending into child folders when recurse is set. A nil
	// match collects everything.
	CollectDescendents(category ref.CategoryID, recurse bool, match func(Item) bool) []Item

	// CopyItem copies source into dest under a new name. The source
	// may live in the library.
	CopyItem(source ref.ItemID, dest ref.CategoryID, name string, done CompletionFunc)

	// CreateItem creates a new empty item of the given type in dest.
	CreateItem(dest ref.CategoryID, name string, typ AssetType, done CompletionFunc)

	// Rename changes an item's name in place.
	Rename(id ref.ItemID, name string) error

	// Purge permanently removes an item.
	Purge(id ref.ItemID) error

	// Observe registers for change notification. Observers run after
	// the mutation is visible through the lookup methods.
	Observe(fn ChangeFunc)
}
