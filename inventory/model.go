// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package inventory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/firestorm-community/lslbridge/lib/ref"
)

// Model is an in-memory Inventory. Asynchronous completions are
// queued and run either immediately (the default) or when Settle is
// called, so tests can hold an operation in flight.
type Model struct {
	mu         sync.Mutex
	root       ref.CategoryID
	library    ref.CategoryID
	hasLibrary bool
	categories map[ref.CategoryID]Category
	items      map[ref.ItemID]Item
	observers  []ChangeFunc
	pending    []func()
	deferred   bool
	owner      ref.AgentID
	failCopy   error
	failCreate error
}

var _ Inventory = (*Model)(nil)

// NewModel returns an empty inventory with just a root folder.
func NewModel() *Model {
	m := &Model{
		categories: make(map[ref.CategoryID]Category),
		items:      make(map[ref.ItemID]Item),
	}
	m.root = ref.NewCategoryID()
	m.categories[m.root] = Category{ID: m.root, Name: "My Inventory"}
	return m
}

// WithLibrary adds a shared-library root and returns the model.
func (m *Model) WithLibrary() *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.library = ref.NewCategoryID()
	m.hasLibrary = true
	m.categories[m.library] = Category{ID: m.library, Name: "Library"}
	return m
}

// Defer switches asynchronous completions to manual delivery via
// Settle.
func (m *Model) Defer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deferred = true
}

// Settle runs all queued completions in order.
func (m *Model) Settle() {
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()
		next()
	}
}

// Pending reports how many completions are queued.
func (m *Model) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// FailNextCopy makes the next CopyItem complete with err.
func (m *Model) FailNextCopy(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCopy = err
}

// FailNextCreate makes the next CreateItem complete with err.
func (m *Model) FailNextCreate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCreate = err
}

// SetOwner records the agent stamped as creator on items this model
// creates.
func (m *Model) SetOwner(agent ref.AgentID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owner = agent
}

func (m *Model) RootCategory() ref.CategoryID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.root
}

func (m *Model) LibraryCategory() (ref.CategoryID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.library, m.hasLibrary
}

func (m *Model) FindCategory(parent ref.CategoryID, name string) (Category, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, category := range m.categories {
		if category.Parent == parent && strings.EqualFold(category.Name, name) {
			return category, true
		}
	}
	return Category{}, false
}

func (m *Model) CreateCategory(parent ref.CategoryID, name string) (ref.CategoryID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[parent]; !ok {
		return ref.CategoryID{}, fmt.Errorf("inventory: parent category %s not found", parent)
	}
	id := ref.NewCategoryID()
	m.categories[id] = Category{ID: id, Parent: parent, Name: name}
	return id, nil
}

func (m *Model) Item(id ref.ItemID) (Item, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	return item, ok
}

func (m *Model) ItemsIn(category ref.CategoryID) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []Item
	for _, item := range m.items {
		if item.Parent == category {
			items = append(items, item)
		}
	}
	return items
}

// AddItem seeds an item directly, for library content and tests.
func (m *Model) AddItem(parent ref.CategoryID, name string, typ AssetType) ref.ItemID {
	m.mu.Lock()
	id := ref.NewItemID()
	m.items[id] = Item{ID: id, Parent: parent, Name: name, Type: typ, Creator: m.owner}
	m.mu.Unlock()
	m.notify([]ref.ItemID{id})
	return id
}

func (m *Model) CollectDescendents(category ref.CategoryID, recurse bool, match func(Item) bool) []Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	folders := map[ref.CategoryID]bool{category: true}
	if recurse {
		// Fixpoint over the child relation; folder count is small.
		for {
			grew := false
			for id, folder := range m.categories {
				if !folders[id] && folders[folder.Parent] {
					folders[id] = true
					grew = true
				}
			}
			if !grew {
				break
			}
		}
	}

	var collected []Item
	for _, item := range m.items {
		if !folders[item.Parent] {
			continue
		}
		if match == nil || match(item) {
			collected = append(collected, item)
		}
	}
	return collected
}

func (m *Model) CopyItem(source ref.ItemID, dest ref.CategoryID, name string, done CompletionFunc) {
	m.mu.Lock()
	failure := m.failCopy
	m.failCopy = nil
	original, ok := m.items[source]
	m.mu.Unlock()

	m.complete(func() {
		if failure != nil {
			done(ref.ItemID{}, failure)
			return
		}
		if !ok {
			done(ref.ItemID{}, fmt.Errorf("inventory: source item %s not found", source))
			return
		}
		m.mu.Lock()
		id := ref.NewItemID()
		copied := original
		copied.ID = id
		copied.Parent = dest
		copied.Name = name
		copied.Link = false
		m.items[id] = copied
		m.mu.Unlock()
		m.notify([]ref.ItemID{id})
		done(id, nil)
	})
}

func (m *Model) CreateItem(dest ref.CategoryID, name string, typ AssetType, done CompletionFunc) {
	m.mu.Lock()
	failure := m.failCreate
	m.failCreate = nil
	owner := m.owner
	m.mu.Unlock()

	m.complete(func() {
		if failure != nil {
			done(ref.ItemID{}, failure)
			return
		}
		m.mu.Lock()
		id := ref.NewItemID()
		m.items[id] = Item{ID: id, Parent: dest, Name: name, Type: typ, Creator: owner}
		m.mu.Unlock()
		m.notify([]ref.ItemID{id})
		done(id, nil)
	})
}

func (m *Model) Rename(id ref.ItemID, name string) error {
	m.mu.Lock()
	item, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("inventory: item %s not found", id)
	}
	item.Name = name
	m.items[id] = item
	m.mu.Unlock()
	m.notify([]ref.ItemID{id})
	return nil
}

func (m *Model) Purge(id ref.ItemID) error {
	m.mu.Lock()
	if _, ok := m.items[id]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("inventory: item %s not found", id)
	}
	delete(m.items, id)
	m.mu.Unlock()
	m.notify([]ref.ItemID{id})
	return nil
}

func (m *Model) Observe(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *Model) complete(fn func()) {
	m.mu.Lock()
	if m.deferred {
		m.pending = append(m.pending, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	fn()
}

func (m *Model) notify(changed []ref.ItemID) {
	m.mu.Lock()
	observers := append([]ChangeFunc(nil), m.observers...)
	m.mu.Unlock()
	for _, fn := range observers {
		fn(changed)
	}
}
