// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"

	"github.com/google/uuid"
)

// ItemID identifies an inventory item (object, script, wearable, or a
// link to one of those).
type ItemID struct {
	id uuid.UUID
}

// CategoryID identifies an inventory folder.
type CategoryID struct {
	id uuid.UUID
}

// ObjectID identifies a rezzed in-world object. An attachment has both
// an ObjectID (the rezzed prim) and an ItemID (its inventory source);
// the two are correlated by the attachment event stream.
type ObjectID struct {
	id uuid.UUID
}

// AgentID identifies an avatar account.
type AgentID struct {
	id uuid.UUID
}

// NewItemID returns a freshly generated item ID.
func NewItemID() ItemID { return ItemID{id: uuid.New()} }

// NewCategoryID returns a freshly generated category ID.
func NewCategoryID() CategoryID { return CategoryID{id: uuid.New()} }

// NewObjectID returns a freshly generated object ID.
func NewObjectID() ObjectID { return ObjectID{id: uuid.New()} }

// NewAgentID returns a freshly generated agent ID.
func NewAgentID() AgentID { return AgentID{id: uuid.New()} }

// ParseItemID validates and wraps a raw UUID string.
func ParseItemID(raw string) (ItemID, error) {
	id, err := parseUUID("item ID", raw)
	return ItemID{id: id}, err
}

// ParseCategoryID validates and wraps a raw UUID string.
func ParseCategoryID(raw string) (CategoryID, error) {
	id, err := parseUUID("category ID", raw)
	return CategoryID{id: id}, err
}

// ParseObjectID validates and wraps a raw UUID string.
func ParseObjectID(raw string) (ObjectID, error) {
	id, err := parseUUID("object ID", raw)
	return ObjectID{id: id}, err
}

// ParseAgentID validates and wraps a raw UUID string.
func ParseAgentID(raw string) (AgentID, error) {
	id, err := parseUUID("agent ID", raw)
	return AgentID{id: id}, err
}

// MustParseItemID is like ParseItemID but panics on error. Use in
// tests and static initialization where the input is known-valid.
func MustParseItemID(raw string) ItemID {
	v, err := ParseItemID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseItemID(%q): %v", raw, err))
	}
	return v
}

// MustParseObjectID is like ParseObjectID but panics on error.
func MustParseObjectID(raw string) ObjectID {
	v, err := ParseObjectID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseObjectID(%q): %v", raw, err))
	}
	return v
}

func parseUUID(kind, raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.UUID{}, fmt.Errorf("empty %s", kind)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid %s %q: %w", kind, raw, err)
	}
	return id, nil
}

// String returns the canonical UUID string.
func (i ItemID) String() string { return i.id.String() }

// IsZero reports whether the ItemID is the zero value.
func (i ItemID) IsZero() bool { return i.id == uuid.UUID{} }

// MarshalText implements encoding.TextMarshaler.
func (i ItemID) MarshalText() ([]byte, error) { return marshalID(i.id) }

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value (unset ID).
func (i *ItemID) UnmarshalText(data []byte) error {
	id, err := unmarshalID("item ID", data)
	if err != nil {
		return err
	}
	*i = ItemID{id: id}
	return nil
}

// String returns the canonical UUID string.
func (c CategoryID) String() string { return c.id.String() }

// IsZero reports whether the CategoryID is the zero value.
func (c CategoryID) IsZero() bool { return c.id == uuid.UUID{} }

// MarshalText implements encoding.TextMarshaler.
func (c CategoryID) MarshalText() ([]byte, error) { return marshalID(c.id) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *CategoryID) UnmarshalText(data []byte) error {
	id, err := unmarshalID("category ID", data)
	if err != nil {
		return err
	}
	*c = CategoryID{id: id}
	return nil
}

// String returns the canonical UUID string.
func (o ObjectID) String() string { return o.id.String() }

// IsZero reports whether the ObjectID is the zero value.
func (o ObjectID) IsZero() bool { return o.id == uuid.UUID{} }

// MarshalText implements encoding.TextMarshaler.
func (o ObjectID) MarshalText() ([]byte, error) { return marshalID(o.id) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *ObjectID) UnmarshalText(data []byte) error {
	id, err := unmarshalID("object ID", data)
	if err != nil {
		return err
	}
	*o = ObjectID{id: id}
	return nil
}

// String returns the canonical UUID string.
func (a AgentID) String() string { return a.id.String() }

// IsZero reports whether the AgentID is the zero value.
func (a AgentID) IsZero() bool { return a.id == uuid.UUID{} }

// MarshalText implements encoding.TextMarshaler.
func (a AgentID) MarshalText() ([]byte, error) { return marshalID(a.id) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AgentID) UnmarshalText(data []byte) error {
	id, err := unmarshalID("agent ID", data)
	if err != nil {
		return err
	}
	*a = AgentID{id: id}
	return nil
}

func marshalID(id uuid.UUID) ([]byte, error) {
	if id == (uuid.UUID{}) {
		return nil, nil
	}
	return []byte(id.String()), nil
}

func unmarshalID(kind string, data []byte) (uuid.UUID, error) {
	if len(data) == 0 {
		return uuid.UUID{}, nil
	}
	return parseUUID(kind, string(data))
}
