// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "strings"

// WearableType is a clothing or body-part layer slot. Unlike
// attachment points, several wearables of the same type may be
// layered, up to MaxWearablesPerType.
type WearableType int

// Wearable layer slots. Body parts (shape through eyes) allow exactly
// one wearable; clothing layers stack.
const (
	WearableInvalid WearableType = iota - 1
	WearableShape
	WearableSkin
	WearableHair
	WearableEyes
	WearableShirt
	WearablePants
	WearableShoes
	WearableSocks
	WearableJacket
	WearableGloves
	WearableUndershirt
	WearableUnderpants
	WearableSkirt
	WearableAlpha
	WearableTattoo
	WearablePhysics
	WearableUniversal
)

// MaxWearablesPerType caps how many wearables of one clothing type may
// be layered simultaneously.
const MaxWearablesPerType = 5

var wearableNames = map[string]WearableType{
	"shape":      WearableShape,
	"skin":       WearableSkin,
	"hair":       WearableHair,
	"eyes":       WearableEyes,
	"shirt":      WearableShirt,
	"pants":      WearablePants,
	"shoes":      WearableShoes,
	"socks":      WearableSocks,
	"jacket":     WearableJacket,
	"gloves":     WearableGloves,
	"undershirt": WearableUndershirt,
	"underpants": WearableUnderpants,
	"skirt":      WearableSkirt,
	"alpha":      WearableAlpha,
	"tattoo":     WearableTattoo,
	"physics":    WearablePhysics,
	"universal":  WearableUniversal,
}

// WearableTypeByName resolves a layer name (restriction command
// spelling, case-insensitive). Unknown names return WearableInvalid.
func WearableTypeByName(name string) WearableType {
	t, ok := wearableNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return WearableInvalid
	}
	return t
}

// String returns the layer name, or "invalid".
func (t WearableType) String() string {
	for name, wt := range wearableNames {
		if wt == t {
			return name
		}
	}
	return "invalid"
}

// IsBodyPart reports whether the type is a body part (shape, skin,
// hair, eyes). Body parts cannot be removed, only replaced.
func (t WearableType) IsBodyPart() bool {
	return t >= WearableShape && t <= WearableEyes
}

// IsValid reports whether the type is a known layer slot.
func (t WearableType) IsValid() bool {
	return t >= WearableShape && t <= WearableUniversal
}
