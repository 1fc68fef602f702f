// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// WearMask is the capability answer to "can this item be worn here".
// Some restrictions forbid replacing what is worn while still allowing
// an additional item on the same slot, so the answer is a mask rather
// than a boolean.
type WearMask int

const (
	// WearLocked means neither adding nor replacing is permitted.
	WearLocked WearMask = 0x00
	// WearAdd permits wearing alongside what is already worn.
	WearAdd WearMask = 0x01
	// WearReplace permits swapping out the currently worn item(s).
	WearReplace WearMask = 0x02
	// Wear permits both adding and replacing.
	Wear WearMask = WearAdd | WearReplace
)

// CanAdd reports whether additive wearing is permitted.
func (m WearMask) CanAdd() bool { return m&WearAdd != 0 }

// CanReplace reports whether replacement is permitted.
func (m WearMask) CanReplace() bool { return m&WearReplace != 0 }

// String renders the mask for logs.
func (m WearMask) String() string {
	switch m {
	case WearLocked:
		return "locked"
	case WearAdd:
		return "add"
	case WearReplace:
		return "replace"
	case Wear:
		return "add|replace"
	}
	return "invalid"
}
