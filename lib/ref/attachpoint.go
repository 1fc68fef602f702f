// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "strings"

// AttachPoint is a fixed slot index on the avatar skeleton. Index 0
// means "default point": the viewer picks a slot when the item does
// not declare one. Permission checks must never record index 0; the
// resolved point is substituted before any lock lookup happens.
type AttachPoint int

// DefaultPoint is the ambiguous "let the viewer decide" point.
const DefaultPoint AttachPoint = 0

// BridgePoint is the hidden slot the LSL bridge attaches to
// ("Center 2" in the skeleton table).
const BridgePoint AttachPoint = 31

// attachPointNames maps the skeleton slot table used for item name
// suffixes and restriction commands. Keys are lowercase.
var attachPointNames = map[string]AttachPoint{
	"chest":          1,
	"skull":          2,
	"left shoulder":  3,
	"right shoulder": 4,
	"left hand":      5,
	"right hand":     6,
	"left foot":      7,
	"right foot":     8,
	"spine":          9,
	"pelvis":         10,
	"mouth":          11,
	"chin":           12,
	"left ear":       13,
	"right ear":      14,
	"left eyeball":   15,
	"right eyeball":  16,
	"nose":           17,
	"r upper arm":    18,
	"r forearm":      19,
	"l upper arm":    20,
	"l forearm":      21,
	"right hip":      22,
	"r upper leg":    23,
	"r lower leg":    24,
	"left hip":       25,
	"l upper leg":    26,
	"l lower leg":    27,
	"stomach":        28,
	"left pec":       29,
	"right pec":      30,
	"center 2":       31,
	"top right":      32,
	"top":            33,
	"top left":       34,
	"center":         35,
	"bottom left":    36,
	"bottom":         37,
	"bottom right":   38,
	"neck":           39,
	"avatar center":  40,
}

// hudPointMin and hudPointMax bound the HUD slot range ("Top Right"
// through "Bottom Right"). HUD attachments render as screen overlays;
// a locked HUD has viewer-wide consequences and is tracked separately
// by the lock registry.
const (
	hudPointMin AttachPoint = 32
	hudPointMax AttachPoint = 38
)

// AttachPointByName resolves a slot name to its index. Matching is
// case-insensitive. Unknown names resolve to DefaultPoint, matching
// the restriction protocol's treatment of unrecognized point names.
func AttachPointByName(name string) AttachPoint {
	point, ok := attachPointNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return DefaultPoint
	}
	return point
}

// String returns the canonical slot name, or "default" for index 0
// and "unknown" for out-of-table indices.
func (p AttachPoint) String() string {
	if p == DefaultPoint {
		return "default"
	}
	for name, index := range attachPointNames {
		if index == p {
			return name
		}
	}
	return "unknown"
}

// IsHUD reports whether the point is a HUD overlay slot.
func (p AttachPoint) IsHUD() bool {
	return p >= hudPointMin && p <= hudPointMax
}

// IsValid reports whether the point is a known skeleton slot (the
// default point is not valid as a resolved lock reference).
func (p AttachPoint) IsValid() bool {
	return p > DefaultPoint && p <= 40
}
