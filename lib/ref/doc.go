// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated identifier and reference value types
// shared across the bridge and restriction subsystems: inventory item,
// category, in-world object, and agent IDs, plus attachment point and
// wearable layer references.
//
// All ID types are immutable value types wrapping a UUID. The zero
// value is never valid; use IsZero to check. Every type implements
// encoding.TextMarshaler/TextUnmarshaler so it serializes as a plain
// UUID string in JSON, YAML, and CBOR.
package ref
