// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers: channel receive/close
// assertions with timeout safety valves so tests fail loudly instead
// of hanging.
package testutil
