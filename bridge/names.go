// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "fmt"

// Bridge naming. The worn object and its script both carry the
// version-stamped name; creation locates survivors from previous
// sessions by exact name match and cleanup purges every historical
// name except the current one.
const (
	// namePrefix starts every bridge object and script name.
	namePrefix = "#Firestorm LSL Bridge v"

	// Current bridge version. Bumping either number makes every
	// existing bridge stale.
	majorVersion = 2
	minorVersion = 20

	// maxHistoricalMinor bounds the minor numbers ever shipped for
	// majors before the current one.
	maxHistoricalMinor = 99

	// folderName is the bridge's folder inside the viewer folder.
	folderName = "#LSL Bridge"

	// viewerFolderName is the viewer's top-level inventory folder.
	viewerFolderName = "#Firestorm"

	// Library path to the template prim the bridge is cloned from.
	libraryObjectsFolder   = "Objects"
	libraryContainerFolder = "Landscaping"
	libraryTemplateName    = "Rock - medium, round"

	// tokenPlaceholder is the literal in the script source replaced
	// by the per-installation auth token.
	tokenPlaceholder = "BRIDGEKEY"
)

// versionName builds the stamped name for one version.
func versionName(major, minor int) string {
	return fmt.Sprintf("%s%d.%d", namePrefix, major, minor)
}

// currentName is the name a valid bridge carries right now.
func currentName() string {
	return versionName(majorVersion, minorVersion)
}

// currentVersion is the stamp the script announces in its handshake.
func currentVersion() string {
	return fmt.Sprintf("%d.%d", majorVersion, minorVersion)
}

// historicalNames enumerates every version name that has ever
// shipped, excluding the current one. Cleanup purges inventory
// matches against this set.
func historicalNames() []string {
	var names []string
	for major := 1; major <= majorVersion; major++ {
		maxMinor := maxHistoricalMinor
		if major == majorVersion {
			maxMinor = minorVersion
		}
		for minor := 0; minor <= maxMinor; minor++ {
			if major == majorVersion && minor == minorVersion {
				continue
			}
			names = append(names, versionName(major, minor))
		}
	}
	return names
}
