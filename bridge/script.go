// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// defaultScriptSource is the control script compiled into the worn
// bridge prim. The token placeholder is patched per installation
// before upload; the script echoes that token back in its handshake
// so the viewer can tell its own bridge from an impostor.
const defaultScriptSource = `string bridgeAuth = "BRIDGEKEY";
string bridgeVersion = "` + "2.20" + `";
string bridgeURL;

announce()
{
    llOwnerSay("<bridgeURL>" + bridgeURL + "</bridgeURL><bridgeAuth>"
        + bridgeAuth + "</bridgeAuth><bridgeVer>" + bridgeVersion + "</bridgeVer>");
}

default
{
    state_entry()
    {
        llRequestURL();
    }
    attach(key id)
    {
        if (id != NULL_KEY) llRequestURL();
    }
    changed(integer change)
    {
        if (change & (CHANGED_REGION | CHANGED_TELEPORT)) llRequestURL();
    }
    http_request(key id, string method, string body)
    {
        if (method == URL_REQUEST_GRANTED)
        {
            bridgeURL = body;
            announce();
        }
        else if (method == "POST")
        {
            llHTTPResponse(id, 200, "ok");
        }
    }
}
`

// loadScriptSource reads the script template from path, falling back
// to the built-in source when path is empty.
func loadScriptSource(path string) (string, error) {
	if path == "" {
		return defaultScriptSource, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("bridge: reading script resource: %w", err)
	}
	return string(data), nil
}

// patchToken substitutes the per-installation auth token into the
// script source. The placeholder must be present; a template without
// it would produce a bridge that can never authenticate.
func patchToken(source, token string) (string, error) {
	if !strings.Contains(source, tokenPlaceholder) {
		return "", fmt.Errorf("bridge: script source has no %s placeholder", tokenPlaceholder)
	}
	return strings.ReplaceAll(source, tokenPlaceholder, token), nil
}

// scriptDigest returns a short blake3 digest of the script body, used
// to log what was uploaded without logging the body (it contains the
// token).
func scriptDigest(body string) string {
	sum := blake3.Sum256([]byte(body))
	return hex.EncodeToString(sum[:8])
}
