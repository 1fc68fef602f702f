// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// The in-world script talks to the viewer over nearby chat using a
// tag-based micro-protocol. Tag matching is exact and case-sensitive;
// there is no escaping, so payloads must not contain tag markers.

// ErrMalformed wraps every parse failure: a missing closing tag, a
// truncated attribute, or a bad payload.
var ErrMalformed = errors.New("bridge: malformed protocol message")

// Message is one parsed inbound protocol message.
type Message interface {
	protocolMessage()
}

// URLMessage is the handshake: the script announces its request URL,
// the auth token baked into it at creation, and its version stamp.
type URLMessage struct {
	URL     string
	Auth    string
	Version string
}

// ClientAOMessage toggles the client-side animation overrider.
type ClientAOMessage struct {
	Enabled bool
}

// ScriptInfoMessage reports details about a scanned object: six
// comma-separated fields, the first a base64-encoded object name.
type ScriptInfoMessage struct {
	ObjectName string
	Fields     [5]string
}

// MovelockMessage reports the script-side movelock state.
type MovelockMessage struct {
	Locked bool
}

// ErrorKind enumerates the failure reports the script can send.
type ErrorKind string

const (
	ErrorInjection          ErrorKind = "injection"
	ErrorScriptInfoNotFound ErrorKind = "scriptinfonotfound"
	ErrorWrongVM            ErrorKind = "wrongvm"
)

// ErrorMessage is a failure report from the script.
type ErrorMessage struct {
	Kind ErrorKind
}

// Unrecognized is a message that carries no known tag. It is not an
// error: chat is a shared channel and most lines are not for us.
type Unrecognized struct{}

func (URLMessage) protocolMessage()        {}
func (ClientAOMessage) protocolMessage()   {}
func (ScriptInfoMessage) protocolMessage() {}
func (MovelockMessage) protocolMessage()   {}
func (ErrorMessage) protocolMessage()      {}
func (Unrecognized) protocolMessage()      {}

// Parse classifies one inbound chat line. Unknown content yields
// Unrecognized with no error; known tags with broken structure yield
// an ErrMalformed-wrapped error.
func Parse(message string) (Message, error) {
	switch {
	case strings.HasPrefix(message, "<bridgeURL>"):
		return parseURL(message)
	case strings.HasPrefix(message, "<clientAO "):
		return parseClientAO(message)
	case strings.HasPrefix(message, "<bridgeGetScriptInfo>"):
		return parseScriptInfo(message)
	case strings.HasPrefix(message, "<bridgeMovelock "):
		return parseMovelock(message)
	case strings.HasPrefix(message, "<bridgeError "):
		return parseError(message)
	}
	return Unrecognized{}, nil
}

// tagContent extracts the payload between <tag> and </tag>, erroring
// when the closing tag is missing or precedes the opening one.
func tagContent(message, tag string) (string, error) {
	open := "<" + tag + ">"
	close := "</" + tag + ">"
	start := strings.Index(message, open)
	if start < 0 {
		return "", fmt.Errorf("%w: missing <%s>", ErrMalformed, tag)
	}
	start += len(open)
	end := strings.Index(message[start:], close)
	if end < 0 {
		return "", fmt.Errorf("%w: missing </%s>", ErrMalformed, tag)
	}
	return message[start : start+end], nil
}

// attrValue extracts attr=value from inside a single tag, value
// terminated by a space or the closing angle bracket.
func attrValue(message, attr string) (string, error) {
	marker := attr + "="
	start := strings.Index(message, marker)
	if start < 0 {
		return "", fmt.Errorf("%w: missing %s attribute", ErrMalformed, attr)
	}
	rest := message[start+len(marker):]
	end := strings.IndexAny(rest, " >")
	if end < 0 {
		return "", fmt.Errorf("%w: unterminated %s attribute", ErrMalformed, attr)
	}
	return rest[:end], nil
}

func parseURL(message string) (Message, error) {
	url, err := tagContent(message, "bridgeURL")
	if err != nil {
		return nil, err
	}
	auth, err := tagContent(message, "bridgeAuth")
	if err != nil {
		return nil, err
	}
	version, err := tagContent(message, "bridgeVer")
	if err != nil {
		return nil, err
	}
	if url == "" {
		return nil, fmt.Errorf("%w: empty bridge URL", ErrMalformed)
	}
	return URLMessage{URL: url, Auth: auth, Version: version}, nil
}

func parseClientAO(message string) (Message, error) {
	state, err := attrValue(message, "state")
	if err != nil {
		return nil, err
	}
	switch state {
	case "on":
		return ClientAOMessage{Enabled: true}, nil
	case "off":
		return ClientAOMessage{Enabled: false}, nil
	}
	return nil, fmt.Errorf("%w: clientAO state %q", ErrMalformed, state)
}

func parseScriptInfo(message string) (Message, error) {
	content, err := tagContent(message, "bridgeGetScriptInfo")
	if err != nil {
		return nil, err
	}
	parts := strings.Split(content, ",")
	if len(parts) != 6 {
		return nil, fmt.Errorf("%w: script info has %d fields, want 6", ErrMalformed, len(parts))
	}
	name, err := base64.StdEncoding.DecodeString(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("%w: object name is not base64: %v", ErrMalformed, err)
	}
	info := ScriptInfoMessage{ObjectName: string(name)}
	for i, part := range parts[1:] {
		info.Fields[i] = strings.TrimSpace(part)
	}
	return info, nil
}

func parseMovelock(message string) (Message, error) {
	state, err := attrValue(message, "state")
	if err != nil {
		return nil, err
	}
	switch state {
	case "1":
		return MovelockMessage{Locked: true}, nil
	case "0":
		return MovelockMessage{Locked: false}, nil
	}
	return nil, fmt.Errorf("%w: movelock state %q", ErrMalformed, state)
}

func parseError(message string) (Message, error) {
	kind, err := attrValue(message, "error")
	if err != nil {
		return nil, err
	}
	switch ErrorKind(kind) {
	case ErrorInjection, ErrorScriptInfoNotFound, ErrorWrongVM:
		return ErrorMessage{Kind: ErrorKind(kind)}, nil
	}
	return nil, fmt.Errorf("%w: unknown error kind %q", ErrMalformed, kind)
}
