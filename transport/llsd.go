// Copyright 2026 The Firestorm Community Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
)

// LLSD is the grid's XML serialization. The bridge only ever
// exchanges two shapes: a bare string (chat-style commands and
// replies) and a flat map of scalars (capability requests and
// responses), so that is all this codec handles.

// encodeLLSDString wraps a string payload in an LLSD document.
func encodeLLSDString(value string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?><llsd><string>`)
	xml.EscapeText(&buf, []byte(value))
	buf.WriteString(`</string></llsd>`)
	return buf.Bytes()
}

// encodeLLSDMap writes a flat map of scalar values, keys sorted for
// stable bodies. Supported value types: string, bool, int.
func encodeLLSDMap(values map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?><llsd><map>`)
	for _, key := range keys {
		buf.WriteString("<key>")
		xml.EscapeText(&buf, []byte(key))
		buf.WriteString("</key>")
		switch v := values[key].(type) {
		case string:
			buf.WriteString("<string>")
			xml.EscapeText(&buf, []byte(v))
			buf.WriteString("</string>")
		case bool:
			if v {
				buf.WriteString("<boolean>1</boolean>")
			} else {
				buf.WriteString("<boolean>0</boolean>")
			}
		case int:
			fmt.Fprintf(&buf, "<integer>%d</integer>", v)
		default:
			return nil, fmt.Errorf("transport: unsupported llsd value type %T for key %q", v, key)
		}
	}
	buf.WriteString(`</map></llsd>`)
	return buf.Bytes(), nil
}

// decodeLLSDString extracts the single string payload from an LLSD
// document.
func decodeLLSDString(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	var inString bool
	var value string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("transport: malformed llsd: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "string" {
				inString = true
			}
		case xml.EndElement:
			if t.Name.Local == "string" {
				return value, nil
			}
		case xml.CharData:
			if inString {
				value += string(t)
			}
		}
	}
	return "", fmt.Errorf("transport: llsd document has no string payload")
}

// decodeLLSDMap extracts a flat map of scalar values. Every value is
// returned as its text content; callers interpret types themselves.
func decodeLLSDMap(data []byte) (map[string]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	result := make(map[string]string)
	var currentKey string
	var inKey, inValue bool
	var text string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("transport: malformed llsd: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "key":
				inKey = true
				text = ""
			case "llsd", "map":
			default:
				inValue = true
				text = ""
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "key":
				currentKey = text
				inKey = false
			case "llsd", "map":
			default:
				if inValue && currentKey != "" {
					result[currentKey] = text
					currentKey = ""
				}
				inValue = false
			}
		case xml.CharData:
			if inKey || inValue {
				text += string(t)
			}
		}
	}
	return result, nil
}
