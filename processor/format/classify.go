// Package format classifies incoming payloads and normalizes JSON into an XML
// document so that every message can go through the same transform.
package format

import (
	"unicode"
	"unicode/utf8"
)

// Kind is the payload format decided by Classify.
type Kind int

const (
	// KindEmpty is an empty or all-whitespace payload; it produces no rows.
	KindEmpty Kind = iota
	// KindJSONObject starts with '{'.
	KindJSONObject
	// KindXML starts with '<'.
	KindXML
	// KindJSON is anything else, including arrays and bare scalars.
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindJSONObject:
		return "json-object"
	case KindXML:
		return "xml"
	case KindJSON:
		return "json"
	default:
		return "unknown"
	}
}

// IsJSON reports whether the payload needs JSON-to-XML normalization.
func (k Kind) IsJSON() bool {
	return k == KindJSONObject || k == KindJSON
}

// Classify looks only at the first non-whitespace rune of payload.
func Classify(payload string) Kind {
	for i := 0; i < len(payload); {
		r, size := utf8.DecodeRuneInString(payload[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		switch r {
		case '{':
			return KindJSONObject
		case '<':
			return KindXML
		default:
			return KindJSON
		}
	}
	return KindEmpty
}
