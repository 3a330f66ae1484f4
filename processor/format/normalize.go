package format

import (
	"encoding/xml"
	"fmt"
	"strings"
	"unicode"

	"github.com/antchfx/xmlquery"
	"github.com/ohler55/ojg/oj"
	"github.com/tidwall/gjson"

	"github.com/SimioLLC/WebAPISync/errors"
)

const (
	// RootElement names the document element produced for JSON payloads.
	RootElement = "data"
	// ItemsElement wraps JSON payloads that are not objects.
	ItemsElement = "items"
)

// Normalize classifies payload and returns it as an XML document. XML is
// parsed as is. JSON is converted with ToXML first. An empty payload yields a
// nil document and KindEmpty.
func Normalize(payload string) (*xmlquery.Node, Kind, error) {
	kind := Classify(payload)

	text := payload
	switch kind {
	case KindEmpty:
		return nil, kind, nil
	case KindJSONObject, KindJSON:
		var err error
		if text, err = ToXML(payload, kind == KindJSONObject); err != nil {
			return nil, kind, err
		}
	}

	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return nil, kind, errors.Detail(errors.ErrMalformedPayload, fmt.Errorf("parse %s: %w", kind, err))
	}
	return doc, kind, nil
}

// ToXML converts a JSON payload to XML text rooted at <data>. Every '@' is
// removed first. A payload that is not an object is wrapped as
// {"items": payload}. Object members become child elements in document
// order; array elements repeat the owning key; numbers keep their literal
// text; null becomes an empty element.
func ToXML(payload string, isObject bool) (string, error) {
	text := strings.ReplaceAll(payload, "@", "")
	if !isObject {
		text = `{"` + ItemsElement + `":` + text + `}`
	}

	if _, err := oj.ParseString(text); err != nil {
		return "", errors.Detail(errors.ErrMalformedPayload, err)
	}
	root := gjson.Parse(text)
	if !root.IsObject() {
		return "", errors.Detail(errors.ErrMalformedPayload, fmt.Errorf("expected a JSON object, got %s", root.Type))
	}

	var b strings.Builder
	b.Grow(len(text) * 2)
	b.WriteString("<" + RootElement + ">")
	writeMembers(&b, root)
	b.WriteString("</" + RootElement + ">")
	return b.String(), nil
}

func writeMembers(b *strings.Builder, obj gjson.Result) {
	obj.ForEach(func(key, value gjson.Result) bool {
		writeValue(b, EncodeName(key.String()), value)
		return true
	})
}

func writeValue(b *strings.Builder, name string, v gjson.Result) {
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if item.IsArray() {
				open(b, name)
				writeValue(b, name, item)
				closeTag(b, name)
				continue
			}
			writeValue(b, name, item)
		}
	case v.IsObject():
		if len(v.Map()) == 0 {
			empty(b, name)
			return
		}
		open(b, name)
		writeMembers(b, v)
		closeTag(b, name)
	case v.Type == gjson.Null:
		empty(b, name)
	case v.Type == gjson.Number, v.Type == gjson.True, v.Type == gjson.False:
		open(b, name)
		b.WriteString(v.Raw)
		closeTag(b, name)
	default:
		open(b, name)
		_ = xml.EscapeText(b, []byte(v.String()))
		closeTag(b, name)
	}
}

func open(b *strings.Builder, name string) {
	b.WriteByte('<')
	b.WriteString(name)
	b.WriteByte('>')
}

func closeTag(b *strings.Builder, name string) {
	b.WriteString("</")
	b.WriteString(name)
	b.WriteByte('>')
}

func empty(b *strings.Builder, name string) {
	b.WriteByte('<')
	b.WriteString(name)
	b.WriteString(" />")
}

// EncodeName turns an arbitrary JSON key into a valid XML element name.
// Characters that may not appear at their position are written as _xHHHH_
// (eight hex digits outside the BMP), and an underscore that would read as
// the start of such an escape is itself escaped. An empty key becomes "_".
func EncodeName(key string) string {
	if key == "" {
		return "_"
	}
	if isPlainName(key) {
		return key
	}

	runes := []rune(key)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case r == '_' && looksLikeEscape(runes[i:]):
			b.WriteString("_x005F_")
		case i == 0 && isNameStart(r), i > 0 && isNameChar(r):
			b.WriteRune(r)
		case r > 0xFFFF:
			fmt.Fprintf(&b, "_x%08X_", r)
		default:
			fmt.Fprintf(&b, "_x%04X_", r)
		}
	}
	return b.String()
}

// DecodeName reverses EncodeName for column names.
func DecodeName(name string) string {
	if !strings.Contains(name, "_x") {
		return name
	}
	runes := []rune(name)
	var b strings.Builder
	for i := 0; i < len(runes); {
		if r, width, ok := decodeEscape(runes[i:]); ok {
			b.WriteRune(r)
			i += width
			continue
		}
		b.WriteRune(runes[i])
		i++
	}
	return b.String()
}

func isPlainName(s string) bool {
	for i, r := range s {
		if r == '_' && strings.HasPrefix(s[i:], "_x") {
			return false
		}
		if i == 0 && !isNameStart(r) || i > 0 && !isNameChar(r) {
			return false
		}
	}
	return true
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return isNameStart(r) || unicode.IsDigit(r) || r == '-' || r == '.' || r == 0xB7 ||
		unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}

func looksLikeEscape(rs []rune) bool {
	_, _, ok := decodeEscape(rs)
	return ok
}

// decodeEscape matches _xHHHH_ or _xHHHHHHHH_ at the start of rs.
func decodeEscape(rs []rune) (rune, int, bool) {
	if len(rs) < 7 || rs[0] != '_' || rs[1] != 'x' {
		return 0, 0, false
	}
	for _, digits := range []int{4, 8} {
		end := 2 + digits
		if len(rs) <= end || rs[end] != '_' {
			continue
		}
		var v rune
		ok := true
		for _, c := range rs[2:end] {
			d := hexValue(c)
			if d < 0 {
				ok = false
				break
			}
			v = v<<4 | rune(d)
		}
		if ok {
			return v, end + 1, true
		}
	}
	return 0, 0, false
}

func hexValue(c rune) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	default:
		return -1
	}
}
