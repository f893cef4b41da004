package typedstream

import (
	"bytes"
	"strings"
)

// Legacy streamtyped archives keep the body text as the only UTF-8 string
// between these two byte patterns: the string type marker and the object
// terminator that precedes the attribute data.
var (
	legacyStart = []byte{0x01, 0x2B}
	legacyEnd   = []byte{0x86, 0x84}
)

// ExtractText recovers the bare message text from a legacy streamtyped
// archive, or from any archive the full decoder cannot handle. No attribute
// information survives this path.
func ExtractText(data []byte) (string, error) {
	start := bytes.Index(data, legacyStart)
	if start < 0 {
		return "", ErrNoStartPattern
	}
	body := data[start+len(legacyStart):]

	end := bytes.Index(body, legacyEnd)
	if end < 0 {
		return "", ErrNoEndPattern
	}
	body = body[:end]

	// The string begins with its length: one byte, or a 0x81/0x82 width tag
	// followed by two or four bytes.
	if len(body) == 0 {
		return "", ErrInvalidPrefix
	}
	prefix := 1
	switch body[0] {
	case tagInt16:
		prefix = 3
	case tagInt32:
		prefix = 5
	}
	if len(body) < prefix {
		return "", ErrInvalidPrefix
	}

	return strings.ToValidUTF8(string(body[prefix:]), "�"), nil
}
