package security

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// encodePasswordLatin1 maps a password to the single-byte encoding used by
// revisions 2 to 4. Unmappable runes are dropped.
func encodePasswordLatin1(pw string) []byte {
	out := make([]byte, 0, len(pw))
	for _, r := range pw {
		if c, ok := charmap.ISO8859_1.EncodeRune(r); ok {
			out = append(out, c)
		}
	}
	if len(out) > 32 {
		out = out[:32]
	}
	return out
}

// encodePasswordUTF8 normalises a revision 5/6 password and truncates it to
// 127 bytes on a rune boundary.
func encodePasswordUTF8(pw string) []byte {
	out := []byte(norm.NFKC.String(pw))
	if len(out) > 127 {
		out = out[:127]
		for len(out) > 0 && !utf8.Valid(out) {
			out = out[:len(out)-1]
		}
	}
	return out
}
