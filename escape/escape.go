// Package escape encodes an arbitrary path segment into a single filename
// component safe to use as a directory name under the claim index.
package escape

import "strings"

// Escape copies src into a buffer of capacity cap, replacing every '/' with
// the literal four-byte sequence `\x2f` and every '\' with `\x5c`. No other
// byte is transformed; the mapping is one-way and used only to name a
// directory, never to recover src.
//
// If the encoded form would not fit in cap-1 bytes (one held back for a
// terminator, matching the C buffer this is ported from), Escape returns the
// empty string: the caller treats that as a fatal-for-this-link condition.
func Escape(src string, cap int) string {
	var b strings.Builder
	b.Grow(len(src))

	for i := 0; i < len(src); i++ {
		switch src[i] {
		case '/':
			if b.Len()+4 >= cap {
				return ""
			}
			b.WriteString(`\x2f`)
		case '\\':
			if b.Len()+4 >= cap {
				return ""
			}
			b.WriteString(`\x5c`)
		default:
			if b.Len()+1 >= cap {
				return ""
			}
			b.WriteByte(src[i])
		}
	}

	return b.String()
}
