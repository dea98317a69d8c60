package keyschema

import "strings"

// Escape makes s safe to embed in a single key segment. A '/' becomes '+';
// literal '%' and '+' are percent-encoded first so Unescape can reverse it.
func Escape(s string) string {
	if !strings.ContainsAny(s, "/+%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '%':
			b.WriteString("%25")
		case '+':
			b.WriteString("%2B")
		case '/':
			b.WriteByte('+')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Unescape reverses Escape in a single pass. A '%' that doesn't start a
// known escape is kept as is.
func Unescape(s string) string {
	if !strings.ContainsAny(s, "+%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '+':
			b.WriteByte('/')
		case c == '%' && strings.HasPrefix(s[i:], "%25"):
			b.WriteByte('%')
			i += 2
		case c == '%' && strings.HasPrefix(s[i:], "%2B"):
			b.WriteByte('+')
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
