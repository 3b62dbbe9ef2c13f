package outbound

import "strings"

// DefaultEscapeChars are the characters escaped for Telegram MarkdownV2 by default.
// Formatting characters such as '*' and '_' are left alone so the model can emphasise text.
var DefaultEscapeChars = []rune{'!', '.', '-', '(', ')', '{', '}'}

// Escaper prefixes a configured set of characters with a backslash.
type Escaper struct {
	set map[rune]struct{}
}

// NewEscaper builds an escaper for chars.
func NewEscaper(chars []rune) *Escaper {
	set := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		set[r] = struct{}{}
	}
	return &Escaper{set: set}
}

// Escape returns s with a backslash inserted before every configured character.
func (e *Escaper) Escape(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		e.writeRune(&sb, r)
	}
	return sb.String()
}

// Unescape removes one backslash before each configured character.
func (e *Escaper) Unescape(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' && i+1 < len(runes) && e.escapes(runes[i+1]) {
			i++
		}
		sb.WriteRune(runes[i])
	}
	return sb.String()
}

func (e *Escaper) escapes(r rune) bool {
	if e == nil {
		return false
	}
	_, ok := e.set[r]
	return ok
}

func (e *Escaper) cost(r rune) int {
	if e.escapes(r) {
		return 1 + units(r)
	}
	return units(r)
}

func (e *Escaper) writeRune(sb *strings.Builder, r rune) {
	if e.escapes(r) {
		sb.WriteByte('\\')
	}
	sb.WriteRune(r)
}
