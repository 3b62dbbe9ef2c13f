// Package outbound prepares text for messaging transports: length-bounded
// chunking, markup escaping and dispatch.
package outbound

import (
	"iter"
	"strings"
	"unicode/utf16"
)

// DefaultMaxLength is Telegram's per-message limit in UTF-16 code units.
const DefaultMaxLength = 4096

// Length returns the size of s in UTF-16 code units, the unit Telegram
// measures message length in.
func Length(s string) int {
	n := 0
	for _, r := range s {
		n += units(r)
	}
	return n
}

func units(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// Chunk splits text into consecutive pieces of at most max UTF-16 code units.
// Concatenating the pieces yields text; empty text yields nothing.
// The split is purely positional and may fall inside a word, but never inside
// a rune. A rune wider than max forms a piece of its own.
func Chunk(text string, max int) iter.Seq[string] {
	if max <= 0 {
		max = DefaultMaxLength
	}
	return func(yield func(string) bool) {
		start, size := 0, 0
		for i, r := range text {
			cost := units(r)
			if size > 0 && size+cost > max {
				if !yield(text[start:i]) {
					return
				}
				start, size = i, 0
			}
			size += cost
		}
		if size > 0 {
			yield(text[start:])
		}
	}
}

// ChunkEscaped splits text so that every piece, once escaped, is at most max
// UTF-16 code units long and no escape sequence is split across pieces.
// Pieces are returned already escaped.
func ChunkEscaped(text string, max int, esc *Escaper) iter.Seq[string] {
	if max <= 0 {
		max = DefaultMaxLength
	}
	return func(yield func(string) bool) {
		var sb strings.Builder
		size := 0
		for _, r := range text {
			cost := esc.cost(r)
			if size > 0 && size+cost > max {
				if !yield(sb.String()) {
					return
				}
				sb.Reset()
				size = 0
			}
			esc.writeRune(&sb, r)
			size += cost
		}
		if size > 0 {
			yield(sb.String())
		}
	}
}
