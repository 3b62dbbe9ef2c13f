package outbound

import (
	"context"
	"fmt"
	"iter"
)

// Transport delivers one already-prepared message to a chat.
type Transport interface {
	SendMessage(ctx context.Context, chatID, text string, markup bool) error
}

// Dispatcher chunks, escapes and sends text through a Transport.
type Dispatcher struct {
	transport Transport
	escaper   *Escaper
	maxLength int
	markup    bool
}

// MinMaxLength is the smallest usable segment size: an escaped character
// outside the Basic Multilingual Plane takes three UTF-16 code units.
const MinMaxLength = 3

// Options tune how a Dispatcher prepares text.
type Options struct {
	MaxLength   int
	EscapeChars []rune
	// Markup enables escaping and asks the transport to render markup.
	Markup bool
}

// NewDispatcher returns a Dispatcher in front of transport.
func NewDispatcher(transport Transport, opts Options) *Dispatcher {
	switch {
	case opts.MaxLength <= 0:
		opts.MaxLength = DefaultMaxLength
	case opts.MaxLength < MinMaxLength:
		opts.MaxLength = MinMaxLength
	}
	if opts.EscapeChars == nil {
		opts.EscapeChars = DefaultEscapeChars
	}
	return &Dispatcher{
		transport: transport,
		escaper:   NewEscaper(opts.EscapeChars),
		maxLength: opts.MaxLength,
		markup:    opts.Markup,
	}
}

// Segments returns the transport-ready pieces of text.
func (d *Dispatcher) Segments(text string) iter.Seq[string] {
	if d.markup {
		return ChunkEscaped(text, d.maxLength, d.escaper)
	}
	return Chunk(text, d.maxLength)
}

// Send delivers text to chatID, stopping at the first failed segment.
func (d *Dispatcher) Send(ctx context.Context, chatID, text string) error {
	index := 0
	for segment := range d.Segments(text) {
		if err := d.transport.SendMessage(ctx, chatID, segment, d.markup); err != nil {
			return fmt.Errorf("send segment %d: %w", index, err)
		}
		index++
	}
	return nil
}

// SendPlain delivers text without escaping or markup.
func (d *Dispatcher) SendPlain(ctx context.Context, chatID, text string) error {
	index := 0
	for segment := range Chunk(text, d.maxLength) {
		if err := d.transport.SendMessage(ctx, chatID, segment, false); err != nil {
			return fmt.Errorf("send segment %d: %w", index, err)
		}
		index++
	}
	return nil
}
