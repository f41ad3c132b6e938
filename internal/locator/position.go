package locator

import "unicode/utf8"

// Position is a zero-based line and character offset, characters counted in
// UTF-16 code units.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// PositionAt converts a byte offset of text to a Position. Offsets past the
// end clamp to the end of the text.
func PositionAt(text string, offset int) Position {
	if offset > len(text) {
		offset = len(text)
	}
	var p Position
	for i := 0; i < offset; {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		switch {
		case r == '\n':
			p.Line++
			p.Character = 0
		case r >= 0x10000:
			p.Character += 2
		default:
			p.Character++
		}
	}
	return p
}

// Positions converts r to start and end positions in text.
func (r Range) Positions(text string) (Position, Position) {
	return PositionAt(text, r.Start), PositionAt(text, r.End)
}
