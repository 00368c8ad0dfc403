package views

import (
	"strings"
	"unicode"
)

// droppedRunes are ranges tcell renders with the wrong width: skin tone
// modifiers, the zero width joiner and both variation selector blocks.
var droppedRunes = [][2]rune{
	{0x1F3FB, 0x1F3FF},
	{0x200D, 0x200D},
	{0xFE00, 0xFE0F},
	{0xE0100, 0xE01EF},
}

// sanitizeForTerminal strips width-breaking codepoints and control
// characters other than newline and tab from text received from the backend.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		for _, rg := range droppedRunes {
			if r >= rg[0] && r <= rg[1] {
				return -1
			}
		}
		return r
	}, s)
}
