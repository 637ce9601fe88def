package models

import "strings"

// Expand builds the shell line for one firing of h. Template tokens are
// joined by single spaces and every placeholder is replaced in (Token,
// Offset) order: $$ by "$", $@ by path, $# by name, $% by the names of the
// bits in cross and $& by cross in decimal.
func (h *Hook) Expand(path, name string, cross uint32) string {
	var b strings.Builder

	k := 0
	for j, tok := range h.Command {
		if j > 0 {
			b.WriteByte(' ')
		}

		last := 0
		for ; k < len(h.Placeholders) && h.Placeholders[k].Token == j; k++ {
			ph := h.Placeholders[k]

			b.WriteString(tok[last:ph.Offset])

			switch ph.Kind {
			case PlaceholderDollar:
				b.WriteByte('$')
			case PlaceholderPath:
				b.WriteString(path)
			case PlaceholderFilename:
				b.WriteString(name)
			case PlaceholderEventText:
				b.WriteString(MaskText(cross))
			case PlaceholderEventNum:
				b.WriteString(MaskNumber(cross))
			}

			last = ph.Offset + 2
		}

		b.WriteString(tok[last:])
	}

	return b.String()
}

// ScanPlaceholders records every $x sequence of a known kind in command.
// Unknown sequences are left alone, and "$$" consumes both characters so
// "$$@" is a literal dollar followed by '@'.
func ScanPlaceholders(command []string) []Placeholder {
	var out []Placeholder

	for j, tok := range command {
		for i := 0; i+1 < len(tok); i++ {
			if tok[i] != '$' {
				continue
			}

			kind, ok := PlaceholderKindFor(tok[i+1])
			if !ok {
				continue
			}

			out = append(out, Placeholder{Token: j, Offset: i, Kind: kind})
			i++
		}
	}

	return out
}
