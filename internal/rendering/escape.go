// Package rendering turns a structured resume into typeset LaTeX source.
package rendering

import (
	"strings"
	"unicode"
)

// latexSpecials maps every character LaTeX treats as markup to its literal form.
// Brackets are braced so text after \\ or \item is never read as an optional argument.
var latexSpecials = map[rune]string{
	'\\': `\textbackslash{}`,
	'{':  `\{`,
	'}':  `\}`,
	'$':  `\$`,
	'&':  `\&`,
	'%':  `\%`,
	'#':  `\#`,
	'^':  `\textasciicircum{}`,
	'_':  `\_`,
	'~':  `\textasciitilde{}`,
	'[':  `{[}`,
	']':  `{]}`,
}

// EscapeLaTeX makes provider or user text safe to place in a LaTeX body.
// Line breaks and tabs become spaces; other control characters are dropped.
func EscapeLaTeX(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if lit, ok := latexSpecials[r]; ok {
			b.WriteString(lit)
			continue
		}
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
