package wat

import (
	"errors"
	"strings"

	"github.com/wasmcov/wasmcov/pkg/utils"
)

var (
	ErrParse = errors.New("component text parse error")
	ErrShape = errors.New("unexpected component shape")
)

// Token is a lexical atom of the component text with its byte offset in the
// original input. Offsets are what the whole instrumenter runs on, so the
// lexer never normalizes or copies text out of position.
type Token struct {
	Off  int
	Text string
}

// End returns the byte offset just past the token
func (t Token) End() int {
	return t.Off + len(t.Text)
}

// IsNum reports whether the token is a decimal index literal
func (t Token) IsNum() bool {
	if len(t.Text) == 0 {
		return false
	}
	for _, c := range t.Text {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Num returns the numeric value of a decimal index literal
func (t Token) Num() (uint64, bool) {
	if !t.IsNum() {
		return 0, false
	}
	var n uint64
	for _, c := range t.Text {
		n = n*10 + uint64(c-'0')
	}
	return n, true
}

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokAtom
	tokString
	tokComment // block comment, text includes the (; ;) delimiters
)

type lexToken struct {
	kind tokenKind
	off  int
	text string
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (lexToken, bool, error) {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c == ';' && l.pos+1 < len(l.input) && l.input[l.pos+1] == ';':
			nl := strings.IndexByte(l.input[l.pos:], '\n')
			if nl < 0 {
				l.pos = len(l.input)
			} else {
				l.pos += nl
			}
		case c == '(' && l.pos+1 < len(l.input) && l.input[l.pos+1] == ';':
			start := l.pos
			depth := 0
			i := l.pos
			for i < len(l.input) {
				if i+1 < len(l.input) && l.input[i] == '(' && l.input[i+1] == ';' {
					depth++
					i += 2
				} else if i+1 < len(l.input) && l.input[i] == ';' && l.input[i+1] == ')' {
					depth--
					i += 2
					if depth == 0 {
						break
					}
				} else {
					i++
				}
			}
			if depth != 0 {
				return lexToken{}, false, utils.MakeError(ErrParse, "unterminated block comment at offset %d", start)
			}
			l.pos = i
			return lexToken{kind: tokComment, off: start, text: l.input[start:i]}, true, nil
		case c == '(':
			l.pos++
			return lexToken{kind: tokLParen, off: l.pos - 1, text: "("}, true, nil
		case c == ')':
			l.pos++
			return lexToken{kind: tokRParen, off: l.pos - 1, text: ")"}, true, nil
		case c == '"':
			start := l.pos
			i := l.pos + 1
			for i < len(l.input) {
				if l.input[i] == '\\' {
					i += 2
					continue
				}
				if l.input[i] == '"' {
					i++
					break
				}
				i++
			}
			if i > len(l.input) {
				return lexToken{}, false, utils.MakeError(ErrParse, "unterminated string at offset %d", start)
			}
			l.pos = i
			return lexToken{kind: tokString, off: start, text: l.input[start:i]}, true, nil
		default:
			start := l.pos
			i := l.pos
			for i < len(l.input) {
				c := l.input[i]
				if c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '(' || c == ')' || c == '"' || c == ';' {
					break
				}
				i++
			}
			if i == start {
				// stray semicolon outside any comment
				l.pos++
				continue
			}
			l.pos = i
			return lexToken{kind: tokAtom, off: start, text: l.input[start:i]}, true, nil
		}
	}
	return lexToken{}, false, nil
}
