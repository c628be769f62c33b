package asm

import (
	"fmt"
	"strings"
	"unicode"

	"gokos/pkg/x86"
)

// maxLexeme bounds a single token's text.
const maxLexeme = 256

// Lexer scans one assembly source unit. Newlines are significant, ';' starts
// a comment that runs to end of line. One token of lookahead is buffered so
// the parser can peek; %include saves and restores whole Lexer values.
type Lexer struct {
	src  []rune
	pos  int
	line int

	peeked   bool
	buffered Token
}

func newLexer(src string) *Lexer {
	return &Lexer{src: []rune(src), line: 1}
}

func (l *Lexer) peekRune() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekRune2() rune {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.pos >= len(l.src) {
		return 0
	}
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
	}
	return r
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() (Token, error) {
	if !l.peeked {
		tok, err := l.scan()
		if err != nil {
			return tok, err
		}
		l.buffered = tok
		l.peeked = true
	}
	return l.buffered, nil
}

// Next consumes and returns the next token.
func (l *Lexer) Next() (Token, error) {
	if l.peeked {
		l.peeked = false
		return l.buffered, nil
	}
	return l.scan()
}

// skipBlanks discards spaces, tabs, carriage returns and ';' comments, but
// never a newline.
func (l *Lexer) skipBlanks() {
	for l.pos < len(l.src) {
		r := l.peekRune()
		if r == ' ' || r == '\t' || r == '\r' {
			l.advance()
			continue
		}
		if r == ';' {
			for l.pos < len(l.src) && l.peekRune() != '\n' {
				l.advance()
			}
			continue
		}
		break
	}
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_' || r == '.' || r == '%'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

func (l *Lexer) scan() (Token, error) {
	l.skipBlanks()
	line := l.line

	if l.pos >= len(l.src) {
		return Token{Type: EOF, Line: line}, nil
	}

	r := l.peekRune()
	switch {
	case r == '\n':
		l.advance()
		return Token{Type: NEWLINE, Lexeme: "\n", Line: line}, nil
	case isIdentStart(r):
		return l.scanIdent()
	case unicode.IsDigit(r):
		return l.scanNumber()
	case r == '"':
		return l.scanString()
	case r == '\'':
		return l.scanChar()
	}

	l.advance()
	switch r {
	case '[':
		return Token{Type: LBRACKET, Lexeme: "[", Line: line}, nil
	case ']':
		return Token{Type: RBRACKET, Lexeme: "]", Line: line}, nil
	case ',':
		return Token{Type: COMMA, Lexeme: ",", Line: line}, nil
	case '+':
		return Token{Type: PLUS, Lexeme: "+", Line: line}, nil
	case '-':
		return Token{Type: MINUS, Lexeme: "-", Line: line}, nil
	}
	return Token{}, fmt.Errorf("unexpected character %q on line %d", r, line)
}

// scanIdent collects an identifier, register, label definition, or directive
// name. An identifier immediately followed by ':' becomes one LABEL_DEF
// token, merging the two lookaheads.
func (l *Lexer) scanIdent() (Token, error) {
	line := l.line
	start := l.pos
	l.advance() // first rune (may be '%' for %include)
	for l.pos < len(l.src) && isIdentPart(l.peekRune()) {
		l.advance()
	}
	lexeme := string(l.src[start:l.pos])
	if len(lexeme) > maxLexeme {
		return Token{}, fmt.Errorf("token too long on line %d", line)
	}

	if reg, ok := x86.LookupReg(lexeme); ok {
		return Token{Type: REGISTER, Lexeme: strings.ToLower(lexeme), Line: line, Reg: reg}, nil
	}

	if l.peekRune() == ':' {
		l.advance()
		return Token{Type: LABEL_DEF, Lexeme: lexeme, Line: line}, nil
	}

	return Token{Type: IDENTIFIER, Lexeme: lexeme, Line: line}, nil
}

// scanNumber accepts decimal, 0x hex and 0b binary literals.
func (l *Lexer) scanNumber() (Token, error) {
	line := l.line
	start := l.pos

	base := 10
	if l.peekRune() == '0' && (l.peekRune2() == 'x' || l.peekRune2() == 'X') {
		base = 16
		l.advance()
		l.advance()
	} else if l.peekRune() == '0' && (l.peekRune2() == 'b' || l.peekRune2() == 'B') {
		base = 2
		l.advance()
		l.advance()
	}

	digitStart := l.pos
	for l.pos < len(l.src) {
		r := l.peekRune()
		var ok bool
		switch base {
		case 16:
			ok = unicode.IsDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
		case 2:
			ok = r == '0' || r == '1'
		default:
			ok = unicode.IsDigit(r)
		}
		if !ok {
			break
		}
		l.advance()
	}
	if base != 10 && l.pos == digitStart {
		return Token{}, fmt.Errorf("malformed number on line %d", line)
	}

	digits := string(l.src[digitStart:l.pos])
	var value int64
	for _, d := range digits {
		var v int64
		switch {
		case d >= '0' && d <= '9':
			v = int64(d - '0')
		case d >= 'a' && d <= 'f':
			v = int64(d-'a') + 10
		case d >= 'A' && d <= 'F':
			v = int64(d-'A') + 10
		}
		value = value*int64(base) + v
	}

	return Token{Type: NUMBER, Lexeme: string(l.src[start:l.pos]), Line: line, Value: value}, nil
}

func (l *Lexer) scanEscape(line int) (rune, error) {
	l.advance() // backslash
	switch next := l.peekRune(); next {
	case 'n':
		l.advance()
		return '\n', nil
	case 'r':
		l.advance()
		return '\r', nil
	case 't':
		l.advance()
		return '\t', nil
	case '0':
		l.advance()
		return 0, nil
	case '\\':
		l.advance()
		return '\\', nil
	case '"':
		l.advance()
		return '"', nil
	case '\'':
		l.advance()
		return '\'', nil
	default:
		return 0, fmt.Errorf("unknown escape sequence \\%c on line %d", next, line)
	}
}

func (l *Lexer) scanString() (Token, error) {
	line := l.line
	l.advance() // opening quote
	var val []rune
	for {
		if l.pos >= len(l.src) || l.peekRune() == '\n' {
			return Token{}, fmt.Errorf("unterminated string literal on line %d", line)
		}
		r := l.peekRune()
		if r == '"' {
			l.advance()
			break
		}
		if r == '\\' {
			esc, err := l.scanEscape(line)
			if err != nil {
				return Token{}, err
			}
			val = append(val, esc)
			continue
		}
		val = append(val, r)
		l.advance()
	}
	if len(val) > maxLexeme {
		return Token{}, fmt.Errorf("string literal too long on line %d", line)
	}
	return Token{Type: STRING, Lexeme: string(val), Line: line}, nil
}

// scanChar yields a NUMBER token carrying the character's value.
func (l *Lexer) scanChar() (Token, error) {
	line := l.line
	l.advance() // opening quote
	if l.pos >= len(l.src) || l.peekRune() == '\'' {
		return Token{}, fmt.Errorf("empty character literal on line %d", line)
	}
	var val rune
	if l.peekRune() == '\\' {
		esc, err := l.scanEscape(line)
		if err != nil {
			return Token{}, err
		}
		val = esc
	} else {
		val = l.advance()
	}
	if l.peekRune() != '\'' {
		return Token{}, fmt.Errorf("unterminated character literal on line %d", line)
	}
	l.advance()
	return Token{Type: NUMBER, Lexeme: fmt.Sprintf("%d", val), Line: line, Value: int64(val)}, nil
}
