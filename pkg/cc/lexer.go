package cc

import (
	"fmt"
	"strings"
)

// maxLexeme bounds a single token's text.
const maxLexeme = 256

// Lexer turns preprocessed source into tokens. Newlines are plain
// whitespace; one token of lookahead is buffered for Peek.
type Lexer struct {
	src    string
	pos    int
	line   int
	peeked *Token
}

func newLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1}
}

// Peek returns the next token without consuming it.
func (l *Lexer) Peek() (Token, error) {
	if l.peeked == nil {
		tok, err := l.scan()
		if err != nil {
			return Token{}, err
		}
		l.peeked = &tok
	}
	return *l.peeked, nil
}

// Next consumes and returns the next token.
func (l *Lexer) Next() (Token, error) {
	if l.peeked != nil {
		tok := *l.peeked
		l.peeked = nil
		return tok, nil
	}
	return l.scan()
}

func (l *Lexer) at(i int) byte {
	if i >= len(l.src) {
		return 0
	}
	return l.src[i]
}

// skipBlanks eats whitespace and both comment forms.
func (l *Lexer) skipBlanks() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\n':
			l.line++
			l.pos++
		case c == ' ' || c == '\t' || c == '\r':
			l.pos++
		case c == '/' && l.at(l.pos+1) == '/':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == '/' && l.at(l.pos+1) == '*':
			start := l.line
			l.pos += 2
			for {
				if l.pos >= len(l.src) {
					return fmt.Errorf("unterminated comment starting on line %d", start)
				}
				if l.src[l.pos] == '\n' {
					l.line++
				}
				if l.src[l.pos] == '*' && l.at(l.pos+1) == '/' {
					l.pos += 2
					break
				}
				l.pos++
			}
		default:
			return nil
		}
	}
	return nil
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

var singleOps = map[byte]TokenType{
	'{': LBRACE, '}': RBRACE, '(': LPAREN, ')': RPAREN,
	'[': LBRACKET, ']': RBRACKET,
	'.': DOT, ';': SEMICOLON, ',': COMMA, ':': COLON, '?': QUESTION,
	'+': PLUS, '-': MINUS, '*': STAR, '/': SLASH, '%': PERCENT,
	'&': AMP, '|': PIPE, '^': CARET, '~': TILDE, '!': BANG,
	'<': LT, '>': GT, '=': ASSIGN,
}

func (l *Lexer) scan() (Token, error) {
	if err := l.skipBlanks(); err != nil {
		return Token{}, err
	}
	if l.pos >= len(l.src) {
		return Token{Type: EOF, Line: l.line}, nil
	}

	c := l.src[l.pos]
	line := l.line

	if isIdentStart(c) {
		start := l.pos
		for l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
			l.pos++
		}
		word := l.src[start:l.pos]
		if len(word) > maxLexeme {
			return Token{}, fmt.Errorf("identifier too long on line %d", line)
		}
		if kw, ok := keywords[word]; ok {
			return Token{Type: kw, Lexeme: word, Line: line}, nil
		}
		return Token{Type: IDENTIFIER, Lexeme: word, Line: line}, nil
	}

	if isDigit(c) {
		return l.scanNumber(line)
	}

	switch c {
	case '"':
		return l.scanString(line)
	case '\'':
		return l.scanChar(line)
	}

	// Multi-byte operators before single-byte ones.
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	three := ""
	if l.pos+2 < len(l.src) {
		three = l.src[l.pos : l.pos+3]
	}

	switch three {
	case "<<=":
		return l.op(SHL_ASSIGN, three, line), nil
	case ">>=":
		return l.op(SHR_ASSIGN, three, line), nil
	}

	switch two {
	case "->":
		return l.op(ARROW, two, line), nil
	case "++":
		return l.op(INC, two, line), nil
	case "--":
		return l.op(DEC, two, line), nil
	case "<<":
		return l.op(SHL, two, line), nil
	case ">>":
		return l.op(SHR, two, line), nil
	case "&&":
		return l.op(LAND, two, line), nil
	case "||":
		return l.op(LOR, two, line), nil
	case "==":
		return l.op(EQ, two, line), nil
	case "!=":
		return l.op(NE, two, line), nil
	case "<=":
		return l.op(LE, two, line), nil
	case ">=":
		return l.op(GE, two, line), nil
	case "+=":
		return l.op(ADD_ASSIGN, two, line), nil
	case "-=":
		return l.op(SUB_ASSIGN, two, line), nil
	case "*=":
		return l.op(MUL_ASSIGN, two, line), nil
	case "/=":
		return l.op(DIV_ASSIGN, two, line), nil
	case "&=":
		return l.op(AND_ASSIGN, two, line), nil
	case "|=":
		return l.op(OR_ASSIGN, two, line), nil
	case "^=":
		return l.op(XOR_ASSIGN, two, line), nil
	}

	if tt, ok := singleOps[c]; ok {
		return l.op(tt, string(c), line), nil
	}
	return Token{}, fmt.Errorf("unexpected character %q on line %d", c, line)
}

func (l *Lexer) op(tt TokenType, lexeme string, line int) Token {
	l.pos += len(lexeme)
	return Token{Type: tt, Lexeme: lexeme, Line: line}
}

func (l *Lexer) scanNumber(line int) (Token, error) {
	start := l.pos
	base := 10
	if l.src[l.pos] == '0' && (l.at(l.pos+1) == 'x' || l.at(l.pos+1) == 'X') {
		base = 16
		l.pos += 2
	} else if l.src[l.pos] == '0' && (l.at(l.pos+1) == 'b' || l.at(l.pos+1) == 'B') {
		base = 2
		l.pos += 2
	}

	var v int64
	digits := 0
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		var d int64
		switch {
		case c >= '0' && c <= '9':
			d = int64(c - '0')
		case c >= 'a' && c <= 'f':
			d = int64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			d = int64(c-'A') + 10
		default:
			d = -1
		}
		if d < 0 || d >= int64(base) {
			break
		}
		v = v*int64(base) + d
		digits++
		l.pos++
	}
	if digits == 0 {
		return Token{}, fmt.Errorf("malformed number on line %d", line)
	}
	if l.pos < len(l.src) && isIdentPart(l.src[l.pos]) {
		return Token{}, fmt.Errorf("malformed number on line %d", line)
	}
	lexeme := l.src[start:l.pos]
	if len(lexeme) > maxLexeme {
		return Token{}, fmt.Errorf("number too long on line %d", line)
	}
	return Token{Type: NUMBER, Lexeme: lexeme, Line: line, Value: v}, nil
}

func (l *Lexer) scanEscape(line int) (byte, error) {
	l.pos++ // backslash
	if l.pos >= len(l.src) {
		return 0, fmt.Errorf("unterminated escape on line %d", line)
	}
	c := l.src[l.pos]
	l.pos++
	switch c {
	case 'n':
		return '\n', nil
	case 'r':
		return '\r', nil
	case 't':
		return '\t', nil
	case '0':
		return 0, nil
	case '\\', '"', '\'':
		return c, nil
	}
	return 0, fmt.Errorf("unknown escape '\\%c' on line %d", c, line)
}

func (l *Lexer) scanString(line int) (Token, error) {
	l.pos++ // opening quote
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) || l.src[l.pos] == '\n' {
			return Token{}, fmt.Errorf("unterminated string on line %d", line)
		}
		c := l.src[l.pos]
		if c == '"' {
			l.pos++
			break
		}
		if c == '\\' {
			b, err := l.scanEscape(line)
			if err != nil {
				return Token{}, err
			}
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
	if sb.Len() > maxLexeme {
		return Token{}, fmt.Errorf("string literal too long on line %d", line)
	}
	return Token{Type: STRING, Lexeme: sb.String(), Line: line}, nil
}

func (l *Lexer) scanChar(line int) (Token, error) {
	l.pos++ // opening quote
	if l.pos >= len(l.src) {
		return Token{}, fmt.Errorf("unterminated character literal on line %d", line)
	}
	var b byte
	if l.src[l.pos] == '\\' {
		v, err := l.scanEscape(line)
		if err != nil {
			return Token{}, err
		}
		b = v
	} else {
		b = l.src[l.pos]
		l.pos++
	}
	if l.pos >= len(l.src) || l.src[l.pos] != '\'' {
		return Token{}, fmt.Errorf("unterminated character literal on line %d", line)
	}
	l.pos++
	return Token{Type: CHAR, Lexeme: string(b), Line: line, Value: int64(b)}, nil
}
