package cc

import "fmt"

// TokenType identifies the category of a lexed token.
type TokenType int

const (
	EOF TokenType = iota // sentinel: end of input

	// Literals
	IDENTIFIER // variable / function name
	NUMBER     // integer literal (decimal, 0x, 0b)
	STRING     // string literal "..."
	CHAR       // character literal 'a'

	// Keywords
	INT      // "int"
	CHAR_KW  // "char"
	VOID     // "void"
	BOOL     // "bool" (alias of int)
	IF       // "if"
	ELSE     // "else"
	WHILE    // "while"
	DO       // "do"
	FOR      // "for"
	RETURN   // "return"
	STRUCT   // "struct"
	ENUM     // "enum"
	TYPEDEF  // "typedef"
	SIZEOF   // "sizeof"
	SWITCH   // "switch"
	CASE     // "case"
	DEFAULT  // "default"
	BREAK    // "break"
	CONTINUE // "continue"
	ASM      // "asm"

	// Paired delimiters
	LBRACE   // {
	RBRACE   // }
	LPAREN   // (
	RPAREN   // )
	LBRACKET // [
	RBRACKET // ]

	// Punctuation
	DOT       // .
	ARROW     // ->
	SEMICOLON // ;
	COMMA     // ,
	COLON     // :
	QUESTION  // ?

	// Operators
	PLUS    // +
	MINUS   // -
	STAR    // *
	SLASH   // /
	PERCENT // %
	AMP     // & (bitwise and, or address-of)
	PIPE    // |
	CARET   // ^
	TILDE   // ~
	BANG    // !
	SHL     // <<
	SHR     // >>
	LAND    // &&
	LOR     // ||
	EQ      // ==
	NE      // !=
	LT      // <
	LE      // <=
	GT      // >
	GE      // >=
	INC     // ++
	DEC     // --

	// Assignment
	ASSIGN     // =
	ADD_ASSIGN // +=
	SUB_ASSIGN // -=
	MUL_ASSIGN // *=
	DIV_ASSIGN // /=
	AND_ASSIGN // &=
	OR_ASSIGN  // |=
	XOR_ASSIGN // ^=
	SHL_ASSIGN // <<=
	SHR_ASSIGN // >>=
)

var keywords = map[string]TokenType{
	"int":      INT,
	"char":     CHAR_KW,
	"void":     VOID,
	"bool":     BOOL,
	"if":       IF,
	"else":     ELSE,
	"while":    WHILE,
	"do":       DO,
	"for":      FOR,
	"return":   RETURN,
	"struct":   STRUCT,
	"enum":     ENUM,
	"typedef":  TYPEDEF,
	"sizeof":   SIZEOF,
	"switch":   SWITCH,
	"case":     CASE,
	"default":  DEFAULT,
	"break":    BREAK,
	"continue": CONTINUE,
	"asm":      ASM,
}

// Token is one lexed unit. Value carries the numeric payload for NUMBER
// and CHAR tokens.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
	Value  int64
}

func (t Token) String() string {
	return fmt.Sprintf("%q (line %d)", t.Lexeme, t.Line)
}
