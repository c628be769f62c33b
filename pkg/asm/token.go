package asm

import (
	"fmt"

	"gokos/pkg/x86"
)

// TokenType identifies the category of a lexed assembler token.
type TokenType int

const (
	EOF     TokenType = iota
	NEWLINE           // instructions are line-delimited

	IDENTIFIER // mnemonic, directive, label reference, equ name
	LABEL_DEF  // identifier immediately followed by ':'
	NUMBER     // decimal, 0x hex, 0b binary, or character literal
	STRING     // "..." (db only)
	REGISTER   // eax, bx, cl, ...

	LBRACKET // [
	RBRACKET // ]
	COMMA    // ,
	PLUS     // +
	MINUS    // -
)

var tokenNames = [...]string{
	EOF:        "EOF",
	NEWLINE:    "NEWLINE",
	IDENTIFIER: "IDENTIFIER",
	LABEL_DEF:  "LABEL_DEF",
	NUMBER:     "NUMBER",
	STRING:     "STRING",
	REGISTER:   "REGISTER",
	LBRACKET:   "LBRACKET",
	RBRACKET:   "RBRACKET",
	COMMA:      "COMMA",
	PLUS:       "PLUS",
	MINUS:      "MINUS",
}

func (tt TokenType) String() string {
	if int(tt) >= 0 && int(tt) < len(tokenNames) {
		return tokenNames[tt]
	}
	return fmt.Sprintf("TokenType(%d)", int(tt))
}

// Token is a single lexical unit. Value is set for NUMBER tokens, Reg for
// REGISTER tokens.
type Token struct {
	Type   TokenType
	Lexeme string
	Line   int
	Value  int64
	Reg    x86.Reg
}

func (t Token) String() string {
	return fmt.Sprintf("%-10s %-14q  line %d", t.Type, t.Lexeme, t.Line)
}
