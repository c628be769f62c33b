package asm

import (
	"strings"
	"testing"

	"gokos/pkg/kernel"
)

// benchSource builds a program with n arithmetic lines plus a data section.
func benchSource(n int) string {
	var sb strings.Builder
	sb.WriteString("section .data\nmsg: db \"bench\", 0\ncounter: dd 0\n")
	sb.WriteString("section .text\nmain:\n")
	for i := 0; i < n; i++ {
		sb.WriteString("mov eax, [counter]\nadd eax, 1\nmov [counter], eax\n")
	}
	sb.WriteString("ret\n")
	return sb.String()
}

func BenchmarkAssembleSmall(b *testing.B) {
	src := benchSource(10)
	h := kernel.NewMockHost()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Assemble(h, kernel.JIT, src, "/"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAssembleLarge(b *testing.B) {
	src := benchSource(1000)
	h := kernel.NewMockHost()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Assemble(h, kernel.JIT, src, "/"); err != nil {
			b.Fatal(err)
		}
	}
}
