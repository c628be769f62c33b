package cc

import (
	"fmt"
	"strings"
	"testing"

	"gokos/pkg/kernel"
)

func benchSource(funcs int) string {
	var sb strings.Builder
	for i := 0; i < funcs; i++ {
		fmt.Fprintf(&sb, "int f%d(int n) { int t; t = n * 3; if (t > 100) { t = t - 50; } return t + %d; }\n", i, i)
	}
	sb.WriteString("int main() { int acc; acc = 0;\n")
	for i := 0; i < funcs; i++ {
		fmt.Fprintf(&sb, "acc += f%d(acc);\n", i)
	}
	sb.WriteString("return acc; }\n")
	return sb.String()
}

func BenchmarkCompileSmall(b *testing.B) {
	src := `int main() { return 3*4 + 5; }`
	host := kernel.NewMockHost()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(host, kernel.JIT, src, "/"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompileLarge(b *testing.B) {
	src := benchSource(64)
	host := kernel.NewMockHost()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Compile(host, kernel.JIT, src, "/"); err != nil {
			b.Fatal(err)
		}
	}
}
