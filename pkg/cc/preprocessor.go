package cc

import (
	"fmt"
	"path"
	"strings"

	"gokos/pkg/kernel"
	"gokos/pkg/obj"
)

const (
	maxMacros       = 256
	maxIncludeDepth = 8
	maxCondDepth    = 32
	maxExpandDepth  = 16
)

// preprocessor expands source into a fresh buffer the lexer reads. It is
// line-oriented: a directive occupies one line, except #exe which swallows
// its whole braced body.
type preprocessor struct {
	host kernel.Host
	mode kernel.Mode

	macros map[string]string
	out    strings.Builder

	conds     []cond
	exeCount  int
	exeWarned bool
}

type cond struct {
	active       bool
	parentActive bool
	seenElse     bool
}

// preprocess runs the directive pass and returns the expanded source.
// baseDir anchors relative #include paths.
func preprocess(host kernel.Host, mode kernel.Mode, src, baseDir string) (string, error) {
	p := &preprocessor{host: host, mode: mode, macros: make(map[string]string)}
	if err := p.file(src, baseDir, 0); err != nil {
		return "", err
	}
	if len(p.conds) != 0 {
		return "", fmt.Errorf("unterminated #ifdef at end of file")
	}
	return p.out.String(), nil
}

// allActive reports whether every enclosing conditional branch is taken.
func (p *preprocessor) allActive() bool {
	for _, c := range p.conds {
		if !c.active || !c.parentActive {
			return false
		}
	}
	return true
}

func (p *preprocessor) file(src, dir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("#include nesting too deep (max %d)", maxIncludeDepth)
	}
	lines := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimLeft(line, " \t")
		if !strings.HasPrefix(trimmed, "#") {
			if p.allActive() {
				expanded, err := p.expand(line, 0, i+1)
				if err != nil {
					return err
				}
				p.out.WriteString(expanded)
			}
			p.out.WriteByte('\n')
			continue
		}

		next, err := p.directive(trimmed, lines, i, dir, depth)
		if err != nil {
			return err
		}
		i = next
	}
	return nil
}

// directive handles one #-line starting at lines[i] and returns the index
// of the last line it consumed.
func (p *preprocessor) directive(trimmed string, lines []string, i int, dir string, depth int) (int, error) {
	word, rest := splitWord(trimmed[1:])
	lineNo := i + 1

	switch word {
	case "define":
		if p.allActive() {
			name, body := splitWord(rest)
			if name == "" || !isIdentStart(name[0]) {
				return i, fmt.Errorf("#define needs a name on line %d", lineNo)
			}
			if len(name) > maxSymName {
				return i, fmt.Errorf("macro name too long on line %d", lineNo)
			}
			if _, exists := p.macros[name]; !exists && len(p.macros) >= maxMacros {
				return i, fmt.Errorf("too many macros on line %d (max %d)", lineNo, maxMacros)
			}
			// Rebinding an existing name is allowed.
			p.macros[name] = strings.TrimSpace(body)
		}
		p.out.WriteByte('\n')
		return i, nil

	case "include":
		if !p.allActive() {
			p.out.WriteByte('\n')
			return i, nil
		}
		target := strings.TrimSpace(rest)
		if len(target) < 2 || target[0] != '"' || target[len(target)-1] != '"' {
			return i, fmt.Errorf("#include needs a quoted path on line %d", lineNo)
		}
		name := target[1 : len(target)-1]
		full := name
		if !strings.HasPrefix(name, "/") {
			full = path.Join(dir, name)
		}
		content, err := p.host.ReadFile(full)
		if err != nil {
			return i, fmt.Errorf("cannot include %q on line %d: %v", name, lineNo, err)
		}
		if len(content) > obj.SourceCap {
			return i, fmt.Errorf("included file %q too large on line %d", name, lineNo)
		}
		if err := p.file(string(content), path.Dir(full), depth+1); err != nil {
			return i, err
		}
		return i, nil

	case "ifdef", "ifndef":
		if len(p.conds) >= maxCondDepth {
			return i, fmt.Errorf("#ifdef nesting too deep on line %d (max %d)", lineNo, maxCondDepth)
		}
		name, _ := splitWord(rest)
		_, bound := p.macros[name]
		active := bound
		if word == "ifndef" {
			active = !bound
		}
		p.conds = append(p.conds, cond{active: active, parentActive: p.allActive()})
		p.out.WriteByte('\n')
		return i, nil

	case "else":
		if len(p.conds) == 0 {
			return i, fmt.Errorf("#else without #ifdef on line %d", lineNo)
		}
		top := &p.conds[len(p.conds)-1]
		if top.seenElse {
			return i, fmt.Errorf("duplicate #else on line %d", lineNo)
		}
		top.seenElse = true
		top.active = !top.active
		p.out.WriteByte('\n')
		return i, nil

	case "endif":
		if len(p.conds) == 0 {
			return i, fmt.Errorf("#endif without #ifdef on line %d", lineNo)
		}
		p.conds = p.conds[:len(p.conds)-1]
		p.out.WriteByte('\n')
		return i, nil

	case "exe":
		return p.exeBlock(lines, i, rest)
	}

	return i, fmt.Errorf("unknown directive #%s on line %d", word, lineNo)
}

// exeBlock captures the braced body after #exe. In JIT mode the body is
// rewritten into a synthesised nullary function placed in the normal code
// stream; in AOT mode it is dropped with one diagnostic for the whole
// compile.
func (p *preprocessor) exeBlock(lines []string, i int, rest string) (int, error) {
	lineNo := i + 1
	var body strings.Builder
	bodyDepth := 0
	started := false
	consumed := 0

	text := rest
	for {
		j := 0
		for j < len(text) {
			c := text[j]
			switch c {
			case '{':
				bodyDepth++
				if !started {
					started = true
					j++
					continue
				}
			case '}':
				bodyDepth--
				if started && bodyDepth == 0 {
					goto done
				}
			case '"', '\'':
				end := skipQuoted(text, j)
				if started {
					body.WriteString(text[j:end])
				}
				j = end
				continue
			case '/':
				if j+1 < len(text) && text[j+1] == '/' {
					if started {
						body.WriteString(text[j:])
					}
					j = len(text)
					continue
				}
			}
			if started {
				body.WriteByte(c)
			}
			j++
		}
		consumed++
		if i+consumed >= len(lines) {
			return i, fmt.Errorf("unterminated #exe block starting on line %d", lineNo)
		}
		if started {
			body.WriteByte('\n')
		}
		text = lines[i+consumed]
	}

done:
	if !p.allActive() {
		for k := 0; k <= consumed; k++ {
			p.out.WriteByte('\n')
		}
		return i + consumed, nil
	}
	if p.mode == kernel.AOT {
		if !p.exeWarned {
			p.host.Print("warning: #exe blocks are ignored in AOT mode\n")
			p.exeWarned = true
		}
		for k := 0; k <= consumed; k++ {
			p.out.WriteByte('\n')
		}
		return i + consumed, nil
	}

	expanded, err := p.expand(body.String(), 0, lineNo)
	if err != nil {
		return i, err
	}
	fmt.Fprintf(&p.out, "void __cc_exe_%d() {%s}\n", p.exeCount, expanded)
	p.exeCount++
	for k := 0; k < consumed; k++ {
		p.out.WriteByte('\n')
	}
	return i + consumed, nil
}

// expand replaces bound macro names in one line. Strings, character
// literals, and line comments are copied verbatim.
func (p *preprocessor) expand(line string, depth, lineNo int) (string, error) {
	if depth > maxExpandDepth {
		return "", fmt.Errorf("macro expansion too deep on line %d", lineNo)
	}
	var sb strings.Builder
	i := 0
	for i < len(line) {
		c := line[i]
		switch {
		case c == '"' || c == '\'':
			end := skipQuoted(line, i)
			sb.WriteString(line[i:end])
			i = end
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			sb.WriteString(line[i:])
			i = len(line)
		case isIdentStart(c):
			start := i
			for i < len(line) && isIdentPart(line[i]) {
				i++
			}
			word := line[start:i]
			if repl, ok := p.macros[word]; ok {
				nested, err := p.expand(repl, depth+1, lineNo)
				if err != nil {
					return "", err
				}
				sb.WriteString(nested)
			} else {
				sb.WriteString(word)
			}
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), nil
}

// skipQuoted returns the index just past a string or character literal
// starting at i, honouring backslash escapes. An unterminated literal runs
// to end of line; the lexer reports it properly later.
func skipQuoted(s string, i int) int {
	quote := s[i]
	i++
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] == quote {
			return i + 1
		}
		i++
	}
	return i
}

func splitWord(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	end := 0
	for end < len(s) && (isIdentPart(s[end])) {
		end++
	}
	return s[:end], s[end:]
}
