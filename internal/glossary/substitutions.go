package glossary

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// termParser handles "spoken form => written form" lines.
type termParser struct{}

func (termParser) Matches(line string) bool {
	return strings.Contains(line, "=>")
}

func (termParser) Compile(line string) (substitution, error) {
	spoken, written, ok := strings.Cut(line, "=>")
	if !ok {
		return nil, errors.New("term must use =>")
	}
	return newTermSubstitution(spoken, written)
}

// termSubstitution replaces whole-word, case-insensitive occurrences of a
// spoken form. Word boundaries keep "sage" from rewriting "sausage".
type termSubstitution struct {
	re      *regexp.Regexp
	written string
}

func newTermSubstitution(spoken, written string) (substitution, error) {
	spoken = strings.TrimSpace(spoken)
	written = strings.TrimSpace(written)
	if spoken == "" {
		return nil, errors.New("term cannot be empty")
	}
	words := strings.Fields(spoken)
	for i, word := range words {
		words[i] = regexp.QuoteMeta(word)
	}
	pattern := `(?i)(^|[^\pL\pN])` + strings.Join(words, `\s+`) + `($|[^\pL\pN])`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile term: %w", err)
	}
	return termSubstitution{re: re, written: written}, nil
}

func (s termSubstitution) rewrite(text string) (string, bool) {
	replacement := "${1}" + strings.ReplaceAll(s.written, "$", "$$") + "${2}"
	out := s.re.ReplaceAllString(text, replacement)
	return out, out != text
}

// patternParser handles sed-style "s/pattern/replacement/flags" lines.
type patternParser struct{}

func (patternParser) Matches(line string) bool {
	return len(line) > 2 && line[0] == 's' && isDelimiter(line[1])
}

func (patternParser) Compile(line string) (substitution, error) {
	return compilePattern(line)
}

type patternSubstitution struct {
	re          *regexp.Regexp
	replacement string
	all         bool
}

// compilePattern parses s<d>pattern<d>replacement<d>flags. Matching is case
// insensitive unless the c flag is given; g replaces every match.
func compilePattern(expr string) (substitution, error) {
	expr = strings.TrimSpace(expr)
	if len(expr) < 3 || expr[0] != 's' || !isDelimiter(expr[1]) {
		return nil, errors.New("pattern must look like s/pattern/replacement/")
	}
	delim := expr[1]

	pattern, rest, err := splitField(expr[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	replacement, rest, err := splitField(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("replacement: %w", err)
	}

	all := false
	inline := "i"
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'g':
			all = true
		case 'i':
		case 'c':
			inline = strings.ReplaceAll(inline, "i", "")
		case 'm', 's':
			inline += string(flag)
		default:
			return nil, fmt.Errorf("unknown flag %q", flag)
		}
	}
	if inline != "" {
		pattern = "(?" + inline + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	return patternSubstitution{re: re, replacement: replacement, all: all}, nil
}

func (s patternSubstitution) rewrite(text string) (string, bool) {
	if s.all {
		out := s.re.ReplaceAllString(text, s.replacement)
		return out, out != text
	}
	loc := s.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return text, false
	}
	expanded := s.re.ExpandString(nil, s.replacement, text, loc)
	out := text[:loc[0]] + string(expanded) + text[loc[1]:]
	return out, out != text
}

// splitField reads up to an unescaped delimiter. An escaped delimiter is
// unescaped; other escapes pass through for the regexp engine.
func splitField(s string, delim byte) (field string, rest string, err error) {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			if s[i+1] != delim {
				b.WriteByte(c)
			}
			b.WriteByte(s[i+1])
			i++
		case c == delim:
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(c)
		}
	}
	return "", "", errors.New("missing closing delimiter")
}

func isDelimiter(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return false
	case c == ' ', c == '\t', c == '\\':
		return false
	default:
		return true
	}
}
