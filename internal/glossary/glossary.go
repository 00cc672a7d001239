// Package glossary rewrites transcript text for display using a user-edited
// substitution file. Speech recognizers mangle culinary vocabulary
// ("sow tay", "bar me john"); the glossary fixes it before it reaches the UI.
//
// Two file formats are accepted. Line files hold one substitution per line:
//
//	sow tay => sauté
//	s/\bcreme\s+fresh\b/crème fraîche/g
//
// Files ending in .yaml or .yml hold a terms map and an optional patterns list.
package glossary

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultIterationLimit = 30

// substitution rewrites one occurrence class and reports whether text changed.
type substitution interface {
	rewrite(text string) (string, bool)
}

// LineParser recognizes and compiles one line of a line-format file.
type LineParser interface {
	Matches(line string) bool
	Compile(line string) (substitution, error)
}

// ParseError locates a bad line in a glossary file.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Glossary applies substitutions repeatedly until the text stops changing.
type Glossary struct {
	subs           []substitution
	iterationLimit int
}

// Load reads a glossary file. A missing file or empty path yields an empty
// glossary that returns text unchanged.
func Load(path string, iterationLimit int) (*Glossary, error) {
	return LoadWithParsers(path, iterationLimit, defaultParsers())
}

// LoadWithParsers is Load with a custom line parser chain.
func LoadWithParsers(path string, iterationLimit int, parsers []LineParser) (*Glossary, error) {
	if strings.TrimSpace(path) == "" {
		return newGlossary(nil, iterationLimit), nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newGlossary(nil, iterationLimit), nil
		}
		return nil, fmt.Errorf("open glossary %q: %w", path, err)
	}
	defer file.Close()

	var subs []substitution
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		subs, err = parseYAML(file)
	default:
		if len(parsers) == 0 {
			parsers = defaultParsers()
		}
		subs, err = parseLines(file, parsers)
	}
	if err != nil {
		return nil, fmt.Errorf("parse glossary %q: %w", path, err)
	}
	return newGlossary(subs, iterationLimit), nil
}

func newGlossary(subs []substitution, iterationLimit int) *Glossary {
	if iterationLimit <= 0 {
		iterationLimit = defaultIterationLimit
	}
	return &Glossary{subs: subs, iterationLimit: iterationLimit}
}

// Len reports how many substitutions are loaded.
func (g *Glossary) Len() int {
	return len(g.subs)
}

// Apply rewrites text. Substitutions that feed each other are resolved by
// re-running the set, bounded by the iteration limit.
func (g *Glossary) Apply(text string) (string, error) {
	if g == nil || len(g.subs) == 0 {
		return text, nil
	}
	out := text
	for pass := 0; pass < g.iterationLimit; pass++ {
		dirty := false
		for _, sub := range g.subs {
			if next, changed := sub.rewrite(out); changed {
				out = next
				dirty = true
			}
		}
		if !dirty {
			break
		}
	}
	return out, nil
}

func parseLines(r io.Reader, parsers []LineParser) ([]substitution, error) {
	var subs []substitution
	scanner := bufio.NewScanner(r)
	number := 0
	for scanner.Scan() {
		number++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		sub, err := compileLine(line, parsers)
		if err != nil {
			return nil, &ParseError{Line: number, Err: err}
		}
		subs = append(subs, sub)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

func compileLine(line string, parsers []LineParser) (substitution, error) {
	for _, parser := range parsers {
		if parser.Matches(line) {
			return parser.Compile(line)
		}
	}
	return nil, errors.New("unrecognized substitution")
}

type yamlGlossary struct {
	Terms    map[string]string `yaml:"terms"`
	Patterns []string          `yaml:"patterns"`
}

func parseYAML(r io.Reader) ([]substitution, error) {
	var doc yamlGlossary
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	// Map order is random; longer terms go first so "creme fraiche" wins
	// over "creme".
	terms := make([]string, 0, len(doc.Terms))
	for term := range doc.Terms {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if len(terms[i]) != len(terms[j]) {
			return len(terms[i]) > len(terms[j])
		}
		return terms[i] < terms[j]
	})

	subs := make([]substitution, 0, len(terms)+len(doc.Patterns))
	for _, term := range terms {
		sub, err := newTermSubstitution(term, doc.Terms[term])
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}
		subs = append(subs, sub)
	}
	for i, pattern := range doc.Patterns {
		sub, err := compilePattern(pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %d: %w", i+1, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func defaultParsers() []LineParser {
	return []LineParser{patternParser{}, termParser{}}
}
