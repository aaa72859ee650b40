// Package gitignore matches slash-separated paths against gitignore rules.
//
// Supported syntax follows https://git-scm.com/docs/gitignore: comments,
// negation (!), directory-only rules (trailing /), anchoring (leading or
// inner /), the wildcards *, ? and **, character classes, and backslash
// escapes. A Matcher holds the rules of one .gitignore file; its Verdict
// distinguishes "no rule matched" from an explicit re-include, so callers can
// layer nested files with the deepest file taking precedence.
package gitignore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Verdict is the outcome of matching a path against a rule set.
type Verdict int

const (
	// NoMatch means no rule applies to the path.
	NoMatch Verdict = iota
	// Ignored means the last applicable rule excludes the path.
	Ignored
	// Included means the last applicable rule is a negation.
	Included
)

func (v Verdict) String() string {
	switch v {
	case Ignored:
		return "ignored"
	case Included:
		return "included"
	default:
		return "no_match"
	}
}

type rule struct {
	re      *regexp.Regexp
	negate  bool
	dirOnly bool
}

// Matcher holds compiled rules. It is immutable once built and safe for
// concurrent use.
type Matcher struct {
	base  string // directory the rules are relative to ("" = root)
	rules []rule
}

// New compiles patterns relative to base (a slash-separated directory, or ""
// for the root). Blank lines and comments are skipped.
func New(base string, patterns ...string) *Matcher {
	m := &Matcher{base: strings.Trim(base, "/")}
	for _, p := range patterns {
		if r, ok := compile(p); ok {
			m.rules = append(m.rules, r)
		}
	}
	return m
}

// Parse reads gitignore lines from r.
func Parse(r io.Reader, base string) (*Matcher, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read gitignore rules: %w", err)
	}
	return New(base, lines...), nil
}

// ParseFile reads the gitignore file at path.
func ParseFile(path, base string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open gitignore file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f, base)
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int {
	return len(m.rules)
}

// Match reports whether path is ignored.
func (m *Matcher) Match(path string, isDir bool) bool {
	return m.Verdict(path, isDir) == Ignored
}

// Verdict evaluates path, a slash-separated path relative to the root.
// A path inside an ignored directory is ignored regardless of later rules,
// as in git.
func (m *Matcher) Verdict(path string, isDir bool) Verdict {
	rel, ok := m.relative(path)
	if !ok {
		return NoMatch
	}

	parts := strings.Split(rel, "/")
	for i := 1; i < len(parts); i++ {
		if m.verdict(strings.Join(parts[:i], "/"), true) == Ignored {
			return Ignored
		}
	}
	return m.verdict(rel, isDir)
}

func (m *Matcher) relative(path string) (string, bool) {
	path = strings.Trim(path, "/")
	if path == "" {
		return "", false
	}
	if m.base == "" {
		return path, true
	}
	if !strings.HasPrefix(path, m.base+"/") {
		return "", false
	}
	return strings.TrimPrefix(path, m.base+"/"), true
}

// verdict applies the rules to rel alone; the last matching rule wins.
func (m *Matcher) verdict(rel string, isDir bool) Verdict {
	v := NoMatch
	for _, r := range m.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if !r.re.MatchString(rel) {
			continue
		}
		if r.negate {
			v = Included
		} else {
			v = Ignored
		}
	}
	return v
}

// compile turns one gitignore line into a rule.
func compile(line string) (rule, bool) {
	// Trailing spaces are dropped unless escaped.
	trimmed := strings.TrimRight(line, " \t")
	if strings.HasSuffix(trimmed, `\`) && len(trimmed) < len(line) {
		trimmed += " "
	}
	p := strings.TrimLeft(trimmed, " \t")
	if p == "" || strings.HasPrefix(p, "#") {
		return rule{}, false
	}

	var r rule
	if strings.HasPrefix(p, "!") {
		r.negate = true
		p = p[1:]
	} else if strings.HasPrefix(p, `\!`) || strings.HasPrefix(p, `\#`) {
		p = p[1:]
	}

	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return rule{}, false
	}

	// A slash anywhere but the end anchors the rule to the base directory.
	anchored := strings.Contains(p, "/")
	p = strings.TrimPrefix(p, "/")

	expr := globToRegex(p)
	if anchored || strings.HasPrefix(p, "**/") {
		expr = "^" + expr + "$"
	} else {
		expr = "^(?:.*/)?" + expr + "$"
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

// globToRegex translates gitignore wildcards into a regular expression body.
func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				atStart := i == 0 || glob[i-1] == '/'
				switch {
				case atStart && i+2 < len(glob) && glob[i+2] == '/':
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				case atStart && i+2 == len(glob):
					b.WriteString(".*")
					i++
					continue
				}
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := glob[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += end + 1
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// Stack layers matchers from the root outwards. Deeper matchers override
// shallower ones, matching how git combines nested .gitignore files.
type Stack []*Matcher

// Match reports whether path is ignored by the stack.
func (s Stack) Match(path string, isDir bool) bool {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == nil {
			continue
		}
		switch s[i].Verdict(path, isDir) {
		case Ignored:
			return true
		case Included:
			return false
		}
	}
	return false
}
