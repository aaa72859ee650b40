package store

import (
	"strings"
	"unicode"

	"github.com/Aman-CERP/ftsync/internal/tokenizer"
)

// ClauseKind identifies how a query clause matches.
type ClauseKind int

const (
	// ClauseTerm matches entries containing the term.
	ClauseTerm ClauseKind = iota
	// ClausePrefix matches entries containing a term starting with the text.
	ClausePrefix
	// ClausePhrase matches entries containing the terms adjacently, in order.
	ClausePhrase
)

func (k ClauseKind) String() string {
	switch k {
	case ClausePrefix:
		return "prefix"
	case ClausePhrase:
		return "phrase"
	default:
		return "term"
	}
}

// Clause is one element of a match expression.
type Clause struct {
	Kind ClauseKind
	// Terms holds the clause text. Term and prefix clauses have exactly one
	// element; phrases have one per word once normalised.
	Terms []string
}

// Query is a parsed match expression. Every clause must match (implicit AND).
type Query struct {
	Clauses []Clause
}

// Empty reports whether the query can match nothing.
func (q Query) Empty() bool {
	return len(q.Clauses) == 0
}

// ParseQuery parses a match expression.
//
// Syntax: whitespace-separated terms that must all match; a trailing '*'
// makes a prefix term; double quotes group a phrase. Clauses without any
// letter or digit are dropped, so punctuation-only input is an empty query.
func ParseQuery(expr string) Query {
	var q Query
	rest := strings.TrimSpace(expr)

	for rest != "" {
		if rest[0] == '"' {
			end := strings.IndexByte(rest[1:], '"')
			var phrase string
			if end < 0 {
				phrase, rest = rest[1:], ""
			} else {
				phrase, rest = rest[1:end+1], rest[end+2:]
			}
			if words := strings.Fields(phrase); hasWordChars(phrase) {
				q.Clauses = append(q.Clauses, Clause{Kind: ClausePhrase, Terms: words})
			}
			rest = strings.TrimSpace(rest)
			continue
		}

		word := rest
		if i := strings.IndexFunc(rest, func(r rune) bool { return unicode.IsSpace(r) || r == '"' }); i >= 0 {
			word, rest = rest[:i], rest[i:]
		} else {
			rest = ""
		}
		rest = strings.TrimSpace(rest)

		kind := ClauseTerm
		if strings.HasSuffix(word, "*") {
			kind = ClausePrefix
			word = strings.TrimRight(word, "*")
		}
		if !hasWordChars(word) {
			continue
		}
		q.Clauses = append(q.Clauses, Clause{Kind: kind, Terms: []string{word}})
	}
	return q
}

// Normalize re-expresses the query in the terms tok produces.
//
// A term that tokenizes into several words becomes a phrase. A prefix that
// tokenizes into several words keeps its leading words as plain terms and
// the last word as the prefix. Clauses that tokenize to nothing are dropped.
func (q Query) Normalize(tok tokenizer.Tokenizer) Query {
	var out Query
	for _, c := range q.Clauses {
		terms := tokenizer.Terms(tok, strings.Join(c.Terms, " "))
		if len(terms) == 0 {
			continue
		}
		switch {
		case c.Kind == ClausePrefix:
			for _, t := range terms[:len(terms)-1] {
				out.Clauses = append(out.Clauses, Clause{Kind: ClauseTerm, Terms: []string{t}})
			}
			out.Clauses = append(out.Clauses, Clause{Kind: ClausePrefix, Terms: terms[len(terms)-1:]})
		case c.Kind == ClausePhrase || len(terms) > 1:
			out.Clauses = append(out.Clauses, Clause{Kind: ClausePhrase, Terms: terms})
		default:
			out.Clauses = append(out.Clauses, Clause{Kind: ClauseTerm, Terms: terms})
		}
	}
	return out
}

func hasWordChars(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsNumber(r)
	}) >= 0
}
