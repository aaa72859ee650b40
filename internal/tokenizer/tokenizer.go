// Package tokenizer defines the word tokenizer contract used by the full-text
// index and provides a Unicode-aware implementation.
//
// A tokenizer turns text into a lazy, finite sequence of normalised terms,
// each carrying the byte range of the source text it came from. Normalisation
// (lowercasing, diacritic stripping) is the tokenizer's job; callers index and
// query the terms exactly as produced.
package tokenizer

import (
	"iter"
	"unicode"

	"github.com/blevesearch/segment"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UnicodeName is the registered name of the Unicode word tokenizer.
const UnicodeName = "unicode_words"

// Token is a single normalised term and its source range.
type Token struct {
	Term  string // normalised term
	Start int    // byte offset of the first source byte
	End   int    // byte offset one past the last source byte
}

// Tokenizer converts text into normalised tokens.
type Tokenizer interface {
	// Name identifies the tokenizer. Indexes persist it so that a store is
	// never queried with a tokenizer other than the one that built it.
	Name() string

	// Tokenize returns the tokens of text in source order.
	Tokenize(text string) iter.Seq[Token]
}

// Terms collects the terms produced by t for text.
func Terms(t Tokenizer, text string) []string {
	var terms []string
	for tok := range t.Tokenize(text) {
		terms = append(terms, tok.Term)
	}
	return terms
}

// funcTokenizer adapts a plain function to the Tokenizer interface.
type funcTokenizer struct {
	name string
	fn   func(text string) iter.Seq[Token]
}

// Func returns a Tokenizer named name backed by fn.
func Func(name string, fn func(text string) iter.Seq[Token]) Tokenizer {
	return &funcTokenizer{name: name, fn: fn}
}

func (f *funcTokenizer) Name() string { return f.name }

func (f *funcTokenizer) Tokenize(text string) iter.Seq[Token] { return f.fn(text) }

// Unicode splits text into words following UAX #29 word boundaries, keeps
// letter, number, kana and ideographic words, and folds them to lowercase
// without diacritics.
type Unicode struct {
	lang language.Tag
}

// Option configures a Unicode tokenizer.
type Option func(*Unicode)

// WithLanguage sets the language used for case folding (default: und).
func WithLanguage(tag language.Tag) Option {
	return func(u *Unicode) { u.lang = tag }
}

// NewUnicode creates a Unicode word tokenizer.
func NewUnicode(opts ...Option) *Unicode {
	u := &Unicode{lang: language.Und}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// fold lowercases, then strips combining marks. Lowercasing first lets the
// language handle letters such as the Turkish dotted capital I.
func (u *Unicode) fold() transform.Transformer {
	return transform.Chain(
		cases.Lower(u.lang),
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
}

// Name implements Tokenizer. A language other than und is part of the name,
// since it changes how terms fold.
func (u *Unicode) Name() string {
	if u.lang == language.Und {
		return UnicodeName
	}
	return UnicodeName + ":" + u.lang.String()
}

// Tokenize implements Tokenizer.
// Transformers are stateful, so each call builds its own chain.
func (u *Unicode) Tokenize(text string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		fold := u.fold()

		seg := segment.NewWordSegmenterDirect([]byte(text))
		offset := 0
		for seg.Segment() {
			word := seg.Bytes()
			start := offset
			offset += len(word)

			switch seg.Type() {
			case segment.Letter, segment.Number, segment.Kana, segment.Ideo:
			default:
				continue
			}

			term, _, err := transform.Bytes(fold, word)
			if err != nil || len(term) == 0 {
				continue
			}
			if !yield(Token{Term: string(term), Start: start, End: offset}) {
				return
			}
		}
	}
}

// Normalize folds a single term the same way Tokenize folds words, without
// splitting it.
func (u *Unicode) Normalize(term string) string {
	out, _, err := transform.String(u.fold(), term)
	if err != nil {
		return term
	}
	return out
}

// Verify interface implementation at compile time
var _ Tokenizer = (*Unicode)(nil)
