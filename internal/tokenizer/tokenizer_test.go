package tokenizer

import (
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func collect(seq iter.Seq[Token]) []Token {
	var out []Token
	for tok := range seq {
		out = append(out, tok)
	}
	return out
}

func TestUnicode_FoldsCaseAndDiacritics(t *testing.T) {
	// Given: accented mixed-case text with punctuation
	tok := NewUnicode()

	// When: tokenizing
	tokens := collect(tok.Tokenize("Aún más cáfe!"))

	// Then: words are lowercased, stripped of accents, punctuation dropped
	require.Len(t, tokens, 3)
	assert.Equal(t, Token{Term: "aun", Start: 0, End: 4}, tokens[0])
	assert.Equal(t, Token{Term: "mas", Start: 5, End: 9}, tokens[1])
	assert.Equal(t, Token{Term: "cafe", Start: 10, End: 15}, tokens[2])
}

func TestUnicode_OffsetsReferToSource(t *testing.T) {
	text := "  Hello, Wörld 42 "
	for _, tok := range collect(NewUnicode().Tokenize(text)) {
		src := text[tok.Start:tok.End]
		assert.Equal(t, tok.Term, NewUnicode().Normalize(src))
	}
	assert.Equal(t, []string{"hello", "world", "42"}, Terms(NewUnicode(), text))
}

func TestUnicode_EmptyAndPunctuation(t *testing.T) {
	tok := NewUnicode()
	assert.Empty(t, Terms(tok, ""))
	assert.Empty(t, Terms(tok, " ... !!! --- "))
}

func TestUnicode_StopsWhenConsumerStops(t *testing.T) {
	tok := NewUnicode()

	var seen []string
	for token := range tok.Tokenize("one two three four") {
		seen = append(seen, token.Term)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"one", "two"}, seen)
}

func TestUnicode_LazyOverLargeInput(t *testing.T) {
	// Only the first token is materialised
	text := strings.Repeat("word ", 100_000)
	for token := range NewUnicode().Tokenize(text) {
		assert.Equal(t, "word", token.Term)
		break
	}
}

func TestUnicode_LanguageAwareLowercase(t *testing.T) {
	// Turkish dotted capital I lowercases to plain i
	tr := NewUnicode(WithLanguage(language.Turkish))
	assert.Equal(t, []string{"istanbul"}, Terms(tr, "İstanbul"))
}

func TestUnicode_Name(t *testing.T) {
	assert.Equal(t, UnicodeName, NewUnicode().Name())
	assert.Equal(t, UnicodeName, NewUnicode(WithLanguage(language.Und)).Name())

	// Language-specific folding produces different terms, so it is named apart
	assert.Equal(t, UnicodeName+":tr", NewUnicode(WithLanguage(language.Turkish)).Name())
	assert.NotEqual(t, NewUnicode().Name(), NewUnicode(WithLanguage(language.Turkish)).Name())
}

func TestFunc(t *testing.T) {
	fields := Func("fields", func(text string) iter.Seq[Token] {
		return func(yield func(Token) bool) {
			for _, f := range strings.Fields(text) {
				if !yield(Token{Term: f}) {
					return
				}
			}
		}
	})

	assert.Equal(t, "fields", fields.Name())
	assert.Equal(t, []string{"a", "b"}, Terms(fields, " a  b "))
}
