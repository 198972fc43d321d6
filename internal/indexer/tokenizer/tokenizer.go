// Package tokenizer provides text tokenisation for the search engine.
// It lower-cases input, segments it on Unicode word boundaries (UAX #29),
// removes punctuation and stop-words, and reduces each surviving word to its
// Porter2 (Snowball English) stem.
package tokenizer

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"
)

// Token represents a single normalised term and its position in the
// filtered token stream.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into a slice of stemmed, lowercased Tokens with
// punctuation, stop-words and non-alphanumeric segments removed. It is a pure
// function and safe for concurrent use.
func Tokenize(text string) []Token {
	if text == "" {
		return nil
	}
	text = strings.ToLower(norm.NFKC.String(text))

	segments := words.FromString(text)
	tokens := make([]Token, 0, len(text)/6)
	pos := 0
	for segments.Next() {
		segment := segments.Value()
		if IsStopWord(segment) {
			continue
		}
		// UAX #29 keeps contractions and possessives together ("cat's").
		for _, word := range strings.FieldsFunc(segment, isApostrophe) {
			if IsStopWord(word) || !isAlphanumeric(word) {
				continue
			}
			stemmed := english.Stem(word, false)
			if stemmed == "" {
				continue
			}
			tokens = append(tokens, Token{
				Term:     stemmed,
				Position: pos,
			})
			pos++
		}
	}
	return tokens
}

// Terms returns only the term strings produced by Tokenize, in order.
func Terms(text string) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

func isApostrophe(r rune) bool {
	return r == '\'' || r == '\u2019'
}

// isAlphanumeric reports whether word is non-empty and made only of letters
// and digits. Whitespace, punctuation, symbols and emoji segments fail.
func isAlphanumeric(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
