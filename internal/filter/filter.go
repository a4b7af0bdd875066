// Package filter classifies free text against a forbidden-term list.
package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// replacer maps punctuation and separator characters to single spaces so that
// terms can be matched as space-delimited tokens without tokenization.
var replacer = strings.NewReplacer(
	"(", " ", ")", " ", ",", " ", "\"", " ", ".", " ", ";", " ", ":", " ",
	"'", " ", "!", " ", "@", " ", "#", " ", "$", " ", "%", " ", "^", " ",
	"&", " ", "*", " ", "-", " ", "_", " ", "+", " ", "=", " ", "`", " ",
	"~", " ", "\n", " ", "\r", " ", "\\", " ", "/", " ", "{", " ", "}", " ",
	"°", " ", "’", " ", "‘", " ", ">", " ", "<", " ", "»", " ", "¢", " ",
	"?", " ",
)

// Filter holds the loaded term list. It is read-only after construction and
// safe for concurrent use.
type Filter struct {
	terms []string
}

// New loads one lowercase term per line from path.
func New(path string) (*Filter, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open term list: %w", err)
	}
	defer f.Close()

	var terms []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		term := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if term == "" {
			continue
		}
		terms = append(terms, term)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read term list: %w", err)
	}
	return &Filter{terms: terms}, nil
}

// FromTerms builds a Filter from an in-memory term list.
func FromTerms(terms []string) *Filter {
	cleaned := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return &Filter{terms: cleaned}
}

// IsUnsafe reports whether text contains any forbidden term as a
// space-delimited token after normalization. Matching is case-insensitive and
// returns on the first hit. Empty text is always safe.
func (f *Filter) IsUnsafe(text string) bool {
	if text == "" {
		return false
	}
	normalized := " " + replacer.Replace(strings.ToLower(text)) + " "
	for _, term := range f.terms {
		if strings.Contains(normalized, " "+term+" ") {
			return true
		}
	}
	return false
}

// Len returns the number of loaded terms.
func (f *Filter) Len() int {
	return len(f.terms)
}
