// Package searchstring parses search queries such as
// `command:rotate -kind:Busy "out of range"`.
package searchstring

import (
	"errors"
	"strings"
	"unicode"
)

// Token is the type of a scanned token.
type Token int

const (
	// EOF is the end of input.
	EOF Token = iota
	// STR is a bare word.
	STR
	// STRQ is a quoted string.
	STRQ
	// FIELD is a field name, the word before a colon.
	FIELD
)

const eof = rune(0)

// Scanner splits a search query into tokens.
type Scanner struct {
	r *strings.Reader
}

// NewScanner returns a Scanner reading input.
func NewScanner(input string) *Scanner {
	return &Scanner{r: strings.NewReader(input)}
}

func (s *Scanner) next() rune {
	ch, _, err := s.r.ReadRune()
	if err != nil {
		return eof
	}
	return ch
}

func (s *Scanner) prev() {
	_ = s.r.UnreadRune()
}

// Scan returns the next token and its value. A leading "-" on a word
// or a quoted string is reported through neg.
func (s *Scanner) Scan() (tok Token, value string, neg bool) {
	for {
		ch := s.next()
		switch {
		case ch == eof:
			return EOF, "", false
		case unicode.IsSpace(ch):
			continue
		case ch == '"':
			return STRQ, s.scanQuoted(), false
		case ch == '-':
			switch c := s.next(); {
			case c == '"':
				return STRQ, s.scanQuoted(), true
			case c == eof || unicode.IsSpace(c):
				return STR, "-", false
			default:
				s.prev()
				tok, value = s.scanWord()
				return tok, value, true
			}
		}

		s.prev()
		tok, value = s.scanWord()
		return tok, value, false
	}
}

func (s *Scanner) scanWord() (Token, string) {
	var b strings.Builder
	for {
		switch ch := s.next(); {
		case ch == eof || unicode.IsSpace(ch):
			return STR, b.String()
		case ch == ':' && b.Len() > 0:
			return FIELD, b.String()
		default:
			b.WriteRune(ch)
		}
	}
}

// scanQuoted reads until the closing quote or the end of input. Only
// \" is an escape.
func (s *Scanner) scanQuoted() string {
	var b strings.Builder
	for {
		switch ch := s.next(); ch {
		case eof, '"':
			return b.String()
		case '\\':
			if c := s.next(); c == '"' {
				b.WriteRune(c)
			} else {
				b.WriteRune('\\')
				if c != eof {
					b.WriteRune(c)
				}
			}
		default:
			b.WriteRune(ch)
		}
	}
}

// SearchTerm is one part of a query.
type SearchTerm struct {
	Field   string
	Value   string
	Quotes  bool
	Exclude bool
}

// Parse splits input into search terms.
func Parse(input string) ([]SearchTerm, error) {
	s := NewScanner(input)
	res := []SearchTerm{}

	var st *SearchTerm
	for {
		tok, value, neg := s.Scan()
		switch tok {
		case EOF:
			if st != nil {
				return nil, errors.New("field without a value")
			}
			return res, nil
		case FIELD:
			if st != nil {
				return nil, errors.New("field followed by a field")
			}
			st = &SearchTerm{Field: strings.ToLower(value), Exclude: neg}
		case STR, STRQ:
			if st == nil {
				st = &SearchTerm{Exclude: neg}
			}
			st.Value = value
			st.Quotes = tok == STRQ
			res = append(res, *st)
			st = nil
		}
	}
}
