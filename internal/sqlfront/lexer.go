// Package sqlfront is a minimal recursive-descent front end over the
// statement shapes section 6 lists: CREATE/DROP TABLE, CREATE/DROP
// INDEX, INSERT [ON CONFLICT MERGE], UPDATE, DELETE, SELECT with
// WHERE/GROUP BY/ORDER BY, SET DP_EPSILON=, FOR SYSTEM_TIME AS OF
// TX n, VALID PERIOD […], SAVE/LOAD DATABASE, EXIT; a SELECT with JOIN
// is rejected with a syntax error. It is explicitly
// not a general SQL engine (section 1: "a minimal recursive-descent
// front end ... not a full optimizer") — just enough to drive the seed
// scenarios of section 8 end to end through cmd/latticedb and
// cmd/latticedbd.
package sqlfront

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/latticedb/latticedb/internal/dberrors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

// lexer splits a statement into tokens: identifiers/keywords, numbers,
// single-quoted strings, and single- or two-character punctuation. Ground:
// the teacher carries no lexer at all (it never parses a query language);
// this is built fresh in the teacher's terse-comment register.
type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentCont(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			l.pos++
			continue
		}
		break
	}
}

// next returns the next token, advancing past it.
func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}
	r := l.src[l.pos]

	if isIdentStart(r) {
		start := l.pos
		for l.pos < len(l.src) && isIdentCont(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.src[start:l.pos])}, nil
	}

	if r >= '0' && r <= '9' {
		start := l.pos
		for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokNumber, text: string(l.src[start:l.pos])}, nil
	}

	if r == '\'' {
		l.pos++
		var b strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != '\'' {
			b.WriteRune(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, dberrors.Syntax("unterminated string literal", 0, 0)
		}
		l.pos++ // closing quote
		return token{kind: tokString, text: b.String()}, nil
	}

	// two-character punctuation
	if l.pos+1 < len(l.src) {
		two := string(l.src[l.pos : l.pos+2])
		switch two {
		case "!=", "<=", ">=", "<>":
			l.pos += 2
			return token{kind: tokPunct, text: two}, nil
		}
	}

	l.pos++
	return token{kind: tokPunct, text: string(r)}, nil
}

func parseNumberLiteral(text string) (isFloat bool, i int64, f float64, err error) {
	if strings.Contains(text, ".") {
		f, err = strconv.ParseFloat(text, 64)
		return true, 0, f, err
	}
	i, err = strconv.ParseInt(text, 10, 64)
	return false, i, 0, err
}

func errUnexpectedToken(tok token) error {
	return dberrors.Syntax(fmt.Sprintf("unexpected token %q", tok.text), 0, 0)
}
