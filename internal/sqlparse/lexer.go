package sqlparse

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/seiql/internal/ir"
)

// TokenType classifies lexer output.
type TokenType int

const (
	TokEOF TokenType = iota
	TokWord
	TokQuotedIdent // `name` or [name]
	TokNumber
	TokString   // 'text'
	TokDQString // "text": a string in expressions, a name elsewhere
	TokSymbol
)

// Token is one lexeme. Pos and End are byte offsets into the input.
type Token struct {
	Typ   TokenType
	Val   string // decoded content: unquoted text, the word, or the number
	Upper string // upper-cased Val for words
	Pos   int
	End   int
}

// Is reports whether t is the word w. w must be upper case.
func (t Token) Is(w string) bool {
	return t.Typ == TokWord && t.Upper == w
}

// IsSymbol reports whether t is the punctuation s.
func (t Token) IsSymbol(s string) bool {
	return t.Typ == TokSymbol && t.Val == s
}

type lexer struct {
	s   string
	pos int
}

// Tokenize splits sql into tokens, skipping whitespace and comments.
// The final token is always TokEOF.
func Tokenize(sql string) ([]Token, error) {
	lx := &lexer{s: sql}
	var toks []Token
	for {
		tok, err := lx.nextToken()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Typ == TokEOF {
			return toks, nil
		}
	}
}

func (lx *lexer) peek() rune {
	return lx.peekN(0)
}

func (lx *lexer) peekN(n int) rune {
	p := lx.pos
	for i := 0; i < n; i++ {
		if p >= len(lx.s) {
			return 0
		}
		_, sz := utf8.DecodeRuneInString(lx.s[p:])
		p += sz
	}
	if p >= len(lx.s) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(lx.s[p:])
	return r
}

func (lx *lexer) next() rune {
	if lx.pos >= len(lx.s) {
		return 0
	}
	r, size := utf8.DecodeRuneInString(lx.s[lx.pos:])
	lx.pos += size
	return r
}

func (lx *lexer) skipWhitespace() error {
	for {
		r := lx.peek()
		switch {
		case r == 0:
			return nil
		case unicode.IsSpace(r):
			lx.next()
		case r == '-' && lx.peekN(1) == '-':
			for r2 := lx.next(); r2 != 0 && r2 != '\n'; r2 = lx.next() {
			}
		case r == '/' && lx.peekN(1) == '*':
			start := lx.pos
			lx.next()
			lx.next()
			for {
				r2 := lx.next()
				if r2 == 0 {
					return lexError(start, "unterminated block comment")
				}
				if r2 == '*' && lx.peek() == '/' {
					lx.next()
					break
				}
			}
		default:
			return nil
		}
	}
}

func (lx *lexer) nextToken() (Token, error) {
	if err := lx.skipWhitespace(); err != nil {
		return Token{}, err
	}
	start := lx.pos
	r := lx.peek()
	emit := func(tt TokenType, val string) (Token, error) {
		tok := Token{Typ: tt, Val: val, Pos: start, End: lx.pos}
		if tt == TokWord {
			tok.Upper = strings.ToUpper(val)
		}
		return tok, nil
	}

	switch {
	case r == 0:
		return emit(TokEOF, "")

	case r == '\'' || r == '"' || r == '`':
		val, err := lx.quoted(r)
		if err != nil {
			return Token{}, err
		}
		switch r {
		case '\'':
			return emit(TokString, val)
		case '"':
			return emit(TokDQString, val)
		default:
			return emit(TokQuotedIdent, val)
		}

	case r == '[':
		lx.next()
		end := strings.IndexByte(lx.s[lx.pos:], ']')
		if end < 0 {
			return Token{}, lexError(start, "unterminated [identifier]")
		}
		val := lx.s[lx.pos : lx.pos+end]
		lx.pos += end + 1
		return emit(TokQuotedIdent, val)

	case r == '0' && (lx.peekN(1) == 'x' || lx.peekN(1) == 'X') && isHexDigit(lx.peekN(2)):
		lx.next()
		lx.next()
		for isHexDigit(lx.peek()) {
			lx.next()
		}
		return emit(TokNumber, lx.s[start:lx.pos])

	case isDigit(r) || (r == '.' && isDigit(lx.peekN(1))):
		lx.number()
		return emit(TokNumber, lx.s[start:lx.pos])

	case unicode.IsLetter(r) || r == '_':
		for ch := lx.peek(); unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '$'; ch = lx.peek() {
			lx.next()
		}
		return emit(TokWord, lx.s[start:lx.pos])
	}

	lx.next()
	two := string(r) + string(lx.peek())
	switch two {
	case "<=", ">=", "<>", "!=", "==", "||":
		lx.next()
		return emit(TokSymbol, two)
	}
	switch r {
	case '(', ')', ',', '*', '+', '-', '/', '%', '.', ';', '=', '<', '>':
		return emit(TokSymbol, string(r))
	}
	return Token{}, lexError(start, "unexpected character %q", r)
}

// quoted consumes a quoted run. A doubled quote character is an escaped quote.
func (lx *lexer) quoted(q rune) (string, error) {
	start := lx.pos
	lx.next()
	var sb strings.Builder
	for {
		ch := lx.next()
		if ch == 0 && lx.pos >= len(lx.s) {
			return "", lexError(start, "unterminated quoted text")
		}
		if ch == q {
			if lx.peek() == q {
				lx.next()
				sb.WriteRune(q)
				continue
			}
			return sb.String(), nil
		}
		sb.WriteRune(ch)
	}
}

func (lx *lexer) number() {
	for isDigit(lx.peek()) {
		lx.next()
	}
	if lx.peek() == '.' {
		lx.next()
		for isDigit(lx.peek()) {
			lx.next()
		}
	}
	if r := lx.peek(); r == 'e' || r == 'E' {
		n := 1
		if s := lx.peekN(1); s == '+' || s == '-' {
			n = 2
		}
		if isDigit(lx.peekN(n)) {
			for i := 0; i < n; i++ {
				lx.next()
			}
			for isDigit(lx.peek()) {
				lx.next()
			}
		}
	}
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isHexDigit(r rune) bool {
	return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func lexError(pos int, format string, args ...any) *ir.Error {
	return ir.Errorf(ir.CodeParse, "%s at offset %d", fmt.Sprintf(format, args...), pos)
}
