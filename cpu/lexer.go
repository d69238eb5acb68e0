package cpu

import (
	"iter"
	"strconv"
	"strings"
	"unicode/utf8"
)

// TokenKind is the lexical class of a token.
type TokenKind int

//go:generate go tool stringer -linecomment -type=TokenKind
const (
	TOKEN_EOF        = TokenKind(0) // end of input
	TOKEN_NEWLINE    = TokenKind(1) // end of line
	TOKEN_IDENT      = TokenKind(2) // identifier
	TOKEN_REGISTER   = TokenKind(3) // register
	TOKEN_INTEGER    = TokenKind(4) // integer
	TOKEN_LABEL      = TokenKind(5) // label
	TOKEN_DIRECTIVE  = TokenKind(6) // directive
	TOKEN_EXPRESSION = TokenKind(7) // expression
	TOKEN_COMMA      = TokenKind(8) // comma
	TOKEN_STRING     = TokenKind(9) // string
)

// Token is a lexeme of assembly source with its position.
type Token struct {
	Kind   TokenKind
	Text   string // Source text; for labels and directives, the bare name; for strings, the contents.
	Value  int64  // Register number or integer value.
	Line   int
	Column int
}

// Describe returns the token as shown in error messages.
func (tok Token) Describe() string {
	switch tok.Kind {
	case TOKEN_EOF, TOKEN_NEWLINE:
		return tok.Kind.String()
	}
	return strconv.Quote(tok.Text)
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentRune(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}

// ParseInteger parses a signed integer literal. Literals are decimal, unless
// prefixed with 0x (hexadecimal), 0o (octal) or 0b (binary); a leading zero
// alone does not select octal.
func ParseInteger(text string) (value int64, err error) {
	sign, body := "", text
	if strings.HasPrefix(body, "-") || strings.HasPrefix(body, "+") {
		sign, body = body[:1], body[1:]
	}

	base := 10
	switch {
	case strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X"):
		base, body = 16, body[2:]
	case strings.HasPrefix(body, "0o") || strings.HasPrefix(body, "0O"):
		base, body = 8, body[2:]
	case strings.HasPrefix(body, "0b") || strings.HasPrefix(body, "0B"):
		base, body = 2, body[2:]
	}

	if len(body) == 0 || body[0] == '-' || body[0] == '+' {
		_, err = strconv.ParseInt(text, 10, 64)
		return
	}

	return strconv.ParseInt(sign+body, base, 64)
}

// lexer is the scanning state of a single pass over the source.
type lexer struct {
	src    string
	pos    int
	line   int
	column int
}

func (lx *lexer) peek(n int) byte {
	if lx.pos+n >= len(lx.src) {
		return 0
	}
	return lx.src[lx.pos+n]
}

func (lx *lexer) advance(n int) {
	lx.pos += n
	lx.column += n
}

func (lx *lexer) errorAt(column int, pos int) error {
	ch, _ := utf8.DecodeRuneInString(lx.src[pos:])
	return &ErrLex{Line: lx.line, Column: column, Char: ch}
}

// span scans a run of identifier characters from the current position.
func (lx *lexer) span() string {
	start := lx.pos
	for lx.pos < len(lx.src) && isIdentRune(lx.src[lx.pos]) {
		lx.advance(1)
	}
	return lx.src[start:lx.pos]
}

// next scans the next token.
func (lx *lexer) next() (tok Token, err error) {
	for lx.pos < len(lx.src) {
		ch := lx.src[lx.pos]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r':
			lx.advance(1)
			continue
		case ch == ';':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.advance(1)
			}
			continue
		}
		break
	}

	tok = Token{Line: lx.line, Column: lx.column}
	if lx.pos >= len(lx.src) {
		tok.Kind = TOKEN_EOF
		return
	}

	start := lx.pos
	ch := lx.src[lx.pos]

	switch {
	case ch == '\n':
		tok.Kind = TOKEN_NEWLINE
		tok.Text = "\n"
		lx.pos++
		lx.line++
		lx.column = 1
		return
	case ch == ',':
		tok.Kind = TOKEN_COMMA
		tok.Text = ","
		lx.advance(1)
		return
	case ch == '$' && lx.peek(1) == '(':
		depth := 0
		for lx.pos < len(lx.src) {
			c := lx.src[lx.pos]
			if c == '\n' {
				break
			}
			lx.advance(1)
			if c == '(' {
				depth++
			} else if c == ')' {
				depth--
				if depth == 0 {
					tok.Kind = TOKEN_EXPRESSION
					tok.Text = lx.src[start:lx.pos]
					return
				}
			}
		}
		err = lx.errorAt(tok.Column, start)
		return
	case ch == '$':
		lx.advance(1)
		if !isDigit(lx.peek(0)) {
			err = lx.errorAt(lx.column, start+1)
			if lx.pos >= len(lx.src) {
				err = lx.errorAt(tok.Column, start)
			}
			return
		}
		digits := lx.span()
		tok.Kind = TOKEN_REGISTER
		tok.Text = lx.src[start:lx.pos]
		tok.Value, err = strconv.ParseInt(digits, 10, 64)
		if err != nil {
			err = lx.errorAt(tok.Column+1, start+1)
		}
		return
	case ch == '#' || isDigit(ch) || (ch == '-' || ch == '+') && isDigit(lx.peek(1)):
		if ch == '#' {
			lx.advance(1)
		}
		numStart := lx.pos
		if c := lx.peek(0); c == '-' || c == '+' {
			lx.advance(1)
		}
		if !isDigit(lx.peek(0)) {
			if lx.pos >= len(lx.src) {
				err = lx.errorAt(tok.Column, start)
			} else {
				err = lx.errorAt(lx.column, lx.pos)
			}
			return
		}
		lx.span()
		tok.Kind = TOKEN_INTEGER
		tok.Text = lx.src[start:lx.pos]
		tok.Value, err = ParseInteger(lx.src[numStart:lx.pos])
		if err != nil {
			err = lx.errorAt(tok.Column, start)
		}
		return
	case ch == '\'':
		// Single quoted strings are raw.
		end := strings.IndexAny(lx.src[lx.pos+1:], "'\n")
		if end < 0 || lx.src[lx.pos+1+end] != '\'' {
			err = lx.errorAt(tok.Column, start)
			return
		}
		lx.advance(end + 2)
		tok.Kind = TOKEN_STRING
		tok.Text = lx.src[start+1 : lx.pos-1]
		return
	case ch == '"':
		// Double quoted strings take Go escapes.
		lx.advance(1)
		for lx.pos < len(lx.src) && lx.src[lx.pos] != '"' && lx.src[lx.pos] != '\n' {
			if lx.src[lx.pos] == '\\' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] != '\n' {
				lx.advance(1)
			}
			lx.advance(1)
		}
		if lx.pos >= len(lx.src) || lx.src[lx.pos] != '"' {
			err = lx.errorAt(tok.Column, start)
			return
		}
		lx.advance(1)
		tok.Kind = TOKEN_STRING
		tok.Text, err = strconv.Unquote(lx.src[start:lx.pos])
		if err != nil {
			err = lx.errorAt(tok.Column, start)
		}
		return
	case ch == '.':
		lx.advance(1)
		if !isIdentStart(lx.peek(0)) {
			err = lx.errorAt(tok.Column, start)
			return
		}
		tok.Kind = TOKEN_DIRECTIVE
		tok.Text = lx.span()
		return
	case isIdentStart(ch):
		tok.Text = lx.span()
		tok.Kind = TOKEN_IDENT
		if lx.peek(0) == ':' {
			lx.advance(1)
			tok.Kind = TOKEN_LABEL
		}
		return
	}

	err = lx.errorAt(tok.Column, start)
	return
}

// Lex returns the token sequence of the source. The sequence is lazy, and
// restartable: every iteration scans from the start. It ends after the
// TOKEN_EOF token, or with the first lexical error.
func Lex(source string) iter.Seq2[Token, error] {
	return func(yield func(tok Token, err error) bool) {
		lx := &lexer{src: source, line: 1, column: 1}
		for {
			tok, err := lx.next()
			if !yield(tok, err) {
				return
			}
			if err != nil || tok.Kind == TOKEN_EOF {
				return
			}
		}
	}
}
