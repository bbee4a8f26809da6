package rhai

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/isdmx/scriptbox/scripterr"
)

type pos struct {
	line, col int
}

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokInt
	tokFloat
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
	pos  pos
	ival int64
	fval float64
}

var keywords = map[string]bool{
	"let": true, "const": true, "fn": true, "if": true, "else": true,
	"while": true, "loop": true, "for": true, "in": true, "break": true,
	"continue": true, "return": true, "throw": true, "try": true,
	"catch": true, "true": true, "false": true, "import": true,
	"export": true,
}

// Longest punctuators first.
var puncts = []string{
	"**=", "..=", "<<=", ">>=",
	"**", "..", "==", "!=", "<=", ">=", "&&", "||",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "<<", ">>", "#{",
	"+", "-", "*", "/", "%", "<", ">", "=", "!", "&", "|", "^",
	"(", ")", "[", "]", "{", "}", ",", ";", ":", ".",
}

type lexer struct {
	src  string
	off  int
	line int
	col  int
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1, col: 1}
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) errorf(p pos, format string, args ...any) error {
	return scripterr.CompileErrorf(format, args...).At(p.line, p.col)
}

func (l *lexer) peek(n int) byte {
	if l.off+n < len(l.src) {
		return l.src[l.off+n]
	}
	return 0
}

func (l *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.src[l.off:])
	l.off += size
	if r == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return r
}

func (l *lexer) skipSpaceAndComments() error {
	for l.off < len(l.src) {
		c := l.src[l.off]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peek(1) == '/':
			for l.off < len(l.src) && l.src[l.off] != '\n' {
				l.advance()
			}
		case c == '/' && l.peek(1) == '*':
			start := pos{l.line, l.col}
			l.advance()
			l.advance()
			depth := 1
			for depth > 0 {
				if l.off >= len(l.src) {
					return l.errorf(start, "unterminated block comment")
				}
				switch {
				case l.src[l.off] == '/' && l.peek(1) == '*':
					l.advance()
					l.advance()
					depth++
				case l.src[l.off] == '*' && l.peek(1) == '/':
					l.advance()
					l.advance()
					depth--
				default:
					l.advance()
				}
			}
		default:
			return nil
		}
	}
	return nil
}

func (l *lexer) next() (token, error) {
	if err := l.skipSpaceAndComments(); err != nil {
		return token{}, err
	}
	p := pos{l.line, l.col}
	if l.off >= len(l.src) {
		return token{kind: tokEOF, pos: p}, nil
	}

	c := l.src[l.off]
	switch {
	case c >= '0' && c <= '9':
		return l.number(p)
	case c == '"':
		return l.quoted(p, '"')
	case c == '\'':
		tok, err := l.quoted(p, '\'')
		if err == nil && utf8.RuneCountInString(tok.text) != 1 {
			return token{}, l.errorf(p, "character literal must hold exactly one character")
		}
		return tok, err
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.off:])
	if r == '_' || unicode.IsLetter(r) {
		start := l.off
		for l.off < len(l.src) {
			r, _ := utf8.DecodeRuneInString(l.src[l.off:])
			if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
				break
			}
			l.advance()
		}
		word := l.src[start:l.off]
		if keywords[word] {
			return token{kind: tokKeyword, text: word, pos: p}, nil
		}
		return token{kind: tokIdent, text: word, pos: p}, nil
	}

	for _, punct := range puncts {
		if strings.HasPrefix(l.src[l.off:], punct) {
			for range punct {
				l.advance()
			}
			return token{kind: tokPunct, text: punct, pos: p}, nil
		}
	}
	return token{}, l.errorf(p, "unexpected character %q", r)
}

func isDigit(c byte, base int) bool {
	switch base {
	case 2:
		return c == '0' || c == '1'
	case 8:
		return c >= '0' && c <= '7'
	case 16:
		return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
	default:
		return c >= '0' && c <= '9'
	}
}

func (l *lexer) digits(base int) string {
	var b strings.Builder
	for l.off < len(l.src) && (isDigit(l.src[l.off], base) || l.src[l.off] == '_') {
		if l.src[l.off] != '_' {
			b.WriteByte(l.src[l.off])
		}
		l.advance()
	}
	return b.String()
}

func (l *lexer) number(p pos) (token, error) {
	if l.src[l.off] == '0' {
		base := 0
		switch l.peek(1) {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			l.advance()
			l.advance()
			text := l.digits(base)
			n, err := strconv.ParseInt(text, base, 64)
			if err != nil {
				return token{}, l.errorf(p, "invalid integer literal")
			}
			return token{kind: tokInt, text: text, pos: p, ival: n}, nil
		}
	}

	text := l.digits(10)
	isFloat := false
	if l.peek(0) == '.' && isDigit(l.peek(1), 10) {
		isFloat = true
		l.advance()
		text += "." + l.digits(10)
	}
	if c := l.peek(0); c == 'e' || c == 'E' {
		next := l.peek(1)
		if isDigit(next, 10) || ((next == '+' || next == '-') && isDigit(l.peek(2), 10)) {
			isFloat = true
			l.advance()
			text += "e"
			if next == '+' || next == '-' {
				text += string(rune(next))
				l.advance()
			}
			text += l.digits(10)
		}
	}

	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, l.errorf(p, "invalid number literal %s", text)
		}
		return token{kind: tokFloat, text: text, pos: p, fval: f}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return token{}, l.errorf(p, "integer literal %s out of range", text)
	}
	return token{kind: tokInt, text: text, pos: p, ival: n}, nil
}

func (l *lexer) quoted(p pos, quote byte) (token, error) {
	l.advance()
	var b strings.Builder
	for {
		if l.off >= len(l.src) {
			return token{}, l.errorf(p, "unterminated string literal")
		}
		c := l.src[l.off]
		if c == quote {
			l.advance()
			return token{kind: tokString, text: b.String(), pos: p}, nil
		}
		if c == '\n' && quote == '\'' {
			return token{}, l.errorf(p, "unterminated character literal")
		}
		if c != '\\' {
			b.WriteRune(l.advance())
			continue
		}

		escPos := pos{l.line, l.col}
		l.advance()
		if l.off >= len(l.src) {
			return token{}, l.errorf(p, "unterminated string literal")
		}
		switch e := l.advance(); e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '0':
			b.WriteByte(0)
		case '\\', '"', '\'':
			b.WriteRune(e)
		case '\n':
			// line continuation: skip leading whitespace on the next line
			for l.off < len(l.src) && (l.src[l.off] == ' ' || l.src[l.off] == '\t') {
				l.advance()
			}
		case 'x', 'u', 'U':
			width := map[rune]int{'x': 2, 'u': 4, 'U': 8}[e]
			if l.off+width > len(l.src) {
				return token{}, l.errorf(escPos, "invalid escape sequence")
			}
			hex := l.src[l.off : l.off+width]
			n, err := strconv.ParseUint(hex, 16, 32)
			if err != nil || !utf8.ValidRune(rune(n)) {
				return token{}, l.errorf(escPos, "invalid escape sequence \\%c%s", e, hex)
			}
			for range width {
				l.advance()
			}
			b.WriteRune(rune(n))
		default:
			return token{}, l.errorf(escPos, "invalid escape sequence \\%c", e)
		}
	}
}
