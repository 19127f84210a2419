package compiler

import (
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Scanner: pull-based tokenizer for Lox source
// ---------------------------------------------------------------------------

// Scanner produces tokens on demand from an immutable source string.
// It works on bytes; multi-byte UTF-8 sequences are decoded only where a
// letter or an unexpected character has to be recognized.
type Scanner struct {
	source  string
	start   int // start of the token being scanned
	current int // next byte to consume
	line    int // current line (1-based)
}

// NewScanner creates a scanner positioned at the beginning of source.
func NewScanner(source string) *Scanner {
	return &Scanner{
		source: source,
		line:   1,
	}
}

// ScanToken skips whitespace and comments and returns the next token.
// Once the input is exhausted every call returns TokenEOF.
func (s *Scanner) ScanToken() Token {
	s.skipWhitespace()
	s.start = s.current

	if s.isAtEnd() {
		return s.makeToken(TokenEOF)
	}

	c := s.advance()
	switch c {
	case '(':
		return s.makeToken(TokenLeftParen)
	case ')':
		return s.makeToken(TokenRightParen)
	case '{':
		return s.makeToken(TokenLeftBrace)
	case '}':
		return s.makeToken(TokenRightBrace)
	case ';':
		return s.makeToken(TokenSemicolon)
	case ',':
		return s.makeToken(TokenComma)
	case '.':
		return s.makeToken(TokenDot)
	case '-':
		return s.makeToken(TokenMinus)
	case '+':
		return s.makeToken(TokenPlus)
	case '/':
		return s.makeToken(TokenSlash)
	case '*':
		return s.makeToken(TokenStar)
	case '!':
		return s.makeToken(s.choose('=', TokenBangEqual, TokenBang))
	case '=':
		return s.makeToken(s.choose('=', TokenEqualEqual, TokenEqual))
	case '<':
		return s.makeToken(s.choose('=', TokenLessEqual, TokenLess))
	case '>':
		return s.makeToken(s.choose('=', TokenGreaterEqual, TokenGreater))
	case '"':
		return s.scanString()
	}

	if isDigit(c) {
		return s.scanNumber()
	}
	if isAlpha(c) {
		return s.scanIdentifier()
	}
	if c >= utf8.RuneSelf {
		// Back up and decode the full rune so the token span stays valid UTF-8.
		s.current = s.start
		r, size := utf8.DecodeRuneInString(s.source[s.current:])
		s.current += size
		if unicode.IsLetter(r) {
			return s.scanIdentifier()
		}
	}
	return s.errorToken("Unexpected character.")
}

// Lexeme returns the source text covered by tok. It is a constant-time
// slice of the source.
func (s *Scanner) Lexeme(tok Token) string {
	return s.Text(tok.Start, tok.Length)
}

// Text returns the source bytes in [start, start+length), clamped to the
// source bounds. An out-of-range start yields "".
func (s *Scanner) Text(start, length int) string {
	if start < 0 || start > len(s.source) || length < 0 {
		return ""
	}
	end := start + length
	if end > len(s.source) {
		end = len(s.source)
	}
	return s.source[start:end]
}

// Source returns the text being scanned.
func (s *Scanner) Source() string {
	return s.source
}

// Line returns the scanner's current line.
func (s *Scanner) Line() int {
	return s.line
}

// ScanAll scans source to completion. The returned slice always ends with
// the TokenEOF sentinel.
func ScanAll(source string) []Token {
	s := NewScanner(source)
	var tokens []Token
	for {
		tok := s.ScanToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}

// StringValue strips the surrounding quotes from a string lexeme.
func StringValue(lexeme string) string {
	if len(lexeme) >= 2 && lexeme[0] == '"' && lexeme[len(lexeme)-1] == '"' {
		return lexeme[1 : len(lexeme)-1]
	}
	return lexeme
}

func (s *Scanner) isAtEnd() bool {
	return s.current >= len(s.source)
}

func (s *Scanner) advance() byte {
	c := s.source[s.current]
	s.current++
	return c
}

func (s *Scanner) peek() byte {
	if s.isAtEnd() {
		return 0
	}
	return s.source[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.source) {
		return 0
	}
	return s.source[s.current+1]
}

// match consumes the next byte if it equals expected.
func (s *Scanner) match(expected byte) bool {
	if s.isAtEnd() || s.source[s.current] != expected {
		return false
	}
	s.current++
	return true
}

func (s *Scanner) choose(expected byte, matched, otherwise TokenType) TokenType {
	if s.match(expected) {
		return matched
	}
	return otherwise
}

func (s *Scanner) makeToken(t TokenType) Token {
	return Token{
		Type:   t,
		Start:  s.start,
		Length: s.current - s.start,
		Line:   s.line,
	}
}

func (s *Scanner) errorToken(message string) Token {
	tok := s.makeToken(TokenError)
	tok.Message = message
	return tok
}

func (s *Scanner) skipWhitespace() {
	for !s.isAtEnd() {
		switch s.peek() {
		case ' ', '\r', '\t':
			s.current++
		case '\n':
			s.line++
			s.current++
		case '/':
			if s.peekNext() != '/' {
				return
			}
			for !s.isAtEnd() && s.peek() != '\n' {
				s.current++
			}
		default:
			return
		}
	}
}

func (s *Scanner) scanString() Token {
	for !s.isAtEnd() && s.peek() != '"' {
		if s.peek() == '\n' {
			s.line++
		}
		s.current++
	}
	if s.isAtEnd() {
		return s.errorToken("Unterminated string")
	}
	s.current++ // closing quote
	return s.makeToken(TokenString)
}

func (s *Scanner) scanNumber() Token {
	for isDigit(s.peek()) {
		s.current++
	}
	// The fractional part needs at least one digit after the dot.
	if s.peek() == '.' && isDigit(s.peekNext()) {
		s.current++
		for isDigit(s.peek()) {
			s.current++
		}
	}
	return s.makeToken(TokenNumber)
}

func (s *Scanner) scanIdentifier() Token {
	for !s.isAtEnd() {
		c := s.peek()
		if isAlpha(c) || isDigit(c) {
			s.current++
			continue
		}
		if c < utf8.RuneSelf {
			break
		}
		r, size := utf8.DecodeRuneInString(s.source[s.current:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		s.current += size
	}
	return s.makeToken(LookupIdent(s.source[s.start:s.current]))
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
