package compiler

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/loxvm/vm"
)

var log = commonlog.GetLogger("lox.compiler")

// ---------------------------------------------------------------------------
// Compiler: single-pass Pratt compiler from tokens to a chunk
// ---------------------------------------------------------------------------

// MaxNesting bounds how deeply groupings and operators may nest, so hostile
// input is reported instead of exhausting the goroutine stack.
const MaxNesting = 256

// Precedence orders binding strength, lowest first.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm   // + -
	PrecFactor // * /
	PrecUnary  // -
	PrecCall
	PrecPrimary
)

type parseFn func(c *Compiler)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

// rules is filled in init to break the initialization cycle between the
// table and the parse functions that consult it.
var rules map[TokenType]parseRule

func init() {
	rules = map[TokenType]parseRule{
		TokenLeftParen: {prefix: (*Compiler).grouping},
		TokenMinus:     {prefix: (*Compiler).unary, infix: (*Compiler).binary, precedence: PrecTerm},
		TokenPlus:      {infix: (*Compiler).binary, precedence: PrecTerm},
		TokenSlash:     {infix: (*Compiler).binary, precedence: PrecFactor},
		TokenStar:      {infix: (*Compiler).binary, precedence: PrecFactor},
		TokenNumber:    {prefix: (*Compiler).number},
	}
}

func getRule(t TokenType) parseRule {
	return rules[t]
}

// Diagnostic is one compile error with its location.
type Diagnostic struct {
	Line    int
	Where   string // " at 'x'", " at end", or "" for scanner errors
	Message string
	Start   int // byte span of the offending token
	Length  int
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("[line %d] Error%s: %s", d.Line, d.Where, d.Message)
}

// CompileError collects every diagnostic reported while compiling.
type CompileError struct {
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.String()
	}
	return strings.Join(msgs, "\n")
}

// Compiler holds the parser state for one compilation.
type Compiler struct {
	scanner  *Scanner
	chunk    *vm.Chunk
	current  Token
	previous Token

	diagnostics []Diagnostic
	panicMode   bool
	depth       int
}

// NewCompiler creates a compiler over source.
func NewCompiler(source string) *Compiler {
	return &Compiler{
		scanner: NewScanner(source),
		chunk:   vm.NewChunk(),
	}
}

// Compile compiles a single expression into a chunk ending in OpReturn.
// No chunk is returned when any diagnostic was reported.
func Compile(source string) (*vm.Chunk, error) {
	c := NewCompiler(source)
	return c.Compile()
}

// Compile runs the compiler to completion.
func (c *Compiler) Compile() (*vm.Chunk, error) {
	c.advance()
	c.expression()
	c.consume(TokenEOF, "Expect end of expression.")
	c.emitOp(vm.OpReturn)

	if len(c.diagnostics) > 0 {
		log.Debugf("compile failed with %d diagnostic(s)", len(c.diagnostics))
		return nil, &CompileError{Diagnostics: c.diagnostics}
	}
	log.Debugf("compiled %d code bytes, %d constants", c.chunk.Len(), c.chunk.Constants.Len())
	return c.chunk, nil
}

// Diagnostics returns the errors reported so far.
func (c *Compiler) Diagnostics() []Diagnostic {
	return c.diagnostics
}

// --- Token handling ---

func (c *Compiler) advance() {
	c.previous = c.current
	for {
		c.current = c.scanner.ScanToken()
		if c.current.Type != TokenError {
			return
		}
		c.errorAtCurrent(c.current.Message)
	}
}

func (c *Compiler) consume(t TokenType, message string) {
	if c.current.Type == t {
		c.advance()
		return
	}
	c.errorAtCurrent(message)
}

// --- Grammar ---

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

func (c *Compiler) parsePrecedence(prec Precedence) {
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > MaxNesting {
		c.errorAtCurrent("Expression nesting too deep.")
		return
	}

	c.advance()
	prefix := getRule(c.previous.Type).prefix
	if prefix == nil {
		c.error("Expect expression.")
		return
	}
	prefix(c)

	for prec <= getRule(c.current.Type).precedence {
		c.advance()
		infix := getRule(c.previous.Type).infix
		infix(c)
	}
}

func (c *Compiler) number() {
	lexeme := c.scanner.Lexeme(c.previous)
	f, err := strconv.ParseFloat(lexeme, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		c.error(fmt.Sprintf("Invalid number literal '%s'.", lexeme))
		return
	}
	c.emitConstant(vm.NumberValue(f))
}

func (c *Compiler) grouping() {
	c.expression()
	c.consume(TokenRightParen, "Expect ')' after expression.")
}

func (c *Compiler) unary() {
	operator := c.previous.Type
	line := c.previous.Line

	c.parsePrecedence(PrecUnary)

	switch operator {
	case TokenMinus:
		c.chunk.WriteOp(vm.OpNegate, line)
	}
}

func (c *Compiler) binary() {
	operator := c.previous.Type
	line := c.previous.Line
	rule := getRule(operator)

	// Left associative: the right operand binds one level tighter.
	c.parsePrecedence(rule.precedence + 1)

	switch operator {
	case TokenPlus:
		c.chunk.WriteOp(vm.OpAdd, line)
	case TokenMinus:
		c.chunk.WriteOp(vm.OpSubtract, line)
	case TokenStar:
		c.chunk.WriteOp(vm.OpMultiply, line)
	case TokenSlash:
		c.chunk.WriteOp(vm.OpDivide, line)
	}
}

// --- Emission ---

func (c *Compiler) emitOp(op vm.Opcode) {
	c.chunk.WriteOp(op, c.previous.Line)
}

func (c *Compiler) emitConstant(v vm.Value) {
	if _, err := c.chunk.EmitConstant(v, c.previous.Line); err != nil {
		c.error("Too many constants in one chunk.")
	}
}

// --- Error reporting ---

func (c *Compiler) error(message string) {
	c.errorAt(c.previous, message)
}

func (c *Compiler) errorAtCurrent(message string) {
	c.errorAt(c.current, message)
}

func (c *Compiler) errorAt(tok Token, message string) {
	if c.panicMode {
		return
	}
	c.panicMode = true

	d := Diagnostic{
		Line:    tok.Line,
		Message: message,
		Start:   tok.Start,
		Length:  tok.Length,
	}
	switch tok.Type {
	case TokenEOF:
		d.Where = " at end"
	case TokenError:
		// The message already describes the offending text.
	default:
		d.Where = fmt.Sprintf(" at '%s'", c.scanner.Lexeme(tok))
	}
	c.diagnostics = append(c.diagnostics, d)
}

// ---------------------------------------------------------------------------
// Token dump
// ---------------------------------------------------------------------------

// DumpTokens writes one line per token in source: the line number (or "|"
// when unchanged), the token category, and its lexeme. Error tokens show
// their message. Scanning continues past errors up to EOF.
func DumpTokens(w io.Writer, source string) {
	s := NewScanner(source)
	line := -1
	for {
		tok := s.ScanToken()
		if tok.Line != line {
			fmt.Fprintf(w, "%4d ", tok.Line)
			line = tok.Line
		} else {
			fmt.Fprint(w, "   | ")
		}
		if tok.Type == TokenError {
			fmt.Fprintf(w, "%-13s %s\n", tok.Type, tok.Message)
		} else {
			fmt.Fprintf(w, "%-13s '%s'\n", tok.Type, s.Lexeme(tok))
		}
		if tok.Type == TokenEOF {
			return
		}
	}
}
