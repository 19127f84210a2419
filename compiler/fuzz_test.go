package compiler

import (
	"testing"

	"github.com/chazu/loxvm/vm"
)

// ---------------------------------------------------------------------------
// FuzzScanner: the scanner never panics and always reaches EOF.
// ---------------------------------------------------------------------------

func FuzzScanner(f *testing.F) {
	seeds := []string{
		// Punctuation
		`( ) { } , . - + ; / * ! != = == > >= < <=`,
		// Numbers
		`0`, `42`, `3.14`, `12.`, `.5`, `1.2.3`,
		// Strings
		`"hello"`, `""`, "\"multi\nline\"", `"unterminated`,
		// Identifiers and keywords
		`foo`, `_x1`, `and`, `class`, `while`, `café`,
		// Comments
		"// comment only", "1 // trailing\n2",
		// Edge cases
		``, `   `, "\t\n\r", "\x00", `@#$%^&`, "\xff\xfe", "€",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		s := NewScanner(data)
		prevEnd := 0
		for i := 0; i <= len(data)+1; i++ {
			tok := s.ScanToken()
			if tok.Start < prevEnd || tok.End() > len(data) {
				t.Fatalf("token %v out of order or bounds in %q", tok, data)
			}
			_ = s.Lexeme(tok)
			prevEnd = tok.End()
			if tok.Type == TokenEOF {
				return
			}
		}
		t.Fatalf("scanner did not reach EOF on %q", data)
	})
}

// ---------------------------------------------------------------------------
// FuzzCompile: compiling never panics, and every chunk it produces is
// well-formed and runs without a compile-class fault.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	seeds := []string{
		`1`, `1 + 2`, `-(1.2 + 3.4) / 5.6`, `((((1))))`, `1 - - - 2`,
		``, `(`, `)`, `+`, `1 +`, `1 2`, `"s"`, `nil`, `@`,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data string) {
		chunk, err := Compile(data)
		if err != nil {
			return
		}
		if err := chunk.Validate(); err != nil {
			t.Fatalf("compiled chunk for %q fails validation: %v", data, err)
		}
		_, err = vm.NewVM().Interpret(chunk)
		if vm.ResultOf(err) == vm.InterpretCompileError {
			t.Fatalf("compiled chunk for %q faulted as malformed: %v", data, err)
		}
	})
}
