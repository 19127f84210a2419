package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/vm"
)

// runREPL reads one expression per line, compiles and runs it, and prints
// the result. Errors are reported and the loop continues.
func (a *app) runREPL() int {
	fmt.Fprintln(a.stdout, "Lox REPL (type 'exit' to quit, ':help' for commands)")

	v := a.newVM()
	scanner := bufio.NewScanner(a.stdin)

	for {
		fmt.Fprint(a.stdout, a.cfg.REPL.Prompt)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			fmt.Fprintln(a.stdout)
			return exitOK
		case strings.HasPrefix(line, ":"):
			a.handleREPLCommand(line)
			continue
		}

		a.evalAndPrint(v, line)
	}

	fmt.Fprintln(a.stdout)
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(a.stderr, "Error reading input: %v\n", err)
		return exitIO
	}
	return exitOK
}

// handleREPLCommand handles REPL meta-commands
func (a *app) handleREPLCommand(cmd string) {
	switch cmd {
	case ":help", ":h", ":?":
		fmt.Fprintln(a.stdout, "REPL Commands:")
		fmt.Fprintln(a.stdout, "  :help, :h, :?     Show this help")
		fmt.Fprintln(a.stdout, "  :disassemble      Toggle chunk disassembly")
		fmt.Fprintln(a.stdout, "  :tokens           Toggle token dump")
		fmt.Fprintln(a.stdout, "  exit, quit        Exit REPL")
	case ":disassemble":
		a.opts.disassemble = !a.opts.disassemble
		fmt.Fprintf(a.stdout, "disassemble: %v\n", a.opts.disassemble)
	case ":tokens":
		a.opts.tokens = !a.opts.tokens
		fmt.Fprintf(a.stdout, "tokens: %v\n", a.opts.tokens)
	default:
		fmt.Fprintf(a.stdout, "Unknown command: %s (try :help)\n", cmd)
	}
}

func (a *app) evalAndPrint(v *vm.VM, line string) {
	if a.opts.tokens {
		compiler.DumpTokens(a.stdout, line)
	}
	chunk, err := compiler.Compile(line)
	if err != nil {
		fmt.Fprintln(a.stderr, err)
		return
	}
	if a.opts.disassemble {
		chunk.DisassembleChunk(a.stdout, "repl")
	}
	result, err := v.Interpret(chunk)
	if err != nil {
		fmt.Fprintf(a.stderr, "%v\n", err)
		return
	}
	fmt.Fprintln(a.stdout, result)
}
