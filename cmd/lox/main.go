// Lox CLI - compiles and runs Lox expressions on the bytecode VM
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/loxvm/cache"
	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/manifest"
	"github.com/chazu/loxvm/server"
	"github.com/chazu/loxvm/vm"
)

var log = commonlog.GetLogger("lox.cli")

// Exit codes follow sysexits.h.
const (
	exitOK    = 0
	exitUsage = 64
	exitIO    = 74
)

// chunkExt marks files holding an encoded chunk rather than source.
const chunkExt = ".loxc"

type options struct {
	trace       bool
	disassemble bool
	tokens      bool
	lsp         bool
	noCache     bool
	serve       string
	remote      string
	output      string
	config      string
	verbosity   int
}

// app carries everything one invocation needs.
type app struct {
	opts   options
	cfg    *manifest.Manifest
	cache  *cache.Cache
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("lox", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.trace, "trace", false, "Trace the stack and each instruction to stderr")
	fs.BoolVar(&opts.disassemble, "disassemble", false, "Print the compiled chunk before running it")
	fs.BoolVar(&opts.tokens, "tokens", false, "Print the token stream and exit")
	fs.BoolVar(&opts.lsp, "lsp", false, "Start the language server on stdio")
	fs.BoolVar(&opts.noCache, "no-cache", false, "Bypass the compiled chunk cache")
	fs.StringVar(&opts.serve, "serve", "", "Serve the evaluation API (Connect and gRPC) on this address")
	fs.StringVar(&opts.remote, "remote", "", "Evaluate the file on a server at this address instead of locally")
	fs.StringVar(&opts.output, "o", "", "Compile only and write the encoded chunk to this file")
	fs.StringVar(&opts.config, "config", "", "Path to a lox.toml file (default: search upward from the working directory)")
	fs.IntVar(&opts.verbosity, "v", 0, "Log verbosity (-4 to 5)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: lox [options] [path]\n\n")
		fmt.Fprintf(stderr, "Runs a Lox expression file, or starts a REPL when no path is given.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  lox                        # Start REPL\n")
		fmt.Fprintf(stderr, "  lox expr.lox               # Compile and run a file\n")
		fmt.Fprintf(stderr, "  lox -o expr.loxc expr.lox  # Compile to an encoded chunk\n")
		fmt.Fprintf(stderr, "  lox expr.loxc              # Run an encoded chunk\n")
		fmt.Fprintf(stderr, "  lox -lsp                   # Start the language server\n")
		fmt.Fprintf(stderr, "  lox -serve :8080           # Serve the evaluation API\n")
		fmt.Fprintf(stderr, "  lox -remote host:8080 f.lox  # Evaluate on a server\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := loadConfig(opts.config)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}

	verbosity := cfg.Log.Verbosity
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "v" {
			verbosity = opts.verbosity
		}
	})
	commonlog.Configure(verbosity, cfg.LogFile())
	if cfg.VM.Trace {
		opts.trace = true
	}

	a := &app{
		opts:   opts,
		cfg:    cfg,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	if opts.lsp {
		return a.runLSP()
	}
	if opts.serve != "" {
		return a.runServer()
	}

	if fs.NArg() == 0 {
		if opts.output != "" {
			fmt.Fprintln(stderr, "Error: -o needs an input file")
			return exitUsage
		}
		if opts.remote != "" {
			fmt.Fprintln(stderr, "Error: -remote needs an input file")
			return exitUsage
		}
		return a.runREPL()
	}
	if opts.remote != "" {
		return a.runRemote(fs.Arg(0))
	}

	a.openCache()
	defer a.closeCache()
	return a.runFile(fs.Arg(0))
}

// loadConfig reads an explicit config file, or searches upward from the
// working directory. Without a file the defaults apply.
func loadConfig(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		return manifest.Default(), nil
	}
	return m, nil
}

func (a *app) newVM() *vm.VM {
	v := vm.NewVM()
	v.SetStackLimit(a.cfg.VM.StackLimit)
	v.UseCompiler(compiler.Compile)
	if a.opts.trace {
		v.SetTrace(a.stderr)
	}
	return v
}

func (a *app) openCache() {
	if !a.cfg.Cache.Enabled || a.opts.noCache {
		return
	}
	c, err := cache.Open(a.cfg.CachePath())
	if err != nil {
		log.Warningf("chunk cache disabled: %v", err)
		return
	}
	a.cache = c
}

func (a *app) closeCache() {
	if a.cache != nil {
		a.cache.Close()
	}
}

// runFile compiles and runs one file. Encoded chunks skip compilation.
func (a *app) runFile(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(a.stderr, "Could not open file %q: %v\n", path, err)
		return exitIO
	}

	var chunk *vm.Chunk
	if strings.EqualFold(filepath.Ext(path), chunkExt) {
		chunk, err = vm.UnmarshalChunk(data)
		if err != nil {
			fmt.Fprintf(a.stderr, "Error: %v\n", err)
			return vm.InterpretCompileError.ExitCode()
		}
	} else {
		source := string(data)
		if a.opts.tokens {
			compiler.DumpTokens(a.stdout, source)
			return exitOK
		}
		chunk, err = a.compile(source)
		if err != nil {
			fmt.Fprintln(a.stderr, err)
			return vm.InterpretCompileError.ExitCode()
		}
	}

	if a.opts.output != "" {
		return a.writeChunk(chunk)
	}

	return a.execute(chunk, filepath.Base(path))
}

// compile consults the cache before invoking the compiler and stores
// fresh results back.
func (a *app) compile(source string) (*vm.Chunk, error) {
	if a.cache != nil {
		chunk, ok, err := a.cache.Get(source)
		if err != nil {
			log.Warningf("chunk cache: %v", err)
		} else if ok {
			return chunk, nil
		}
	}

	chunk, err := compiler.Compile(source)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.Put(source, chunk); err != nil {
			log.Warningf("chunk cache: %v", err)
		}
	}
	return chunk, nil
}

func (a *app) writeChunk(chunk *vm.Chunk) int {
	data, err := vm.MarshalChunk(chunk)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return vm.InterpretCompileError.ExitCode()
	}
	if err := os.WriteFile(a.opts.output, data, 0o644); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitIO
	}
	log.Infof("wrote %s (%d bytes)", a.opts.output, len(data))
	return exitOK
}

// execute optionally disassembles chunk, runs it, and prints the result.
func (a *app) execute(chunk *vm.Chunk, name string) int {
	if a.opts.disassemble {
		chunk.DisassembleChunk(a.stdout, name)
	}
	result, err := a.newVM().Interpret(chunk)
	if err != nil {
		fmt.Fprintf(a.stderr, "%v\n", err)
		return vm.ResultOf(err).ExitCode()
	}
	fmt.Fprintln(a.stdout, result)
	return exitOK
}

func (a *app) runLSP() int {
	lsp := server.NewLSP(a.newVM())
	defer lsp.Close()
	if err := lsp.Run(); err != nil {
		fmt.Fprintf(a.stderr, "Server error: %v\n", err)
		return 1
	}
	return exitOK
}

func (a *app) runServer() int {
	srv := server.New(a.newVM())
	defer srv.Stop()
	if err := srv.ListenAndServe(a.opts.serve); err != nil {
		fmt.Fprintf(a.stderr, "Server error: %v\n", err)
		return 1
	}
	return exitOK
}

// remoteTimeout bounds one remote evaluation.
const remoteTimeout = 30 * time.Second

// runRemote sends a source file to a running server and prints the result
// the way a local run would.
func (a *app) runRemote(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(a.stderr, "Could not open file %q: %v\n", path, err)
		return exitIO
	}

	client, err := server.Dial(a.opts.remote)
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitIO
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()

	result, err := client.Evaluate(ctx, string(data))
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return exitIO
	}
	if !result.Success() {
		fmt.Fprintln(a.stderr, result.Error)
		return result.Outcome.ExitCode()
	}
	fmt.Fprintln(a.stdout, result.Display)
	return exitOK
}
