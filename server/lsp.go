package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/loxvm/compiler"
	"github.com/chazu/loxvm/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "lox-lsp"

var log = commonlog.GetLogger("lox.lsp")

// evalTimeout bounds how long hover waits for the worker.
const evalTimeout = 2 * time.Second

// LspServer serves diagnostics, hover and completion for Lox documents.
// Evaluation goes through a VMWorker so the VM is only touched from one
// goroutine.
type LspServer struct {
	worker *VMWorker

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server evaluating documents on v. A compiler is
// installed on v if it has none.
func NewLSP(v *vm.VM) *LspServer {
	if !v.HasCompiler() {
		v.UseCompiler(compiler.Compile)
	}
	s := &LspServer{
		worker:  NewVMWorker(v),
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// Close stops the evaluation worker.
func (s *LspServer) Close() {
	s.worker.Stop()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	log.Info("Lox LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.setDoc(uri, text)
	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) == 0 {
		return nil
	}
	last := params.ContentChanges[len(params.ContentChanges)-1]
	whole, ok := last.(protocol.TextDocumentContentChangeEventWhole)
	if !ok {
		return nil
	}
	s.setDoc(uri, whole.Text)
	s.publishDiagnostics(ctx, uri, whole.Text)
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) setDoc(uri protocol.DocumentUri, text string) {
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()
}

func (s *LspServer) doc(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.doc(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return completionItems(extractPrefix(text, params.Position)), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.doc(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	tok, ok := tokenAt(text, positionToOffset(text, params.Position))
	if !ok {
		return nil, nil
	}

	var result string
	if _, err := compiler.Compile(text); err == nil {
		evalCtx, cancel := context.WithTimeout(context.Background(), evalTimeout)
		defer cancel()
		v, err := s.worker.Evaluate(evalCtx, text)
		if err != nil {
			result = "error: " + err.Error()
		} else {
			result = v.String()
		}
	}

	return hoverFor(text, tok, result), nil
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := compileDiagnostics(text)
	if len(diagnostics) == 0 {
		evalCtx, cancel := context.WithTimeout(context.Background(), evalTimeout)
		defer cancel()
		_, err := s.worker.Evaluate(evalCtx, text)
		if d, ok := runtimeDiagnostic(text, err); ok {
			diagnostics = append(diagnostics, d)
		}
	}
	log.Debugf("%s: %d diagnostic(s)", uri, len(diagnostics))

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// compileDiagnostics compiles text and converts every reported error into
// an LSP diagnostic spanning the offending token.
func compileDiagnostics(text string) []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	_, err := compiler.Compile(text)
	if err == nil {
		return diagnostics
	}

	var compileErr *compiler.CompileError
	if !errors.As(err, &compileErr) {
		return append(diagnostics, newDiagnostic(protocol.Range{}, protocol.DiagnosticSeverityError, err.Error()))
	}
	for _, d := range compileErr.Diagnostics {
		r := protocol.Range{
			Start: offsetToPosition(text, d.Start),
			End:   offsetToPosition(text, d.Start+d.Length),
		}
		msg := d.Message
		if d.Where != "" {
			msg = "Error" + d.Where + ": " + d.Message
		}
		diagnostics = append(diagnostics, newDiagnostic(r, protocol.DiagnosticSeverityError, msg))
	}
	return diagnostics
}

// runtimeDiagnostic reports a fault raised while running a document that
// compiled cleanly. The whole faulting line is marked as a warning.
func runtimeDiagnostic(text string, err error) (protocol.Diagnostic, bool) {
	if err == nil {
		return protocol.Diagnostic{}, false
	}
	line := 0
	var rtErr *vm.RuntimeError
	var mcErr *vm.MalformedChunkError
	switch {
	case errors.As(err, &rtErr):
		line = rtErr.Line
	case errors.As(err, &mcErr):
		line = mcErr.Line
	}
	r := lineRange(text, line)
	return newDiagnostic(r, protocol.DiagnosticSeverityWarning, err.Error()), true
}

func newDiagnostic(r protocol.Range, severity protocol.DiagnosticSeverity, msg string) protocol.Diagnostic {
	source := lspName
	return protocol.Diagnostic{
		Range:    r,
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	}
}

// --- Hover and completion ---

// tokenAt returns the token whose span contains offset. EOF never matches.
func tokenAt(text string, offset int) (compiler.Token, bool) {
	for _, tok := range compiler.ScanAll(text) {
		if tok.Type == compiler.TokenEOF {
			break
		}
		if offset >= tok.Start && offset < tok.End() {
			return tok, true
		}
	}
	return compiler.Token{}, false
}

func hoverFor(text string, tok compiler.Token, result string) *protocol.Hover {
	var b strings.Builder
	lexeme := text[tok.Start:tok.End()]
	fmt.Fprintf(&b, "**%s** `%s`", tok.Type, lexeme)
	if tok.Type == compiler.TokenError {
		fmt.Fprintf(&b, "\n\n%s", tok.Message)
	}
	if result != "" {
		fmt.Fprintf(&b, "\n\n---\n\nExpression value: `%s`", result)
	}

	r := protocol.Range{
		Start: offsetToPosition(text, tok.Start),
		End:   offsetToPosition(text, tok.End()),
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
		Range: &r,
	}
}

// completionItems offers every reserved word starting with prefix.
func completionItems(prefix string) []protocol.CompletionItem {
	items := []protocol.CompletionItem{}
	if prefix == "" {
		return items
	}
	kind := protocol.CompletionItemKindKeyword
	detail := "keyword"
	for _, kw := range compiler.Keywords() {
		if !strings.HasPrefix(kw, prefix) {
			continue
		}
		label := kw
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &label,
		})
	}
	return items
}

// --- Text position helpers ---

// positionToOffset converts an LSP position to a byte offset. Characters
// are UTF-16 code units, as LSP 3.16 defines them; positions past the end
// clamp to the line or text end.
func positionToOffset(text string, pos protocol.Position) int {
	offset := 0
	for line := 0; line < int(pos.Line); line++ {
		nl := strings.IndexByte(text[offset:], '\n')
		if nl < 0 {
			return len(text)
		}
		offset += nl + 1
	}
	end := strings.IndexByte(text[offset:], '\n')
	if end < 0 {
		end = len(text) - offset
	}
	return offset + byteColumn(text[offset:offset+end], int(pos.Character))
}

// offsetToPosition converts a byte offset to an LSP position.
func offsetToPosition(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	before := text[:offset]
	line := strings.Count(before, "\n")
	lineStart := strings.LastIndexByte(before, '\n') + 1
	return protocol.Position{
		Line:      protocol.UInteger(line),
		Character: protocol.UInteger(utf16Len(before[lineStart:])),
	}
}

// utf16Len counts the UTF-16 code units needed to encode s. Invalid bytes
// count as one unit each.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16Width(r)
	}
	return n
}

// byteColumn returns the byte offset within line of the given UTF-16
// column. A column inside a surrogate pair rounds down to the rune start.
func byteColumn(line string, units int) int {
	n := 0
	for i, r := range line {
		w := utf16Width(r)
		if n+w > units {
			return i
		}
		n += w
	}
	return len(line)
}

func utf16Width(r rune) int {
	if r >= 0x10000 && r <= unicode.MaxRune {
		return 2
	}
	return 1
}

// lineRange spans the 1-based source line. Line 0 maps to the first line.
func lineRange(text string, line int) protocol.Range {
	if line < 1 {
		line = 1
	}
	start := positionToOffset(text, protocol.Position{Line: protocol.UInteger(line - 1)})
	end := start
	for end < len(text) && text[end] != '\n' {
		end++
	}
	return protocol.Range{
		Start: offsetToPosition(text, start),
		End:   offsetToPosition(text, end),
	}
}

// extractPrefix returns the identifier fragment before the cursor for
// completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := byteColumn(line, int(pos.Character))

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:start])
		if !isIdentRune(r) {
			break
		}
		start -= size
	}

	return line[start:col]
}

func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boolPtr(b bool) *bool {
	return &b
}
