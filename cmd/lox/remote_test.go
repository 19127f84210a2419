package main

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chazu/loxvm/server"
	"github.com/chazu/loxvm/vm"
)

func startServer(t *testing.T) string {
	t.Helper()
	s := server.New(vm.NewVM())
	ts := httptest.NewUnstartedServer(s.Handler())
	ts.Config.Protocols = server.Protocols()
	ts.Start()
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})
	return ts.Listener.Addr().String()
}

func TestRemote(t *testing.T) {
	addr := startServer(t)
	dir := t.TempDir()
	cfg := emptyConfig(t, dir)

	tests := []struct {
		name   string
		source string
		code   int
		stdout string
		stderr string
	}{
		{"value", "(1 + 2) * 3\n", 0, "9", ""},
		{"infinity", "1 / 0", 0, "inf", ""},
		{"compile error", "1 +", 65, "", "Expect expression."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writeFile(t, dir, "remote.lox", tt.source)
			code, stdout, stderr := runCLI(t, "", "-config", cfg, "-remote", addr, src)
			if code != tt.code {
				t.Fatalf("exit = %d, want %d (stderr %q)", code, tt.code, stderr)
			}
			if strings.TrimSpace(stdout) != tt.stdout {
				t.Errorf("stdout = %q, want %q", stdout, tt.stdout)
			}
			if !strings.Contains(stderr, tt.stderr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr, tt.stderr)
			}
		})
	}
}

func TestRemote_NeedsFile(t *testing.T) {
	dir := t.TempDir()
	cfg := emptyConfig(t, dir)

	code, _, stderr := runCLI(t, "", "-config", cfg, "-remote", "127.0.0.1:1")
	if code != exitUsage {
		t.Errorf("exit = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, "-remote needs an input file") {
		t.Errorf("stderr = %q", stderr)
	}
}
