package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeAlias(t *testing.T, dir, file, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", file, err)
	}
}

func TestLoadDirAndResolve(t *testing.T) {
	d := t.TempDir()
	writeAlias(t, d, "llama3--instruct.yaml", `
alias: "llama3:instruct"
repo: meta-llama/Meta-Llama-3-8B-Instruct-GGUF
filename: Meta-Llama-3-8B-Instruct.Q8_0.gguf
snapshot: main
context_params:
  - "--ctx-size 2048"
request_params:
  temperature: 0.7
`)
	writeAlias(t, d, "phi3.yml", "alias: phi3\nrepo: microsoft/Phi-3-mini\nfilename: phi3.gguf\n")
	writeAlias(t, d, "notes.txt", "not an alias")

	r, err := LoadDir(d, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 aliases, got %d", r.Len())
	}
	a, err := r.Resolve("llama3:instruct")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.Repo != "meta-llama/Meta-Llama-3-8B-Instruct-GGUF" || a.Snapshot != "main" {
		t.Fatalf("unexpected alias: %+v", a)
	}
	if len(a.ContextParams) != 1 || a.ContextParams[0] != "--ctx-size 2048" {
		t.Fatalf("unexpected context params: %+v", a.ContextParams)
	}
	if v, ok := a.RequestParams["temperature"]; !ok || v.(float64) != 0.7 {
		t.Fatalf("unexpected request params: %+v", a.RequestParams)
	}
}

func TestResolveIsCaseSensitive(t *testing.T) {
	d := t.TempDir()
	writeAlias(t, d, "m.yaml", "alias: Llama3\nrepo: r\nfilename: f.gguf\n")
	r, err := LoadDir(d, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := r.Resolve("llama3"); !IsAliasNotFound(err) {
		t.Fatalf("expected alias-not-found, got %v", err)
	}
	if _, err := r.Resolve("Llama3"); err != nil {
		t.Fatalf("exact match failed: %v", err)
	}
}

func TestResolveUnknownAlias(t *testing.T) {
	d := t.TempDir()
	r, err := LoadDir(d, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, err = r.Resolve("ghost")
	if !IsAliasNotFound(err) {
		t.Fatalf("expected alias-not-found, got %v", err)
	}
}

func TestDuplicateAliasRejected(t *testing.T) {
	d := t.TempDir()
	writeAlias(t, d, "a.yaml", "alias: same\nrepo: r\nfilename: f.gguf\n")
	writeAlias(t, d, "b.yaml", "alias: same\nrepo: r2\nfilename: g.gguf\n")
	if _, err := LoadDir(d, zerolog.Nop()); err == nil {
		t.Fatalf("expected duplicate alias error")
	}
}

func TestReloadKeepsOldSnapshotOnError(t *testing.T) {
	d := t.TempDir()
	writeAlias(t, d, "a.yaml", "alias: m1\nrepo: r\nfilename: f.gguf\n")
	r, err := LoadDir(d, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	writeAlias(t, d, "b.yaml", "alias: [broken\n")
	if err := r.Reload(); err == nil {
		t.Fatalf("expected reload error")
	}
	if _, err := r.Resolve("m1"); err != nil {
		t.Fatalf("previous snapshot lost: %v", err)
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	d := t.TempDir()
	writeAlias(t, d, "a.yaml", "alias: m1\nrepo: r\nfilename: f.gguf\n")
	r, err := LoadDir(d, zerolog.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Watch(ctx)
	}()
	// Give the watcher a moment to install before writing.
	time.Sleep(100 * time.Millisecond)
	writeAlias(t, d, "b.yaml", "alias: m2\nrepo: r\nfilename: g.gguf\n")

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := r.Resolve("m2"); err == nil {
			cancel()
			<-done
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("watcher did not pick up new alias file")
}

func TestConfigFilename(t *testing.T) {
	cases := map[string]string{
		"llama3:instruct": "llama3--instruct.yaml",
		"llama3/instruct": "llama3--instruct.yaml",
		"phi3":            "phi3.yaml",
	}
	for in, want := range cases {
		if got := ConfigFilename(in); got != want {
			t.Fatalf("ConfigFilename(%q)=%q want %q", in, got, want)
		}
	}
}
