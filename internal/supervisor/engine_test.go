package supervisor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"llamad/internal/variant"
	"llamad/pkg/types"
)

func TestModelPath(t *testing.T) {
	a := types.Alias{Alias: "llama3", Repo: "meta/llama3", Filename: "model.gguf"}
	if got, want := ModelPath("/models", a), filepath.Join("/models", "meta/llama3", "model.gguf"); got != want {
		t.Fatalf("ModelPath = %q, want %q", got, want)
	}
	a.Snapshot = "abc123"
	if got, want := ModelPath("/models", a), filepath.Join("/models", "meta/llama3", "abc123", "model.gguf"); got != want {
		t.Fatalf("ModelPath with snapshot = %q, want %q", got, want)
	}
}

func TestBuildArgs(t *testing.T) {
	a := types.Alias{
		Alias:         "llama3:instruct",
		Repo:          "meta/llama3",
		Filename:      "model.gguf",
		ChatTemplate:  "llama3",
		ContextParams: []string{"--ctx-size 2048", "--n-gpu-layers 99"},
	}
	got := buildArgs(a, "/models/meta/llama3/model.gguf", "127.0.0.1", 32801)
	want := []string{
		"--alias", "llama3:instruct",
		"--model", "/models/meta/llama3/model.gguf",
		"--host", "127.0.0.1",
		"--port", "32801",
		"--chat-template", "llama3",
		"--ctx-size", "2048",
		"--n-gpu-layers", "99",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("buildArgs = %v, want %v", got, want)
	}
}

func TestSpawnHonorsCanceledContext(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, variant.ExecName)
	if err := os.WriteFile(exe, []byte("#!/bin/sh\nsleep 60\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv(variant.EnvVariant, "")
	sel := variant.NewSelector(dir, "", zerolog.Nop())
	if _, err := sel.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	eng := NewLlamaEngine(sel, dir, 0, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := eng.Spawn(ctx, types.Alias{Alias: "tiny", Repo: "org/tiny", Filename: "tiny.gguf"})
	if err == nil {
		_ = p.Stop(context.Background())
		t.Fatal("expected spawn to fail")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled in chain", err)
	}
}

func TestBuildArgsMinimal(t *testing.T) {
	a := types.Alias{Alias: "tiny", Repo: "org/tiny", Filename: "tiny.gguf"}
	got := buildArgs(a, "/m/tiny.gguf", "127.0.0.1", 9000)
	want := []string{"--alias", "tiny", "--model", "/m/tiny.gguf", "--host", "127.0.0.1", "--port", "9000"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("buildArgs = %v, want %v", got, want)
	}
}
