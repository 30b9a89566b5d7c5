package main

import (
	"testing"

	"llamad/internal/config"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestMergeFlagsOverridesFileValues(t *testing.T) {
	cfg := config.Config{
		Addr:       ":9999",
		AliasesDir: "/etc/llamad/aliases",
		MaxReady:   4,
	}
	merged := mergeFlags(cfg, flags{
		addr:        ":8090",
		maxReady:    1,
		corsOrigins: "https://a.example, https://b.example",
	})
	if merged.Addr != ":8090" {
		t.Fatalf("addr = %s", merged.Addr)
	}
	if merged.AliasesDir != "/etc/llamad/aliases" {
		t.Fatalf("aliases dir = %s", merged.AliasesDir)
	}
	if merged.MaxReady != 1 {
		t.Fatalf("max ready = %d", merged.MaxReady)
	}
	if !merged.CORS.Enabled || len(merged.CORS.AllowedOrigins) != 2 {
		t.Fatalf("cors = %+v", merged.CORS)
	}
}

func TestMergeFlagsKeepsFileValuesWhenUnset(t *testing.T) {
	cfg := config.Config{Addr: ":9999", DefaultModel: "llama3"}
	merged := mergeFlags(cfg, flags{})
	if merged.Addr != ":9999" || merged.DefaultModel != "llama3" {
		t.Fatalf("merged = %+v", merged)
	}
}
