package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("TS_TOKEN", "secret")
	t.Setenv("TS_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"set", "token: ${TS_TOKEN}", "token: secret"},
		{"unset", "token: ${TS_UNSET_12345}", "token: "},
		{"default when unset", "${TS_UNSET_12345:-http://localhost:8080}", "http://localhost:8080"},
		{"default when empty", "${TS_EMPTY:-fallback}", "fallback"},
		{"default ignored when set", "${TS_TOKEN:-fallback}", "secret"},
		{"required and set", "${TS_TOKEN:?set a token}", "secret"},
		{"several", "${TS_TOKEN}/${TS_UNSET_12345:-x}", "secret/x"},
		{"no references", "plain $TS_TOKEN text", "plain $TS_TOKEN text"},
		{"empty default", "[${TS_UNSET_12345:-}]", "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandEnv(tt.input)
			if err != nil {
				t.Fatalf("ExpandEnv(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ExpandEnv(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandEnv_RequiredMissing(t *testing.T) {
	t.Setenv("TS_EMPTY", "")

	_, err := ExpandEnv("a: ${TS_UNSET_12345:?needed for auth}\nb: ${TS_EMPTY:?}")
	if err == nil {
		t.Fatal("expected error for missing required variables")
	}

	var missing *MissingEnvError
	if !errors.As(err, &missing) {
		t.Fatalf("error %v is not a *MissingEnvError", err)
	}
	if missing.Name != "TS_UNSET_12345" || missing.Message != "needed for auth" {
		t.Errorf("first missing = %+v", missing)
	}

	want := "environment variable TS_UNSET_12345 is required: needed for auth\n" +
		"environment variable TS_EMPTY is required"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestLoad_RequiredEnvMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turnstream.yaml")
	content := "endpoint:\n  url: ${TS_UNSET_ENDPOINT_12345:?set the backend URL}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	var missing *MissingEnvError
	if !errors.As(err, &missing) {
		t.Fatalf("Load error = %v, want *MissingEnvError", err)
	}
}

func TestLoad_ExpandsHeaders(t *testing.T) {
	t.Setenv("TS_HOOK_TOKEN", "hook-secret")

	path := filepath.Join(t.TempDir(), "turnstream.yaml")
	content := `adapter:
  type: webhook
  url: http://localhost:9/hook
  headers:
    Authorization: Bearer ${TS_HOOK_TOKEN}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := cfg.Adapter.Headers["Authorization"]; got != "Bearer hook-secret" {
		t.Errorf("Authorization header = %q", got)
	}
}
