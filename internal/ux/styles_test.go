package ux

import (
	"strings"
	"testing"
)

func TestKeyValues(t *testing.T) {
	out := KeyValues(
		Field{Key: "User", Value: "Alice Liddell"},
		Field{Key: "Permissions", Value: "x.read"},
	)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "User:") || !strings.Contains(lines[0], "Alice Liddell") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "Permissions:") {
		t.Errorf("unexpected second line %q", lines[1])
	}
}

func TestScriptedPrompter(t *testing.T) {
	p := &ScriptedPrompter{Secret: "secret"}
	login, password, err := p.Credentials(t.Context(), "Sign in", "alice")
	if err != nil || login != "alice" || password != "secret" {
		t.Errorf("Credentials() = %q, %q, %v", login, password, err)
	}
	if p.Requests != 1 {
		t.Errorf("Requests = %d", p.Requests)
	}
}
