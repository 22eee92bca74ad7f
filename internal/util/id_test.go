package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("nom")
	if !strings.HasPrefix(id, "nom_") {
		t.Fatalf("expected nom_ prefix, got %q", id)
	}
	if len(id) != len("nom_")+32 {
		t.Fatalf("unexpected id length %d for %q", len(id), id)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := NewID("")
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
