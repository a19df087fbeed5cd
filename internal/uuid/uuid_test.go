package uuid

import (
	"strings"
	"testing"
)

func TestNewGeneratesValidV4(t *testing.T) {
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("New() produced invalid uuid: %q", id)
		}
		if IsLocal(id) {
			t.Fatalf("New() produced a local-prefixed id: %q", id)
		}
	}
}

func TestNewLocal(t *testing.T) {
	id := NewLocal()
	if !strings.HasPrefix(id, LocalPrefix) {
		t.Fatalf("NewLocal() missing prefix: %q", id)
	}
	if !IsLocal(id) {
		t.Errorf("IsLocal(%q) = false", id)
	}
	if !IsValid(id) {
		t.Errorf("IsValid(%q) = false", id)
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate uuid generated: %q", id)
		}
		seen[id] = true
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid v4", "550e8400-e29b-41d4-a716-446655440000", true},
		{"valid v4 uppercase", "550E8400-E29B-41D4-A716-446655440000", true},
		{"valid with local prefix", "local-550e8400-e29b-41d4-a716-446655440000", true},
		{"empty", "", false},
		{"bare prefix", "local-", false},
		{"wrong version", "550e8400-e29b-11d4-a716-446655440000", false},
		{"wrong variant", "550e8400-e29b-41d4-c716-446655440000", false},
		{"too short", "550e8400-e29b-41d4-a716", false},
		{"not a uuid", "not-a-uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.input); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("Validate(New()) = %v", err)
	}
	if err := Validate("garbage"); err == nil {
		t.Error("Validate(garbage) = nil, want error")
	}
}
