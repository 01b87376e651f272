package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	parts := strings.Split(id, "-")
	if len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
	if parts[2][0] != '7' {
		t.Fatalf("UUIDv7: version nibble %q, want 7", parts[2][0])
	}
}

func TestUUIDv7_Sortable(t *testing.T) {
	gen := UUIDv7()
	prev := gen()
	for i := 0; i < 100; i++ {
		next := gen()
		if next <= prev {
			t.Fatalf("UUIDv7: %q not after %q", next, prev)
		}
		prev = next
	}
}

func TestRun(t *testing.T) {
	id := Run()
	if !strings.HasPrefix(id, "run_") || len(id) != len("run_")+36 {
		t.Fatalf("Run: got %q", id)
	}
}
