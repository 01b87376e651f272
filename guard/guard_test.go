package guard

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		base, input string
		wantErr     bool
	}{
		{"/data/output", "alice@example.com", false},
		{"/data/output", "../etc/passwd", true},
		{"/data/output", "a/../../outside", true},
		{"/data/output", "", true},
		{"/data/output", "/", true},
		{"/data/output", "bob+test@example.com", false},
	}
	for _, tt := range tests {
		_, err := SafePath(tt.base, tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("SafePath(%q, %q) error=%v, wantErr=%v", tt.base, tt.input, err, tt.wantErr)
		}
	}
}

func TestSafePath_Joined(t *testing.T) {
	got, err := SafePath("out", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join("out", "alice") {
		t.Errorf("SafePath: got %q", got)
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(bytes.NewReader([]byte("hello")), 5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("LimitedReadAll at limit: %q, %v", data, err)
	}
	if _, err := LimitedReadAll(bytes.NewReader([]byte("hello!")), 5); err == nil {
		t.Fatal("expected error over limit")
	}
}
