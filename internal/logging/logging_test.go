package logging

import "testing"

func TestNewLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "info", "warn", "error"} {
		l, err := New(lvl)
		if err != nil {
			t.Fatalf("level %q: %v", lvl, err)
		}
		_ = l.Sync()
	}
	if _, err := New("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatalf("expected nop logger")
	}
}
