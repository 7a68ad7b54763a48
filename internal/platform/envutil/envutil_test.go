package envutil

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("SB_TEST_DUR", "90s")
	if got := Duration("SB_TEST_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("Duration: got %v", got)
	}
	t.Setenv("SB_TEST_DUR", "45")
	if got := Duration("SB_TEST_DUR", time.Second); got != 45*time.Second {
		t.Fatalf("Duration seconds: got %v", got)
	}
	t.Setenv("SB_TEST_DUR", "soon")
	if got := Duration("SB_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("Duration fallback: got %v", got)
	}
}

func TestBoolAndInt(t *testing.T) {
	t.Setenv("SB_TEST_BOOL", "on")
	if !Bool("SB_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("SB_TEST_BOOL", "maybe")
	if Bool("SB_TEST_BOOL", false) {
		t.Fatalf("expected default")
	}
	t.Setenv("SB_TEST_INT", "x")
	if Int("SB_TEST_INT", 7) != 7 {
		t.Fatalf("expected default int")
	}
}
