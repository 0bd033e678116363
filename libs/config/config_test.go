package config

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("TX_TIMEOUT", "")
	d, err := Duration("TX_TIMEOUT", 5*time.Second)
	if err != nil || d != 5*time.Second {
		t.Fatalf("expected fallback 5s, got %v (%v)", d, err)
	}

	t.Setenv("TX_TIMEOUT", "3")
	d, err = Duration("TX_TIMEOUT", time.Second)
	if err != nil || d != 3*time.Second {
		t.Fatalf("expected 3s from bare integer, got %v (%v)", d, err)
	}

	t.Setenv("TX_TIMEOUT", "750ms")
	d, err = Duration("TX_TIMEOUT", time.Second)
	if err != nil || d != 750*time.Millisecond {
		t.Fatalf("expected 750ms, got %v (%v)", d, err)
	}

	t.Setenv("TX_TIMEOUT", "soon")
	if _, err := Duration("TX_TIMEOUT", time.Second); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("OUTBOX_BATCH_SIZE", "25")
	n, err := Int("OUTBOX_BATCH_SIZE", 50)
	if err != nil || n != 25 {
		t.Fatalf("expected 25, got %d (%v)", n, err)
	}
	t.Setenv("OUTBOX_BATCH_SIZE", "-1")
	if _, err := Int("OUTBOX_BATCH_SIZE", 50); err == nil {
		t.Fatal("expected error for negative value")
	}

	t.Setenv("OTEL_ENABLED", "off")
	if Bool("OTEL_ENABLED", true) {
		t.Fatal("expected off to parse as false")
	}
	t.Setenv("OTEL_ENABLED", "maybe")
	if !Bool("OTEL_ENABLED", true) {
		t.Fatal("expected unknown value to fall back")
	}
}

func TestPort(t *testing.T) {
	t.Setenv("PORT", "70000")
	if _, err := Port("PORT", "8083"); err == nil {
		t.Fatal("expected out of range port to fail")
	}
	t.Setenv("PORT", "")
	p, err := Port("PORT", "8083")
	if err != nil || p != "8083" {
		t.Fatalf("expected fallback port, got %q (%v)", p, err)
	}
}
