package instance

import "testing"

func TestIDPrefersOverride(t *testing.T) {
	t.Setenv(EnvInstanceID, "  kiosk-3 ")
	if got := ID(); got != "kiosk-3" {
		t.Fatalf("expected kiosk-3, got %q", got)
	}
}

func TestIDFallsBack(t *testing.T) {
	t.Setenv(EnvInstanceID, "")
	if got := ID(); got == "" {
		t.Fatal("expected a non-empty id")
	}
}
