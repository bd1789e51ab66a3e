package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	if !strings.Contains(String(), Number) {
		t.Errorf("String() = %q, want it to contain %q", String(), Number)
	}
}

func TestUpsd(t *testing.T) {
	if !strings.Contains(Upsd(), "upsd") {
		t.Errorf("Upsd() = %q, want it to contain \"upsd\"", Upsd())
	}
}
