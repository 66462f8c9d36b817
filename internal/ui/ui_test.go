package ui

import (
	"strings"
	"testing"
)

func withColor(t *testing.T, enabled bool) {
	t.Helper()
	prev := colorEnabled
	SetColor(enabled)
	t.Cleanup(func() { SetColor(prev) })
}

func TestRender_NoColor(t *testing.T) {
	withColor(t, false)

	tests := []struct {
		name string
		fn   func(string) string
	}{
		{"accent", RenderAccent},
		{"pass", RenderPass},
		{"warn", RenderWarn},
		{"error", RenderError},
		{"muted", RenderMuted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn("✓ done"); got != "✓ done" {
				t.Errorf("render without color = %q, want the input unchanged", got)
			}
		})
	}
}

func TestRender_KeepsText(t *testing.T) {
	withColor(t, true)

	// The escape codes depend on the detected color profile; the text
	// itself always survives.
	if got := RenderPass("ok"); !strings.Contains(got, "ok") {
		t.Errorf("RenderPass() = %q", got)
	}
}
