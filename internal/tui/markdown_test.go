package tui

import (
	"strings"
	"testing"
)

func TestRenderMarkdownPlainTerminal(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if got := RenderMarkdown("   \n", 80); got != "" {
		t.Fatalf("expected empty output for blank input; got %q", got)
	}

	out := RenderMarkdown("# Release\n\nShip the **board** today.", 40)
	if !strings.Contains(out, "Release") || !strings.Contains(out, "board") {
		t.Fatalf("expected heading and body in output; got %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no escape sequences with NO_COLOR; got %q", out)
	}
}
