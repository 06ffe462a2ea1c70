package adapter

import (
	"strings"
	"testing"

	logx "delaybot/pkg/logx"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	if got := splitText("hello", 10); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("splitText = %#v", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(text, 10)
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("splitText = %#v", got)
	}
}

func TestSplitTextCountsRunes(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("🔔", 25)
	got := splitText(text, 10)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	for _, c := range got {
		if n := len([]rune(c)); n > 10 {
			t.Fatalf("chunk of %d runes exceeds limit", n)
		}
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: " "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
