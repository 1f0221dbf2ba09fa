package normalize

import "testing"

func TestTextIsIdempotent(t *testing.T) {
	raw := "Line one  \r\nLine  two\r\n\r\n\r\n\r\nLine three   "
	once := Text(raw)
	twice := Text(once)
	if once != twice {
		t.Errorf("normalization not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestTextConvertsLoneCarriageReturnsToLF(t *testing.T) {
	macStyle := Text("Line one\rLine two\rLine three")
	unixStyle := Text("Line one\nLine two\nLine three")
	if macStyle != unixStyle {
		t.Errorf("lone-CR input normalized to %q, want %q", macStyle, unixStyle)
	}
	if Hash(macStyle) != Hash(unixStyle) {
		t.Error("expected lone-CR and LF-only snapshots to hash identically")
	}
}

func TestTextCollapsesBlankLinesAndSpaces(t *testing.T) {
	raw := "A\n\n\n\nB   C\t\tD"
	got := Text(raw)
	want := "A\n\nB C D"
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestHashDeterministicAndLowercaseHex(t *testing.T) {
	h1 := Hash("same input")
	h2 := Hash("same input")
	if h1 != h2 {
		t.Errorf("expected deterministic hash, got %q and %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64-char hex digest, got %d chars", len(h1))
	}
	for _, c := range h1 {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Errorf("expected lowercase hex digest, got %q", h1)
			break
		}
	}
}

func TestHashDiffersOnDifferentInput(t *testing.T) {
	if Hash("a") == Hash("b") {
		t.Error("expected different inputs to hash differently")
	}
}
