package handwriting

import (
	"errors"
	"strings"
	"testing"

	"inkpost/internal/domain"
)

func TestConvertIsDeterministic(t *testing.T) {
	t.Parallel()

	table := domain.StyleTable{"a": "data:image/png;base64,QQ==", "H": "data:image/png;base64,SA=="}
	first, err := Convert("Ha", table)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	second, _ := Convert("Ha", table)
	if first != second {
		t.Fatalf("expected identical markup for identical input")
	}
	if strings.Count(first, "<span") != 2 {
		t.Fatalf("expected one span per character: %s", first)
	}
	if !strings.Contains(first, "url(data:image/png;base64,SA==)") {
		t.Fatalf("expected glyph for H: %s", first)
	}
}

func TestConvertFallsBackToDefaultFragment(t *testing.T) {
	t.Parallel()

	table := domain.StyleTable{"a": "data:image/png;base64,QQ=="}
	out, err := Convert("é", table)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if !strings.Contains(out, "url(data:image/png;base64,QQ==)") || !strings.Contains(out, ">é</span>") {
		t.Fatalf("expected default fragment around literal char: %s", out)
	}
}

func TestConvertPreservesWhitespaceAndEscapes(t *testing.T) {
	t.Parallel()

	out, err := Convert("a b\n<", PlaceholderTable())
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if strings.Count(out, "<span") != 5 {
		t.Fatalf("expected five spans, got: %s", out)
	}
	for _, want := range []string{"> </span>", ">\n</span>", ">&lt;</span>"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %s", want, out)
		}
	}
	if strings.Contains(out, "background-image") {
		t.Fatalf("placeholder fragments must not render images")
	}
}

func TestConvertDropsUnsafeFragments(t *testing.T) {
	t.Parallel()

	out, err := Convert("a", domain.StyleTable{"a": "x'); color: red"})
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if strings.Contains(out, "background-image") || strings.Contains(out, "color: red") {
		t.Fatalf("unsafe fragment leaked into markup: %s", out)
	}
}

func TestConvertWithoutTable(t *testing.T) {
	t.Parallel()

	if _, err := Convert("hello", nil); !errors.Is(err, domain.ErrNoStyleTable) {
		t.Fatalf("expected ErrNoStyleTable, got %v", err)
	}
}

func TestPlaceholderTableCoversAlphabet(t *testing.T) {
	t.Parallel()

	table := PlaceholderTable()
	if len(table) != 62 || !Complete(table) {
		t.Fatalf("expected 62 placeholder entries, got %d", len(table))
	}
}
