package handwriting

import (
	"html"
	"strings"

	"inkpost/internal/domain"
)

const spanStyle = "font-family: 'Handwriting'; font-size: 16px;"

// Convert renders text as one span per character using the glyph fragment
// stored for that character, falling back to the DefaultChar fragment. Every
// character, whitespace included, passes through the same lookup.
func Convert(text string, table domain.StyleTable) (string, error) {
	if len(table) == 0 {
		return "", domain.ErrNoStyleTable
	}

	var b strings.Builder
	b.Grow(len(text) * (len(spanStyle) + 24))
	for _, r := range text {
		char := string(r)
		fragment, ok := table[char]
		if !ok {
			fragment = table[DefaultChar]
		}
		writeSpan(&b, char, fragment)
	}
	return b.String(), nil
}

func writeSpan(b *strings.Builder, char, fragment string) {
	b.WriteString(`<span style="`)
	b.WriteString(spanStyle)
	if usableFragment(fragment) {
		b.WriteString(" background-image: url(")
		b.WriteString(html.EscapeString(fragment))
		b.WriteString("); background-size: contain; background-repeat: no-repeat;")
	}
	b.WriteString(`">`)
	b.WriteString(html.EscapeString(char))
	b.WriteString("</span>")
}

// usableFragment accepts image data URLs and plain URLs that cannot break out
// of a CSS url() token.
func usableFragment(fragment string) bool {
	if fragment == "" {
		return false
	}
	if strings.ContainsAny(fragment, "'\"()\\ \t\r\n;") {
		return false
	}
	return strings.HasPrefix(fragment, "data:image/") ||
		strings.HasPrefix(fragment, "https://") ||
		strings.HasPrefix(fragment, "http://")
}
