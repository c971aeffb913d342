package compose

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockAtoms are elements whose boundaries start a new line in a rendered
// plain-text view of the editor.
var blockAtoms = map[atom.Atom]bool{
	atom.Div: true, atom.P: true, atom.Blockquote: true, atom.Li: true,
	atom.Ul: true, atom.Ol: true, atom.Tr: true, atom.Table: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Pre: true, atom.Hr: true,
}

// RenderText renders editor markup the way a browser's innerText roughly
// would: block boundaries and <br> become newlines, runs of whitespace inside
// text collapse, entities are decoded.
func RenderText(markup string) string {
	var b strings.Builder
	newline := func() {
		s := b.String()
		if s != "" && !strings.HasSuffix(s, "\n") {
			b.WriteByte('\n')
		}
	}

	z := html.NewTokenizer(strings.NewReader(markup))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return trimLines(b.String())
		case html.TextToken:
			if skip > 0 {
				continue
			}
			b.WriteString(collapseSpace(string(z.Text())))
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case a == atom.Script || a == atom.Style || a == atom.Head:
				if tt == html.StartTagToken {
					skip++
				}
			case a == atom.Br:
				b.WriteByte('\n')
			case blockAtoms[a]:
				newline()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			switch {
			case a == atom.Script || a == atom.Style || a == atom.Head:
				if skip > 0 {
					skip--
				}
			case blockAtoms[a]:
				newline()
			}
		}
	}
}

func collapseSpace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// truncateLogical cuts plain after as many non-whitespace characters as the
// rendered markup prefix holds. The two renderings disagree on whitespace and
// entities, so byte offsets cannot be shared between them.
func truncateLogical(plain, markupPrefix string) string {
	want := countVisible(RenderText(markupPrefix))
	if want == 0 {
		return ""
	}
	seen := 0
	for i := 0; i < len(plain); {
		r, size := utf8.DecodeRuneInString(plain[i:])
		i += size
		if !unicode.IsSpace(r) {
			seen++
			if seen == want {
				return plain[:i]
			}
		}
	}
	return plain
}

func countVisible(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
