// Package compose holds the client side of a rewrite: finding where quoted
// history starts in a draft, and writing the rewritten text back above it.
package compose

import (
	"html"
	"strings"
)

// Boundary splits a draft into the text to rewrite and the quoted history
// that must survive untouched.
type Boundary struct {
	NewText        string
	PreservedChain string
	// Rule names the marker that matched, empty when none did.
	Rule string
	Side Side
}

// Detect locates the first transition into quoted or forwarded history.
// markup and plainText must be renderings of the same editor state. When
// plainText is empty it is derived from markup.
func Detect(markup, plainText string) Boundary {
	if plainText == "" && markup != "" {
		plainText = RenderText(markup)
	}
	for _, r := range rules {
		m, ok := r.match(markup, plainText)
		if !ok {
			continue
		}
		b := Boundary{Rule: r.name, Side: m.side}
		switch m.side {
		case SideMarkup:
			b.PreservedChain = markup[m.start:m.end]
			b.NewText = strings.TrimSpace(truncateLogical(plainText, markup[:m.start]))
		case SideText:
			b.PreservedChain = plainText[m.start:m.end]
			b.NewText = strings.TrimSpace(plainText[:m.start])
		}
		return b
	}
	return Boundary{NewText: strings.TrimSpace(plainText)}
}

// ChainMarkup returns the preserved chain as editor markup. A chain found in
// the plain-text rendering is escaped and laid out one block per line so it
// reads as it did; a markup chain is returned unchanged.
func (b Boundary) ChainMarkup() string {
	if b.Side != SideText {
		return b.PreservedChain
	}
	text := strings.Trim(strings.ReplaceAll(b.PreservedChain, "\r\n", "\n"), "\n")
	if text == "" {
		return ""
	}
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			sb.WriteString(blankBlock)
			continue
		}
		sb.WriteString("<div>" + html.EscapeString(line) + "</div>")
	}
	return sb.String()
}
