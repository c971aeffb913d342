package compose

import (
	"html"
	"strings"

	"draft-polisher/internal/domain"
)

const blankBlock = "<div><br></div>"

// Editor is the host editor a rewrite is written into.
type Editor interface {
	// SetSubject replaces the subject and reports whether the editor has one.
	SetSubject(subject string) bool
	SetBody(markup string)
	// Dispatch delivers a content-changed notification synchronously.
	Dispatch(event string)
}

// Lines joins body and signoff with a blank line, trims every line and
// collapses runs of blank lines into one.
func Lines(result domain.RewriteResult) []string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(result.Body); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(result.Signoff); s != "" {
		parts = append(parts, s)
	}
	joined := strings.ReplaceAll(strings.Join(parts, "\n\n"), "\r\n", "\n")

	var out []string
	blank := false
	for _, line := range strings.Split(joined, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if blank || len(out) == 0 {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	if n := len(out); n > 0 && out[n-1] == "" {
		out = out[:n-1]
	}
	return out
}

// Render builds the editor markup for a rewrite: one block per line, blank
// lines as explicit empty blocks, then the preserved chain verbatim beneath
// two blank blocks.
func Render(result domain.RewriteResult, chain string, host Host) string {
	var b strings.Builder
	if host.wrapClass != "" {
		b.WriteString(`<div class="` + host.wrapClass + `" style="` + host.wrapStyle + `">`)
	}
	for _, line := range Lines(result) {
		if line == "" {
			b.WriteString(blankBlock)
			continue
		}
		b.WriteString("<div>" + html.EscapeString(line) + "</div>")
	}
	if host.wrapClass != "" {
		b.WriteString("</div>")
	}
	if chain != "" {
		b.WriteString(blankBlock + blankBlock)
		b.WriteString(chain)
	}
	return b.String()
}

// Apply writes result into ed above chain and notifies the host. The
// notifications run on the caller's goroutine right after the mutation.
func Apply(ed Editor, host Host, result domain.RewriteResult, chain string) {
	if s := strings.TrimSpace(result.Subject); s != "" {
		ed.SetSubject(s)
	}
	ed.SetBody(Render(result, chain, host))
	for _, ev := range host.Events {
		ed.Dispatch(ev)
	}
}
