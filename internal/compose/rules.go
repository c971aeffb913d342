package compose

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Side says which rendering a boundary was found in.
type Side string

const (
	SideNone   Side = ""
	SideMarkup Side = "markup"
	SideText   Side = "text"
)

type match struct {
	side  Side
	start int
	end   int
}

// rule is one boundary-marker predicate. Rules are evaluated in slice order
// and the first that matches either rendering wins, wherever it matched.
type rule struct {
	name  string
	match func(markup, text string) (match, bool)
}

const (
	weekday = `(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun)`
	month   = `(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)`
	wroteOn = `On ` + weekday + `, \d{1,2} ` + month + ` \d{4} at \d{1,2}:\d{2}(?: [AP]M)?, `
)

var rules = []rule{
	patternRule("outlook_reply_div", `(?i)<div id="divRplyFwdMsg"[^>]*>`),
	patternRule("outlook_border_top", `(?i)<div style="border-top:.*?From:`),
	patternRule("outlook_plain_header", `(?s)\n\nFrom:.*?\nSent:.*?\nTo:.*?\nSubject:`),
	patternRule("outlook_ms_font", `(?i)<div class="ms-font-weight-regular">From:`),
	patternRule("outlook_font_bold_from", `(?i)<font.*?><b>From:</b>`),
	patternRule("gmail_attr_wrote", `<div dir="ltr" class="gmail_attr">`+wroteOn+`.+? &lt;.+?&gt; wrote:</div>`),
	patternRule("wrote_header", wroteOn+`.+? (?:<[^>]+>|&lt;.+?&gt;) wrote:`),
	patternRule("gmail_attr_forwarded", `<div dir="ltr" class="gmail_attr">---------- Forwarded message ---------</div>`),
	patternRule("forwarded_marker", `\n\n---------- Forwarded message ---------`),
	patternRule("x_gmail_quote_div", `(?i)<div class="x_gmail_quote"`),
	patternRule("x_gmail_attr", `(?i)class="x_gmail_attr"`),
	patternRule("x_gmail_blockquote", `(?i)blockquote class="x_gmail_quote"`),
	patternRule("gmail_quote_div", `(?i)<div class="gmail_quote"`),
	{name: "reply_container", match: matchContainer},
}

// nextContainer finds where a following reply container starts, so that a
// structural match captures only the first contiguous chain.
var nextContainer = regexp.MustCompile(`(?i)<div id="divRplyFwdMsg"|<div class="x_gmail_quote"|<blockquote|<div class="gmail_quote"`)

func patternRule(name, expr string) rule {
	re := regexp.MustCompile(expr)
	return rule{
		name: name,
		match: func(markup, text string) (match, bool) {
			if loc := re.FindStringIndex(markup); loc != nil {
				return match{side: SideMarkup, start: tagStart(markup, loc[0]), end: len(markup)}, true
			}
			if loc := re.FindStringIndex(text); loc != nil {
				return match{side: SideText, start: loc[0], end: len(text)}, true
			}
			return match{}, false
		},
	}
}

// tagStart moves i back to the opening '<' when i falls inside a tag, so the
// preserved chain never starts halfway through an element. A match that
// starts the text of an element also takes that element's start tag.
func tagStart(markup string, i int) int {
	lt := strings.LastIndexByte(markup[:i], '<')
	if lt < 0 {
		return i
	}
	gt := strings.LastIndexByte(markup[:i], '>')
	if gt < lt {
		return lt
	}
	if gt == i-1 && i < len(markup) && markup[i] != '<' && lt+1 < len(markup) && markup[lt+1] != '/' {
		return lt
	}
	return i
}

func isContainer(t html.Token) bool {
	if t.Data == "blockquote" {
		return true
	}
	for _, a := range t.Attr {
		switch a.Key {
		case "id":
			if a.Val == "divRplyFwdMsg" {
				return true
			}
		case "class":
			for _, c := range strings.Fields(a.Val) {
				if c == "gmail_quote" || c == "x_gmail_quote" {
					return true
				}
			}
		}
	}
	return false
}

// matchContainer walks the markup's element tree for the first reply or
// forward container. The chain spans from that element's start tag to its
// end tag, extended up to the next container if one follows.
func matchContainer(markup, _ string) (match, bool) {
	z := html.NewTokenizer(strings.NewReader(markup))
	offset := 0
	start, depth := -1, 0
	var name string
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tokStart := offset
		offset += len(z.Raw())

		if start < 0 {
			if tt != html.StartTagToken {
				continue
			}
			if t := z.Token(); isContainer(t) {
				start, name, depth = tokStart, t.Data, 1
			}
			continue
		}
		switch tt {
		case html.StartTagToken:
			if n, _ := z.TagName(); string(n) == name {
				depth++
			}
		case html.EndTagToken:
			if n, _ := z.TagName(); string(n) == name {
				depth--
			}
		}
		if depth == 0 {
			// The chain stops where a following container starts; with
			// none, it runs to the end of the markup.
			end := len(markup)
			if loc := nextContainer.FindStringIndex(markup[offset:]); loc != nil {
				end = offset + loc[0]
			}
			return match{side: SideMarkup, start: start, end: end}, true
		}
	}
	if start < 0 {
		return match{}, false
	}
	return match{side: SideMarkup, start: start, end: len(markup)}, true
}
