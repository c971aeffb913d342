package compose

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"draft-polisher/internal/domain"
)

var sampleResult = domain.RewriteResult{
	Subject: "Lunch on Monday",
	Body:    "Hi Alice,\n\n\n\nSee you Monday.  \n",
	Signoff: "Best,\nAl",
}

func TestLines(t *testing.T) {
	got := Lines(domain.RewriteResult{
		Body:    "Hi Bob,\n\n\n\nLet us meet.  \n   \nThanks",
		Signoff: "Best,\nAl",
	})
	require.Equal(t, []string{"Hi Bob,", "", "Let us meet.", "", "Thanks", "", "Best,", "Al"}, got)
}

func TestLines_EmptySignoff(t *testing.T) {
	require.Equal(t, []string{"Only body"}, Lines(domain.RewriteResult{Body: " Only body \n\n"}))
}

func TestRender_Gmail(t *testing.T) {
	got := Render(sampleResult, "", Gmail)
	require.Equal(t,
		`<div>Hi Alice,</div><div><br></div><div>See you Monday.</div><div><br></div><div>Best,</div><div>Al</div>`,
		got)
}

func TestRender_EscapesText(t *testing.T) {
	got := Render(domain.RewriteResult{Body: "a < b & c"}, "", Gmail)
	require.Equal(t, `<div>a &lt; b &amp; c</div>`, got)
}

func TestRender_OutlookWrapsAndAppendsChain(t *testing.T) {
	got := Render(sampleResult, "<div>CHAIN</div>", Outlook)
	require.True(t, strings.HasPrefix(got, `<div class="elementToProof" style="font-family: Aptos`))
	require.True(t, strings.HasSuffix(got, `</div><div><br></div><div><br></div><div>CHAIN</div>`))
}

func TestRender_Idempotent(t *testing.T) {
	a := NewDocument("mail.google.com", "<div>old</div>")
	b := NewDocument("mail.google.com", "<div>other</div>")
	Apply(a, Gmail, sampleResult, "")
	Apply(b, Gmail, sampleResult, "")
	require.Equal(t, a.Body(), b.Body())

	Apply(a, Gmail, sampleResult, "")
	require.Equal(t, b.Body(), a.Body())
}

func TestApply_RoundTripPreservesChain(t *testing.T) {
	cases := []struct {
		name   string
		host   Host
		markup string
	}{
		{name: "gmail", host: Gmail, markup: gmailReply},
		{name: "outlook", host: Outlook, markup: outlookReply},
		{name: "structural", host: Gmail, markup: `<p>note</p><blockquote>q</blockquote>`},
		{name: "structural two containers", host: Gmail, markup: `<p>New note</p><blockquote>quoted one</blockquote><p>between</p><blockquote>quoted two</blockquote>`},
		{name: "structural with trailing markup", host: Outlook, markup: `<div>Hi</div><blockquote>a</blockquote><div>after</div>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chain := Detect(tc.markup, "").PreservedChain
			require.NotEmpty(t, chain)

			doc := NewDocument(tc.host.Hostname(), tc.markup)
			Apply(doc, tc.host, sampleResult, chain)

			snap := doc.Snapshot()
			again := Detect(snap.Markup, snap.Text)
			require.Equal(t, chain, again.PreservedChain)
			require.Equal(t, "Hi Alice,\n\nSee you Monday.\n\nBest,\nAl", again.NewText)
		})
	}
}

func TestApply_SubjectAndEvents(t *testing.T) {
	doc := NewDocument("outlook.office.com", "<div>x</div>", WithSubject("old"))
	var bodyAtEvent []string
	doc.OnChange(func(string) { bodyAtEvent = append(bodyAtEvent, doc.Body()) })

	Apply(doc, Outlook, sampleResult, "")

	require.Equal(t, "Lunch on Monday", doc.Subject())
	require.Equal(t, []string{EventInput, EventChange, EventFocus, EventBlur}, doc.Events())
	for _, body := range bodyAtEvent {
		require.Equal(t, doc.Body(), body)
	}
}

func TestApply_NoSubjectField(t *testing.T) {
	doc := NewDocument("mail.google.com", "<div>x</div>")
	Apply(doc, Gmail, sampleResult, "")
	require.Empty(t, doc.Subject())
	require.Equal(t, []string{EventInput}, doc.Events())
}

func TestApply_RoundTripPreservesTextChain(t *testing.T) {
	cases := []struct {
		name   string
		markup string
		rule   string
	}{
		{
			name:   "forwarded marker",
			markup: `<div>FYI below</div><div><br></div><div>---------- Forwarded message ---------</div><div>From: X</div>`,
			rule:   "forwarded_marker",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := NewDocument(Gmail.Hostname(), tc.markup)
			snap := doc.Snapshot()
			first := Detect(snap.Markup, snap.Text)
			require.Equal(t, tc.rule, first.Rule)
			require.Equal(t, SideText, first.Side)
			require.Equal(t, "FYI below", first.NewText)

			Apply(doc, Gmail, sampleResult, first.ChainMarkup())
			require.True(t, strings.HasSuffix(doc.Body(), `<div>---------- Forwarded message ---------</div><div>From: X</div>`))

			snap = doc.Snapshot()
			again := Detect(snap.Markup, snap.Text)
			require.Equal(t, first.PreservedChain, again.PreservedChain)
			require.Equal(t, first.ChainMarkup(), again.ChainMarkup())
			require.Equal(t, "Hi Alice,\n\nSee you Monday.\n\nBest,\nAl", again.NewText)
		})
	}
}

func TestApply_WroteHeaderTextChainIsStable(t *testing.T) {
	plain := "Hey, let's meet Tue.\n\nOn Mon, 1 Jan 2024 at 10:00 AM, Alice <a@x.com> wrote:\n> earlier"
	first := Detect("", plain)
	require.Equal(t, SideText, first.Side)

	doc := NewDocument(Gmail.Hostname(), "")
	Apply(doc, Gmail, sampleResult, first.ChainMarkup())

	snap := doc.Snapshot()
	again := Detect(snap.Markup, snap.Text)
	require.Equal(t, "wrote_header", again.Rule)
	require.Equal(t, first.ChainMarkup(), again.PreservedChain)
	require.Contains(t, snap.Text, "Alice <a@x.com> wrote:\n> earlier")

	doc2 := NewDocument(Gmail.Hostname(), "")
	Apply(doc2, Gmail, sampleResult, again.ChainMarkup())
	require.Equal(t, doc.Body(), doc2.Body())
}

func TestFirstName(t *testing.T) {
	require.Equal(t, "Alice", FirstName("Alice Smith", "a@x.com"))
	require.Equal(t, "bob.jones", FirstName("  ", "bob.jones@example.com"))
	require.Equal(t, domain.RecipientPlaceholder, FirstName("", ""))
	require.Equal(t, domain.RecipientPlaceholder, FirstName("", "@nolocal"))
}

func TestDetectHost(t *testing.T) {
	h, err := DetectHost("mail.google.com")
	require.NoError(t, err)
	require.Equal(t, Gmail.Name, h.Name)

	h, err = DetectHost("outlook.live.com")
	require.NoError(t, err)
	require.Equal(t, Outlook.Name, h.Name)

	_, err = DetectHost("example.com")
	require.ErrorIs(t, err, ErrUnsupportedHost)

	_, err = HostByName("yahoo")
	require.ErrorIs(t, err, ErrUnsupportedHost)
}
