package usecase

import (
	"errors"
	"fmt"
	"strings"

	"draft-polisher/internal/domain"
)

const (
	sectionSeparator = "---"
	subjectPrefix    = "SUBJECT:"
)

var (
	errTooFewSections = errors.New("usecase: rewrite reply has fewer than three sections")
	errMissingSubject = errors.New("usecase: rewrite reply does not start with SUBJECT:")
	errEmptySubject   = errors.New("usecase: rewrite reply has an empty subject")
	errEmptyBody      = errors.New("usecase: rewrite reply has an empty body")
)

// BuildPrompt renders the single instruction sent to the rewrite service.
// The original subject and body are embedded verbatim.
func BuildPrompt(d domain.DraftMessage) string {
	recipient := strings.TrimSpace(d.RecipientFirstName)
	if recipient == "" {
		recipient = domain.RecipientPlaceholder
	}
	return strings.Join([]string{
		"Rewrite this email to be more professional, maintaining the same core message but with improved language and structure.",
		"Use consistent formatting with exactly one blank line between paragraphs.",
		fmt.Sprintf("Use %q as the recipient name if provided.", recipient),
		fmt.Sprintf("Keep any original signature if found, otherwise use %s.", domain.SignerPlaceholder),
		"",
		"Output Contract:",
		outputContract(recipient),
		"",
		"Original email:",
		"Subject: " + d.Subject,
		"Body: " + d.NewText,
	}, "\n")
}

func outputContract(recipient string) string {
	return strings.Join([]string{
		"Format your response exactly like this:",
		subjectPrefix + " [subject line]",
		sectionSeparator,
		fmt.Sprintf("Most fitting greeting e.g. Dear, Hi, Hey, etc. for %s,", recipient),
		"",
		"[email body with consistent single-line spacing between paragraphs]",
		sectionSeparator,
		"Most suitable sign-off e.g. Thanks, Best Regards, Sincerely, etc.,",
		"",
		"[original signature / signer or " + domain.SignerPlaceholder + "]",
	}, "\n")
}

// ParseRewrite splits a reply on the "---" delimiter into subject, body and
// sign-off. A reply that breaks the contract yields no result at all.
func ParseRewrite(raw string) (domain.RewriteResult, error) {
	sections := strings.Split(raw, sectionSeparator)
	if len(sections) < 3 {
		return domain.RewriteResult{}, errTooFewSections
	}
	head := strings.TrimSpace(sections[0])
	if !strings.HasPrefix(head, subjectPrefix) {
		return domain.RewriteResult{}, errMissingSubject
	}
	subject := strings.TrimSpace(strings.TrimPrefix(head, subjectPrefix))
	if subject == "" {
		return domain.RewriteResult{}, errEmptySubject
	}
	body := trimLines(sections[1])
	if body == "" {
		return domain.RewriteResult{}, errEmptyBody
	}
	// A stray delimiter inside the sign-off stays part of it.
	signoff := trimLines(strings.Join(sections[2:], sectionSeparator))
	return domain.RewriteResult{Subject: subject, Body: body, Signoff: signoff}, nil
}

func trimLines(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}
