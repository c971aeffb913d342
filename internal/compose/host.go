package compose

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedHost is returned before any network call when the page is not
// a recognised mail client.
var ErrUnsupportedHost = errors.New("compose: unsupported email client")

// Event names dispatched to the host editor after its content changes.
const (
	EventInput  = "input"
	EventChange = "change"
	EventFocus  = "focus"
	EventBlur   = "blur"
)

const outlookProofStyle = "font-family: Aptos, Aptos_EmbeddedFont, Aptos_MSFontService, Calibri, Helvetica, sans-serif; font-size: 10pt; color: rgb(0, 0, 0);"

// Host describes how a mail client's compose editor expects new content.
type Host struct {
	Name string
	// Events are dispatched in order once the body is replaced.
	Events []string
	// wrapClass, when set, wraps the rewritten lines in one div of that class.
	wrapClass string
	wrapStyle string
}

var (
	Gmail = Host{
		Name:   "gmail",
		Events: []string{EventInput},
	}
	Outlook = Host{
		Name:      "outlook",
		Events:    []string{EventInput, EventChange, EventFocus, EventBlur},
		wrapClass: "elementToProof",
		wrapStyle: outlookProofStyle,
	}
)

// DetectHost picks the host profile for a page hostname.
func DetectHost(hostname string) (Host, error) {
	h := strings.ToLower(strings.TrimSpace(hostname))
	switch {
	case strings.Contains(h, "mail.google.com"):
		return Gmail, nil
	case strings.Contains(h, "outlook.live.com"), strings.Contains(h, "outlook.office.com"):
		return Outlook, nil
	}
	return Host{}, fmt.Errorf("%w: %q", ErrUnsupportedHost, hostname)
}

// HostByName resolves a host profile from its configured name.
func HostByName(name string) (Host, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Gmail.Name:
		return Gmail, nil
	case Outlook.Name:
		return Outlook, nil
	}
	return Host{}, fmt.Errorf("%w: %q", ErrUnsupportedHost, name)
}

// Hostname returns a canonical page hostname for the profile.
func (h Host) Hostname() string {
	switch h.Name {
	case Gmail.Name:
		return "mail.google.com"
	case Outlook.Name:
		return "outlook.office.com"
	}
	return ""
}
