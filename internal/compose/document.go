package compose

import "sync"

// Snapshot is the draft state read in one step, so markup and text always
// describe the same content.
type Snapshot struct {
	Subject        string
	HasSubject     bool
	Markup         string
	Text           string
	RecipientName  string
	RecipientEmail string
}

// Page is a compose window: an Editor that can also be read.
type Page interface {
	Editor
	Hostname() string
	Snapshot() Snapshot
}

// Document is an in-memory compose window. It stands in for the browser
// editor in the CLI and in tests.
type Document struct {
	mu        sync.Mutex
	hostname  string
	subject   *string
	body      string
	recipient [2]string
	listeners []func(event string)
	events    []string
}

// DocumentOption configures a Document.
type DocumentOption func(*Document)

// WithSubject gives the document a subject field.
func WithSubject(subject string) DocumentOption {
	return func(d *Document) {
		d.subject = &subject
	}
}

// WithRecipient sets the first recipient's display name and address.
func WithRecipient(name, email string) DocumentOption {
	return func(d *Document) {
		d.recipient = [2]string{name, email}
	}
}

// NewDocument creates a compose window on hostname holding body markup.
func NewDocument(hostname, body string, opts ...DocumentOption) *Document {
	d := &Document{hostname: hostname, body: body}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Document) Hostname() string {
	return d.hostname
}

func (d *Document) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		Markup:         d.body,
		Text:           RenderText(d.body),
		RecipientName:  d.recipient[0],
		RecipientEmail: d.recipient[1],
	}
	if d.subject != nil {
		s.Subject, s.HasSubject = *d.subject, true
	}
	return s
}

func (d *Document) SetSubject(subject string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subject == nil {
		return false
	}
	*d.subject = subject
	return true
}

func (d *Document) SetBody(markup string) {
	d.mu.Lock()
	d.body = markup
	d.mu.Unlock()
}

// OnChange registers fn to receive every dispatched notification.
func (d *Document) OnChange(fn func(event string)) {
	d.mu.Lock()
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

func (d *Document) Dispatch(event string) {
	d.mu.Lock()
	d.events = append(d.events, event)
	listeners := append([]func(string){}, d.listeners...)
	d.mu.Unlock()
	for _, fn := range listeners {
		fn(event)
	}
}

// Body returns the current body markup.
func (d *Document) Body() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.body
}

// Subject returns the current subject, empty when the document has none.
func (d *Document) Subject() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subject == nil {
		return ""
	}
	return *d.subject
}

// Events returns the notifications dispatched so far.
func (d *Document) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}
