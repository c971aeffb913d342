package domain

// RecipientPlaceholder is sent to the rewrite service when no recipient name
// can be derived from the draft.
const RecipientPlaceholder = "[Recipient Name]"

// SignerPlaceholder is what the rewrite service is told to sign with when the
// original draft carries no discernible signature.
const SignerPlaceholder = "[Your Name]"

// DraftMessage is the client's view of one draft for a single rewrite.
type DraftMessage struct {
	Subject            string `json:"subject"`
	NewText            string `json:"body"`
	PreservedChain     string `json:"-"`
	RecipientFirstName string `json:"recipient"`
}

// RewriteResult is the parsed reply of the rewrite service.
type RewriteResult struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Signoff string `json:"signoff"`
}
