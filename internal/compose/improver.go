package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"draft-polisher/internal/domain"
	"draft-polisher/internal/integrations/gateway"
	"draft-polisher/internal/logging"
)

// ErrInputAbsent means there is no draft text to rewrite.
var ErrInputAbsent = errors.New("compose: nothing to rewrite")

// Gate is the server side of a rewrite.
type Gate interface {
	Improve(ctx context.Context, ids domain.Identifiers, draft domain.DraftMessage) (gateway.Reply, error)
}

// IdentityState loads and stores the identifiers sent to the gate.
type IdentityState interface {
	Load(ctx context.Context) (domain.Identifiers, error)
	Save(ctx context.Context, persistentID, sessionToken string) error
}

// Improver runs one user-triggered rewrite against a compose window.
type Improver struct {
	gate  Gate
	state IdentityState
	log   logging.Logger
}

// NewImprover wires an Improver. log may be nil.
func NewImprover(gate Gate, state IdentityState, log logging.Logger) (*Improver, error) {
	if gate == nil {
		return nil, errors.New("compose: gate must not be nil")
	}
	if state == nil {
		return nil, errors.New("compose: identity state must not be nil")
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Improver{gate: gate, state: state, log: log}, nil
}

// Improve rewrites the draft in page. On any error the page is left as it was.
func (im *Improver) Improve(ctx context.Context, page Page) (Boundary, error) {
	host, err := DetectHost(page.Hostname())
	if err != nil {
		return Boundary{}, err
	}

	snap := page.Snapshot()
	b := Detect(snap.Markup, snap.Text)
	im.log.Debug("draft boundary", "host", host.Name, "rule", b.Rule, "side", string(b.Side),
		"new_text_len", len(b.NewText), "chain_len", len(b.PreservedChain))
	if strings.TrimSpace(b.NewText) == "" {
		return b, ErrInputAbsent
	}

	draft := domain.DraftMessage{
		Subject:            snap.Subject,
		NewText:            b.NewText,
		PreservedChain:     b.PreservedChain,
		RecipientFirstName: FirstName(snap.RecipientName, snap.RecipientEmail),
	}

	ids, err := im.state.Load(ctx)
	if err != nil {
		return b, fmt.Errorf("compose: load identifiers: %w", err)
	}

	reply, err := im.gate.Improve(ctx, ids, draft)
	if err != nil {
		return b, err
	}
	if err := im.state.Save(ctx, reply.PersistentID, reply.SessionToken); err != nil {
		im.log.Warn("failed to persist identifiers", "err", err)
	}

	Apply(page, host, reply.Result, b.ChainMarkup())
	im.log.Info("draft rewritten", "host", host.Name, "chain_preserved", b.PreservedChain != "")
	return b, nil
}
