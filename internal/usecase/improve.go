package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"draft-polisher/internal/domain"
	"draft-polisher/internal/identity"
	"draft-polisher/internal/logging"
	"draft-polisher/internal/quota"
)

type IdentityResolver interface {
	Resolve(ctx context.Context, ids domain.Identifiers, ip string, now time.Time) (domain.CanonicalIdentity, error)
}

type QuotaReserver interface {
	CheckAndReserve(ctx context.Context, identity string, now time.Time) (quota.Decision, error)
}

// Rewriter is the generative rewrite service.
type Rewriter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type ImproveService struct {
	resolver IdentityResolver
	quota    QuotaReserver
	rewriter Rewriter
	log      logging.Logger
	now      func() time.Time
}

type ImproveInput struct {
	Identifiers domain.Identifiers
	Draft       domain.DraftMessage
	IPAddress   string
}

type ImproveOutput struct {
	PersistentID string
	SessionToken string
	Result       domain.RewriteResult
	// IdentityCreated is set when a new persistent id was minted.
	IdentityCreated bool
	// QuotaUsed is today's count including this request.
	QuotaUsed int
}

func NewImproveService(r IdentityResolver, q QuotaReserver, rw Rewriter, log logging.Logger) (*ImproveService, error) {
	if r == nil {
		return nil, errors.New("usecase: identity resolver must not be nil")
	}
	if q == nil {
		return nil, errors.New("usecase: quota reserver must not be nil")
	}
	if rw == nil {
		return nil, errors.New("usecase: rewriter must not be nil")
	}
	if log == nil {
		log = logging.Nop()
	}
	return &ImproveService{resolver: r, quota: q, rewriter: rw, log: log, now: time.Now}, nil
}

// Improve gates one rewrite: identity first, then quota, then the upstream
// call. Quota is consumed before the upstream call and is not refunded when
// that call fails.
//
// Once identity is resolved, the returned output carries the persistent id
// and session token even when err is non-nil.
func (s *ImproveService) Improve(ctx context.Context, in ImproveInput) (ImproveOutput, error) {
	if strings.TrimSpace(in.Draft.NewText) == "" {
		return ImproveOutput{}, newError(ErrorInvalidInput, "missing_body", nil)
	}
	now := s.now().UTC()

	id, err := s.resolver.Resolve(ctx, in.Identifiers, in.IPAddress, now)
	if err != nil {
		reason := "identity_unresolved"
		if errors.Is(err, identity.ErrNoIdentifiers) {
			reason = "no_identifiers"
		}
		return ImproveOutput{}, newError(ErrorIdentityDenied, reason, err)
	}
	out := ImproveOutput{PersistentID: id.PersistentID, SessionToken: id.SessionToken, IdentityCreated: id.Created}

	decision, err := s.quota.CheckAndReserve(ctx, id.PersistentID, now)
	if err != nil {
		return out, newError(ErrorInternal, "quota_store_error", err)
	}
	out.QuotaUsed = decision.Count
	if !decision.Allowed {
		return out, newError(ErrorQuotaExceeded, decision.Reason, nil)
	}

	raw, err := s.rewriter.Complete(ctx, BuildPrompt(in.Draft))
	if err != nil {
		if status, ok := upstreamStatusCode(err); ok {
			s.log.Warn("rewrite service returned an error status", "status", status)
		}
		return out, newError(ErrorUpstream, "rewrite_error", err)
	}

	result, err := ParseRewrite(raw)
	if err != nil {
		return out, newError(ErrorUpstream, "rewrite_malformed_response", err)
	}
	out.Result = result

	s.log.Info("draft improved",
		"created_identity", id.Created,
		"quota_used", decision.Count,
		"quota_limit", decision.Limit,
	)
	return out, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var coder httpStatusCoder
	if !errors.As(err, &coder) {
		return 0, false
	}
	return coder.HTTPStatusCode(), true
}
