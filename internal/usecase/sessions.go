package usecase

import (
	"context"
	"errors"
	"strings"

	"draft-polisher/internal/domain"
	"draft-polisher/internal/logging"
)

type SessionLister interface {
	ListSessions(ctx context.Context, identifier string) ([]domain.SessionIdentity, error)
}

// SessionsService exposes the session history of one identifier.
type SessionsService struct {
	store SessionLister
}

func NewSessionsService(store SessionLister) (*SessionsService, error) {
	if store == nil {
		return nil, errors.New("usecase: session lister must not be nil")
	}
	return &SessionsService{store: store}, nil
}

// List returns every session row carrying identifier, newest first, with the
// client address masked and the session token withheld.
func (s *SessionsService) List(ctx context.Context, identifier string) ([]domain.SessionIdentity, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, newError(ErrorInvalidInput, "missing_identifier", nil)
	}
	rows, err := s.store.ListSessions(ctx, identifier)
	if err != nil {
		return nil, newError(ErrorInternal, "session_list_error", err)
	}
	for i := range rows {
		rows[i].IPAddress = logging.MaskIP(rows[i].IPAddress)
		rows[i].SessionToken = ""
	}
	return rows, nil
}
