package compose

import (
	"strings"

	"draft-polisher/internal/domain"
)

// FirstName picks the name used to greet the recipient: the first word of the
// display name, else the local part of the address, else a placeholder.
func FirstName(displayName, email string) string {
	if fields := strings.Fields(displayName); len(fields) > 0 {
		return fields[0]
	}
	email = strings.TrimSpace(email)
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		return local
	}
	return domain.RecipientPlaceholder
}
