package auth

import (
	"strings"

	"github.com/storefront/apiserver/internal/apperr"
)

// Authorize grants access when the caller holds at least one of the required roles.
// An empty required set allows everyone. Roles are compared as plain names with no hierarchy.
func Authorize(userID string, required, granted []string) error {
	if len(required) == 0 {
		return nil
	}
	for _, want := range required {
		for _, have := range granted {
			if want == have {
				return nil
			}
		}
	}
	return apperr.Authorization("user %s needs a valid role: [%s]", userID, strings.Join(required, ", "))
}
