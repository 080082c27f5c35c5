package fanout

import (
	"strings"

	"github.com/dalemusser/collabhub/internal/app/system/normalize"
	"github.com/dalemusser/collabhub/internal/domain/models"
)

// Fallback names used when nothing better is known about a person.
const (
	FallbackTeamMember       = "Team Member"
	FallbackProfessionalUser = "Professional User"
)

// DisplayName picks the name shown in a notification message:
// explicit display name, then first + last, then the title-cased email
// local part, then fallback.
func DisplayName(u *models.User, hint, email, fallback string) string {
	if u != nil {
		if n := strings.TrimSpace(u.DisplayName); n != "" {
			return n
		}
		if n := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName)); n != "" {
			return n
		}
		if email == "" {
			email = u.Email
		}
	}
	if n := strings.TrimSpace(hint); n != "" {
		return n
	}
	if n := normalize.LocalPartTitle(email); n != "" {
		return n
	}
	return fallback
}
