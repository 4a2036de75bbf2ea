//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"strings"

	apperrors "github.com/target/members-console/internal/errors"
)

// Registration is what the resource API knows about the signed-in principal.
type Registration struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	CreatedAt string `json:"createdAt,omitempty"`
	Complete  bool   `json:"complete"`
}

// RegistrationRequest completes the registration of the signed-in principal.
type RegistrationRequest struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
}

// Validate checks the request the same way the resource API does.
func (r *RegistrationRequest) Validate() error {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.PhoneNumber = strings.TrimSpace(r.PhoneNumber)
	if r.FirstName == "" {
		return apperrors.ValidationField("firstName", "First name cannot be blank")
	}
	if r.LastName == "" {
		return apperrors.ValidationField("lastName", "Last name cannot be blank")
	}
	return validatePhone(r.PhoneNumber)
}

// RegistrationRequiredResponse is the body the resource API answers with when
// the principal has no member record yet.
type RegistrationRequiredResponse struct {
	Message         string `json:"message"`
	RegistrationURL string `json:"registrationUrl"`
}
