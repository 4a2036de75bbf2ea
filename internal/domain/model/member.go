//revive:disable-next-line:var-naming // legacy package name widely used across the project
package model

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	apperrors "github.com/target/members-console/internal/errors"
)

const (
	maxMemberNameLen = 255
	// DefaultPageSize is used when a list request carries no size.
	DefaultPageSize = 10
	// MaxPageSize caps list requests.
	MaxPageSize = 100
)

var phonePattern = regexp.MustCompile(`^[0-9]{10}$`)

// Member is a record served by the resource API.
type Member struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	PhoneNumber string   `json:"phoneNumber"`
	Roles       []string `json:"roles,omitempty"`
}

// MemberInput represents parameters to create or update a Member.
type MemberInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
}

// Normalize trims surrounding whitespace from every field.
func (in *MemberInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
}

// Validate mirrors the resource API's checks so the form can answer early.
func (in *MemberInput) Validate() error {
	in.Normalize()
	if in.Name == "" {
		return apperrors.ValidationField("name", "Name cannot be blank")
	}
	if utf8.RuneCountInString(in.Name) > maxMemberNameLen {
		return apperrors.ValidationField("name", "Name cannot exceed 255 characters")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return validatePhone(in.PhoneNumber)
}

// CursorPage is one page of a cursor-paginated listing.
type CursorPage[T any] struct {
	Data       []T    `json:"data"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// HasMore reports whether another page can be requested.
func (p CursorPage[T]) HasMore() bool { return p.NextCursor != "" }

// MembersListOptions controls paging for listing members.
type MembersListOptions struct {
	Size   int
	Cursor string
}

// Normalize clamps Size into [1, MaxPageSize], defaulting to DefaultPageSize.
func (o *MembersListOptions) Normalize() {
	switch {
	case o.Size <= 0:
		o.Size = DefaultPageSize
	case o.Size > MaxPageSize:
		o.Size = MaxPageSize
	}
	o.Cursor = strings.TrimSpace(o.Cursor)
}

func validateEmail(email string) error {
	if email == "" {
		return apperrors.ValidationField("email", "Email cannot be blank")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperrors.ValidationField("email", "Email should be valid")
	}
	return nil
}

func validatePhone(phone string) error {
	if phone == "" {
		return apperrors.ValidationField("phoneNumber", "Phone number cannot be blank")
	}
	if !phonePattern.MatchString(phone) {
		return apperrors.ValidationField("phoneNumber", "Phone number must be 10 digits")
	}
	return nil
}
