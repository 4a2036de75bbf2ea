package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	apperrors "github.com/target/members-console/internal/errors"
)

func TestMemberInput_Validate(t *testing.T) {
	tests := []struct {
		name  string
		in    MemberInput
		field string
	}{
		{name: "valid", in: MemberInput{Name: " Jane Doe ", Email: "jane@example.com", PhoneNumber: "5551234567"}},
		{name: "blank name", in: MemberInput{Name: "  ", Email: "jane@example.com", PhoneNumber: "5551234567"}, field: "name"},
		{name: "blank email", in: MemberInput{Name: "Jane", PhoneNumber: "5551234567"}, field: "email"},
		{name: "invalid email", in: MemberInput{Name: "Jane", Email: "not-an-email", PhoneNumber: "5551234567"}, field: "email"},
		{name: "display name email", in: MemberInput{Name: "Jane", Email: "Jane <jane@example.com>", PhoneNumber: "5551234567"}, field: "email"},
		{name: "short phone", in: MemberInput{Name: "Jane", Email: "jane@example.com", PhoneNumber: "555123"}, field: "phoneNumber"},
		{name: "letters in phone", in: MemberInput{Name: "Jane", Email: "jane@example.com", PhoneNumber: "555123456x"}, field: "phoneNumber"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
}

func TestMemberInput_ValidateTrims(t *testing.T) {
	in := MemberInput{Name: " Jane ", Email: " jane@example.com ", PhoneNumber: " 5551234567 "}
	assert.NoError(t, in.Validate())
	assert.Equal(t, "Jane", in.Name)
	assert.Equal(t, "jane@example.com", in.Email)
}

func TestMembersListOptions_Normalize(t *testing.T) {
	opts := MembersListOptions{}
	opts.Normalize()
	assert.Equal(t, DefaultPageSize, opts.Size)

	opts = MembersListOptions{Size: 1000, Cursor: " abc "}
	opts.Normalize()
	assert.Equal(t, MaxPageSize, opts.Size)
	assert.Equal(t, "abc", opts.Cursor)
}

func TestCursorPage_HasMore(t *testing.T) {
	assert.False(t, CursorPage[Member]{}.HasMore())
	assert.True(t, CursorPage[Member]{NextCursor: "next"}.HasMore())
}

func TestRegistrationRequest_Validate(t *testing.T) {
	req := RegistrationRequest{FirstName: "Jane", LastName: "Doe", PhoneNumber: "5551234567"}
	assert.NoError(t, req.Validate())

	req = RegistrationRequest{FirstName: "Jane", PhoneNumber: "5551234567"}
	assert.Equal(t, "lastName", apperrors.GetField(req.Validate()))

	req = RegistrationRequest{FirstName: "Jane", LastName: "Doe", PhoneNumber: "123"}
	assert.Equal(t, "phoneNumber", apperrors.GetField(req.Validate()))
}
