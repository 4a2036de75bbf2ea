package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/members-console/internal/domain/model"
	apperrors "github.com/target/members-console/internal/errors"
	"github.com/target/members-console/internal/mocks"
	"go.uber.org/mock/gomock"
)

// newMemberService creates mock repositories and a service for testing.
func newMemberService(t *testing.T) (*mocks.MockMemberRepository, *mocks.MockRegistrationRepository, *MemberService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	members := mocks.NewMockMemberRepository(ctrl)
	registration := mocks.NewMockRegistrationRepository(ctrl)
	svc := NewMemberService(MemberServiceOptions{Members: members, Registration: registration})
	return members, registration, svc
}

func validInput() model.MemberInput {
	return model.MemberInput{Name: "Jane Doe", Email: "jane@example.com", PhoneNumber: "5551234567"}
}

func TestNewMemberService_RequiredDependencies(t *testing.T) {
	ctrl := gomock.NewController(t)
	assert.Panics(t, func() {
		NewMemberService(MemberServiceOptions{Registration: mocks.NewMockRegistrationRepository(ctrl)})
	})
	assert.Panics(t, func() {
		NewMemberService(MemberServiceOptions{Members: mocks.NewMockMemberRepository(ctrl)})
	})
}

func TestMemberService_List_NormalizesPaging(t *testing.T) {
	t.Parallel()
	members, _, svc := newMemberService(t)
	ctx := context.Background()

	expected := model.CursorPage[model.Member]{Data: []model.Member{{ID: "1"}}, NextCursor: "n"}
	members.EXPECT().
		List(ctx, model.MembersListOptions{Size: model.DefaultPageSize, Cursor: "c"}).
		Return(expected, nil)

	page, err := svc.List(ctx, model.MembersListOptions{Cursor: " c "})
	require.NoError(t, err)
	assert.Equal(t, expected, page)
}

func TestMemberService_Create_Success(t *testing.T) {
	t.Parallel()
	members, _, svc := newMemberService(t)
	ctx := context.Background()

	in := validInput()
	members.EXPECT().Create(ctx, in).Return(&model.Member{ID: "m1", Name: in.Name}, nil)

	m, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
}

func TestMemberService_Create_ValidationSkipsRepository(t *testing.T) {
	t.Parallel()
	_, _, svc := newMemberService(t)

	in := validInput()
	in.PhoneNumber = "12345"
	_, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "phoneNumber", apperrors.GetField(err))
}

func TestMemberService_Update(t *testing.T) {
	t.Parallel()
	members, _, svc := newMemberService(t)
	ctx := context.Background()

	in := validInput()
	in.Name = "  Jane Roe "
	normalized := in
	normalized.Name = "Jane Roe"
	members.EXPECT().Update(ctx, "m1", normalized).Return(&model.Member{ID: "m1", Name: "Jane Roe"}, nil)

	m, err := svc.Update(ctx, "m1", in)
	require.NoError(t, err)
	assert.Equal(t, "Jane Roe", m.Name)

	in.Email = "broken"
	_, err = svc.Update(ctx, "m1", in)
	assert.Equal(t, "email", apperrors.GetField(err))
}

func TestMemberService_Delete_PropagatesErrors(t *testing.T) {
	t.Parallel()
	members, _, svc := newMemberService(t)
	ctx := context.Background()

	notFound := apperrors.NotFound("member not found")
	members.EXPECT().Delete(ctx, "gone").Return(notFound)
	members.EXPECT().Delete(ctx, "m1").Return(nil)

	assert.True(t, apperrors.IsNotFound(svc.Delete(ctx, "gone")))
	assert.NoError(t, svc.Delete(ctx, "m1"))
}

func TestMemberService_CompleteRegistration(t *testing.T) {
	t.Parallel()
	_, registration, svc := newMemberService(t)
	ctx := context.Background()

	req := model.RegistrationRequest{FirstName: "Jane", LastName: "Doe", PhoneNumber: "5551234567"}
	registration.EXPECT().CompleteRegistration(ctx, req).Return(nil)
	assert.NoError(t, svc.CompleteRegistration(ctx, req))

	err := svc.CompleteRegistration(ctx, model.RegistrationRequest{FirstName: "Jane"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestMemberService_Registration(t *testing.T) {
	t.Parallel()
	_, registration, svc := newMemberService(t)
	ctx := context.Background()

	registration.EXPECT().Registration(ctx).Return(nil, errors.New("boom"))
	_, err := svc.Registration(ctx)
	assert.Error(t, err)
}
