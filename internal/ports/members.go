package ports

import (
	"context"

	"github.com/target/members-console/internal/domain/model"
)

// MemberRepository is the resource API as seen by the console. Calls are made
// on behalf of the browser session carried by ctx.
type MemberRepository interface {
	List(ctx context.Context, opts model.MembersListOptions) (model.CursorPage[model.Member], error)
	Get(ctx context.Context, id string) (*model.Member, error)
	Create(ctx context.Context, in model.MemberInput) (*model.Member, error)
	Update(ctx context.Context, id string, in model.MemberInput) (*model.Member, error)
	Delete(ctx context.Context, id string) error
}

// RegistrationRepository reads and completes the principal's registration.
type RegistrationRepository interface {
	Registration(ctx context.Context) (*model.Registration, error)
	CompleteRegistration(ctx context.Context, req model.RegistrationRequest) error
}
