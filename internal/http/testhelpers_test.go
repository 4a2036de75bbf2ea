package httpx

import (
	"context"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	console "github.com/target/members-console"
	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/domain/model"
	fakes "github.com/target/members-console/internal/mocks/auth"
	"github.com/target/members-console/internal/session"
)

const (
	testOrigin    = "https://console.example.com"
	testCSRFToken = "csrf-test-token"
)

var (
	memberUser = domainauth.Identity{
		Subject:  "user-1",
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Roles:    []domainauth.Role{domainauth.RoleUser},
	}
	adminUser = domainauth.Identity{
		Subject:  "admin-1",
		Username: "admin",
		Email:    "admin@example.com",
		Roles:    []domainauth.Role{domainauth.RoleAdmin, domainauth.RoleUser},
	}
)

func newTestRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	sub, err := fs.Sub(console.TemplateFS, "web/templates")
	require.NoError(t, err)
	r, err := NewTemplateRenderer(TemplateRendererConfig{TemplateFS: sub})
	require.NoError(t, err)
	return r
}

// signedIn returns an initialized Manager for user.
func signedIn(t *testing.T, user domainauth.Identity) *session.Manager {
	t.Helper()
	m := session.NewManager(session.ManagerOptions{
		SessionID: "0f6c1f4e-5d5e-4d1b-9c1e-2b7a3c9d0e11",
		Client:    fakes.NewFakeIdentityClient(user),
		Policy:    domainauth.LoginRequired,
		Origin:    testOrigin,
	})
	u, err := url.Parse(testOrigin + "/")
	require.NoError(t, err)
	m.Initialize(context.Background(), u)
	require.Equal(t, domainauth.StatusAuthenticated, m.Status())
	t.Cleanup(m.Close)
	return m
}

// newRequest builds a request scoped to c. A non-nil form is sent
// url-encoded together with a matching CSRF token.
func newRequest(c session.Consumer, method, target string, form url.Values) *http.Request {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), csrfTokenKey{}, testCSRFToken)
	if c != nil {
		ctx = session.WithConsumer(ctx, c)
	}
	return req.WithContext(ctx)
}

// stubMembers is a scriptable MemberService.
type stubMembers struct {
	list     func(ctx context.Context, opts model.MembersListOptions) (model.CursorPage[model.Member], error)
	get      func(ctx context.Context, id string) (*model.Member, error)
	create   func(ctx context.Context, in model.MemberInput) (*model.Member, error)
	update   func(ctx context.Context, id string, in model.MemberInput) (*model.Member, error)
	del      func(ctx context.Context, id string) error
	reg      func(ctx context.Context) (*model.Registration, error)
	complete func(ctx context.Context, req model.RegistrationRequest) error
}

var _ MemberService = (*stubMembers)(nil)

func (s *stubMembers) List(ctx context.Context, opts model.MembersListOptions) (model.CursorPage[model.Member], error) {
	if s.list == nil {
		return model.CursorPage[model.Member]{Data: []model.Member{}}, nil
	}
	return s.list(ctx, opts)
}

func (s *stubMembers) Get(ctx context.Context, id string) (*model.Member, error) {
	return s.get(ctx, id)
}

func (s *stubMembers) Create(ctx context.Context, in model.MemberInput) (*model.Member, error) {
	return s.create(ctx, in)
}

func (s *stubMembers) Update(ctx context.Context, id string, in model.MemberInput) (*model.Member, error) {
	return s.update(ctx, id, in)
}

func (s *stubMembers) Delete(ctx context.Context, id string) error {
	return s.del(ctx, id)
}

func (s *stubMembers) Registration(ctx context.Context) (*model.Registration, error) {
	return s.reg(ctx)
}

func (s *stubMembers) CompleteRegistration(ctx context.Context, req model.RegistrationRequest) error {
	return s.complete(ctx, req)
}
