package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/members-console/internal/domain/auth"
	fakes "github.com/target/members-console/internal/mocks/auth"
	"github.com/target/members-console/internal/ports"
)

type testServer struct {
	registry *Registry
	clients  map[string]*fakes.FakeIdentityClient
	handler  http.Handler
}

func newTestServer(t *testing.T, policy domainauth.LoginPolicy, setup func(*fakes.FakeIdentityClient)) *testServer {
	t.Helper()
	ts := &testServer{clients: map[string]*fakes.FakeIdentityClient{}}
	r, err := NewRegistry(RegistryOptions{
		Factory: func(sid string) (*Manager, error) {
			c := fakes.NewFakeIdentityClient(testUser)
			if setup != nil {
				setup(c)
			}
			ts.clients[sid] = c
			return NewManager(ManagerOptions{SessionID: sid, Client: c, Policy: policy, Origin: testOrigin}), nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(r.Close)
	ts.registry = r

	mux := http.NewServeMux()
	guard := Guard(GuardConfig{Wait: 50 * time.Millisecond})
	mux.Handle("GET /members", guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "hello "+MustConsumer(r.Context()).Identity().Subject)
	})))
	mux.HandleFunc("GET /landing", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, string(MustConsumer(r.Context()).Status()))
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, r *http.Request) {
		target, ok := MustConsumer(r.Context()).Logout(r.Context())
		if !ok {
			http.Error(w, "logout failed", http.StatusBadGateway)
			return
		}
		Navigate(w, r, target)
	})
	ts.handler = Provide(ProviderConfig{Registry: r})(mux)
	return ts
}

func (ts *testServer) do(t *testing.T, method, target string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func sidCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestProvide_AuthenticatedViewRenders(t *testing.T) {
	ts := newTestServer(t, domainauth.LoginRequired, nil)

	rec := ts.do(t, http.MethodGet, "/members")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello user-1", rec.Body.String())

	c := sidCookie(t, rec)
	assert.True(t, c.HttpOnly)

	// The same browser session reuses its manager without re-initializing.
	rec = ts.do(t, http.MethodGet, "/members", c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.clients[c.Value].Calls("Initialize"))
}

func TestProvide_RequiredPolicyRedirectsAndDiscards(t *testing.T) {
	ts := newTestServer(t, domainauth.LoginRequired, func(c *fakes.FakeIdentityClient) {
		c.InitializeFunc = func(_ context.Context, opts ports.InitOptions) (ports.InitResult, error) {
			return ports.InitResult{Redirect: "https://idp.example.com/auth?resume=" + opts.Resume}, nil
		}
	})

	rec := ts.do(t, http.MethodGet, "/members")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://idp.example.com/auth?resume=/members", rec.Header().Get("Location"))

	sid := sidCookie(t, rec).Value
	_, ok := ts.registry.Peek(sid)
	assert.False(t, ok, "manager is discarded when the browser leaves")
}

func TestProvide_CallbackCompletesAndStripsParams(t *testing.T) {
	ts := newTestServer(t, domainauth.LoginRequired, func(c *fakes.FakeIdentityClient) {
		c.HandleCallbackFunc = func(context.Context, *url.URL) (ports.CallbackResult, error) {
			return ports.CallbackResult{Resume: "/members"}, nil
		}
	})

	rec := ts.do(t, http.MethodGet, "/?code=abc&state=xyz")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/members", rec.Header().Get("Location"))

	c := sidCookie(t, rec)
	assert.Equal(t, 0, ts.clients[c.Value].Calls("Initialize"))

	rec = ts.do(t, http.MethodGet, "/members", c)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProvide_OptionalPolicyLanding(t *testing.T) {
	ts := newTestServer(t, domainauth.LoginOptional, func(c *fakes.FakeIdentityClient) {
		c.InitializeFunc = func(context.Context, ports.InitOptions) (ports.InitResult, error) {
			return ports.InitResult{}, nil
		}
	})

	rec := ts.do(t, http.MethodGet, "/landing")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(domainauth.StatusUnauthenticated), rec.Body.String())
	assert.Equal(t, 0, ts.clients[sidCookie(t, rec).Value].Calls("Login"))
}

func TestProvide_LogoutNavigatesAndDiscards(t *testing.T) {
	ts := newTestServer(t, domainauth.LoginRequired, nil)
	c := sidCookie(t, ts.do(t, http.MethodGet, "/members"))

	rec := ts.do(t, http.MethodPost, "/auth/logout", c)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "https://idp.example.com/logout")

	_, ok := ts.registry.Peek(c.Value)
	assert.False(t, ok)
}

func TestProvide_FactoryFailure(t *testing.T) {
	r, err := NewRegistry(RegistryOptions{
		Factory: func(string) (*Manager, error) { return nil, errors.New("boom") },
	})
	require.NoError(t, err)
	h := Provide(ProviderConfig{Registry: r})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("next must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProvide_InvalidCookieIsReplaced(t *testing.T) {
	ts := newTestServer(t, domainauth.LoginRequired, nil)
	rec := ts.do(t, http.MethodGet, "/members", &http.Cookie{Name: DefaultCookieName, Value: "not-a-uuid"})
	assert.NotEqual(t, "not-a-uuid", sidCookie(t, rec).Value)
}

func TestMustConsumer_PanicsOutsideScope(t *testing.T) {
	assert.Panics(t, func() { MustConsumer(context.Background()) })

	_, ok := ConsumerFrom(context.Background())
	assert.False(t, ok)
	assert.Empty(t, IDFromContext(context.Background()))
}
