package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/members-console/internal/domain/auth"
	"github.com/target/members-console/internal/mocks"
	fakes "github.com/target/members-console/internal/mocks/auth"
	"github.com/target/members-console/internal/ports"
	"go.uber.org/mock/gomock"
)

const testOrigin = "https://console.example.com"

var testUser = domainauth.Identity{
	Subject:  "user-1",
	Username: "jdoe",
	Email:    "jdoe@example.com",
	Roles:    []domainauth.Role{domainauth.RoleUser},
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func newTestManager(client ports.IdentityClient, policy domainauth.LoginPolicy) *Manager {
	return NewManager(ManagerOptions{
		SessionID:      "0f6c1f4e-5d5e-4d1b-9c1e-2b7a3c9d0e11",
		Client:         client,
		Policy:         policy,
		Origin:         testOrigin,
		RefreshTimeout: time.Second,
	})
}

func TestManager_InitializeRestoresSession(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	m := newTestManager(client, domainauth.LoginRequired)

	changed := m.Changed()
	out := m.Initialize(context.Background(), mustURL(t, testOrigin+"/members"))
	assert.True(t, out.Started)
	assert.Empty(t, out.Redirect)
	<-changed

	snap := m.Snapshot()
	assert.Equal(t, domainauth.StatusAuthenticated, snap.Status)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "user-1", snap.Identity.Subject)
	assert.Nil(t, snap.Err)
	assert.Equal(t, 1, client.Subscribers(), "expiry handler installed once")
}

func TestManager_InitializeRunsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockIdentityClient(ctrl)

	client.EXPECT().HandleCallback(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, *url.URL) (ports.CallbackResult, error) {
			time.Sleep(10 * time.Millisecond)
			return ports.CallbackResult{Resume: "/members"}, nil
		}).Times(1)
	client.EXPECT().Identity().Return(testUser, true).Times(1)
	client.EXPECT().OnTokenExpired(gomock.Any()).Return(func() {}).Times(1)

	m := newTestManager(client, domainauth.LoginRequired)
	nav := mustURL(t, testOrigin+"/?code=abc&state=xyz")

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = m.Initialize(context.Background(), nav)
		}(i)
	}
	wg.Wait()

	started := 0
	for _, out := range outcomes {
		if out.Started {
			started++
			assert.True(t, out.Callback)
			assert.Equal(t, "/members", out.Redirect)
		}
	}
	assert.Equal(t, 1, started)
	assert.Equal(t, domainauth.StatusAuthenticated, m.Status())
}

func TestManager_CallbackNeverCallsInitialize(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockIdentityClient(ctrl)
	client.EXPECT().HandleCallback(gomock.Any(), gomock.Any()).Return(ports.CallbackResult{}, nil)
	client.EXPECT().Identity().Return(testUser, true)
	client.EXPECT().OnTokenExpired(gomock.Any()).Return(func() {})

	m := newTestManager(client, domainauth.LoginRequired)
	out := m.Initialize(context.Background(), mustURL(t, testOrigin+"/members?code=abc&state=xyz"))

	assert.True(t, out.Callback)
	assert.Equal(t, "/members", out.Redirect, "callback parameters are stripped")
}

func TestManager_CallbackFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockIdentityClient(ctrl)
	client.EXPECT().HandleCallback(gomock.Any(), gomock.Any()).Return(ports.CallbackResult{}, errors.New("invalid_grant"))

	m := newTestManager(client, domainauth.LoginRequired)
	out := m.Initialize(context.Background(), mustURL(t, testOrigin+"/?error=access_denied&state=xyz"))

	assert.Equal(t, "/", out.Redirect)
	assert.Equal(t, domainauth.StatusUnauthenticated, m.Status())
	require.NotNil(t, m.Error())
	assert.Equal(t, domainauth.CauseInitFailed, m.Error().Cause)
}

// Fresh unauthenticated visit with the required policy issues exactly one
// login redirect whose return target is the origin.
func TestManager_RequiredPolicyRedirectsOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockIdentityClient(ctrl)
	client.EXPECT().Initialize(gomock.Any(), ports.InitOptions{
		Policy:       domainauth.LoginRequired,
		ReturnTarget: testOrigin,
		Resume:       "/members?size=20",
	}).Return(ports.InitResult{Redirect: "https://idp.example.com/auth?x=1"}, nil).Times(1)

	m := newTestManager(client, domainauth.LoginRequired)
	out := m.Initialize(context.Background(), mustURL(t, testOrigin+"/members?size=20"))

	assert.Equal(t, "https://idp.example.com/auth?x=1", out.Redirect)
	assert.True(t, out.Discard)
	assert.Equal(t, domainauth.StatusInitializing, m.Status())

	again := m.Initialize(context.Background(), mustURL(t, testOrigin+"/members"))
	assert.Equal(t, Outcome{}, again)
}

func TestManager_OptionalPolicyLandsUnauthenticated(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	client.InitializeFunc = func(_ context.Context, opts ports.InitOptions) (ports.InitResult, error) {
		assert.Equal(t, domainauth.LoginOptional, opts.Policy)
		return ports.InitResult{}, nil
	}
	m := newTestManager(client, domainauth.LoginOptional)

	out := m.Initialize(context.Background(), mustURL(t, testOrigin+"/"))
	assert.Empty(t, out.Redirect)
	assert.Equal(t, domainauth.StatusUnauthenticated, m.Status())
	assert.Nil(t, m.Identity())
	assert.Nil(t, m.Error())
	assert.Equal(t, 0, client.Calls("Login"))
}

func TestManager_InitFailureFailsClosed(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	client.InitializeFunc = func(context.Context, ports.InitOptions) (ports.InitResult, error) {
		return ports.InitResult{}, errors.New("discovery unreachable")
	}
	m := newTestManager(client, domainauth.LoginRequired)
	m.Initialize(context.Background(), mustURL(t, testOrigin+"/"))

	assert.Equal(t, domainauth.StatusError, m.Store().Snapshot().Status)
	assert.Equal(t, domainauth.StatusUnauthenticated, m.Status())
	require.NotNil(t, m.Error())
	assert.Equal(t, domainauth.MsgInitFailed, m.Error().Message)

	_, ok := m.Token(context.Background())
	assert.False(t, ok)
}

func initialized(t *testing.T, client *fakes.FakeIdentityClient) *Manager {
	t.Helper()
	m := newTestManager(client, domainauth.LoginRequired)
	m.Initialize(context.Background(), mustURL(t, testOrigin+"/"))
	require.Equal(t, domainauth.StatusAuthenticated, m.Status())
	return m
}

// Token expires and the refresh succeeds with unchanged claims.
func TestManager_ExpiryRefreshUnchangedClaims(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	m := initialized(t, client)
	before := m.Snapshot()

	client.Expire()

	after := m.Snapshot()
	assert.Equal(t, domainauth.StatusAuthenticated, after.Status)
	require.NotNil(t, after.Identity)
	assert.True(t, before.Identity.Equal(*after.Identity))
	assert.Nil(t, after.Err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, 1, client.Calls("ForceRefresh"))
}

func TestManager_ExpiryRefreshChangedClaims(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	m := initialized(t, client)

	promoted := testUser
	promoted.Roles = []domainauth.Role{domainauth.RoleAdmin, domainauth.RoleUser}
	client.SetUser(promoted)
	client.Expire()

	require.NotNil(t, m.Identity())
	assert.True(t, m.Identity().IsAdmin())
}

// Token expires and the refresh is rejected.
func TestManager_ExpiryRefreshRejected(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	client.ForceRefreshFunc = func(context.Context, time.Duration) (bool, error) {
		return false, errors.New("invalid_grant")
	}
	m := initialized(t, client)

	client.Expire()

	assert.Equal(t, domainauth.StatusUnauthenticated, m.Status())
	assert.Nil(t, m.Identity())
	require.NotNil(t, m.Error())
	assert.Equal(t, domainauth.CauseRefreshFailed, m.Error().Cause)
	assert.Equal(t, "Session expired. Please log in again.", m.Error().Message)

	_, ok := m.Token(context.Background())
	assert.False(t, ok)
}

func TestManager_ExpiryIgnoresStaleGeneration(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	m := initialized(t, client)

	var handler func(ports.TokenExpired)
	ctrl := gomock.NewController(t)
	mc := mocks.NewMockIdentityClient(ctrl)
	mc.EXPECT().OnTokenExpired(gomock.Any()).DoAndReturn(func(fn func(ports.TokenExpired)) func() {
		handler = fn
		return func() {}
	})
	mc.EXPECT().ForceRefresh(gomock.Any(), time.Duration(-1)).Return(true, nil).Times(1)
	mc.EXPECT().Identity().Return(testUser, true).Times(1)

	m.client = mc
	m.unsubscribe = nil
	m.subscribeExpiry()
	require.NotNil(t, handler)

	handler(ports.TokenExpired{Generation: 5})
	handler(ports.TokenExpired{Generation: 5})
	handler(ports.TokenExpired{Generation: 3})
}

// Logout while a refresh is in flight; the refresh resolves afterwards and
// its result is discarded.
func TestManager_LogoutDuringRefreshDropsResult(t *testing.T) {
	for _, refreshErr := range []error{nil, errors.New("invalid_grant")} {
		client := fakes.NewFakeIdentityClient(testUser)
		started := make(chan struct{})
		release := make(chan struct{})
		client.ForceRefreshFunc = func(context.Context, time.Duration) (bool, error) {
			close(started)
			<-release
			return refreshErr == nil, refreshErr
		}
		m := initialized(t, client)

		done := make(chan struct{})
		go func() {
			defer close(done)
			client.Expire()
		}()
		<-started

		target, ok := m.Logout(context.Background())
		require.True(t, ok)
		assert.Contains(t, target, "post_logout_redirect_uri="+url.QueryEscape(testOrigin))

		close(release)
		<-done

		snap := m.Snapshot()
		assert.Equal(t, domainauth.StatusUnauthenticated, snap.Status)
		assert.Nil(t, snap.Identity)
		assert.Nil(t, snap.Err)
		assert.Equal(t, 0, client.Subscribers())
	}
}

func TestManager_LoginClearsErrorAndRedirects(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	client.InitializeFunc = func(context.Context, ports.InitOptions) (ports.InitResult, error) {
		return ports.InitResult{}, errors.New("boom")
	}
	var gotTarget, gotResume string
	client.LoginFunc = func(_ context.Context, returnTarget, resume string) (string, error) {
		gotTarget, gotResume = returnTarget, resume
		return "https://idp.example.com/auth", nil
	}
	m := newTestManager(client, domainauth.LoginOptional)
	m.Initialize(context.Background(), mustURL(t, testOrigin+"/"))
	require.NotNil(t, m.Error())

	target, ok := m.Login(context.Background(), "/members/7")
	require.True(t, ok)
	assert.Equal(t, "https://idp.example.com/auth", target)
	assert.Equal(t, testOrigin, gotTarget)
	assert.Equal(t, "/members/7", gotResume)
	assert.Nil(t, m.Error())
	assert.Equal(t, domainauth.StatusInitializing, m.Status())
}

func TestManager_LoginFailureRestoresPriorState(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	client.InitializeFunc = func(context.Context, ports.InitOptions) (ports.InitResult, error) {
		return ports.InitResult{}, nil
	}
	client.LoginFunc = func(context.Context, string, string) (string, error) {
		return "", errors.New("navigation blocked")
	}
	m := newTestManager(client, domainauth.LoginOptional)
	m.Initialize(context.Background(), mustURL(t, testOrigin+"/"))

	_, ok := m.Login(context.Background(), "https://evil.example.com")
	assert.False(t, ok)
	assert.Equal(t, domainauth.StatusUnauthenticated, m.Status())
	require.NotNil(t, m.Error())
	assert.Equal(t, domainauth.CauseLoginFailed, m.Error().Cause)
}

func TestManager_LogoutFailureKeepsIdentity(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	client.LogoutFunc = func(context.Context, string) (string, error) {
		return "", errors.New("vault unavailable")
	}
	m := initialized(t, client)

	_, ok := m.Logout(context.Background())
	assert.False(t, ok)
	assert.Equal(t, domainauth.StatusAuthenticated, m.Status())
	require.NotNil(t, m.Identity())
	assert.Equal(t, "user-1", m.Identity().Subject)
	require.NotNil(t, m.Error())
	assert.Equal(t, domainauth.CauseLogoutFailed, m.Error().Cause)
	assert.Equal(t, 1, client.Subscribers(), "expiry handler kept after failed logout")
}

func TestManager_ClearError(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	client.InitializeFunc = func(context.Context, ports.InitOptions) (ports.InitResult, error) {
		return ports.InitResult{}, errors.New("boom")
	}
	m := newTestManager(client, domainauth.LoginRequired)
	m.Initialize(context.Background(), mustURL(t, testOrigin+"/"))
	require.NotNil(t, m.Error())

	m.ClearError()
	assert.Nil(t, m.Error())
	before := m.Snapshot()
	m.ClearError()
	assert.Equal(t, before, m.Snapshot())
}

func TestManager_TokenRequiresAuthenticated(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	m := newTestManager(client, domainauth.LoginRequired)

	_, ok := m.Token(context.Background())
	assert.False(t, ok)

	m.Initialize(context.Background(), mustURL(t, testOrigin+"/"))
	tok, ok := m.Token(context.Background())
	require.True(t, ok)
	assert.NotEmpty(t, tok.Value)
}

// The token cannot be renewed when a request needs it.
func TestManager_TokenRenewalFailureExpiresSession(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	client.TokenTTL = -time.Second
	client.ForceRefreshFunc = func(context.Context, time.Duration) (bool, error) {
		return false, errors.New("invalid_grant")
	}
	m := initialized(t, client)

	_, ok := m.Token(context.Background())
	assert.False(t, ok)

	snap := m.Snapshot()
	assert.Equal(t, domainauth.StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.Identity)
	require.NotNil(t, snap.Err)
	assert.Equal(t, domainauth.CauseRefreshFailed, snap.Err.Cause)
}

func TestManager_CloseReleasesClient(t *testing.T) {
	client := fakes.NewFakeIdentityClient(testUser)
	m := initialized(t, client)

	m.Close()
	m.Close()
	assert.True(t, client.Closed())
	assert.Equal(t, 0, client.Subscribers())
}

type recordingRecorder struct {
	mu          sync.Mutex
	transitions []string
	refreshes   []string
}

func (r *recordingRecorder) Transition(from, to domainauth.Status, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, string(from)+"->"+string(to))
}

func (r *recordingRecorder) Refresh(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes = append(r.refreshes, outcome)
}

// A successful initialization never exposes unauthenticated in between.
func TestManager_TransitionsOnSuccessfulInit(t *testing.T) {
	rec := &recordingRecorder{}
	client := fakes.NewFakeIdentityClient(testUser)
	m := NewManager(ManagerOptions{Client: client, Origin: testOrigin, Recorder: rec})

	m.Initialize(context.Background(), mustURL(t, testOrigin+"/"))
	client.Expire()

	assert.Equal(t, []string{
		"uninitialized->initializing",
		"initializing->authenticated",
	}, rec.transitions)
	assert.Equal(t, []string{RefreshSucceeded}, rec.refreshes)
}
