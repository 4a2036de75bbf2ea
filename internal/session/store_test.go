package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/members-console/internal/domain/auth"
)

func authenticatedStore(t *testing.T, id domainauth.Identity) *Store {
	t.Helper()
	s := NewStore()
	require.True(t, s.apply(event{kind: evInitStarted}).applied)
	require.True(t, s.apply(event{kind: evAuthenticated, identity: &id}).applied)
	return s
}

func TestStore_InitialState(t *testing.T) {
	snap := NewStore().Snapshot()
	assert.Equal(t, domainauth.StatusUninitialized, snap.Status)
	assert.Nil(t, snap.Identity)
	assert.Nil(t, snap.Err)
}

func TestStore_InitStartedOnlyFromUninitialized(t *testing.T) {
	s := NewStore()
	assert.True(t, s.apply(event{kind: evInitStarted}).applied)
	assert.False(t, s.apply(event{kind: evInitStarted}).applied)
}

func TestStore_IdentityPresentIffAuthenticated(t *testing.T) {
	s := authenticatedStore(t, domainauth.Identity{Subject: "u-1"})
	snap := s.Snapshot()
	require.NotNil(t, snap.Identity)
	assert.Equal(t, domainauth.StatusAuthenticated, snap.Status)

	s.apply(event{kind: evLoggedOut})
	snap = s.Snapshot()
	assert.Nil(t, snap.Identity)
	assert.Equal(t, domainauth.StatusUnauthenticated, snap.Status)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := authenticatedStore(t, domainauth.Identity{Subject: "u-1", Roles: []domainauth.Role{domainauth.RoleUser}})
	snap := s.Snapshot()
	snap.Identity.Roles[0] = domainauth.RoleAdmin
	assert.Equal(t, domainauth.RoleUser, s.Snapshot().Identity.Roles[0])
}

func TestStore_ClearErrorIsIdempotent(t *testing.T) {
	s := NewStore()
	before := s.Snapshot()
	changed := s.Changed()

	assert.False(t, s.apply(event{kind: evErrorCleared}).applied)
	assert.Equal(t, before, s.Snapshot())
	select {
	case <-changed:
		t.Fatal("no-op clear must not signal a change")
	default:
	}
}

func TestStore_RefreshedDropsStaleEpoch(t *testing.T) {
	s := authenticatedStore(t, domainauth.Identity{Subject: "u-1"})
	epoch := s.Snapshot().Epoch

	s.apply(event{kind: evLoggedOut})
	updated := domainauth.Identity{Subject: "u-1", Email: "new@example.com"}
	assert.False(t, s.apply(event{kind: evRefreshed, epoch: epoch, identity: &updated}).applied)
	assert.False(t, s.apply(event{
		kind:  evRefreshFailed,
		epoch: epoch,
		err:   domainauth.NewSessionError(domainauth.CauseRefreshFailed),
	}).applied)

	snap := s.Snapshot()
	assert.Equal(t, domainauth.StatusUnauthenticated, snap.Status)
	assert.Nil(t, snap.Err)
}

func TestStore_RefreshedWithEqualClaimsIsNoop(t *testing.T) {
	id := domainauth.Identity{Subject: "u-1", Email: "u@example.com"}
	s := authenticatedStore(t, id)
	before := s.Snapshot()

	same := id
	assert.False(t, s.apply(event{kind: evRefreshed, epoch: before.Epoch, identity: &same}).applied)
	assert.Equal(t, before.Version, s.Snapshot().Version)

	changed := domainauth.Identity{Subject: "u-1", Email: "other@example.com"}
	assert.True(t, s.apply(event{kind: evRefreshed, epoch: before.Epoch, identity: &changed}).applied)
	assert.Equal(t, "other@example.com", s.Snapshot().Identity.Email)
}

func TestStore_ChangedClosesOnCommit(t *testing.T) {
	s := NewStore()
	ch := s.Changed()
	s.apply(event{kind: evInitStarted})

	select {
	case <-ch:
	default:
		t.Fatal("expected changed channel to close")
	}
	assert.NotEqual(t, ch, s.Changed())
}

func TestStore_FailedRedirectRestoresPrior(t *testing.T) {
	s := authenticatedStore(t, domainauth.Identity{Subject: "u-1"})
	res := s.apply(event{kind: evRedirecting})
	require.True(t, res.applied)
	assert.Equal(t, domainauth.StatusInitializing, res.after.Status)
	assert.Nil(t, res.after.Identity)

	prior := res.before
	s.apply(event{kind: evRedirectFailed, prior: &prior, err: domainauth.NewSessionError(domainauth.CauseLoginFailed)})
	snap := s.Snapshot()
	assert.Equal(t, domainauth.StatusAuthenticated, snap.Status)
	require.NotNil(t, snap.Identity)
	assert.Equal(t, "u-1", snap.Identity.Subject)
	require.NotNil(t, snap.Err)
	assert.Equal(t, domainauth.CauseLoginFailed, snap.Err.Cause)
}
