package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deltadb/deltadb/internal/dbtypes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.db")
	s, err := Open(path, "boot-secret", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAdminBootKeyVerifiesAndIsUnlisted(t *testing.T) {
	s := newTestStore(t)

	perms, ok := s.Verify("boot-secret")
	require.True(t, ok)
	require.True(t, perms.Has(dbtypes.PermAdmin))

	for _, k := range s.List() {
		require.NotEqual(t, adminBootID, k.ID)
	}
}

func TestCreateListDeleteLifecycle(t *testing.T) {
	s := newTestStore(t)

	key, secret, err := s.Create("ci-key", dbtypes.Permissions{dbtypes.PermRead}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	perms, ok := s.Verify(secret)
	require.True(t, ok)
	require.True(t, perms.Has(dbtypes.PermRead))
	require.False(t, perms.Has(dbtypes.PermWrite))

	keys := s.List()
	require.Len(t, keys, 1)
	require.Equal(t, key.ID, keys[0].ID)

	require.NoError(t, s.Delete(key.ID))
	_, ok = s.Verify(secret)
	require.False(t, ok, "deleted key must not authorize")
}

func TestExpiredKeyNeverVerifies(t *testing.T) {
	s := newTestStore(t)

	_, secret, err := s.Create("short-lived", dbtypes.Permissions{dbtypes.PermRead}, time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, ok := s.Verify(secret)
	require.False(t, ok, "expired key must not authorize")
}

func TestSessionTokenIssuedAndExpires(t *testing.T) {
	s := newTestStore(t)
	s.sessionTTL = time.Millisecond

	sess, err := s.IssueSession(dbtypes.Permissions{dbtypes.PermRead})
	require.NoError(t, err)

	perms, ok := s.VerifySession(sess.Token)
	require.True(t, ok)
	require.True(t, perms.Has(dbtypes.PermRead))

	time.Sleep(5 * time.Millisecond)
	_, ok = s.VerifySession(sess.Token)
	require.False(t, ok, "expired session token must not verify")
}

func TestKeysSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	s, err := Open(path, "boot-secret", time.Minute)
	require.NoError(t, err)

	_, secret, err := s.Create("persisted", dbtypes.Permissions{dbtypes.PermRead}, 0)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := Open(path, "boot-secret", time.Minute)
	require.NoError(t, err)
	defer reopened.Close()

	_, ok := reopened.Verify(secret)
	require.True(t, ok, "key must survive a reopen of the store")
}
