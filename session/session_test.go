package session

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/backend"
	"github.com/arcuru/eidetica/crypto"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	b, err := backend.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	inst := eidetica.NewInstance(b)
	_, signingKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	sess, err := New(context.Background(), inst, signingKey, "")
	require.NoError(t, err)
	return sess
}

func TestNewSessionHasDefaultKey(t *testing.T) {
	sess := newTestSession(t)
	assert.NotEmpty(t, sess.DefaultKey())
}

func TestSessionCreateDatabaseRecordsPreferences(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	_, dbKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	db, err := sess.CreateDatabase(ctx, dbKey, nil, "journal")
	require.NoError(t, err)

	prefs, err := sess.DatabasePrefs(ctx, db.RootID)
	require.NoError(t, err)
	assert.Equal(t, "journal", prefs.Name)
	assert.Equal(t, db.RootID, prefs.DatabaseID)
}

func TestSessionListAndRemoveDatabasePrefs(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	_, dbKey1, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	db1, err := sess.CreateDatabase(ctx, dbKey1, nil, "notes")
	require.NoError(t, err)

	_, dbKey2, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, err = sess.CreateDatabase(ctx, dbKey2, nil, "todo")
	require.NoError(t, err)

	all, err := sess.ListDatabasePrefs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, sess.RemoveDatabase(ctx, db1.RootID))

	remaining, err := sess.ListDatabasePrefs(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
	assert.Equal(t, "todo", remaining[0].Name)
}

func TestSessionAddPrivateKeyAndRetrieve(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	pub, err := sess.AddPrivateKey(ctx, "laptop")
	require.NoError(t, err)
	assert.NotEmpty(t, pub)

	keys, err := sess.ListKeys(ctx)
	require.NoError(t, err)
	assert.Contains(t, keys, pub)

	priv, err := sess.GetSigningKey(ctx, pub)
	require.NoError(t, err)
	assert.Equal(t, pub, crypto.PubKeyFromPrivate(priv))
}

func TestSessionFindDatabasesByName(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	_, dbKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	settings := eidetica.NewSettings()
	settings.Name = "shared-notes"
	created, err := sess.CreateDatabase(ctx, dbKey, settings, "shared-notes")
	require.NoError(t, err)

	found, err := sess.FindDatabases(ctx, "shared-notes")
	require.NoError(t, err)
	if assert.Len(t, found, 1) {
		assert.Equal(t, created.RootID, found[0].RootID)
	}
}

func TestRequestDatabaseAccessWithoutEngineFails(t *testing.T) {
	ctx := context.Background()
	sess := newTestSession(t)

	_, err := sess.RequestDatabaseAccess(ctx, "peer-1", eidetica.ID("root"), eidetica.ReadPermission())
	assert.Error(t, err)
}
