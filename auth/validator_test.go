package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/backend"
	"github.com/arcuru/eidetica/crypto"
	"github.com/arcuru/eidetica/store"
	"github.com/arcuru/eidetica/transaction"
)

func newTestBackend(t *testing.T) *backend.BoltBackend {
	t.Helper()
	b, err := backend.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestValidatorAcceptsDirectAdminKey(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, owner, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	db, err := eidetica.Create(ctx, b, owner, nil)
	require.NoError(t, err)

	settings, err := db.CurrentSettings(ctx)
	require.NoError(t, err)

	entryBuilder := eidetica.NewBuilder(db.RootID)
	tips, err := db.Tips(ctx)
	require.NoError(t, err)
	entryBuilder.SetParents(tips)
	entryBuilder.StageSubtree("data", `{}`, nil)
	entryBuilder.SetSigKey(db.Key.Identity)
	entryBuilder.SetSigPubKey(crypto.PubKeyFromPrivate(owner))
	entry, err := entryBuilder.Build()
	require.NoError(t, err)
	require.NoError(t, eidetica.SignEntry(entry, owner))

	v := NewValidator(b)
	require.NoError(t, v.ValidateEntry(ctx, db.RootID, settings, entry, eidetica.OpWriteData))
}

func TestValidatorRejectsBadSignature(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	_, owner, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	db, err := eidetica.Create(ctx, b, owner, nil)
	require.NoError(t, err)
	settings, err := db.CurrentSettings(ctx)
	require.NoError(t, err)

	_, otherKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	entryBuilder := eidetica.NewBuilder(db.RootID)
	tips, err := db.Tips(ctx)
	require.NoError(t, err)
	entryBuilder.SetParents(tips)
	entryBuilder.StageSubtree("data", `{}`, nil)
	entryBuilder.SetSigKey(db.Key.Identity)
	entryBuilder.SetSigPubKey(crypto.PubKeyFromPrivate(owner))
	entry, err := entryBuilder.Build()
	require.NoError(t, err)
	// Sign with the wrong key: the claimed pubkey in Sig doesn't match.
	require.NoError(t, eidetica.SignEntry(entry, otherKey))

	v := NewValidator(b)
	err = v.ValidateEntry(ctx, db.RootID, settings, entry, eidetica.OpWriteData)
	require.ErrorIs(t, err, eidetica.ErrSignatureVerificationFailed)
}

func TestValidatorDelegationClampsPermission(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	// Child database "A": ownerA is admin, writerA holds admin too, so the
	// clamp imposed by B's delegation bound is what limits the effective
	// permission, not anything inside A.
	_, ownerA, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	_, writerA, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	writerAPub := crypto.PubKeyFromPrivate(writerA)

	settingsA := eidetica.NewSettings()
	dbA, err := eidetica.Create(ctx, b, ownerA, settingsA)
	require.NoError(t, err)

	tx, err := transaction.New(ctx, dbA, nil)
	require.NoError(t, err)
	require.NoError(t, store.NewSettingsStore(tx).AddKey(ctx, eidetica.AuthKey{
		PubKey:      writerAPub,
		Permissions: eidetica.AdminPermission(0),
		Status:      eidetica.Active,
		Name:        "writer-a",
	}))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	aSettingsTips, err := dbA.StoreTips(ctx, eidetica.SettingsName)
	require.NoError(t, err)

	// Parent database "B": delegates to A, bounded to at most Write.
	_, ownerB, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	dbB, err := eidetica.Create(ctx, b, ownerB, nil)
	require.NoError(t, err)

	txB, err := transaction.New(ctx, dbB, nil)
	require.NoError(t, err)
	require.NoError(t, store.NewSettingsStore(txB).AddDelegatedTree(ctx, "child-a", eidetica.DelegatedTreeRef{
		Tree:   eidetica.TreeRef{Root: dbA.RootID, Tips: aSettingsTips},
		Bounds: eidetica.PermissionBounds{Max: eidetica.WritePermission(0)},
	}))
	_, err = txB.Commit(ctx)
	require.NoError(t, err)

	bSettings, err := dbB.CurrentSettings(ctx)
	require.NoError(t, err)

	delegatedKey := eidetica.DelegatedKey([]eidetica.DelegationHop{{Tree: dbA.RootID, Tips: aSettingsTips}}, writerAPub)

	bSettingsTips, err := dbB.StoreTips(ctx, eidetica.SettingsName)
	require.NoError(t, err)

	buildEntry := func(touchSettings bool) *eidetica.Entry {
		tips, err := dbB.Tips(ctx)
		require.NoError(t, err)
		b := eidetica.NewBuilder(dbB.RootID)
		b.SetParents(tips)
		b.StageSubtree("data", `{}`, nil)
		if touchSettings {
			b.StageSubtree(eidetica.SettingsName, `{}`, bSettingsTips)
		}
		b.SetSigKey(delegatedKey)
		entry, err := b.Build()
		require.NoError(t, err)
		require.NoError(t, eidetica.SignEntry(entry, writerA))
		return entry
	}

	v := NewValidator(b)

	dataEntry := buildEntry(false)
	require.NoError(t, v.ValidateEntry(ctx, dbB.RootID, bSettings, dataEntry, eidetica.OpWriteData),
		"a delegated admin key clamped to Write must still satisfy a data write")

	settingsEntry := buildEntry(true)
	err = v.ValidateEntry(ctx, dbB.RootID, bSettings, settingsEntry, eidetica.OpWriteSettings)
	require.ErrorIs(t, err, eidetica.ErrInsufficientPermissions,
		"the delegation bound must prevent a settings write even though the underlying key is admin in its own database")
}

func TestValidatorUnauthenticatedDatabaseAcceptsAnyEntry(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	db, err := eidetica.Create(ctx, b, nil, nil)
	require.NoError(t, err)
	settings, err := db.CurrentSettings(ctx)
	require.NoError(t, err)

	tips, err := db.Tips(ctx)
	require.NoError(t, err)
	entryBuilder := eidetica.NewBuilder(db.RootID)
	entryBuilder.SetParents(tips)
	entryBuilder.StageSubtree("data", `{}`, nil)
	entry, err := entryBuilder.Build()
	require.NoError(t, err)

	v := NewValidator(b)
	require.NoError(t, v.ValidateEntry(ctx, db.RootID, settings, entry, eidetica.OpWriteData))
}
