package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/backend"
	"github.com/arcuru/eidetica/crdt"
	"github.com/arcuru/eidetica/crypto"
	"github.com/arcuru/eidetica/store"
	"github.com/arcuru/eidetica/transaction"
)

func newTestDB(t *testing.T) *eidetica.Database {
	t.Helper()
	b, err := backend.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	_, priv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	db, err := eidetica.Create(context.Background(), b, priv, nil)
	require.NoError(t, err)
	return db
}

func TestDocStoreSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs := store.NewDocStore(tx, "notes")
	require.NoError(t, docs.Set(ctx, "title", crdt.NewText("hello")))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	tx2, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs2 := store.NewDocStore(tx2, "notes")
	v, ok, err := docs2.Get(ctx, "title")
	require.NoError(t, err)
	require.True(t, ok)
	text, err := v.AsText()
	require.NoError(t, err)
	require.Equal(t, "hello", text)
}

func TestDocStoreDeletePersistsAcrossTransactions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs := store.NewDocStore(tx, "notes")
	require.NoError(t, docs.Set(ctx, "title", crdt.NewText("hello")))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	tx2, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs2 := store.NewDocStore(tx2, "notes")
	require.NoError(t, docs2.Delete(ctx, "title"))
	_, err = tx2.Commit(ctx)
	require.NoError(t, err)

	tx3, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs3 := store.NewDocStore(tx3, "notes")
	ok, err := docs3.ContainsKey(ctx, "title")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDocStorePathHelpers(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs := store.NewDocStore(tx, "notes")
	require.NoError(t, docs.SetPath(ctx, "author.name", crdt.NewText("bob")))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	tx2, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs2 := store.NewDocStore(tx2, "notes")
	ok, err := docs2.ContainsPath(ctx, "author.name")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDocStoreModifyOrInsertPath(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs := store.NewDocStore(tx, "notes")
	require.NoError(t, docs.ModifyOrInsertPath(ctx, "counters.views", crdt.NewInt(1), func(v crdt.Value) crdt.Value {
		n, _ := v.AsInt()
		return crdt.NewInt(n + 1)
	}))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	v, ok, err := docs.GetPath(ctx, "counters.views")
	require.NoError(t, err)
	require.True(t, ok)
	n, err := v.AsInt()
	require.NoError(t, err)
	require.Equal(t, int64(1), n, "path was absent, so def is staged rather than fn(def)")

	tx2, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs2 := store.NewDocStore(tx2, "notes")
	require.NoError(t, docs2.ModifyOrInsertPath(ctx, "counters.views", crdt.NewInt(1), func(v crdt.Value) crdt.Value {
		n, _ := v.AsInt()
		return crdt.NewInt(n + 1)
	}))
	_, err = tx2.Commit(ctx)
	require.NoError(t, err)

	tx3, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs3 := store.NewDocStore(tx3, "notes")
	v3, ok, err := docs3.GetPath(ctx, "counters.views")
	require.NoError(t, err)
	require.True(t, ok)
	n3, err := v3.AsInt()
	require.NoError(t, err)
	require.Equal(t, int64(2), n3, "path now exists, so fn is applied to the existing value")
}

func TestDocStoreGetAsAndGetPathAs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs := store.NewDocStore(tx, "notes")
	require.NoError(t, docs.Set(ctx, "count", crdt.NewInt(7)))
	require.NoError(t, docs.SetPath(ctx, "author.name", crdt.NewText("bob")))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	tx2, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	docs2 := store.NewDocStore(tx2, "notes")

	n, err := store.GetAs[int64](ctx, docs2, "count")
	require.NoError(t, err)
	require.Equal(t, int64(7), n)

	name, err := store.GetPathAs[string](ctx, docs2, "author.name")
	require.NoError(t, err)
	require.Equal(t, "bob", name)

	_, err = store.GetAs[int64](ctx, docs2, "missing")
	require.ErrorIs(t, err, store.ErrKeyNotFound)

	_, err = store.GetAs[string](ctx, docs2, "count")
	require.ErrorIs(t, err, crdt.ErrTypeMismatch, "count holds an int, not a string")
}

type person struct {
	Name string
	Age  int
}

func TestTableInsertGetSearch(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	people := store.NewTable[person](tx, "people")

	pk, err := people.Insert(ctx, person{Name: "alice", Age: 30})
	require.NoError(t, err)
	_, err = people.Insert(ctx, person{Name: "bob", Age: 20})
	require.NoError(t, err)
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	tx2, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	people2 := store.NewTable[person](tx2, "people")

	got, err := people2.Get(ctx, pk)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Name)
	require.Equal(t, 30, got.Age)

	adults, err := people2.Search(ctx, func(p person) bool { return p.Age >= 30 })
	require.NoError(t, err)
	require.Len(t, adults, 1)
}

func TestTableDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	people := store.NewTable[person](tx, "people")
	pk, err := people.Insert(ctx, person{Name: "carol", Age: 40})
	require.NoError(t, err)
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	tx2, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	people2 := store.NewTable[person](tx2, "people")
	require.NoError(t, people2.Delete(ctx, pk))
	_, err = tx2.Commit(ctx)
	require.NoError(t, err)

	tx3, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	people3 := store.NewTable[person](tx3, "people")
	_, err = people3.Get(ctx, pk)
	require.ErrorIs(t, err, eidetica.ErrNotFound)
}

func TestSettingsStoreAddKeyAndRevoke(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, otherPriv, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	otherPub := crypto.PubKeyFromPrivate(otherPriv)

	tx, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	settings := store.NewSettingsStore(tx)
	require.NoError(t, settings.AddKey(ctx, eidetica.AuthKey{
		PubKey:      otherPub,
		Permissions: eidetica.WritePermission(0),
		Status:      eidetica.Active,
		Name:        "second-device",
	}))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	current, err := db.CurrentSettings(ctx)
	require.NoError(t, err)
	ak, ok := current.Auth[otherPub]
	require.True(t, ok)
	require.True(t, ak.IsActive())

	tx2, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	settings2 := store.NewSettingsStore(tx2)
	require.NoError(t, settings2.RevokeKey(ctx, otherPub))
	_, err = tx2.Commit(ctx)
	require.NoError(t, err)

	current2, err := db.CurrentSettings(ctx)
	require.NoError(t, err)
	ak2 := current2.Auth[otherPub]
	require.False(t, ak2.IsActive())
}

func TestSettingsStoreSetName(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	tx, err := transaction.New(ctx, db, nil)
	require.NoError(t, err)
	settings := store.NewSettingsStore(tx)
	require.NoError(t, settings.SetName(ctx, "my-database"))
	_, err = tx.Commit(ctx)
	require.NoError(t, err)

	current, err := db.CurrentSettings(ctx)
	require.NoError(t, err)
	require.Equal(t, "my-database", current.Name)
}
