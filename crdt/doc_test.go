package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocSetGetDelete(t *testing.T) {
	d := NewDoc()
	d.Set("name", NewText("alice"))

	v, ok := d.Get("name")
	require.True(t, ok)
	text, err := v.AsText()
	require.NoError(t, err)
	assert.Equal(t, "alice", text)

	d.Delete("name")
	_, ok = d.Get("name")
	assert.False(t, ok, "deleted key should not be visible via Get")
	assert.False(t, d.ContainsKey("name"))
}

func TestDocDeleteNeverSetKey(t *testing.T) {
	d := NewDoc()
	d.Delete("missing")
	_, ok := d.Get("missing")
	assert.False(t, ok, "tombstoning an unset key should still record a tombstone, not an error")
}

func TestDocGetAllHidesTombstones(t *testing.T) {
	d := NewDoc()
	d.Set("a", NewInt(1))
	d.Set("b", NewInt(2))
	d.Delete("b")

	all := d.GetAll()
	assert.Len(t, all, 1)
	_, ok := all["b"]
	assert.False(t, ok)
}

func TestDocMergeDeltaWins(t *testing.T) {
	base := NewDoc()
	base.Set("name", NewText("alice"))
	base.Set("age", NewInt(30))

	delta := NewDoc()
	delta.Set("age", NewInt(31))

	merged := base.Merge(delta)

	name, ok := merged.Get("name")
	require.True(t, ok)
	nameText, _ := name.AsText()
	assert.Equal(t, "alice", nameText, "keys untouched by the delta survive the merge")

	age, ok := merged.Get("age")
	require.True(t, ok)
	ageVal, _ := age.AsInt()
	assert.Equal(t, int64(31), ageVal, "delta's value for a shared key wins")
}

func TestDocMergeDeltaTombstoneWins(t *testing.T) {
	base := NewDoc()
	base.Set("flag", NewBool(true))

	delta := NewDoc()
	delta.Delete("flag")

	merged := base.Merge(delta)
	assert.False(t, merged.ContainsKey("flag"))
}

func TestDocMergeNestedDocsRecurse(t *testing.T) {
	baseAddr := NewDoc()
	baseAddr.Set("city", NewText("springfield"))
	baseAddr.Set("zip", NewText("00000"))

	base := NewDoc()
	base.Set("address", NewDocValue(baseAddr))

	deltaAddr := NewDoc()
	deltaAddr.Set("zip", NewText("11111"))

	delta := NewDoc()
	delta.Set("address", NewDocValue(deltaAddr))

	merged := base.Merge(delta)

	addrVal, ok := merged.Get("address")
	require.True(t, ok)
	addr, err := addrVal.AsDoc()
	require.NoError(t, err)

	city, ok := addr.Get("city")
	require.True(t, ok, "sibling field left untouched by the nested delta must survive")
	cityText, _ := city.AsText()
	assert.Equal(t, "springfield", cityText)

	zip, ok := addr.Get("zip")
	require.True(t, ok)
	zipText, _ := zip.AsText()
	assert.Equal(t, "11111", zipText)
}

func TestDocMergeDoesNotMutateInputs(t *testing.T) {
	base := NewDoc()
	base.Set("a", NewInt(1))
	delta := NewDoc()
	delta.Set("a", NewInt(2))

	_ = base.Merge(delta)

	v, ok := base.Get("a")
	require.True(t, ok)
	got, _ := v.AsInt()
	assert.Equal(t, int64(1), got, "Merge must not mutate the receiver")
}

func TestDocPathHelpers(t *testing.T) {
	d := NewDoc()
	require.NoError(t, d.SetPath("owner.name", NewText("bob")))
	require.NoError(t, d.SetPath("owner.age", NewInt(42)))

	assert.True(t, d.ContainsPath("owner.name"))
	assert.True(t, d.ContainsPath("owner.age"))
	assert.False(t, d.ContainsPath("owner.missing"))

	v, ok := d.GetPath("owner.name")
	require.True(t, ok)
	name, _ := v.AsText()
	assert.Equal(t, "bob", name)

	// SetPath through an existing nested doc preserves sibling fields.
	require.NoError(t, d.SetPath("owner.age", NewInt(43)))
	nameVal, ok := d.GetPath("owner.name")
	require.True(t, ok)
	name2, _ := nameVal.AsText()
	assert.Equal(t, "bob", name2)
}

func TestDocModifyPath(t *testing.T) {
	d := NewDoc()
	require.NoError(t, d.SetPath("counter", NewInt(1)))

	err := d.ModifyPath("counter", func(v Value) Value {
		n, _ := v.AsInt()
		return NewInt(n + 1)
	})
	require.NoError(t, err)

	v, ok := d.GetPath("counter")
	require.True(t, ok)
	n, _ := v.AsInt()
	assert.Equal(t, int64(2), n)
}

func TestDocGetOrInsertPath(t *testing.T) {
	d := NewDoc()

	v, err := d.GetOrInsertPath("settings.theme", NewText("light"))
	require.NoError(t, err)
	theme, _ := v.AsText()
	assert.Equal(t, "light", theme)

	v2, err := d.GetOrInsertPath("settings.theme", NewText("dark"))
	require.NoError(t, err)
	theme2, _ := v2.AsText()
	assert.Equal(t, "light", theme2, "GetOrInsertPath must not overwrite an existing value")
}

func TestDocMarshalUnmarshalRoundTrip(t *testing.T) {
	d := NewDoc()
	d.Set("name", NewText("alice"))
	d.Set("age", NewInt(30))
	d.Set("active", NewBool(true))

	nested := NewDoc()
	nested.Set("city", NewText("springfield"))
	d.Set("address", NewDocValue(nested))

	l := NewList()
	l.Append(NewText("x"))
	l.Append(NewText("y"))
	d.Set("tags", NewListValue(l))

	encoded, err := d.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalDoc(encoded)
	require.NoError(t, err)

	name, ok := decoded.Get("name")
	require.True(t, ok)
	nameText, _ := name.AsText()
	assert.Equal(t, "alice", nameText)

	age, ok := decoded.Get("age")
	require.True(t, ok)
	ageVal, _ := age.AsInt()
	assert.Equal(t, int64(30), ageVal)

	active, ok := decoded.Get("active")
	require.True(t, ok)
	activeVal, _ := active.AsBool()
	assert.True(t, activeVal)

	addrVal, ok := decoded.Get("address")
	require.True(t, ok)
	addr, err := addrVal.AsDoc()
	require.NoError(t, err)
	city, ok := addr.Get("city")
	require.True(t, ok)
	cityText, _ := city.AsText()
	assert.Equal(t, "springfield", cityText)

	tagsVal, ok := decoded.Get("tags")
	require.True(t, ok)
	tags, err := tagsVal.AsList()
	require.NoError(t, err)
	values := tags.Values()
	require.Len(t, values, 2)
	first, _ := values[0].AsText()
	second, _ := values[1].AsText()
	assert.Equal(t, "x", first)
	assert.Equal(t, "y", second)
}

func TestUnmarshalDocEmptyString(t *testing.T) {
	d, err := UnmarshalDoc("")
	require.NoError(t, err)
	assert.Empty(t, d.GetAll())
}

func TestDocCloneIndependence(t *testing.T) {
	d := NewDoc()
	d.Set("a", NewInt(1))

	clone := d.Clone()
	clone.Set("a", NewInt(2))

	v, ok := d.Get("a")
	require.True(t, ok)
	got, _ := v.AsInt()
	assert.Equal(t, int64(1), got, "mutating a clone must not affect the original")
}
