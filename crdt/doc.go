package crdt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Doc is the default subtree CRDT: a string-keyed map of Values with
// last-writer-wins semantics per key. "Last" is not a wall-clock notion —
// callers merge deltas in the DAG's deterministic (height, id) order, and
// whichever delta is folded in last for a given key wins, tombstone or not.
// That ordering discipline, not anything recorded inside Doc itself, is what
// makes merge converge identically on every peer.
type Doc struct {
	fields map[string]Value
}

// NewDoc returns an empty document.
func NewDoc() *Doc {
	return &Doc{fields: make(map[string]Value)}
}

// Clone returns a copy of d's top-level fields, safe to Set or Delete
// independently. Nested Docs and Lists are shared with d, not copied.
func (d *Doc) Clone() *Doc {
	out := NewDoc()
	for k, v := range d.fields {
		out.fields[k] = v
	}
	return out
}

// Set assigns a value to key.
func (d *Doc) Set(key string, v Value) {
	d.fields[key] = v
}

// Delete records a tombstone for key, even if the key never existed.
func (d *Doc) Delete(key string) {
	d.fields[key] = Tombstone()
}

// Get returns the value at key. A tombstoned or absent key both report !ok,
// matching the spec's external "not found" view of deleted keys.
func (d *Doc) Get(key string) (Value, bool) {
	v, ok := d.fields[key]
	if !ok || v.IsDeleted() {
		return Value{}, false
	}
	return v, true
}

// ContainsKey reports whether key is present and not tombstoned.
func (d *Doc) ContainsKey(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// GetAll returns a snapshot of all live (non-tombstoned) top-level keys.
func (d *Doc) GetAll() map[string]Value {
	out := make(map[string]Value, len(d.fields))
	for k, v := range d.fields {
		if !v.IsDeleted() {
			out[k] = v
		}
	}
	return out
}

// Merge folds delta on top of d, returning a new Doc. Keys present in delta
// always win, recursively merging nested docs so a partial update to a
// nested object does not clobber sibling fields.
func (d *Doc) Merge(delta *Doc) *Doc {
	out := d.Clone()
	for k, dv := range delta.fields {
		if bv, ok := out.fields[k]; ok && bv.Kind == KindDoc && dv.Kind == KindDoc {
			out.fields[k] = NewDocValue(bv.Doc.Merge(dv.Doc))
			continue
		}
		out.fields[k] = dv
	}
	return out
}

// GetPath resolves a dot-separated path, e.g. "a.b.c".
func (d *Doc) GetPath(path string) (Value, bool) {
	parts := strings.Split(path, ".")
	cur := d
	for i, p := range parts {
		v, ok := cur.Get(p)
		if !ok {
			return Value{}, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		if v.Kind != KindDoc {
			return Value{}, false
		}
		cur = v.Doc
	}
	return Value{}, false
}

// SetPath assigns a value at a dot-separated path, creating intermediate
// docs as needed.
func (d *Doc) SetPath(path string, v Value) error {
	parts := strings.Split(path, ".")
	cur := d
	for i, p := range parts {
		if i == len(parts)-1 {
			cur.Set(p, v)
			return nil
		}
		existing, ok := cur.fields[p]
		if !ok || existing.Kind != KindDoc {
			nested := NewDoc()
			cur.Set(p, NewDocValue(nested))
			cur = nested
			continue
		}
		cur = existing.Doc
	}
	return fmt.Errorf("%w: empty path", ErrInvalidPath)
}

// ContainsPath reports whether a dot-separated path resolves to a live value.
func (d *Doc) ContainsPath(path string) bool {
	_, ok := d.GetPath(path)
	return ok
}

// ModifyPath applies fn to the current value at path (or a zero Value if
// absent) and stores the result.
func (d *Doc) ModifyPath(path string, fn func(Value) Value) error {
	cur, _ := d.GetPath(path)
	return d.SetPath(path, fn(cur))
}

// GetOrInsertPath returns the value at path, inserting def if absent.
func (d *Doc) GetOrInsertPath(path string, def Value) (Value, error) {
	if v, ok := d.GetPath(path); ok {
		return v, nil
	}
	if err := d.SetPath(path, def); err != nil {
		return Value{}, err
	}
	return def, nil
}

// Marshal renders the document as canonical JSON (Go's encoding/json sorts
// map keys during marshaling, giving byte-stable output for equal content).
func (d *Doc) Marshal() (string, error) {
	wire := make(map[string]wireValue, len(d.fields))
	for k, v := range d.fields {
		wire[k] = v.toWire()
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", fmt.Errorf("crdt: marshal doc: %w", err)
	}
	return string(b), nil
}

// UnmarshalDoc parses a Doc from its canonical JSON form. An empty string
// is treated as an empty document (the common case for a freshly staged,
// untouched subtree).
func UnmarshalDoc(data string) (*Doc, error) {
	d := NewDoc()
	if data == "" {
		return d, nil
	}
	var wire map[string]wireValue
	if err := json.Unmarshal([]byte(data), &wire); err != nil {
		return nil, fmt.Errorf("crdt: unmarshal doc: %w", err)
	}
	for k, w := range wire {
		d.fields[k] = w.toValue()
	}
	return d, nil
}
