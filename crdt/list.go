package crdt

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// listElement is an identity-tagged slot in a List, so concurrent add/remove
// against the same position converges instead of racing on an index.
type listElement struct {
	ID      string
	Value   Value
	Deleted bool
}

// List is an ordered sequence of Values where each element carries a stable
// identity, letting remove/add commute under concurrent edits.
type List struct {
	elements []listElement
}

// NewList returns an empty list.
func NewList() *List {
	return &List{}
}

// Clone returns an independent copy.
func (l *List) Clone() *List {
	out := &List{elements: make([]listElement, len(l.elements))}
	copy(out.elements, l.elements)
	return out
}

// Append adds v to the end of the list and returns its stable element ID.
func (l *List) Append(v Value) string {
	id := uuid.NewString()
	l.elements = append(l.elements, listElement{ID: id, Value: v})
	return id
}

// Remove tombstones the element with the given ID, if present.
func (l *List) Remove(id string) {
	for i := range l.elements {
		if l.elements[i].ID == id {
			l.elements[i].Deleted = true
			return
		}
	}
}

// Values returns the live (non-deleted) values in order.
func (l *List) Values() []Value {
	out := make([]Value, 0, len(l.elements))
	for _, e := range l.elements {
		if !e.Deleted {
			out = append(out, e.Value)
		}
	}
	return out
}

// Len returns the number of live elements.
func (l *List) Len() int {
	return len(l.Values())
}

// Merge folds delta on top of l: elements present in delta overwrite by ID
// (including tombstone state), and delta elements unseen in l are appended
// in delta's order, preserving the append sequence established upstream.
func (l *List) Merge(delta *List) *List {
	out := l.Clone()
	index := make(map[string]int, len(out.elements))
	for i, e := range out.elements {
		index[e.ID] = i
	}
	for _, de := range delta.elements {
		if i, ok := index[de.ID]; ok {
			out.elements[i] = de
			continue
		}
		index[de.ID] = len(out.elements)
		out.elements = append(out.elements, de)
	}
	return out
}

func (l *List) toWire() *wireList {
	els := make([]wireElement, len(l.elements))
	for i, e := range l.elements {
		els[i] = wireElement{ID: e.ID, Value: e.Value.toWire(), Deleted: e.Deleted}
	}
	return &wireList{Elements: els}
}

// Marshal renders the list as canonical JSON.
func (l *List) Marshal() (string, error) {
	b, err := json.Marshal(l.toWire())
	if err != nil {
		return "", fmt.Errorf("crdt: marshal list: %w", err)
	}
	return string(b), nil
}

// UnmarshalList parses a List from its canonical JSON form.
func UnmarshalList(data string) (*List, error) {
	if data == "" {
		return NewList(), nil
	}
	var w wireList
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return nil, fmt.Errorf("crdt: unmarshal list: %w", err)
	}
	l := &List{elements: make([]listElement, len(w.Elements))}
	for i, e := range w.Elements {
		l.elements[i] = listElement{ID: e.ID, Value: e.Value.toValue(), Deleted: e.Deleted}
	}
	return l, nil
}
