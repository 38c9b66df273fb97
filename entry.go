package eidetica

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// SubtreeEntry is one named subtree's contribution within an Entry: its
// serialized CRDT delta and the subtree-local parents it builds on.
type SubtreeEntry struct {
	Data    string `json:"data"`
	Parents []ID   `json:"parents"`
}

// Metadata carries bookkeeping that rides along with an Entry but is not
// itself subtree data.
type Metadata struct {
	SettingsTips []ID    `json:"settings_tips,omitempty"`
	Entropy      *uint64 `json:"entropy,omitempty"`
}

// Sig is an entry's claimed signing identity and, once signed, its
// signature. Sig is excluded from its own hash input: Key and PubKey are
// part of the canonical bytes, Sig is not.
type Sig struct {
	Key    SigKey `json:"key"`
	PubKey string `json:"pubkey,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

// Entry is an immutable, signed node in a database's DAG. Construct one via
// Builder, never by populating this struct directly outside this package.
type Entry struct {
	id       ID
	RootID   ID                      `json:"root_id"`
	Parents  []ID                    `json:"parents"`
	Subtrees map[string]SubtreeEntry `json:"subtrees"`
	Metadata Metadata                `json:"metadata"`
	Sig      Sig                     `json:"sig"`
}

// ID returns the content-addressed identifier for this entry.
func (e *Entry) ID() ID { return e.id }

// IsRoot reports whether this entry is a database root.
func (e *Entry) IsRoot() bool { return e.RootID.IsEmpty() }

// HasSubtree reports whether the entry carries the named subtree.
func (e *Entry) HasSubtree(name string) bool {
	_, ok := e.Subtrees[name]
	return ok
}

// SubtreeNames returns the entry's subtree names in sorted order.
func (e *Entry) SubtreeNames() []string {
	names := make([]string, 0, len(e.Subtrees))
	for name := range e.Subtrees {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// canonicalSubtree mirrors SubtreeEntry with explicit field order and
// sorted parents, for canonical (hash/sign) serialization.
type canonicalSubtree struct {
	Name    string `json:"name"`
	Data    string `json:"data"`
	Parents []ID   `json:"parents"`
}

// canonicalEntry mirrors Entry, omitting Sig.Sig, with deterministic
// ordering for every nested slice/map — the exact form spec.md §6 names.
type canonicalEntry struct {
	RootID   ID                  `json:"root_id"`
	Parents  []ID                `json:"parents"`
	Subtrees []canonicalSubtree  `json:"subtrees"`
	Metadata Metadata            `json:"metadata"`
	SigKey   SigKey              `json:"sig_key"`
	SigPub   string              `json:"sig_pubkey,omitempty"`
}

func sortedIDs(ids []ID) []ID {
	out := make([]ID, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// canonicalBytes produces the stable byte form used for both the entry's
// content-addressed ID and its signature input.
func canonicalBytes(e *Entry) ([]byte, error) {
	names := e.SubtreeNames()
	subtrees := make([]canonicalSubtree, 0, len(names))
	for _, name := range names {
		st := e.Subtrees[name]
		subtrees = append(subtrees, canonicalSubtree{
			Name:    name,
			Data:    st.Data,
			Parents: sortedIDs(st.Parents),
		})
	}
	ce := canonicalEntry{
		RootID:   e.RootID,
		Parents:  sortedIDs(e.Parents),
		Subtrees: subtrees,
		Metadata: e.Metadata,
		SigKey:   e.Sig.Key,
		SigPub:   e.Sig.PubKey,
	}
	b, err := json.Marshal(ce)
	if err != nil {
		return nil, fmt.Errorf("eidetica: canonicalize entry: %w", err)
	}
	return b, nil
}

func computeID(e *Entry) (ID, error) {
	b, err := canonicalBytes(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return ID(hex.EncodeToString(sum[:])), nil
}

// MarshalJSON serializes the full entry including its cached ID, for wire
// transfer and storage.
func (e *Entry) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID       ID                      `json:"id"`
		RootID   ID                      `json:"root_id"`
		Parents  []ID                    `json:"parents"`
		Subtrees map[string]SubtreeEntry `json:"subtrees"`
		Metadata Metadata                `json:"metadata"`
		Sig      Sig                     `json:"sig"`
	}
	w := wire{
		ID:       e.id,
		RootID:   e.RootID,
		Parents:  e.Parents,
		Subtrees: e.Subtrees,
		Metadata: e.Metadata,
		Sig:      e.Sig,
	}
	return json.Marshal(w)
}

// UnmarshalJSON deserializes an entry, trusting the carried ID (callers
// that need tamper-evidence should call Verify on the result).
func (e *Entry) UnmarshalJSON(data []byte) error {
	type wire struct {
		ID       ID                      `json:"id"`
		RootID   ID                      `json:"root_id"`
		Parents  []ID                    `json:"parents"`
		Subtrees map[string]SubtreeEntry `json:"subtrees"`
		Metadata Metadata                `json:"metadata"`
		Sig      Sig                     `json:"sig"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	e.id = w.ID
	e.RootID = w.RootID
	e.Parents = w.Parents
	e.Subtrees = w.Subtrees
	e.Metadata = w.Metadata
	e.Sig = w.Sig
	return nil
}

// Verify recomputes this entry's ID from its canonical bytes and reports
// whether it matches the carried ID — a structural tamper check independent
// of signature verification.
func (e *Entry) Verify() error {
	want, err := computeID(e)
	if err != nil {
		return err
	}
	if want != e.id {
		return fmt.Errorf("%w: id mismatch, recomputed %s got %s", ErrInvalidEntry, want, e.id)
	}
	return nil
}

// base64Sig is a convenience accessor for logging/debug output.
func (s Sig) base64Sig() string {
	if len(s.Sig) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(s.Sig)
}
