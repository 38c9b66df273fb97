package eidetica

import (
	"crypto/ed25519"
	"fmt"

	"github.com/arcuru/eidetica/crypto"
)

// Builder accumulates a draft Entry before it is finalized. It is a
// single-owner mutable cell: Stores write into it during a Transaction,
// and Build produces the immutable Entry once staging is complete.
type Builder struct {
	rootID   ID
	parents  []ID
	subtrees map[string]SubtreeEntry
	metadata Metadata
	sig      Sig
}

// NewBuilder starts a draft for a new entry under rootID (empty for a
// database root).
func NewBuilder(rootID ID) *Builder {
	return &Builder{
		rootID:   rootID,
		subtrees: make(map[string]SubtreeEntry),
	}
}

func (b *Builder) SetParents(parents []ID) { b.parents = parents }
func (b *Builder) Parents() []ID           { return b.parents }

// StageSubtree records (or overwrites) a subtree's staged delta and parents.
func (b *Builder) StageSubtree(name, data string, parents []ID) {
	b.subtrees[name] = SubtreeEntry{Data: data, Parents: parents}
}

// Subtree returns the currently staged entry for name, if any.
func (b *Builder) Subtree(name string) (SubtreeEntry, bool) {
	st, ok := b.subtrees[name]
	return st, ok
}

// HasSubtree reports whether name has been staged (even if empty so far) —
// used to decide whether a transaction "touches" a subtree.
func (b *Builder) HasSubtree(name string) bool {
	_, ok := b.subtrees[name]
	return ok
}

// StagedNames returns the names of every subtree staged so far, in no
// particular order.
func (b *Builder) StagedNames() []string {
	names := make([]string, 0, len(b.subtrees))
	for name := range b.subtrees {
		names = append(names, name)
	}
	return names
}

func (b *Builder) SetSettingsTips(tips []ID) { b.metadata.SettingsTips = tips }
func (b *Builder) SetEntropy(v uint64)       { b.metadata.Entropy = &v }
func (b *Builder) SetSigKey(key SigKey)      { b.sig.Key = key }
func (b *Builder) SetSigPubKey(pk string)    { b.sig.PubKey = pk }
func (b *Builder) SigKey() SigKey            { return b.sig.Key }

// removeEmptySubtrees drops subtrees with neither staged data nor parents,
// per the spec's remove_empty_subtrees rule. The _root marker a root entry
// carries is empty by design and is kept.
func (b *Builder) removeEmptySubtrees() {
	for name, st := range b.subtrees {
		if name == RootName {
			continue
		}
		if st.Data == "" && len(st.Parents) == 0 {
			delete(b.subtrees, name)
		}
	}
}

// Build performs structural validation, strips empty subtrees, and returns
// the immutable Entry with its content-addressed ID computed. The entry is
// not yet signed: Sig.Sig is empty until SignEntry is called on the result.
func (b *Builder) Build() (*Entry, error) {
	b.removeEmptySubtrees()

	if !b.rootID.IsEmpty() && len(b.parents) == 0 {
		return nil, ErrMissingParents
	}
	for _, p := range b.parents {
		if p.IsEmpty() {
			return nil, ErrEmptyParent
		}
	}
	for _, st := range b.subtrees {
		for _, p := range st.Parents {
			if p.IsEmpty() {
				return nil, ErrEmptyParent
			}
		}
	}

	subtrees := make(map[string]SubtreeEntry, len(b.subtrees))
	for k, v := range b.subtrees {
		subtrees[k] = v
	}

	e := &Entry{
		RootID:   b.rootID,
		Parents:  append([]ID(nil), b.parents...),
		Subtrees: subtrees,
		Metadata: b.metadata,
		Sig:      b.sig,
	}
	id, err := computeID(e)
	if err != nil {
		return nil, err
	}
	e.id = id
	return e, nil
}

// SignEntry signs e's canonical bytes (excluding Sig.Sig) with signingKey
// and attaches the resulting signature. The entry's ID does not change,
// since the ID hash already excludes Sig.Sig.
func SignEntry(e *Entry, signingKey ed25519.PrivateKey) error {
	b, err := canonicalBytes(e)
	if err != nil {
		return err
	}
	e.Sig.Sig = crypto.Sign(signingKey, b)
	return nil
}

// VerifyEntrySignature checks e.Sig.Sig against pub over e's canonical bytes.
func VerifyEntrySignature(e *Entry, pub ed25519.PublicKey) error {
	b, err := canonicalBytes(e)
	if err != nil {
		return err
	}
	if len(e.Sig.Sig) == 0 {
		return fmt.Errorf("%w: entry has no signature", ErrSignatureVerificationFailed)
	}
	if !crypto.Verify(pub, b, e.Sig.Sig) {
		return ErrSignatureVerificationFailed
	}
	return nil
}
