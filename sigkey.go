package eidetica

// GlobalKeyHint is the literal hint value meaning "the global permission
// entry, with the signer's pubkey carried in the entry itself".
const GlobalKeyHint = "*"

// SigKeyKind discriminates the two SigKey variants.
type SigKeyKind int

const (
	SigKeyDirect SigKeyKind = iota
	SigKeyDelegation
)

// DelegationHop is one link in a delegation path: a claim about the tips of
// another database's DAG at the time delegation was exercised.
type DelegationHop struct {
	Tree ID   `json:"tree"`
	Tips []ID `json:"tips"`
}

// SigKey identifies the signing identity an entry claims, either directly
// (a name, a pubkey, or the global hint) or via a chain of delegations
// through other databases, terminating in a direct hint in the final one.
type SigKey struct {
	Kind SigKeyKind      `json:"kind"`
	Hint string          `json:"hint,omitempty"`
	Path []DelegationHop `json:"path,omitempty"`
}

// DirectKey builds a Direct SigKey from a name, pubkey string, or "*".
func DirectKey(hint string) SigKey {
	return SigKey{Kind: SigKeyDirect, Hint: hint}
}

// DelegatedKey builds a Delegation SigKey resolving through path and
// terminating at hint inside the final delegated database's settings.
func DelegatedKey(path []DelegationHop, hint string) SigKey {
	return SigKey{Kind: SigKeyDelegation, Path: path, Hint: hint}
}

// IsGlobal reports whether this is the Direct("*") global identity.
func (k SigKey) IsGlobal() bool {
	return k.Kind == SigKeyDirect && k.Hint == GlobalKeyHint
}
