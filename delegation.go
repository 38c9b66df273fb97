package eidetica

// MaxDelegationDepth bounds how many hops a Delegation SigKey may chain
// through before resolution fails with ErrMaxDelegationDepth.
const MaxDelegationDepth = 10

// TreeRef names a database and a specific set of tips within it, used both
// to describe a delegation target and to record a delegation hop's claim.
type TreeRef struct {
	Root ID   `json:"root"`
	Tips []ID `json:"tips"`
}

// PermissionBounds clamps the permission a delegated identity may exercise.
// Min is optional; when absent there is no floor beyond Read.
type PermissionBounds struct {
	Max Permission  `json:"max"`
	Min *Permission `json:"min,omitempty"`
}

// DelegatedTreeRef is a _settings.auth entry granting another database's
// keys bounded signing rights in this one.
type DelegatedTreeRef struct {
	Tree   TreeRef          `json:"tree"`
	Bounds PermissionBounds `json:"permission_bounds"`
}
