package eidetica

// KeyStatus marks whether an AuthKey currently grants access.
type KeyStatus int

const (
	Active KeyStatus = iota
	Revoked
)

// AuthKey is a signing identity recorded in a database's _settings.auth map,
// keyed by pubkey.
type AuthKey struct {
	PubKey      string     `json:"pubkey"`
	Permissions Permission `json:"permissions"`
	Status      KeyStatus  `json:"status"`
	Name        string     `json:"name,omitempty"`
}

// IsActive reports whether this key currently grants any access.
func (k AuthKey) IsActive() bool { return k.Status == Active }
