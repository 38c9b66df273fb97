package eidetica

import "errors"

// Backend errors.
var (
	ErrNotFound      = errors.New("eidetica: not found")
	ErrStorageError  = errors.New("eidetica: storage error")
	ErrAlreadyExists = errors.New("eidetica: already exists")
)

// Entry / Builder errors.
var (
	ErrMissingParents = errors.New("eidetica: non-root entry has no parents")
	ErrEmptyParent    = errors.New("eidetica: empty parent id")
	ErrInvalidEntry   = errors.New("eidetica: invalid entry")
)

// Auth errors.
var (
	ErrKeyNotFound                = errors.New("eidetica: key not found")
	ErrInvalidAuthConfiguration   = errors.New("eidetica: invalid auth configuration")
	ErrSigningKeyMismatch         = errors.New("eidetica: signing key mismatch")
	ErrNoAuthConfiguration        = errors.New("eidetica: no auth configuration")
	ErrInsufficientPermissions    = errors.New("eidetica: insufficient permissions")
	ErrSignatureVerificationFailed = errors.New("eidetica: signature verification failed")
	ErrMaxDelegationDepth         = errors.New("eidetica: maximum delegation depth exceeded")
	ErrInvalidDelegation          = errors.New("eidetica: invalid delegation")
)

// Transaction errors.
var (
	ErrTransactionAlreadyCommitted = errors.New("eidetica: transaction already committed")
	ErrEmptyTipsNotAllowed         = errors.New("eidetica: empty tips not allowed")
	ErrInvalidTip                  = errors.New("eidetica: invalid tip")
	ErrStoreDeserializationFailed  = errors.New("eidetica: store deserialization failed")
	ErrSigningKeyNotFound          = errors.New("eidetica: signing key not found")
	ErrAuthenticationRequired      = errors.New("eidetica: authentication required")
)

// Sync errors.
var (
	ErrPeerNotFound      = errors.New("eidetica: peer not found")
	ErrPeerAlreadyExists = errors.New("eidetica: peer already exists")
	ErrProtocolMismatch  = errors.New("eidetica: protocol version mismatch")
	ErrHandshakeFailed   = errors.New("eidetica: handshake failed")
	ErrNetwork           = errors.New("eidetica: network error")
	ErrUnexpectedResponse = errors.New("eidetica: unexpected response")
	ErrInstanceDropped   = errors.New("eidetica: instance dropped")
)
