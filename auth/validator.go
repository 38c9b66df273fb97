// Package auth resolves an entry's claimed signing identity to an effective
// Permission, walking delegation chains and enforcing the depth limit, and
// checks that permission against the operation a commit is attempting.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/crypto"
	"github.com/arcuru/eidetica/log"
	"github.com/arcuru/eidetica/metrics"
)

// Validator checks entry signatures and resolves signing identities against
// a database's (and, for delegation, other databases') settings.
type Validator struct {
	backend eidetica.Backend
}

// NewValidator builds a Validator atop backend.
func NewValidator(backend eidetica.Backend) *Validator {
	return &Validator{backend: backend}
}

// ValidateEntry verifies entry's signature and checks that the signer's
// resolved, delegation-clamped permission satisfies op. settings is the
// effective _settings view entry was built against (historical, per the
// commit pipeline's settings snapshot rule).
func (v *Validator) ValidateEntry(ctx context.Context, root eidetica.ID, settings *eidetica.Settings, entry *eidetica.Entry, op eidetica.Operation) error {
	if !settings.HasAuth() {
		// Unauthenticated database: any entry is accepted as-is.
		return nil
	}

	pubkeyStr, perm, err := v.ResolveSigKey(ctx, root, settings, entry)
	if err != nil {
		metrics.ValidationFailuresTotal.WithLabelValues(failureLabel(err)).Inc()
		return err
	}

	if !perm.Satisfies(op) {
		metrics.ValidationFailuresTotal.WithLabelValues("permission").Inc()
		log.Logger.Warn().Str("entry_id", entry.ID().String()).Str("pubkey", pubkeyStr).Msg("insufficient permission for operation")
		return eidetica.ErrInsufficientPermissions
	}
	return nil
}

func failureLabel(err error) string {
	switch {
	case errors.Is(err, eidetica.ErrSignatureVerificationFailed):
		return "signature"
	case errors.Is(err, eidetica.ErrInvalidAuthConfiguration):
		return "bad_pubkey"
	default:
		return "resolve"
	}
}

// directCandidate is one Active/Inactive AuthKey that a Direct SigKey's
// name hint could refer to, paired with its pubkey.
type directCandidate struct {
	pubkey string
	key    eidetica.AuthKey
}

// ResolveSigKey resolves entry.Sig to the pubkey string that produced the
// signature and the effective (delegation-clamped) Permission it holds in
// root's database. When a name hint matches more than one Active key (mid
// key-rotation, say), every match is tried in turn against entry's actual
// signature until one verifies.
func (v *Validator) ResolveSigKey(ctx context.Context, root eidetica.ID, settings *eidetica.Settings, entry *eidetica.Entry) (string, eidetica.Permission, error) {
	sig := entry.Sig
	key := sig.Key
	if len(key.Path) > eidetica.MaxDelegationDepth {
		return "", eidetica.Permission{}, eidetica.ErrMaxDelegationDepth
	}

	curSettings := settings
	var bounds []eidetica.PermissionBounds

	for _, hop := range key.Path {
		ref, ok := findDelegation(curSettings, hop.Tree)
		if !ok {
			return "", eidetica.Permission{}, fmt.Errorf("%w: no delegation to %s", eidetica.ErrInvalidDelegation, hop.Tree)
		}
		bounds = append(bounds, ref.Bounds)

		hopSettingsDoc, err := v.backend.ComputeState(ctx, hop.Tree, eidetica.SettingsName, hop.Tips)
		if err != nil {
			return "", eidetica.Permission{}, fmt.Errorf("%w: load delegated settings for %s: %v", eidetica.ErrInvalidDelegation, hop.Tree, err)
		}
		hopSettings, err := eidetica.SettingsFromDoc(hopSettingsDoc)
		if err != nil {
			return "", eidetica.Permission{}, err
		}
		curSettings = hopSettings
	}

	candidates, err := resolveDirect(curSettings, key.Hint, sig.PubKey)
	if err != nil {
		return "", eidetica.Permission{}, err
	}

	var lastErr error = eidetica.ErrKeyNotFound
	for _, c := range candidates {
		if !c.key.IsActive() {
			lastErr = eidetica.ErrInsufficientPermissions
			continue
		}
		pub, err := crypto.ParsePubKey(c.pubkey)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", eidetica.ErrInvalidAuthConfiguration, err)
			continue
		}
		if err := eidetica.VerifyEntrySignature(entry, pub); err != nil {
			lastErr = err
			continue
		}

		effective := c.key.Permissions
		for i := len(bounds) - 1; i >= 0; i-- {
			effective = effective.Clamp(bounds[i].Max, bounds[i].Min)
		}
		return c.pubkey, effective, nil
	}
	return "", eidetica.Permission{}, lastErr
}

// findDelegation locates the DelegatedTreeRef in settings whose Tree.Root
// matches target, regardless of the key it is stored under.
func findDelegation(settings *eidetica.Settings, target eidetica.ID) (eidetica.DelegatedTreeRef, bool) {
	for _, ref := range settings.DelegatedTrees {
		if ref.Tree.Root == target {
			return ref, true
		}
	}
	return eidetica.DelegatedTreeRef{}, false
}

// resolveDirect resolves a Direct SigKey's hint against settings.Auth. The
// global hint uses the pubkey embedded in the entry itself. A hint that is
// itself a pubkey resolves to exactly one candidate. A name hint may match
// more than one key (e.g. two Active keys sharing a name during rotation),
// so every match is returned for the caller to try against the signature.
func resolveDirect(settings *eidetica.Settings, hint, embeddedPubKey string) ([]directCandidate, error) {
	if hint == eidetica.GlobalKeyHint {
		if embeddedPubKey == "" {
			return nil, fmt.Errorf("%w: global key with no embedded pubkey", eidetica.ErrInvalidAuthConfiguration)
		}
		ak, ok := settings.Auth[embeddedPubKey]
		if !ok {
			return nil, eidetica.ErrKeyNotFound
		}
		return []directCandidate{{pubkey: embeddedPubKey, key: ak}}, nil
	}
	if ak, ok := settings.Auth[hint]; ok {
		return []directCandidate{{pubkey: hint, key: ak}}, nil
	}
	var matches []directCandidate
	for pk, ak := range settings.Auth {
		if ak.Name == hint {
			matches = append(matches, directCandidate{pubkey: pk, key: ak})
		}
	}
	if len(matches) == 0 {
		return nil, eidetica.ErrKeyNotFound
	}
	return matches, nil
}
