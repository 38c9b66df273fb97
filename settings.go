package eidetica

import (
	"fmt"

	"github.com/arcuru/eidetica/crdt"
)

// SettingsName is the reserved subtree name carrying a database's auth
// configuration and display name.
const SettingsName = "_settings"

// RootName is the reserved subtree every root entry carries (empty value),
// used purely as a marker that an entry is a database root.
const RootName = "_root"

// IndexName is the reserved subtree optionally used for store-type discovery.
const IndexName = "_index"

// Settings is the parsed view of the _settings subtree's Doc.
type Settings struct {
	Name           string
	Auth           map[string]AuthKey // keyed by pubkey, or "*" for the global entry
	DelegatedTrees map[string]DelegatedTreeRef
}

// NewSettings returns an empty settings view (no auth configured).
func NewSettings() *Settings {
	return &Settings{
		Auth:           make(map[string]AuthKey),
		DelegatedTrees: make(map[string]DelegatedTreeRef),
	}
}

// HasAuth reports whether any auth keys or delegations are configured.
func (s *Settings) HasAuth() bool {
	return len(s.Auth) > 0 || len(s.DelegatedTrees) > 0
}

// SettingsFromDoc extracts a Settings view from a subtree Doc. Unrecognized
// entries under "auth" (neither AuthKey- nor DelegatedTreeRef-shaped) are
// skipped rather than failing the whole read.
func SettingsFromDoc(d *crdt.Doc) (*Settings, error) {
	s := NewSettings()
	if nameVal, ok := d.Get("name"); ok {
		if name, err := nameVal.AsText(); err == nil {
			s.Name = name
		}
	}
	authVal, ok := d.Get("auth")
	if !ok {
		return s, nil
	}
	authDoc, err := authVal.AsDoc()
	if err != nil {
		return nil, fmt.Errorf("eidetica: settings.auth is not a doc: %w", err)
	}
	for key, v := range authDoc.GetAll() {
		entry, err := v.AsDoc()
		if err != nil {
			continue
		}
		if _, isDelegation := entry.Get("tree"); isDelegation {
			if dt, ok := delegatedTreeRefFromDoc(entry); ok {
				s.DelegatedTrees[key] = dt
			}
			continue
		}
		if ak, ok := authKeyFromDoc(key, entry); ok {
			s.Auth[key] = ak
		}
	}
	return s, nil
}

// ToDoc renders a Settings view back into a Doc suitable for staging.
func (s *Settings) ToDoc() (*crdt.Doc, error) {
	d := crdt.NewDoc()
	if s.Name != "" {
		d.Set("name", crdt.NewText(s.Name))
	}
	if len(s.Auth) > 0 || len(s.DelegatedTrees) > 0 {
		authDoc := crdt.NewDoc()
		for key, ak := range s.Auth {
			authDoc.Set(key, crdt.NewDocValue(authKeyToDoc(ak)))
		}
		for key, dt := range s.DelegatedTrees {
			authDoc.Set(key, crdt.NewDocValue(delegatedTreeRefToDoc(dt)))
		}
		d.Set("auth", crdt.NewDocValue(authDoc))
	}
	return d, nil
}

func authKeyToDoc(ak AuthKey) *crdt.Doc {
	d := crdt.NewDoc()
	d.Set("pubkey", crdt.NewText(ak.PubKey))
	d.Set("permission_kind", crdt.NewInt(int64(ak.Permissions.Kind)))
	d.Set("permission_priority", crdt.NewInt(int64(ak.Permissions.Priority)))
	d.Set("status", crdt.NewInt(int64(ak.Status)))
	if ak.Name != "" {
		d.Set("name", crdt.NewText(ak.Name))
	}
	return d
}

func authKeyFromDoc(pubkey string, d *crdt.Doc) (AuthKey, bool) {
	kindVal, ok := d.Get("permission_kind")
	if !ok {
		return AuthKey{}, false
	}
	kind, err := kindVal.AsInt()
	if err != nil {
		return AuthKey{}, false
	}
	priority := int64(0)
	if pv, ok := d.Get("permission_priority"); ok {
		priority, _ = pv.AsInt()
	}
	status := Active
	if sv, ok := d.Get("status"); ok {
		if iv, err := sv.AsInt(); err == nil {
			status = KeyStatus(iv)
		}
	}
	name := ""
	if nv, ok := d.Get("name"); ok {
		name, _ = nv.AsText()
	}
	pk := pubkey
	if pv, ok := d.Get("pubkey"); ok {
		if s, err := pv.AsText(); err == nil && s != "" {
			pk = s
		}
	}
	return AuthKey{
		PubKey:      pk,
		Permissions: Permission{Kind: PermissionKind(kind), Priority: int(priority)},
		Status:      status,
		Name:        name,
	}, true
}

func delegatedTreeRefToDoc(dt DelegatedTreeRef) *crdt.Doc {
	d := crdt.NewDoc()
	treeDoc := crdt.NewDoc()
	treeDoc.Set("root", crdt.NewText(string(dt.Tree.Root)))
	tips := crdt.NewList()
	for _, t := range dt.Tree.Tips {
		tips.Append(crdt.NewText(string(t)))
	}
	treeDoc.Set("tips", crdt.NewListValue(tips))
	d.Set("tree", crdt.NewDocValue(treeDoc))

	boundsDoc := crdt.NewDoc()
	boundsDoc.Set("max_kind", crdt.NewInt(int64(dt.Bounds.Max.Kind)))
	boundsDoc.Set("max_priority", crdt.NewInt(int64(dt.Bounds.Max.Priority)))
	if dt.Bounds.Min != nil {
		boundsDoc.Set("min_kind", crdt.NewInt(int64(dt.Bounds.Min.Kind)))
		boundsDoc.Set("min_priority", crdt.NewInt(int64(dt.Bounds.Min.Priority)))
	}
	d.Set("bounds", crdt.NewDocValue(boundsDoc))
	return d
}

func delegatedTreeRefFromDoc(d *crdt.Doc) (DelegatedTreeRef, bool) {
	treeVal, ok := d.Get("tree")
	if !ok {
		return DelegatedTreeRef{}, false
	}
	treeDoc, err := treeVal.AsDoc()
	if err != nil {
		return DelegatedTreeRef{}, false
	}
	rootVal, ok := treeDoc.Get("root")
	if !ok {
		return DelegatedTreeRef{}, false
	}
	root, _ := rootVal.AsText()

	var tips []ID
	if tipsVal, ok := treeDoc.Get("tips"); ok {
		if l, err := tipsVal.AsList(); err == nil {
			for _, v := range l.Values() {
				if s, err := v.AsText(); err == nil {
					tips = append(tips, ID(s))
				}
			}
		}
	}

	boundsVal, ok := d.Get("bounds")
	if !ok {
		return DelegatedTreeRef{}, false
	}
	boundsDoc, err := boundsVal.AsDoc()
	if err != nil {
		return DelegatedTreeRef{}, false
	}
	maxKindVal, ok := boundsDoc.Get("max_kind")
	if !ok {
		return DelegatedTreeRef{}, false
	}
	maxKind, _ := maxKindVal.AsInt()
	maxPriority := int64(0)
	if pv, ok := boundsDoc.Get("max_priority"); ok {
		maxPriority, _ = pv.AsInt()
	}
	bounds := PermissionBounds{Max: Permission{Kind: PermissionKind(maxKind), Priority: int(maxPriority)}}
	if minKindVal, ok := boundsDoc.Get("min_kind"); ok {
		minKind, _ := minKindVal.AsInt()
		minPriority := int64(0)
		if pv, ok := boundsDoc.Get("min_priority"); ok {
			minPriority, _ = pv.AsInt()
		}
		min := Permission{Kind: PermissionKind(minKind), Priority: int(minPriority)}
		bounds.Min = &min
	}

	return DelegatedTreeRef{
		Tree:   TreeRef{Root: ID(root), Tips: tips},
		Bounds: bounds,
	}, true
}
