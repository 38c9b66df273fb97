// Package transaction implements the commit pipeline: one Transaction
// stages exactly one Entry across however many subtrees its Stores touch,
// then runs settings resolution, signing, and auth validation before
// handing the result to the backend.
package transaction

import (
	"context"
	"fmt"
	"sync"

	"github.com/arcuru/eidetica"
	"github.com/arcuru/eidetica/auth"
	"github.com/arcuru/eidetica/crdt"
	"github.com/arcuru/eidetica/crypto"
	"github.com/arcuru/eidetica/log"
	"github.com/arcuru/eidetica/metrics"
)

// Instance is the subset of *eidetica.Instance a Transaction needs to fire
// write callbacks after a successful commit.
type Instance interface {
	NotifyCommit(source eidetica.WriteSource, root eidetica.ID, entry *eidetica.Entry)
}

// StagedEntry is a read-only snapshot of one subtree's staged contribution,
// exposed for debugging and test assertions before commit.
type StagedEntry struct {
	Name    string
	Data    string
	Parents []eidetica.ID
}

// Transaction accumulates writes across one or more Stores and produces a
// single signed Entry on Commit.
type Transaction struct {
	db        *eidetica.Database
	backend   eidetica.Backend
	validator *auth.Validator
	instance  Instance

	mu       sync.Mutex
	builder  *eidetica.Builder
	baseTips []eidetica.ID
	committed bool
}

// New starts a transaction against db's current tips.
func New(ctx context.Context, db *eidetica.Database, instance Instance) (*Transaction, error) {
	tips, err := db.Tips(ctx)
	if err != nil {
		return nil, err
	}
	return NewWithTips(ctx, db, instance, tips)
}

// NewWithTips starts a transaction against an explicit tip set, e.g. to
// build a commit against a historical view.
func NewWithTips(ctx context.Context, db *eidetica.Database, instance Instance, tips []eidetica.ID) (*Transaction, error) {
	if len(tips) == 0 {
		return nil, eidetica.ErrEmptyTipsNotAllowed
	}
	for _, t := range tips {
		if _, err := db.Backend().Get(ctx, t); err != nil {
			return nil, fmt.Errorf("%w: %s", eidetica.ErrInvalidTip, t)
		}
	}
	builder := eidetica.NewBuilder(db.RootID)
	builder.SetParents(tips)
	return &Transaction{
		db:        db,
		backend:   db.Backend(),
		validator: auth.NewValidator(db.Backend()),
		instance:  instance,
		builder:   builder,
		baseTips:  tips,
	}, nil
}

// ensureStoreParents lazily computes and stages name's subtree-local
// parents on first access, reusing them on later calls within this
// transaction.
func (tx *Transaction) ensureStoreParents(ctx context.Context, name string) ([]eidetica.ID, error) {
	if st, ok := tx.builder.Subtree(name); ok {
		return st.Parents, nil
	}

	var parents []eidetica.ID
	var err error
	if tipsEqual(tx.builder.Parents(), tx.baseTips) {
		parents, err = tx.backend.GetStoreTips(ctx, tx.db.RootID, name)
	} else {
		parents, err = tx.backend.GetStoreTipsUpToEntries(ctx, tx.db.RootID, name, tx.builder.Parents())
	}
	if err != nil {
		return nil, err
	}
	tx.builder.StageSubtree(name, "", parents)
	return parents, nil
}

func tipsEqual(a, b []eidetica.ID) bool {
	if len(a) != len(b) {
		return false
	}
	set := eidetica.NewIDSet(a...)
	for _, id := range b {
		if !set.Contains(id) {
			return false
		}
	}
	return true
}

// UpdateSubtree stages serialized CRDT delta data for name, recording its
// subtree-local parents on first touch.
func (tx *Transaction) UpdateSubtree(ctx context.Context, name, data string) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	parents, err := tx.ensureStoreParents(ctx, name)
	if err != nil {
		return err
	}
	tx.builder.StageSubtree(name, data, parents)
	return nil
}

// LocalData returns the delta currently staged for name (empty string if
// name has not been touched or carries no data yet).
func (tx *Transaction) LocalData(ctx context.Context, name string) (string, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if _, err := tx.ensureStoreParents(ctx, name); err != nil {
		return "", err
	}
	st, _ := tx.builder.Subtree(name)
	return st.Data, nil
}

// FullState returns name's historical merged state (as of its recorded
// subtree parents) with this transaction's own staged delta folded on top.
func (tx *Transaction) FullState(ctx context.Context, name string) (*crdt.Doc, error) {
	tx.mu.Lock()
	parents, err := tx.ensureStoreParents(ctx, name)
	if err != nil {
		tx.mu.Unlock()
		return nil, err
	}
	st, _ := tx.builder.Subtree(name)
	tx.mu.Unlock()

	base, err := tx.backend.ComputeState(ctx, tx.db.RootID, name, parents)
	if err != nil {
		return nil, err
	}
	if st.Data == "" {
		return base, nil
	}
	delta, err := crdt.UnmarshalDoc(st.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", eidetica.ErrStoreDeserializationFailed, err)
	}
	return base.Merge(delta), nil
}

// SetEntropy tags a root entry with a distinguishing nonce, used when two
// otherwise-identical initial settings would hash to the same ID.
func (tx *Transaction) SetEntropy(v uint64) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.builder.SetEntropy(v)
}

// StagedEntries returns a read-only snapshot of every subtree touched so
// far, for debugging and assertions before Commit.
func (tx *Transaction) StagedEntries() []StagedEntry {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	names := tx.builder.StagedNames()
	out := make([]StagedEntry, 0, len(names))
	for _, name := range names {
		st, _ := tx.builder.Subtree(name)
		out = append(out, StagedEntry{Name: name, Data: st.Data, Parents: st.Parents})
	}
	return out
}

// Commit finalizes the staged entry: resolves effective settings, binds and
// applies the signing identity, validates auth, and persists the result.
func (tx *Transaction) Commit(ctx context.Context) (eidetica.ID, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed {
		return "", eidetica.ErrTransactionAlreadyCommitted
	}

	timer := metrics.NewTimer()

	// Step 1: snapshot whether this transaction touches _settings, before
	// any lazy auto-staging below can add it implicitly.
	touchesSettings := tx.builder.HasSubtree(eidetica.SettingsName)

	// Step 2: effective settings for validation.
	settingsParents, err := tx.ensureStoreParents(ctx, eidetica.SettingsName)
	if err != nil {
		return "", err
	}
	historicalDoc, err := tx.backend.ComputeState(ctx, tx.db.RootID, eidetica.SettingsName, settingsParents)
	if err != nil {
		return "", err
	}
	historicalSettings, err := eidetica.SettingsFromDoc(historicalDoc)
	if err != nil {
		return "", err
	}

	effectiveSettings := historicalSettings
	if !historicalSettings.HasAuth() {
		st, _ := tx.builder.Subtree(eidetica.SettingsName)
		if st.Data != "" {
			stagedDelta, err := crdt.UnmarshalDoc(st.Data)
			if err != nil {
				return "", fmt.Errorf("%w: %v", eidetica.ErrStoreDeserializationFailed, err)
			}
			stagedDoc := historicalDoc.Merge(stagedDelta)
			stagedSettings, err := eidetica.SettingsFromDoc(stagedDoc)
			if err != nil {
				return "", err
			}
			if stagedSettings.HasAuth() {
				effectiveSettings = stagedSettings
			}
		}
	}

	// Step 3: record metadata.settings_tips.
	tx.builder.SetSettingsTips(settingsParents)

	// Step 4: bind the signing key.
	if tx.db.Key != nil {
		tx.builder.SetSigKey(tx.db.Key.Identity)
		if tx.db.Key.Identity.IsGlobal() {
			tx.builder.SetSigPubKey(crypto.PubKeyFromPrivate(tx.db.Key.SigningKey))
		}
		if !effectiveSettings.HasAuth() {
			return "", eidetica.ErrNoAuthConfiguration
		}
	}

	// Step 5: strip empty subtrees, build, structurally validate.
	entry, err := tx.builder.Build()
	if err != nil {
		metrics.CommitsTotal.WithLabelValues("invalid").Inc()
		return "", err
	}

	// Step 6: sign.
	if tx.db.Key != nil {
		if err := eidetica.SignEntry(entry, tx.db.Key.SigningKey); err != nil {
			return "", err
		}
	}

	// Step 7: auth validation.
	op := eidetica.OpWriteData
	if touchesSettings {
		op = eidetica.OpWriteSettings
	}
	if err := tx.validator.ValidateEntry(ctx, tx.db.RootID, effectiveSettings, entry, op); err != nil {
		metrics.CommitsTotal.WithLabelValues("rejected").Inc()
		timer.ObserveDuration(metrics.CommitDuration)
		return "", err
	}

	// Step 8: persist and notify.
	if err := tx.backend.Put(ctx, eidetica.Verified, entry); err != nil {
		metrics.CommitsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	tx.committed = true
	if tx.instance != nil {
		tx.instance.NotifyCommit(eidetica.WriteLocal, tx.db.RootID, entry)
	}

	metrics.CommitsTotal.WithLabelValues("success").Inc()
	timer.ObserveDuration(metrics.CommitDuration)
	log.Logger.Debug().Str("entry_id", entry.ID().String()).Str("root_id", tx.db.RootID.String()).Msg("committed entry")
	return entry.ID(), nil
}
