package topology

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Tx is the transaction handle passed to an upgrade step.
//
// Entries added through a Tx are staged and only become visible in the shard
// when the registry commits the step. A discarded Tx leaves no trace.
// After commit or discard every method returns ErrTxClosed.
type Tx struct {
	id    string
	reg   *Registry
	shard *Shard
	step  int

	mu     sync.Mutex
	staged []*Entry
	index  map[string]*Entry
	closed bool
}

func newTx(reg *Registry, shard *Shard, step int) *Tx {
	return &Tx{
		id:    uuid.NewString(),
		reg:   reg,
		shard: shard,
		step:  step,
		index: make(map[string]*Entry),
	}
}

// ID returns the run identifier of this transaction.
func (tx *Tx) ID() string { return tx.id }

// Step returns the index of the step this transaction belongs to.
func (tx *Tx) Step() int { return tx.step }

// Shard returns the alias of the shard being upgraded.
func (tx *Tx) Shard() string { return tx.shard.Alias }

// AddEntry stages a new entry in the shard.
// It fails with ErrDuplicateEntryAlias if alias is already committed or staged.
func (tx *Tx) AddEntry(alias, kind string, attrs map[string]any) (*Entry, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return nil, ErrTxClosed
	}
	if err := ValidateEntry(alias, kind, attrs); err != nil {
		return nil, err
	}
	if _, staged := tx.index[alias]; staged || tx.reg.hasEntry(tx.shard, alias) {
		return nil, fmt.Errorf("%w: %q in shard %d (%s)", ErrDuplicateEntryAlias, alias, tx.shard.ID, tx.shard.Alias)
	}

	e := &Entry{Alias: alias, Kind: kind, Attrs: normaliseAttrs(attrs)}
	tx.staged = append(tx.staged, e)
	tx.index[alias] = e
	return e.DeepCopy(), nil
}

// Entry returns an entry visible to this transaction: staged first, then committed.
func (tx *Tx) Entry(alias string) (*Entry, error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.closed {
		return nil, ErrTxClosed
	}
	if e, ok := tx.index[alias]; ok {
		return e.DeepCopy(), nil
	}
	return tx.reg.GetEntry(tx.shard, alias)
}

// Staged returns the number of entries staged so far.
func (tx *Tx) Staged() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.staged)
}

// close marks the transaction closed and hands back what was staged.
// It blocks until any in-flight AddEntry returns.
func (tx *Tx) close() []*Entry {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.closed = true
	staged := tx.staged
	tx.staged = nil
	tx.index = nil
	return staged
}
