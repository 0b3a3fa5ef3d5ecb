package topology

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// UpgradeOutcome describes one attempted upgrade step.
type UpgradeOutcome struct {
	Space      string
	ShardID    int
	ShardAlias string
	Step       int
	StepName   string
	RunID      string
	Entries    int // Entries committed by the step (0 on failure)
	Duration   time.Duration
	Err        error
}

// Observer is notified after every attempted upgrade step.
// Observers are called synchronously and must not call back into ApplyUpgrades.
type Observer interface {
	UpgradeAttempted(outcome UpgradeOutcome)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(UpgradeOutcome)

// UpgradeAttempted implements Observer.
func (f ObserverFunc) UpgradeAttempted(o UpgradeOutcome) { f(o) }

// Stats summarises what a registry holds.
type Stats struct {
	Spaces       int `json:"spaces"`
	Shards       int `json:"shards"`
	Entries      int `json:"entries"`
	AppliedSteps int `json:"applied_steps"`
}

// Registry holds the spaces, shards and entries of a node.
//
// Spaces and shards are loaded from declarative configuration; entries are
// only ever created by upgrade steps through a Tx. If a Repository is set,
// every committed step is persisted before it becomes visible in memory.
//
// All public methods are thread-safe.
type Registry struct {
	mu     sync.RWMutex
	spaces map[string]*Space

	catalogue *Catalogue
	repo      Repository
	observers []Observer
	logger    Logger
}

// NewRegistry creates an empty registry.
// The catalogue resolves named upgrade steps; it may be nil when only
// declarative (entries) steps are used.
func NewRegistry(catalogue *Catalogue) *Registry {
	return &Registry{
		spaces:    make(map[string]*Space),
		catalogue: catalogue,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SetRepository configures persistence of committed steps.
func (r *Registry) SetRepository(repo Repository) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repo = repo
}

// AddObserver registers an observer of upgrade outcomes.
func (r *Registry) AddObserver(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// LoadSpace validates cfg and registers the space.
//
// Returns ErrValidation for missing fields or malformed peer addresses,
// ErrDuplicatePeer when two peer names collide after trimming and
// lower-casing, and ErrDuplicateSpace when the name is already loaded.
func (r *Registry) LoadSpace(cfg SpaceConfig) (*Space, error) {
	if err := validateSpaceConfig(cfg); err != nil {
		return nil, err
	}

	peers := make([]Peer, 0, len(cfg.Peers))
	seen := make(map[string]string, len(cfg.Peers))
	for name, addr := range cfg.Peers {
		if err := validateName("peer name", name); err != nil {
			return nil, fmt.Errorf("space %q: %w", cfg.Name, err)
		}
		norm := normalisePeerName(name)
		if other, dup := seen[norm]; dup {
			return nil, fmt.Errorf("%w: %q and %q in space %q", ErrDuplicatePeer, other, name, cfg.Name)
		}
		seen[norm] = name

		u, err := ValidatePeerAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("space %q peer %q: %w", cfg.Name, name, err)
		}
		peers = append(peers, Peer{Name: name, Address: u})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].Name < peers[j].Name })

	space := &Space{
		Name:    cfg.Name,
		Home:    cfg.Home,
		Peers:   peers,
		shards:  make(map[int]*Shard),
		aliases: make(map[string]*Shard),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.spaces[cfg.Name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateSpace, cfg.Name)
	}
	r.spaces[cfg.Name] = space

	r.logger.Info("space loaded", "space", space.Name, "home", space.Home, "peers", len(peers))
	return space, nil
}

// LoadShard validates cfg and registers the shard in space.
//
// The id is checked before the alias, so a config colliding on both
// reports ErrDuplicateShardID. On any error the space is left unchanged.
func (r *Registry) LoadShard(space *Space, cfg ShardConfig) (*Shard, error) {
	if space == nil {
		return nil, fmt.Errorf("%w: space is nil", ErrValidation)
	}
	if err := validateShardConfig(cfg); err != nil {
		return nil, fmt.Errorf("space %q: %w", space.Name, err)
	}
	refs, err := resolveUpgrades(r.catalogue, cfg.Upgrades)
	if err != nil {
		return nil, fmt.Errorf("space %q shard %d (%s): %w", space.Name, cfg.ID, cfg.Alias, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sp, ok := r.spaces[space.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSpaceNotFound, space.Name)
	}
	if existing, dup := sp.shards[cfg.ID]; dup {
		return nil, fmt.Errorf("%w: %d in space %q (held by %q)", ErrDuplicateShardID, cfg.ID, sp.Name, existing.Alias)
	}
	if existing, dup := sp.aliases[cfg.Alias]; dup {
		return nil, fmt.Errorf("%w: %q in space %q (held by shard %d)", ErrDuplicateShardAlias, cfg.Alias, sp.Name, existing.ID)
	}

	shard := &Shard{
		Space:    sp.Name,
		ID:       cfg.ID,
		Alias:    cfg.Alias,
		Schema:   cfg.Schema,
		Home:     cfg.Home,
		Upgrades: refs,
		entries:  make(map[string]*Entry),
		applied:  NewVersions(),
	}
	sp.shards[shard.ID] = shard
	sp.aliases[shard.Alias] = shard

	r.logger.Info("shard loaded",
		"space", sp.Name, "shard_id", shard.ID, "shard_alias", shard.Alias,
		"schema", shard.Schema, "home", shard.Home, "upgrades", len(refs))
	return shard, nil
}

// ApplyUpgrades runs the pending upgrade steps of shard in declared order.
//
// A step is pending when its index is neither in applied nor already
// recorded on the shard. Each step runs in its own transaction; on success
// the step is persisted (if a repository is set) and then merged into the
// shard. The first failure stops the sequence and returns an *UpgradeError
// together with the result accumulated so far; the failing step leaves no
// entries behind. ctx bounds the whole sequence: expiry, even while a step
// is blocked, fails the current step.
func (r *Registry) ApplyUpgrades(ctx context.Context, shard *Shard, applied Versions) (AppliedResult, error) {
	result := AppliedResult{Applied: applied.Clone()}

	s, err := r.lookupShard(shard)
	if err != nil {
		return result, err
	}

	s.upgradeMu.Lock()
	defer s.upgradeMu.Unlock()

	r.mu.RLock()
	done := s.applied.Clone()
	repo := r.repo
	logger := r.logger
	r.mu.RUnlock()

	for i, ref := range s.Upgrades {
		if result.Applied.Has(i) || done.Has(i) {
			result.Applied.Add(i)
			continue
		}

		outcome := r.applyStep(ctx, repo, s, i, ref)
		r.notify(outcome)

		if outcome.Err != nil {
			logger.Error("upgrade step failed",
				"space", s.Space, "shard_id", s.ID, "shard_alias", s.Alias,
				"step", i, "step_name", ref.Name, "run_id", outcome.RunID, "error", outcome.Err)
			return result, &UpgradeError{
				Space:      s.Space,
				ShardID:    s.ID,
				ShardAlias: s.Alias,
				Step:       i,
				StepName:   ref.Name,
				Err:        outcome.Err,
			}
		}

		logger.Info("upgrade step applied",
			"space", s.Space, "shard_id", s.ID, "shard_alias", s.Alias,
			"step", i, "step_name", ref.Name, "run_id", outcome.RunID,
			"entries", outcome.Entries, "duration", outcome.Duration)
		result.Applied.Add(i)
		result.Newly = append(result.Newly, i)
	}
	return result, nil
}

// applyStep runs one step in a fresh transaction and commits it on success.
func (r *Registry) applyStep(ctx context.Context, repo Repository, s *Shard, index int, ref UpgradeRef) UpgradeOutcome {
	tx := newTx(r, s, index)
	outcome := UpgradeOutcome{
		Space:      s.Space,
		ShardID:    s.ID,
		ShardAlias: s.Alias,
		Step:       index,
		StepName:   ref.Name,
		RunID:      tx.ID(),
	}
	start := time.Now()

	err := ctx.Err()
	if err == nil {
		err = runStep(ctx, ref.Step, tx)
	}
	staged := tx.close()
	if err == nil {
		// The deadline may pass between the step returning and this check.
		err = ctx.Err()
	}
	if err != nil {
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome
	}

	if repo != nil {
		entries := make([]Entry, len(staged))
		for i, e := range staged {
			entries[i] = *e
		}
		rec := UpgradeRecord{
			Space:     s.Space,
			ShardID:   s.ID,
			Version:   index,
			Name:      ref.Name,
			RunID:     tx.ID(),
			AppliedAt: time.Now().UTC(),
		}
		if err := repo.CommitStep(ctx, rec, entries); err != nil {
			outcome.Err = fmt.Errorf("persisting step: %w", err)
			outcome.Duration = time.Since(start)
			return outcome
		}
	}

	r.mu.Lock()
	for _, e := range staged {
		s.entries[e.Alias] = e
		s.order = append(s.order, e.Alias)
	}
	s.applied.Add(index)
	r.mu.Unlock()

	outcome.Entries = len(staged)
	outcome.Duration = time.Since(start)
	return outcome
}

// runStep executes step in its own goroutine so ctx expiry is observed even
// when the step blocks. A step still running after expiry finds its Tx closed.
func runStep(ctx context.Context, step Step, tx *Tx) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("step panicked: %v", p)
			}
		}()
		done <- step.Apply(ctx, tx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) notify(o UpgradeOutcome) {
	r.mu.RLock()
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	r.mu.RUnlock()

	for _, obs := range observers {
		obs.UpgradeAttempted(o)
	}
}

// RestoreShard loads the persisted entries and applied versions of shard
// from the repository. It is a no-op when no repository is set.
// Entries already present in memory are kept.
func (r *Registry) RestoreShard(ctx context.Context, shard *Shard) error {
	s, err := r.lookupShard(shard)
	if err != nil {
		return err
	}

	r.mu.RLock()
	repo := r.repo
	r.mu.RUnlock()
	if repo == nil {
		return nil
	}

	versions, err := repo.AppliedVersions(ctx, s.Space, s.ID)
	if err != nil {
		return fmt.Errorf("restoring shard %d (%s): %w", s.ID, s.Alias, err)
	}
	entries, err := repo.ListEntries(ctx, s.Space, s.ID)
	if err != nil {
		return fmt.Errorf("restoring shard %d (%s): %w", s.ID, s.Alias, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	restored := 0
	for i := range entries {
		e := entries[i]
		if _, exists := s.entries[e.Alias]; exists {
			continue
		}
		s.entries[e.Alias] = e.DeepCopy()
		s.order = append(s.order, e.Alias)
		restored++
	}
	for v := range versions {
		s.applied.Add(v)
	}

	r.logger.Info("shard restored",
		"space", s.Space, "shard_id", s.ID, "shard_alias", s.Alias,
		"entries", restored, "applied", len(versions))
	return nil
}

// GetEntry retrieves an entry of shard by alias.
// Returns ErrEntryNotFound if the alias does not exist.
// The returned entry is a deep copy; callers can safely modify it.
func (r *Registry) GetEntry(shard *Shard, alias string) (*Entry, error) {
	s, err := r.lookupShard(shard)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := s.entries[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %q in shard %d (%s)", ErrEntryNotFound, alias, s.ID, s.Alias)
	}
	return e.DeepCopy(), nil
}

// hasEntry reports whether alias is committed in shard.
func (r *Registry) hasEntry(s *Shard, alias string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := s.entries[alias]
	return ok
}

// Entries returns deep copies of the entries of shard in commit order.
func (r *Registry) Entries(shard *Shard) ([]*Entry, error) {
	s, err := r.lookupShard(shard)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(s.order))
	for _, alias := range s.order {
		out = append(out, s.entries[alias].DeepCopy())
	}
	return out, nil
}

// AppliedVersions returns a copy of the applied step indices of shard.
func (r *Registry) AppliedVersions(shard *Shard) (Versions, error) {
	s, err := r.lookupShard(shard)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return s.applied.Clone(), nil
}

// Spaces returns the loaded spaces sorted by name.
func (r *Registry) Spaces() []*Space {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Space, 0, len(r.spaces))
	for _, sp := range r.spaces {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Space returns the space loaded under name.
func (r *Registry) Space(name string) (*Space, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.spaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSpaceNotFound, name)
	}
	return sp, nil
}

// Shards returns the shards of a space sorted by id.
func (r *Registry) Shards(space string) ([]*Shard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.spaces[space]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSpaceNotFound, space)
	}
	return sortedShards(sp), nil
}

// Shard looks up a shard of space by numeric id or by alias.
// A ref that parses as an integer is tried as an id first.
func (r *Registry) Shard(space, ref string) (*Shard, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.spaces[space]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSpaceNotFound, space)
	}
	if id, err := strconv.Atoi(ref); err == nil {
		if s, ok := sp.shards[id]; ok {
			return s, nil
		}
	}
	if s, ok := sp.aliases[ref]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q in space %q", ErrShardNotFound, ref, space)
}

// UnloadSpace removes a space and all its shards from the registry.
// Persisted state is not touched.
func (r *Registry) UnloadSpace(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.spaces[name]; !ok {
		return fmt.Errorf("%w: %q", ErrSpaceNotFound, name)
	}
	delete(r.spaces, name)
	r.logger.Info("space unloaded", "space", name)
	return nil
}

// Stats returns counts of what the registry holds.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var st Stats
	st.Spaces = len(r.spaces)
	for _, sp := range r.spaces {
		st.Shards += len(sp.shards)
		for _, s := range sp.shards {
			st.Entries += len(s.entries)
			st.AppliedSteps += len(s.applied)
		}
	}
	return st
}

// lookupShard resolves a handle to the shard currently loaded under the
// same space and id, so handles from an unloaded space are rejected.
func (r *Registry) lookupShard(shard *Shard) (*Shard, error) {
	if shard == nil {
		return nil, fmt.Errorf("%w: shard is nil", ErrValidation)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.spaces[shard.Space]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSpaceNotFound, shard.Space)
	}
	s, ok := sp.shards[shard.ID]
	if !ok || s != shard {
		return nil, fmt.Errorf("%w: %d in space %q", ErrShardNotFound, shard.ID, shard.Space)
	}
	return s, nil
}

func sortedShards(sp *Space) []*Shard {
	out := make([]*Shard, 0, len(sp.shards))
	for _, s := range sp.shards {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
