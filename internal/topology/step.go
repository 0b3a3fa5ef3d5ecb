package topology

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Step is a named, idempotent upgrade step.
//
// Apply adds or mutates entries through the transaction. Returning a non-nil
// error discards everything staged in tx. Steps may block (e.g. querying an
// external store) but should honour ctx.
type Step interface {
	Name() string
	Apply(ctx context.Context, tx *Tx) error
}

type funcStep struct {
	name string
	fn   func(ctx context.Context, tx *Tx) error
}

func (s funcStep) Name() string { return s.name }

func (s funcStep) Apply(ctx context.Context, tx *Tx) error { return s.fn(ctx, tx) }

// NewStep wraps fn as a Step named name.
func NewStep(name string, fn func(ctx context.Context, tx *Tx) error) Step {
	return funcStep{name: name, fn: fn}
}

// EntriesStep is a declarative step that adds a fixed list of entries.
type EntriesStep struct {
	StepName string
	Entries  []EntryConfig
}

// Name implements Step.
func (s EntriesStep) Name() string { return s.StepName }

// Apply implements Step.
func (s EntriesStep) Apply(ctx context.Context, tx *Tx) error {
	for _, e := range s.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := tx.AddEntry(e.Alias, e.Kind, e.Attrs); err != nil {
			return err
		}
	}
	return nil
}

// Catalogue holds the upgrade steps that shard configurations may reference by name.
//
// Steps are registered by code (plugins) at startup; shard configs only carry
// the names, so the ordered step list of a shard is plain data.
type Catalogue struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewCatalogue creates an empty step catalogue.
func NewCatalogue() *Catalogue {
	return &Catalogue{steps: make(map[string]Step)}
}

// Register adds a step. Names must be non-empty and unique.
func (c *Catalogue) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("%w: step is nil", ErrValidation)
	}
	name := step.Name()
	if err := validateName("step name", name); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.steps[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateStep, name)
	}
	c.steps[name] = step
	return nil
}

// MustRegister is like Register but panics on error. Intended for package init.
func (c *Catalogue) MustRegister(step Step) {
	if err := c.Register(step); err != nil {
		panic(err)
	}
}

// Lookup returns the step registered under name.
func (c *Catalogue) Lookup(name string) (Step, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.steps[name]
	return s, ok
}

// Names returns the registered step names, sorted.
func (c *Catalogue) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.steps))
	for n := range c.steps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// resolveUpgrades turns upgrade configs into ordered step references.
func resolveUpgrades(catalogue *Catalogue, cfgs []UpgradeConfig) ([]UpgradeRef, error) {
	refs := make([]UpgradeRef, 0, len(cfgs))
	for i, u := range cfgs {
		hasStep := u.Step != ""
		hasEntries := len(u.Entries) > 0
		switch {
		case hasStep && hasEntries:
			return nil, fmt.Errorf("%w: upgrade %d sets both step and entries", ErrValidation, i)
		case !hasStep && !hasEntries:
			return nil, fmt.Errorf("%w: upgrade %d needs a step or entries", ErrValidation, i)
		}

		name := u.Name
		if name == "" {
			name = u.Step
		}
		if name == "" {
			name = fmt.Sprintf("upgrade-%d", i)
		}

		if hasStep {
			if catalogue == nil {
				return nil, fmt.Errorf("%w: upgrade %d references %q but no catalogue is configured", ErrUnknownStep, i, u.Step)
			}
			step, ok := catalogue.Lookup(u.Step)
			if !ok {
				return nil, fmt.Errorf("%w: upgrade %d references %q", ErrUnknownStep, i, u.Step)
			}
			refs = append(refs, UpgradeRef{Name: name, Step: step})
			continue
		}

		seen := make(map[string]struct{}, len(u.Entries))
		entries := make([]EntryConfig, 0, len(u.Entries))
		for _, e := range u.Entries {
			if err := ValidateEntry(e.Alias, e.Kind, e.Attrs); err != nil {
				return nil, fmt.Errorf("upgrade %d: %w", i, err)
			}
			if _, dup := seen[e.Alias]; dup {
				return nil, fmt.Errorf("upgrade %d: %w: %q", i, ErrDuplicateEntryAlias, e.Alias)
			}
			seen[e.Alias] = struct{}{}
			entries = append(entries, EntryConfig{Alias: e.Alias, Kind: e.Kind, Attrs: deepCopyMap(e.Attrs)})
		}
		refs = append(refs, UpgradeRef{Name: name, Step: EntriesStep{StepName: name, Entries: entries}})
	}
	return refs, nil
}
