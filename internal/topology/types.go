package topology

import (
	"net/url"
	"sort"
	"sync"
)

// SpaceConfig is the declarative description of a space.
type SpaceConfig struct {
	Name  string            `yaml:"name" toml:"name" json:"name"`
	Home  string            `yaml:"home" toml:"home" json:"home"`
	Peers map[string]string `yaml:"peers" toml:"peers" json:"peers,omitempty"`
}

// ShardConfig is the declarative description of a shard and its upgrade steps.
type ShardConfig struct {
	ID       int             `yaml:"id" toml:"id" json:"id"`
	Alias    string          `yaml:"alias" toml:"alias" json:"alias"`
	Schema   string          `yaml:"schema" toml:"schema" json:"schema"`
	Home     string          `yaml:"home" toml:"home" json:"home"`
	Upgrades []UpgradeConfig `yaml:"upgrades" toml:"upgrades" json:"upgrades,omitempty"`
}

// UpgradeConfig references one upgrade step.
//
// Exactly one of Step (a name registered in the Catalogue) or Entries
// (a declarative step adding the listed entries) must be set.
type UpgradeConfig struct {
	Name    string        `yaml:"name" toml:"name" json:"name,omitempty"`
	Step    string        `yaml:"step" toml:"step" json:"step,omitempty"`
	Entries []EntryConfig `yaml:"entries" toml:"entries" json:"entries,omitempty"`
}

// EntryConfig describes an entry added by a declarative upgrade step.
type EntryConfig struct {
	Alias string         `yaml:"alias" toml:"alias" json:"alias"`
	Kind  string         `yaml:"kind" toml:"kind" json:"kind"`
	Attrs map[string]any `yaml:"attrs" toml:"attrs" json:"attrs,omitempty"`
}

// Space is a validated data domain partitioned into shards.
// Like Shard, a *Space returned by the Registry is a read-only handle.
type Space struct {
	Name  string
	Home  string
	Peers []Peer // Sorted by name

	shards  map[int]*Shard
	aliases map[string]*Shard
}

// Peer is a remote instance participating in space synchronisation.
type Peer struct {
	Name    string
	Address *url.URL
}

// Shard is a validated subdivision of a space holding entries.
//
// A *Shard returned by the Registry is a handle: its exported fields are
// fixed at load time and must not be modified. Entries and applied versions
// are read through the Registry.
type Shard struct {
	Space    string
	ID       int
	Alias    string
	Schema   string
	Home     string
	Upgrades []UpgradeRef

	entries map[string]*Entry
	order   []string // Entry aliases in commit order
	applied Versions

	upgradeMu sync.Mutex // Serialises ApplyUpgrades on this shard
}

// UpgradeRef is a resolved, ordered upgrade step of a shard.
// Its index in Shard.Upgrades is the step's version.
type UpgradeRef struct {
	Name string
	Step Step
}

// Entry is a controllable object registered within a shard.
type Entry struct {
	Alias string     `json:"alias"`
	Kind  string     `json:"kind"`
	Attrs Attributes `json:"attrs"`
}

// DeepCopy creates an independent copy of the entry.
func (e *Entry) DeepCopy() *Entry {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Attrs = Attributes(deepCopyMap(e.Attrs))
	return &cpy
}

// Attributes holds the free-form attributes of an entry.
//
// Example (dvblast streamer):
//
//	{"name": "DVBlast", "mcast": {"id": "mcastPool", "alias": "mediaControl"}}
type Attributes map[string]any

// Attribute keys with known meaning.
const (
	AttrName  = "name"
	AttrMcast = "mcast"
)

// PoolRef identifies a multicast pool entry in another shard.
type PoolRef struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

// Name returns the display name attribute, or "" if unset.
func (a Attributes) Name() string {
	name, _ := a[AttrName].(string) //nolint:errcheck // type assertion, not an error
	return name
}

// MulticastPool returns the optional multicast pool reference.
func (a Attributes) MulticastPool() (PoolRef, bool) {
	raw, ok := a[AttrMcast].(map[string]any)
	if !ok {
		return PoolRef{}, false
	}
	ref := PoolRef{}
	ref.ID, _ = raw["id"].(string)       //nolint:errcheck // type assertion
	ref.Alias, _ = raw["alias"].(string) //nolint:errcheck // type assertion
	if ref.ID == "" && ref.Alias == "" {
		return PoolRef{}, false
	}
	return ref, true
}

// Versions is the set of applied upgrade step indices of a shard.
type Versions map[int]struct{}

// NewVersions returns a set holding the given indices.
func NewVersions(indices ...int) Versions {
	v := make(Versions, len(indices))
	for _, i := range indices {
		v[i] = struct{}{}
	}
	return v
}

// Has reports whether index i is in the set. A nil set is empty.
func (v Versions) Has(i int) bool {
	_, ok := v[i]
	return ok
}

// Add inserts index i.
func (v Versions) Add(i int) {
	v[i] = struct{}{}
}

// Clone returns an independent copy. Cloning nil yields an empty set.
func (v Versions) Clone() Versions {
	cpy := make(Versions, len(v))
	for i := range v {
		cpy[i] = struct{}{}
	}
	return cpy
}

// Sorted returns the indices in ascending order.
func (v Versions) Sorted() []int {
	out := make([]int, 0, len(v))
	for i := range v {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// AppliedResult is returned by Registry.ApplyUpgrades.
type AppliedResult struct {
	// Applied is the updated set of applied indices (input set plus Newly).
	Applied Versions
	// Newly lists the indices applied by this call, in order.
	Newly []int
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case Attributes:
		return Attributes(deepCopyMap(val))
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v
	}
}
