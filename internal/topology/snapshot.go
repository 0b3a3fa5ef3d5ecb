package topology

import "fmt"

// SpaceInfo is a point-in-time, serialisable view of a space.
type SpaceInfo struct {
	Name   string      `json:"name"`
	Home   string      `json:"home"`
	Peers  []PeerInfo  `json:"peers"`
	Shards []ShardInfo `json:"shards"`
}

// PeerInfo is the serialisable form of a Peer.
type PeerInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// ShardInfo is a point-in-time, serialisable view of a shard.
type ShardInfo struct {
	Space    string   `json:"space"`
	ID       int      `json:"id"`
	Alias    string   `json:"alias"`
	Schema   string   `json:"schema"`
	Home     string   `json:"home"`
	Upgrades []string `json:"upgrades"`
	Applied  []int    `json:"applied"`
	Entries  []Entry  `json:"entries"`
}

// Describe returns a snapshot of the named space.
func (r *Registry) Describe(name string) (SpaceInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sp, ok := r.spaces[name]
	if !ok {
		return SpaceInfo{}, fmt.Errorf("%w: %q", ErrSpaceNotFound, name)
	}
	return describeSpace(sp), nil
}

// Snapshot returns a view of every loaded space, sorted by name.
// Two registries loaded from identical input produce equal snapshots.
func (r *Registry) Snapshot() []SpaceInfo {
	spaces := r.Spaces()

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SpaceInfo, 0, len(spaces))
	for _, sp := range spaces {
		out = append(out, describeSpace(sp))
	}
	return out
}

// DescribeShard returns a snapshot of a single shard.
func (r *Registry) DescribeShard(shard *Shard) (ShardInfo, error) {
	s, err := r.lookupShard(shard)
	if err != nil {
		return ShardInfo{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return describeShard(s), nil
}

// describeSpace must be called with r.mu held.
func describeSpace(sp *Space) SpaceInfo {
	info := SpaceInfo{
		Name:   sp.Name,
		Home:   sp.Home,
		Peers:  make([]PeerInfo, 0, len(sp.Peers)),
		Shards: make([]ShardInfo, 0, len(sp.shards)),
	}
	for _, p := range sp.Peers {
		info.Peers = append(info.Peers, PeerInfo{Name: p.Name, Address: p.Address.String()})
	}
	for _, s := range sortedShards(sp) {
		info.Shards = append(info.Shards, describeShard(s))
	}
	return info
}

// describeShard must be called with r.mu held.
func describeShard(s *Shard) ShardInfo {
	info := ShardInfo{
		Space:    s.Space,
		ID:       s.ID,
		Alias:    s.Alias,
		Schema:   s.Schema,
		Home:     s.Home,
		Upgrades: make([]string, 0, len(s.Upgrades)),
		Applied:  s.applied.Sorted(),
		Entries:  make([]Entry, 0, len(s.order)),
	}
	for _, u := range s.Upgrades {
		info.Upgrades = append(info.Upgrades, u.Name)
	}
	for _, alias := range s.order {
		info.Entries = append(info.Entries, *s.entries[alias].DeepCopy())
	}
	return info
}
