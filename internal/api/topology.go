package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-dvb/internal/topology"
)

// spaceSummary is the list form of a space.
type spaceSummary struct {
	Name   string `json:"name"`
	Home   string `json:"home"`
	Peers  int    `json:"peers"`
	Shards int    `json:"shards"`
}

func (s *Server) handleListSpaces(w http.ResponseWriter, _ *http.Request) {
	infos := s.registry.Snapshot()
	spaces := make([]spaceSummary, 0, len(infos))
	for _, info := range infos {
		spaces = append(spaces, spaceSummary{
			Name:   info.Name,
			Home:   info.Home,
			Peers:  len(info.Peers),
			Shards: len(info.Shards),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces, "count": len(spaces)})
}

func (s *Server) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	info, err := s.registry.Describe(chi.URLParam(r, "space"))
	if err != nil {
		writeTopologyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleListShards(w http.ResponseWriter, r *http.Request) {
	shards, err := s.registry.Shards(chi.URLParam(r, "space"))
	if err != nil {
		writeTopologyError(w, err)
		return
	}

	infos := make([]topology.ShardInfo, 0, len(shards))
	for _, shard := range shards {
		info, err := s.registry.DescribeShard(shard)
		if err != nil {
			writeTopologyError(w, err)
			return
		}
		info.Entries = nil
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"shards": infos, "count": len(infos)})
}

// shardFromRequest resolves {space} and {shard}; shard is an id or an alias.
func (s *Server) shardFromRequest(w http.ResponseWriter, r *http.Request) (*topology.Shard, bool) {
	shard, err := s.registry.Shard(chi.URLParam(r, "space"), chi.URLParam(r, "shard"))
	if err != nil {
		writeTopologyError(w, err)
		return nil, false
	}
	return shard, true
}

func (s *Server) handleGetShard(w http.ResponseWriter, r *http.Request) {
	shard, ok := s.shardFromRequest(w, r)
	if !ok {
		return
	}
	info, err := s.registry.DescribeShard(shard)
	if err != nil {
		writeTopologyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleListEntries returns the entries of a shard in commit order.
//
// Query parameters:
//   - kind: only entries of this kind
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	shard, ok := s.shardFromRequest(w, r)
	if !ok {
		return
	}
	entries, err := s.registry.Entries(shard)
	if err != nil {
		writeTopologyError(w, err)
		return
	}

	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Kind == kind {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	shard, ok := s.shardFromRequest(w, r)
	if !ok {
		return
	}
	entry, err := s.registry.GetEntry(shard, chi.URLParam(r, "alias"))
	if err != nil {
		writeTopologyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleListUpgrades returns the declared steps, the applied versions and,
// when a repository is configured, the persisted history.
func (s *Server) handleListUpgrades(w http.ResponseWriter, r *http.Request) {
	shard, ok := s.shardFromRequest(w, r)
	if !ok {
		return
	}
	applied, err := s.registry.AppliedVersions(shard)
	if err != nil {
		writeTopologyError(w, err)
		return
	}

	pending := 0
	steps := make([]map[string]any, 0, len(shard.Upgrades))
	for i, u := range shard.Upgrades {
		if !applied.Has(i) {
			pending++
		}
		steps = append(steps, map[string]any{
			"version": i,
			"name":    u.Name,
			"applied": applied.Has(i),
		})
	}

	resp := map[string]any{
		"steps":   steps,
		"applied": applied.Sorted(),
		"pending": pending,
	}
	if s.repo != nil {
		history, err := s.repo.ListUpgrades(r.Context(), shard.Space, shard.ID)
		if err != nil {
			s.logger.Error("listing upgrade history failed", "space", shard.Space, "shard_id", shard.ID, "error", err)
			writeInternalError(w, "failed to read upgrade history")
			return
		}
		resp["history"] = history
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeTopologyError maps registry lookup errors onto HTTP responses.
func writeTopologyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, topology.ErrSpaceNotFound),
		errors.Is(err, topology.ErrShardNotFound),
		errors.Is(err, topology.ErrEntryNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, topology.ErrValidation):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, "internal error")
	}
}
