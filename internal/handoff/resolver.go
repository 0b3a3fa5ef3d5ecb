package handoff

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-dvb/internal/topology"
)

// ResolveRequest asks a node to resolve one entry. Shard is a numeric id
// or an alias.
type ResolveRequest struct {
	ID    string `json:"id"`
	Shard string `json:"shard"`
	Alias string `json:"alias"`
}

// ResolveReply answers a ResolveRequest on the reply topic named by its ID.
type ResolveReply struct {
	ID    string        `json:"id"`
	Found bool          `json:"found"`
	Entry *Announcement `json:"entry,omitempty"`
	Error string        `json:"error,omitempty"`
}

const replyQoS = 1

// Resolve looks up alias in the shard of the announcer's space named by
// shardRef and returns its announcement.
func (a *Announcer) Resolve(shardRef, alias string) (Announcement, error) {
	shard, err := a.registry.Shard(a.topics.Space, shardRef)
	if err != nil {
		return Announcement{}, err
	}
	e, err := a.registry.GetEntry(shard, alias)
	if err != nil {
		return Announcement{}, err
	}
	return NewAnnouncement(shard, e), nil
}

// HandleResolve is an mqtt.MessageHandler answering resolve requests.
//
// Lookup misses are answered with found=false. Only malformed requests
// and failed replies are returned as errors.
func (a *Announcer) HandleResolve(_ string, payload []byte) error {
	var req ResolveRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("decoding resolve request: %w", err)
	}
	if req.ID == "" {
		return errors.New("resolve request without id")
	}

	reply := ResolveReply{ID: req.ID}
	ann, err := a.Resolve(req.Shard, req.Alias)
	switch {
	case err == nil:
		reply.Found = true
		reply.Entry = &ann
	case errors.Is(err, topology.ErrSpaceNotFound),
		errors.Is(err, topology.ErrShardNotFound),
		errors.Is(err, topology.ErrEntryNotFound):
		reply.Error = err.Error()
	default:
		return fmt.Errorf("resolving %s/%s: %w", req.Shard, req.Alias, err)
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encoding resolve reply: %w", err)
	}
	return a.pub.Publish(a.topics.ResolveReply(req.ID), data, replyQoS, false)
}
