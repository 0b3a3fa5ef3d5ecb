package handoff

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-dvb/internal/topology"
)

// Publisher sends messages to the broker. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	ClearRetained(topic string) error
}

// Logger defines the logging interface used by the handoff package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Announcement is the retained message device control reads to take over
// an entry.
type Announcement struct {
	Space      string              `json:"space"`
	ShardID    int                 `json:"shard_id"`
	ShardAlias string              `json:"shard_alias"`
	Alias      string              `json:"alias"`
	Kind       string              `json:"kind"`
	Name       string              `json:"name,omitempty"`
	Mcast      *topology.PoolRef   `json:"mcast,omitempty"`
	Attrs      topology.Attributes `json:"attrs"`
}

// NewAnnouncement builds the announcement of entry e in shard s.
func NewAnnouncement(s *topology.Shard, e *topology.Entry) Announcement {
	a := Announcement{
		Space:      s.Space,
		ShardID:    s.ID,
		ShardAlias: s.Alias,
		Alias:      e.Alias,
		Kind:       e.Kind,
		Name:       e.Attrs.Name(),
		Attrs:      e.Attrs,
	}
	if a.Attrs == nil {
		a.Attrs = topology.Attributes{}
	}
	if pool, ok := e.Attrs.MulticastPool(); ok {
		a.Mcast = &pool
	}
	return a
}

// Announcer publishes the entries of loaded shards as retained messages on
// ose/{space}/{shard_alias}/entry/{alias}.
type Announcer struct {
	pub      Publisher
	topics   mqtt.Topics
	registry *topology.Registry
	logger   Logger
}

// NewAnnouncer creates an announcer reading entries from registry.
func NewAnnouncer(pub Publisher, topics mqtt.Topics, registry *topology.Registry) *Announcer {
	return &Announcer{
		pub:      pub,
		topics:   topics,
		registry: registry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the announcer.
func (a *Announcer) SetLogger(logger Logger) {
	a.logger = logger
}

// AnnounceShard publishes every entry of shard. It keeps going after a
// failed publish and returns the number announced with the joined errors.
func (a *Announcer) AnnounceShard(shard *topology.Shard) (int, error) {
	entries, err := a.registry.Entries(shard)
	if err != nil {
		return 0, err
	}

	var (
		announced int
		errs      []error
	)
	for _, e := range entries {
		if err := a.announce(shard, e); err != nil {
			errs = append(errs, err)
			continue
		}
		announced++
	}

	a.logger.Info("shard entries announced",
		"space", shard.Space, "shard_alias", shard.Alias,
		"announced", announced, "failed", len(errs))
	return announced, errors.Join(errs...)
}

// AnnounceEntry publishes one entry of shard.
func (a *Announcer) AnnounceEntry(shard *topology.Shard, alias string) error {
	e, err := a.registry.GetEntry(shard, alias)
	if err != nil {
		return err
	}
	return a.announce(shard, e)
}

func (a *Announcer) announce(shard *topology.Shard, e *topology.Entry) error {
	payload, err := json.Marshal(NewAnnouncement(shard, e))
	if err != nil {
		return fmt.Errorf("encoding entry %q: %w", e.Alias, err)
	}
	topic := a.topics.Entry(shard.Alias, e.Alias)
	if err := a.pub.PublishRetained(topic, payload); err != nil {
		return fmt.Errorf("announcing entry %q on %s: %w", e.Alias, topic, err)
	}
	a.logger.Debug("entry announced", "topic", topic, "kind", e.Kind)
	return nil
}

// Withdraw clears the retained announcements of every entry of shard, for
// example before its space is unloaded.
func (a *Announcer) Withdraw(shard *topology.Shard) error {
	entries, err := a.registry.Entries(shard)
	if err != nil {
		return err
	}

	var errs []error
	for _, e := range entries {
		if err := a.pub.ClearRetained(a.topics.Entry(shard.Alias, e.Alias)); err != nil {
			errs = append(errs, fmt.Errorf("withdrawing entry %q: %w", e.Alias, err))
		}
	}
	return errors.Join(errs...)
}
