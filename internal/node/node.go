package node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-dvb/internal/topology"
)

// ErrSpaceMismatch is returned when a topology document declares a space
// other than the one this node serves.
var ErrSpaceMismatch = errors.New("node: document space does not match instance")

// Logger defines the logging interface used by the node.
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

// Announcer publishes the entries of a shard to device control and
// withdraws them again. *handoff.Announcer satisfies it.
type Announcer interface {
	AnnounceShard(shard *topology.Shard) (int, error)
	Withdraw(shard *topology.Shard) error
}

// MetricsWriter records upgrade step attempts. *influxdb.Client satisfies it.
type MetricsWriter interface {
	WriteUpgrade(s influxdb.UpgradeSample)
}

// Deps are the collaborators of a Node. Config and Registry are required;
// the rest are optional.
type Deps struct {
	Config    *config.Config
	Registry  *topology.Registry
	Announcer Announcer
	Metrics   MetricsWriter
	Logger    Logger
}

// Node is the application context of a DVB node: the registry it owns and
// the outward channels its shards are announced and measured through.
type Node struct {
	cfg       *config.Config
	registry  *topology.Registry
	announcer Announcer
	logger    Logger
}

// ShardReport summarises what Bootstrap did with one shard.
type ShardReport struct {
	ID        int    `json:"id"`
	Alias     string `json:"alias"`
	Home      bool   `json:"home"`
	Applied   []int  `json:"applied"`
	Newly     []int  `json:"newly"`
	Announced int    `json:"announced"`
	Error     string `json:"error,omitempty"`
}

// New builds a node from its dependencies.
//
// When deps.Metrics is set, an observer writing one point per attempted
// upgrade step is registered on the registry.
func New(deps Deps) (*Node, error) {
	if deps.Config == nil {
		return nil, errors.New("node: config is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("node: registry is required")
	}

	n := &Node{
		cfg:       deps.Config,
		registry:  deps.Registry,
		announcer: deps.Announcer,
		logger:    deps.Logger,
	}
	if n.logger == nil {
		n.logger = noopLogger{}
	}
	if deps.Metrics != nil {
		deps.Registry.AddObserver(metricsObserver(deps.Metrics))
	}
	return n, nil
}

// metricsObserver turns upgrade outcomes into influxdb samples.
func metricsObserver(w MetricsWriter) topology.Observer {
	return topology.ObserverFunc(func(o topology.UpgradeOutcome) {
		w.WriteUpgrade(influxdb.UpgradeSample{
			Space:    o.Space,
			ShardID:  o.ShardID,
			Step:     o.StepName,
			Failed:   o.Err != nil,
			Duration: o.Duration,
			Entries:  o.Entries,
		})
	})
}

// Registry returns the registry the node owns.
func (n *Node) Registry() *topology.Registry {
	return n.registry
}

// Register loads the space and shards of doc into the registry and returns
// their handles.
//
// The document's space must be the configured instance space. Registration
// is all-or-nothing: if a shard fails to load, the space is unloaded again.
func (n *Node) Register(doc *topology.Document) (*topology.Space, []*topology.Shard, error) {
	if doc == nil {
		return nil, nil, fmt.Errorf("%w: document is nil", topology.ErrValidation)
	}
	if doc.Space.Name != n.cfg.Instance.Space {
		return nil, nil, fmt.Errorf("%w: %q, instance serves %q", ErrSpaceMismatch, doc.Space.Name, n.cfg.Instance.Space)
	}

	space, err := n.registry.LoadSpace(doc.Space)
	if err != nil {
		return nil, nil, fmt.Errorf("registering space: %w", err)
	}

	shards := make([]*topology.Shard, 0, len(doc.Shards))
	for _, sc := range doc.Shards {
		shard, err := n.registry.LoadShard(space, sc)
		if err != nil {
			n.registry.UnloadSpace(space.Name) //nolint:errcheck // Space was loaded above
			return nil, nil, fmt.Errorf("registering shard %d (%s): %w", sc.ID, sc.Alias, err)
		}
		shards = append(shards, shard)
	}

	n.logger.Info("topology registered",
		"space", space.Name, "home", space.Home,
		"peers", len(space.Peers), "shards", len(shards))
	return space, shards, nil
}

// Bootstrap registers doc and brings every shard up to date:
//
//  1. Persisted entries and applied versions are restored
//  2. Shards homed on this instance apply their pending upgrades, each
//     shard bounded by topology.upgrade_timeout
//  3. The entries of every shard are announced to device control
//
// A failing shard does not stop the others. Failures are logged, reported
// per shard and returned joined.
func (n *Node) Bootstrap(ctx context.Context, doc *topology.Document) ([]ShardReport, error) {
	_, shards, err := n.Register(doc)
	if err != nil {
		return nil, err
	}

	reports := make([]ShardReport, 0, len(shards))
	var errs []error
	for _, shard := range shards {
		report, err := n.bootstrapShard(ctx, shard)
		if err != nil {
			report.Error = err.Error()
			errs = append(errs, err)
			n.logger.Error("shard bootstrap failed",
				"space", shard.Space, "shard_id", shard.ID, "shard_alias", shard.Alias,
				"error", err)
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

func (n *Node) bootstrapShard(ctx context.Context, shard *topology.Shard) (ShardReport, error) {
	report := ShardReport{
		ID:    shard.ID,
		Alias: shard.Alias,
		Home:  shard.Home == n.cfg.Instance.Name,
	}

	if err := n.registry.RestoreShard(ctx, shard); err != nil {
		return report, fmt.Errorf("restoring shard %s: %w", shard.Alias, err)
	}

	var stepErr error
	if report.Home {
		start := time.Now()
		uctx, cancel := context.WithTimeout(ctx, n.cfg.GetUpgradeTimeout())
		result, err := n.registry.ApplyUpgrades(uctx, shard, nil)
		cancel()

		report.Newly = result.Newly
		stepErr = err
		n.logger.Info("shard upgrades applied",
			"space", shard.Space, "shard_alias", shard.Alias,
			"newly", len(result.Newly), "duration", time.Since(start))
	}

	applied, err := n.registry.AppliedVersions(shard)
	if err != nil {
		return report, err
	}
	report.Applied = applied.Sorted()

	// Entries of a partially upgraded shard are still handed over.
	if n.announcer != nil {
		announced, err := n.announcer.AnnounceShard(shard)
		report.Announced = announced
		if err != nil {
			return report, errors.Join(stepErr, fmt.Errorf("announcing shard %s: %w", shard.Alias, err))
		}
	}
	return report, stepErr
}

// Unload removes the named space from the registry. The retained
// announcements of its shards are withdrawn first, while their entries
// are still readable. A failed withdrawal does not keep the space loaded;
// the failures are returned joined.
func (n *Node) Unload(space string) error {
	shards, err := n.registry.Shards(space)
	if err != nil {
		return err
	}

	var errs []error
	if n.announcer != nil {
		for _, shard := range shards {
			if err := n.announcer.Withdraw(shard); err != nil {
				errs = append(errs, fmt.Errorf("withdrawing shard %s: %w", shard.Alias, err))
			}
		}
	}
	if err := n.registry.UnloadSpace(space); err != nil {
		errs = append(errs, err)
	}

	n.logger.Info("topology unloaded", "space", space, "shards", len(shards))
	return errors.Join(errs...)
}

// Reload replaces the instance space with doc and bootstraps it again.
// Every announcement of the old space is withdrawn and the entries of doc
// are announced afresh. Committed steps are restored from the repository
// and not re-applied. If doc fails to register the instance space stays
// unloaded.
func (n *Node) Reload(ctx context.Context, doc *topology.Document) ([]ShardReport, error) {
	if err := n.Unload(n.cfg.Instance.Space); err != nil && !errors.Is(err, topology.ErrSpaceNotFound) {
		n.logger.Warn("unloading previous topology", "error", err)
	}
	return n.Bootstrap(ctx, doc)
}
