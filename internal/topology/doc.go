// Package topology provides the Topology Registry of a DVB streaming node.
//
// A node declares one data space, the peers it synchronises with, and the
// shards the space is partitioned into. Each shard carries an ordered list of
// upgrade steps; applying a step creates the entries (controllable objects
// such as a dvblast streamer) that the device-control layer later resolves.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                       Topology Registry                          │
//	│                                                                  │
//	│  ┌──────────────────┐   ┌──────────────────┐   ┌─────────────┐  │
//	│  │     Registry     │   │    Catalogue     │   │  Document   │  │
//	│  │  (registry.go)   │◀──│    (step.go)     │   │(document.go)│  │
//	│  │                  │   │                  │   │             │  │
//	│  │ • spaces/shards  │   │ • named steps    │   │ • YAML      │  │
//	│  │ • upgrades + Tx  │   │ • entries steps  │   │ • TOML      │  │
//	│  │ • observers      │   └──────────────────┘   │ • HCL       │  │
//	│  └──────────────────┘                          └─────────────┘  │
//	│           │                                                      │
//	└───────────│──────────────────────────────────────────────────────┘
//	            ▼
//	┌──────────────────────┐
//	│   SQLite Repository  │
//	│  (topology_entries,  │
//	│   topology_upgrades) │
//	└──────────────────────┘
//
// # Invariants
//
//   - Shard ids and shard aliases are unique within a space.
//   - Entry aliases are unique within a shard.
//   - Peer names are unique within a space, compared trimmed and lower-cased.
//   - An applied upgrade step is never applied again.
//   - A failing step leaves no entries behind.
//
// # Usage
//
//	catalogue := topology.NewCatalogue()
//	reg := topology.NewRegistry(catalogue)
//	reg.SetRepository(topology.NewSQLiteRepository(db.DB))
//
//	doc, err := topology.LoadDocument("configs/topology.yaml")
//	if err != nil {
//	    return err
//	}
//	space, err := reg.LoadSpace(doc.Space)
//	if err != nil {
//	    return err
//	}
//	shard, err := reg.LoadShard(space, doc.Shards[0])
//	if err != nil {
//	    return err
//	}
//
//	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
//	defer cancel()
//	result, err := reg.ApplyUpgrades(ctx, shard, nil)
//	if err != nil {
//	    var upErr *topology.UpgradeError
//	    if errors.As(err, &upErr) {
//	        log.Error("upgrade failed", "step", upErr.Step)
//	    }
//	}
//	entry, err := reg.GetEntry(shard, "dvbstreamer")
package topology
