// Package node wires the topology registry of a DVB node to its outward
// channels.
//
// A Node is built once in main from explicit dependencies (Deps) rather
// than from package-level state. Register is the call a plugin loader makes
// with a topology document; Bootstrap runs it and then restores, upgrades
// and announces every shard:
//
//	n, err := node.New(node.Deps{
//	    Config:    cfg,
//	    Registry:  registry,
//	    Announcer: announcer,
//	    Metrics:   influxClient,
//	    Logger:    log,
//	})
//	reports, err := n.Bootstrap(ctx, doc)
//
// Reload swaps in a new document. The announcements of the old one are
// withdrawn before its space leaves the registry.
//
// Catalogue holds the named steps documents can reference, such as
// "dvb-streamer".
package node
