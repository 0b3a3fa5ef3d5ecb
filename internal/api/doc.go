// Package api implements the read-only HTTP inspection API and WebSocket
// event stream of a DVB node.
//
// This package provides:
//   - REST endpoints listing spaces, shards, resolved entries and upgrade history
//   - A health endpoint aggregating the checks of the node's infrastructure
//   - A WebSocket hub streaming upgrade.applied and upgrade.failed events
//   - Middleware stack (request ID, logging, recovery, CORS, read-only guard)
//
// # Endpoints
//
//	GET /api/v1/health
//	GET /api/v1/stats
//	GET /api/v1/spaces
//	GET /api/v1/spaces/{space}
//	GET /api/v1/spaces/{space}/shards
//	GET /api/v1/spaces/{space}/shards/{shard}
//	GET /api/v1/spaces/{space}/shards/{shard}/entries[?kind=dvblast]
//	GET /api/v1/spaces/{space}/shards/{shard}/entries/{alias}
//	GET /api/v1/spaces/{space}/shards/{shard}/upgrades
//	GET /api/v1/ws
//
// {shard} accepts the numeric shard id or the shard alias.
//
// # Read-only
//
// The topology only changes through upgrade steps run at bootstrap, so
// every method other than GET, HEAD and OPTIONS is answered with 405.
//
// # Events
//
// The Hub implements topology.Observer. Register it with
// Registry.AddObserver before bootstrap and WebSocket clients that sent
//
//	{"type":"subscribe","payload":{"channels":["upgrade.applied"]}}
//
// receive one event per committed or failed step.
package api
