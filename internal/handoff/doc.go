// Package handoff hands resolved shard entries over to device control.
//
// After a shard is upgraded, the Announcer publishes each of its entries as
// a retained JSON message on ose/{space}/{shard_alias}/entry/{alias}:
//
//	{"space":"example.org","shard_id":8,"shard_alias":"dvb",
//	 "alias":"dvbstreamer","kind":"dvblast","name":"DVBlast",
//	 "mcast":{"id":"mcastPool","alias":"mediaControl"},
//	 "attrs":{...}}
//
// Device control can also ask for a single entry on the node's resolve
// topic; HandleResolve answers on ose/{space}/node/{instance}/resolve/{id}.
package handoff
