// Package influxdb records topology upgrade metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Every attempted
// upgrade step becomes one point in the shard_upgrades measurement:
//
//	tags:   space, shard, step, status (applied | failed)
//	fields: duration_ms, entries
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteUpgrade(influxdb.UpgradeSample{Space: "example.org", ShardID: 8, Step: "add-streamer"})
//
// # Error Handling
//
// Writes are non-blocking; batch errors are delivered to the SetOnError
// callback. Connection and health check errors are returned directly.
package influxdb
