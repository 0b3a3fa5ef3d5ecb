package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementShardUpgrades holds one point per attempted upgrade step.
const MeasurementShardUpgrades = "shard_upgrades"

// Upgrade step status tag values.
const (
	StatusApplied = "applied"
	StatusFailed  = "failed"
)

// UpgradeSample describes one attempted upgrade step.
type UpgradeSample struct {
	Space    string
	ShardID  int
	Step     string
	Failed   bool
	Duration time.Duration
	Entries  int
	At       time.Time
}

// WriteUpgrade records an upgrade step attempt.
// The write is non-blocking; points are batched and sent asynchronously.
//
// Example:
//
//	client.WriteUpgrade(influxdb.UpgradeSample{
//	    Space: "example.org", ShardID: 8, Step: "add-streamer",
//	    Duration: 3 * time.Millisecond, Entries: 1,
//	})
func (c *Client) WriteUpgrade(s UpgradeSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(upgradePoint(s))
}

// upgradePoint builds the shard_upgrades point for s. A zero At means now.
func upgradePoint(s UpgradeSample) *write.Point {
	status := StatusApplied
	if s.Failed {
		status = StatusFailed
	}
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}

	return write.NewPoint(
		MeasurementShardUpgrades,
		map[string]string{
			"space":  s.Space,
			"shard":  strconv.Itoa(s.ShardID),
			"step":   s.Step,
			"status": status,
		},
		map[string]interface{}{
			"duration_ms": float64(s.Duration) / float64(time.Millisecond),
			"entries":     s.Entries,
		},
		at,
	)
}

// WritePoint writes a custom point with full control over tags and fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
