package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-dvb/internal/infrastructure/config"
)

// fakeServer answers /ping and records line protocol posted to /api/v2/write.
type fakeServer struct {
	*httptest.Server
	mu    sync.Mutex
	lines []string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body) //nolint:errcheck // Test server
			fs.mu.Lock()
			fs.lines = append(fs.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			fs.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) received() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.lines...)
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "dvbnode-dev-token",
		Org:           "ose",
		Bucket:        "metrics",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	if _, err := Connect(context.Background(), cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(context.Background(), testConfig("http://127.0.0.1:59999"))
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_HealthAndClose(t *testing.T) {
	srv := newFakeServer(t)

	client, err := Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}

	// Writes and flushes after Close are no-ops.
	client.WriteUpgrade(UpgradeSample{Space: "example.org", ShardID: 8, Step: "late"})
	client.Flush()
}

func TestWriteUpgrade(t *testing.T) {
	srv := newFakeServer(t)

	client, err := Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.WriteUpgrade(UpgradeSample{
		Space:    "example.org",
		ShardID:  8,
		Step:     "add-streamer",
		Duration: 2 * time.Millisecond,
		Entries:  1,
	})
	client.Flush()

	lines := srv.received()
	if len(lines) != 1 {
		t.Fatalf("received %d lines, want 1: %v", len(lines), lines)
	}
	if !strings.HasPrefix(lines[0], "shard_upgrades,shard=8,space=example.org,status=applied,step=add-streamer ") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestUpgradePoint(t *testing.T) {
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		sample UpgradeSample
		want   string
	}{
		{
			name:   "applied",
			sample: UpgradeSample{Space: "example.org", ShardID: 8, Step: "add-streamer", Duration: 1500 * time.Microsecond, Entries: 2, At: at},
			want:   "shard_upgrades,shard=8,space=example.org,status=applied,step=add-streamer duration_ms=1.5,entries=2i 1792324800000000000\n",
		},
		{
			name:   "failed",
			sample: UpgradeSample{Space: "example.org", ShardID: 8, Step: "upgrade-1", Failed: true, At: at},
			want:   "shard_upgrades,shard=8,space=example.org,status=failed,step=upgrade-1 duration_ms=0,entries=0i 1792324800000000000\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := write.PointToLineProtocol(upgradePoint(tt.sample), time.Nanosecond)
			if got != tt.want {
				t.Errorf("line protocol = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	if c.IsConnected() {
		t.Error("nil client reports connected")
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
