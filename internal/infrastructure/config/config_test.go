package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
instance:
  name: "dvb"
  space: "example.org"
topology:
  config_file: "/etc/dvbnode/topology.hcl"
  upgrade_timeout: 45
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: true
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Instance.Name != "dvb" {
		t.Errorf("Instance.Name = %q, want %q", cfg.Instance.Name, "dvb")
	}
	if cfg.Topology.ConfigFile != "/etc/dvbnode/topology.hcl" {
		t.Errorf("Topology.ConfigFile = %q", cfg.Topology.ConfigFile)
	}
	if got := cfg.GetUpgradeTimeout().Seconds(); got != 45 {
		t.Errorf("GetUpgradeTimeout() = %v, want 45", got)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if !cfg.MQTT.Enabled || cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT = %+v, want enabled on localhost", cfg.MQTT)
	}
	// Defaults survive for sections the file leaves out.
	if cfg.WebSocket.Path != "/api/v1/ws" {
		t.Errorf("WebSocket.Path = %q, want default", cfg.WebSocket.Path)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
instance:
  name: ""
topology:
  upgrade_timeout: 0
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}
	// Every problem is reported at once.
	for _, want := range []string{"instance.name", "topology.upgrade_timeout"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "missing instance name", mutate: func(c *Config) { c.Instance.Name = " " }, wantErr: true},
		{name: "missing instance space", mutate: func(c *Config) { c.Instance.Space = "" }, wantErr: true},
		{name: "multicast without alias", mutate: func(c *Config) { c.Instance.Multicast.ID = "mcastPool" }, wantErr: true},
		{
			name: "multicast pool",
			mutate: func(c *Config) {
				c.Instance.Multicast = MulticastConfig{ID: "mcastPool", Alias: "mediaControl"}
			},
		},
		{name: "missing topology file", mutate: func(c *Config) { c.Topology.ConfigFile = "" }, wantErr: true},
		{name: "zero upgrade timeout", mutate: func(c *Config) { c.Topology.UpgradeTimeout = 0 }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{
			name: "mqtt enabled without host",
			mutate: func(c *Config) {
				c.MQTT.Enabled = true
				c.MQTT.Broker.Host = ""
			},
			wantErr: true,
		},
		{name: "mqtt disabled without host", mutate: func(c *Config) { c.MQTT.Broker.Host = "" }},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{
			name: "api disabled ignores port",
			mutate: func(c *Config) {
				c.API.Enabled = false
				c.API.Port = 0
			},
		},
		{name: "zero ping interval", mutate: func(c *Config) { c.WebSocket.PingInterval = 0 }, wantErr: true},
		{name: "influxdb enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{
			name: "influxdb enabled complete",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
				c.InfluxDB.URL = "http://localhost:8086"
				c.InfluxDB.Bucket = "dvbnode"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("DVBNODE_INSTANCE_NAME", "dvb-2")
	t.Setenv("DVBNODE_INSTANCE_SPACE", "lab.example.org")
	t.Setenv("DVBNODE_TOPOLOGY_CONFIG_FILE", "/custom/topology.toml")
	t.Setenv("DVBNODE_TOPOLOGY_UPGRADE_TIMEOUT", "90")
	t.Setenv("DVBNODE_DATABASE_PATH", "/custom/path.db")
	t.Setenv("DVBNODE_MQTT_HOST", "mqtt.example.com")
	t.Setenv("DVBNODE_MQTT_USERNAME", "testuser")
	t.Setenv("DVBNODE_MQTT_PASSWORD", "testpass")
	t.Setenv("DVBNODE_API_HOST", "192.168.1.1")
	t.Setenv("DVBNODE_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	checks := []struct {
		field, got, want string
	}{
		{"Instance.Name", cfg.Instance.Name, "dvb-2"},
		{"Instance.Space", cfg.Instance.Space, "lab.example.org"},
		{"Topology.ConfigFile", cfg.Topology.ConfigFile, "/custom/topology.toml"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}
	if cfg.Topology.UpgradeTimeout != 90 {
		t.Errorf("Topology.UpgradeTimeout = %d, want 90", cfg.Topology.UpgradeTimeout)
	}
}

func TestApplyEnvOverrides_BadTimeoutIgnored(t *testing.T) {
	cfg := defaultConfig()
	t.Setenv("DVBNODE_TOPOLOGY_UPGRADE_TIMEOUT", "soon")
	applyEnvOverrides(cfg)
	if cfg.Topology.UpgradeTimeout != 30 {
		t.Errorf("Topology.UpgradeTimeout = %d, want default 30", cfg.Topology.UpgradeTimeout)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaultConfig does not validate: %v", err)
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Enabled || cfg.InfluxDB.Enabled {
		t.Error("defaultConfig should leave MQTT and InfluxDB disabled")
	}
}
