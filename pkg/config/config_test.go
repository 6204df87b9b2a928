package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leasebook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func parse(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("leasebook", pflag.ContinueOnError)
	AddFlags(fs)
	require.NoError(t, fs.Parse(args))
	return FromFlags(fs)
}

func TestDefaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	assert.Equal(t, hclog.Info, cfg.Level())
	assert.Equal(t, filepath.Join("./data", "leases.db"), cfg.ProjectionPath())

	_, generated, err := cfg.NodeUUID()
	require.NoError(t, err)
	assert.True(t, generated)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
node_id: 6f1c2a52-4f8e-4a43-9d55-0c3f1b5f2a10
raft_addr: 10.0.0.1:7000
data_dir: /var/lib/leasebook
bootstrap: true
log_level: debug
clock:
  mode: manual
  start: 1700000000
projection:
  path: /tmp/leases.db
accounts:
  alice: "5000000000000000000"
  bob: "100"
`)

	cfg, err := parse(t, "--config", path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1:7000", cfg.RaftAddr)
	assert.Equal(t, ":9000", cfg.GRPCAddr, "unset keys keep their default")
	assert.True(t, cfg.Bootstrap)
	assert.Equal(t, ClockManual, cfg.Clock.Mode)
	assert.Equal(t, int64(1_700_000_000), cfg.Clock.Start)
	assert.Equal(t, "/tmp/leases.db", cfg.ProjectionPath())

	id, generated, err := cfg.NodeUUID()
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, "6f1c2a52-4f8e-4a43-9d55-0c3f1b5f2a10", id.String())

	balances, err := cfg.OpeningBalances()
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.True(t, balances[types.Principal("alice")].Equal(decimal.New(5, 18)))
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
grpc_addr: ":9100"
log_level: warn
accounts:
  alice: "10"
`)

	cfg, err := parse(t,
		"--config", path,
		"--grpc-addr", ":9200",
		"--clock", "manual",
		"--account", "bob=20",
	)
	require.NoError(t, err)

	assert.Equal(t, ":9200", cfg.GRPCAddr)
	assert.Equal(t, hclog.Warn, cfg.Level())
	assert.Equal(t, ClockManual, cfg.Clock.Mode)
	assert.Equal(t, map[string]string{"alice": "10", "bob": "20"}, cfg.Accounts)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad node id", func(c *Config) { c.NodeID = "node-1" }},
		{"no raft addr", func(c *Config) { c.RaftAddr = "" }},
		{"no data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }},
		{"unknown clock", func(c *Config) { c.Clock.Mode = "sundial" }},
		{"start on wall clock", func(c *Config) { c.Clock.Start = 10 }},
		{"fractional balance", func(c *Config) { c.Accounts = map[string]string{"alice": "1.5"} }},
		{"negative balance", func(c *Config) { c.Accounts = map[string]string{"alice": "-1"} }},
		{"not a number", func(c *Config) { c.Accounts = map[string]string{"alice": "lots"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestProjectionDisabled(t *testing.T) {
	cfg := Default()
	cfg.Projection.Path = "off"
	assert.Empty(t, cfg.ProjectionPath())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "clock: [not, a, map]"))
	assert.Error(t, err)
}
