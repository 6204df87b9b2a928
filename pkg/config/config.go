// Package config loads node configuration: built-in defaults, then an
// optional YAML file, then command-line flags that were explicitly set.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/pixperk/leasebook/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	ClockWall   = "wall"
	ClockManual = "manual"
)

type Config struct {
	NodeID        string `yaml:"node_id"` //generated when empty
	RaftAddr      string `yaml:"raft_addr"`
	AdvertiseAddr string `yaml:"advertise_addr"`
	GRPCAddr      string `yaml:"grpc_addr"`
	HTTPAddr      string `yaml:"http_addr"`
	DataDir       string `yaml:"data_dir"`
	Bootstrap     bool   `yaml:"bootstrap"`
	LogLevel      string `yaml:"log_level"`

	Clock      ClockConfig      `yaml:"clock"`
	Projection ProjectionConfig `yaml:"projection"`

	// opening balances of the in-memory accounts, principal -> amount
	Accounts map[string]string `yaml:"accounts"`
}

type ClockConfig struct {
	Mode  string `yaml:"mode"`  //wall or manual
	Start int64  `yaml:"start"` //unix seconds a manual clock starts at, 0 = now
}

type ProjectionConfig struct {
	Path string `yaml:"path"` //sqlite file, relative paths live under data_dir; "off" disables
}

func Default() Config {
	return Config{
		RaftAddr: "127.0.0.1:7000",
		GRPCAddr: ":9000",
		HTTPAddr: ":8080",
		DataDir:  "./data",
		LogLevel: "info",
		Clock:    ClockConfig{Mode: ClockWall},
		Projection: ProjectionConfig{
			Path: "leases.db",
		},
	}
}

// reads path over the defaults; an empty path keeps the defaults
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// registers the command-line overrides on fs
func AddFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "YAML config file")
	fs.String("node-id", "", "Unique node ID (generates UUID if empty)")
	fs.String("raft-addr", d.RaftAddr, "Raft bind address")
	fs.String("advertise-addr", "", "Raft address peers dial (defaults to the bind address)")
	fs.String("grpc-addr", d.GRPCAddr, "gRPC server address")
	fs.String("http-addr", d.HTTPAddr, "HTTP gateway address")
	fs.String("data-dir", d.DataDir, "Data directory for Raft storage, journal and projection")
	fs.Bool("bootstrap", false, "Bootstrap a new cluster")
	fs.String("log-level", d.LogLevel, "trace, debug, info, warn or error")
	fs.String("clock", d.Clock.Mode, "wall or manual")
	fs.Int64("clock-start", 0, "unix seconds a manual clock starts at")
	fs.StringToString("account", nil, "opening balance, principal=amount (repeatable)")
}

// loads the file named by --config and applies every flag that was set
func FromFlags(fs *pflag.FlagSet) (Config, error) {
	path, err := fs.GetString("config")
	if err != nil {
		return Config{}, err
	}

	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.applyFlags(fs); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyFlags(fs *pflag.FlagSet) error {
	var errs []error
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			v, err := fs.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str("node-id", &c.NodeID)
	str("raft-addr", &c.RaftAddr)
	str("advertise-addr", &c.AdvertiseAddr)
	str("grpc-addr", &c.GRPCAddr)
	str("http-addr", &c.HTTPAddr)
	str("data-dir", &c.DataDir)
	str("log-level", &c.LogLevel)
	str("clock", &c.Clock.Mode)

	if fs.Changed("bootstrap") {
		v, err := fs.GetBool("bootstrap")
		errs = append(errs, err)
		c.Bootstrap = v
	}
	if fs.Changed("clock-start") {
		v, err := fs.GetInt64("clock-start")
		errs = append(errs, err)
		c.Clock.Start = v
	}
	if fs.Changed("account") {
		v, err := fs.GetStringToString("account")
		errs = append(errs, err)
		if c.Accounts == nil {
			c.Accounts = make(map[string]string, len(v))
		}
		for p, amount := range v {
			c.Accounts[p] = amount
		}
	}
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error

	if c.NodeID != "" {
		if _, err := uuid.Parse(c.NodeID); err != nil {
			errs = append(errs, fmt.Errorf("node_id: %w", err))
		}
	}
	if c.RaftAddr == "" {
		errs = append(errs, errors.New("raft_addr required"))
	}
	if c.GRPCAddr == "" {
		errs = append(errs, errors.New("grpc_addr required"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir required"))
	}
	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		errs = append(errs, fmt.Errorf("log_level: unknown level %q", c.LogLevel))
	}
	switch c.Clock.Mode {
	case ClockWall:
		if c.Clock.Start != 0 {
			errs = append(errs, errors.New("clock.start only applies to a manual clock"))
		}
	case ClockManual:
		if c.Clock.Start < 0 {
			errs = append(errs, errors.New("clock.start must not be negative"))
		}
	default:
		errs = append(errs, fmt.Errorf("clock.mode: want %s or %s, got %q", ClockWall, ClockManual, c.Clock.Mode))
	}
	if _, err := c.OpeningBalances(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// node id, generated when none is configured
func (c Config) NodeUUID() (uuid.UUID, bool, error) {
	if c.NodeID == "" {
		return uuid.New(), true, nil
	}
	id, err := uuid.Parse(c.NodeID)
	return id, false, err
}

// the configured accounts as amounts; every balance must be a positive whole number
func (c Config) OpeningBalances() (map[types.Principal]decimal.Decimal, error) {
	balances := make(map[types.Principal]decimal.Decimal, len(c.Accounts))
	for p, raw := range c.Accounts {
		amount, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("accounts.%s: %w", p, err)
		}
		if !amount.IsPositive() || !amount.IsInteger() {
			return nil, fmt.Errorf("accounts.%s: %s is not a positive whole amount", p, raw)
		}
		balances[types.Principal(p)] = amount
	}
	return balances, nil
}

// sqlite file of the read model, empty when disabled
func (c Config) ProjectionPath() string {
	switch p := c.Projection.Path; {
	case p == "" || p == "off":
		return ""
	case filepath.IsAbs(p):
		return p
	default:
		return filepath.Join(c.DataDir, p)
	}
}

func (c Config) Level() hclog.Level {
	return hclog.LevelFromString(c.LogLevel)
}
