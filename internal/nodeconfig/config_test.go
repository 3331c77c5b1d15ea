package nodeconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsLiveNetwork(t *testing.T) {
	cfg := Default()
	if cfg.Network != NetworkLive {
		t.Fatalf("expected live network default, got %s", cfg.Network)
	}
	if cfg.PeeringPort != 7075 {
		t.Fatalf("expected live peering port 7075, got %d", cfg.PeeringPort)
	}
}

func TestNetworkPeeringPorts(t *testing.T) {
	cases := map[Network]int{
		NetworkLive: 7075,
		NetworkBeta: 54000,
		NetworkTest: 44000,
	}
	for network, want := range cases {
		if got := network.PeeringPort(); got != want {
			t.Errorf("%s: want port %d, got %d", network, want, got)
		}
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.toml")
	contents := []byte(`
network = "beta"
peering_port = 9999
bootstrap_connections = 7
`)
	if err := os.WriteFile(path, contents, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != NetworkBeta {
		t.Errorf("expected network beta, got %s", cfg.Network)
	}
	if cfg.PeeringPort != 9999 {
		t.Errorf("expected overridden peering port 9999, got %d", cfg.PeeringPort)
	}
	if cfg.BootstrapConnections != 7 {
		t.Errorf("expected overridden bootstrap_connections 7, got %d", cfg.BootstrapConnections)
	}
	// Fields absent from the file keep the Default() value.
	if cfg.LazyMaxStopped != 256 {
		t.Errorf("expected untouched default lazy_max_stopped 256, got %d", cfg.LazyMaxStopped)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error loading a nonexistent config file")
	}
}
