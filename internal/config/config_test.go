package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeYAML(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadDaemonAppliesDefaultsAndYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "daemon.yaml", `
bootstrap_peer_addr: "127.0.0.1:27736"
total_peers: 5
cents_per_peer: 100000
`)

	cfg, err := LoadDaemon(path)
	if err != nil {
		t.Fatalf("LoadDaemon: %v", err)
	}
	if cfg.BootstrapPort != 27736 {
		t.Errorf("BootstrapPort = %d, want 27736", cfg.BootstrapPort)
	}
	if cfg.NetworkPort != 27737 {
		t.Errorf("NetworkPort = %d, want 27737", cfg.NetworkPort)
	}
}

func TestLoadDaemonEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "daemon.yaml", `
bootstrap_peer_addr: "127.0.0.1:27736"
total_peers: 5
cents_per_peer: 100000
`)

	t.Setenv("BLOCK_CHAT_BOOTSTRAP_PEER_SOCKET", "10.0.0.1:9000")
	t.Setenv("BLOCK_CHAT_BOOTSTRAP_PORT", "9001")
	t.Setenv("BLOCK_CHAT_NETWORK_PORT", "9002")
	t.Setenv("BLOCK_CHAT_NETWORK_SIZE", "7")
	t.Setenv("BLOCK_CHAT_DAEMON_LOGGING_LEVEL", "debug")

	cfg, err := LoadDaemon(path)
	if err != nil {
		t.Fatalf("LoadDaemon: %v", err)
	}
	if cfg.BootstrapPeerAddr != "10.0.0.1:9000" {
		t.Errorf("BootstrapPeerAddr = %q, want 10.0.0.1:9000", cfg.BootstrapPeerAddr)
	}
	if cfg.BootstrapPort != 9001 {
		t.Errorf("BootstrapPort = %d, want 9001", cfg.BootstrapPort)
	}
	if cfg.NetworkPort != 9002 {
		t.Errorf("NetworkPort = %d, want 9002", cfg.NetworkPort)
	}
	if cfg.TotalPeers != 7 {
		t.Errorf("TotalPeers = %d, want 7", cfg.TotalPeers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadDaemonRejectsMissingBootstrapPeerAddr(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "daemon.yaml", `
total_peers: 5
cents_per_peer: 100000
`)

	if _, err := LoadDaemon(path); err == nil {
		t.Fatal("expected an error for a missing bootstrap_peer_addr")
	}
}

func TestLoadClientEnvOverridesYAML(t *testing.T) {
	path := writeYAML(t, t.TempDir(), "client.yaml", `daemon_addr: "127.0.0.1:27737"`)

	t.Setenv("BLOCK_CHAT_DAEMON_SOCKET", "10.0.0.1:27737")

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.DaemonAddr != "10.0.0.1:27737" {
		t.Errorf("DaemonAddr = %q, want 10.0.0.1:27737", cfg.DaemonAddr)
	}
}
