// Package config provides centralized configuration for the coordinator
// daemon. ALL policy knobs (fees, swap limits, freshness windows, bridge
// toggles) MUST be defined here. No hardcoded values should exist
// elsewhere in the codebase.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BridgeConfig holds the Bridge HTLC engine's policy parameters.
type BridgeConfig struct {
	// BridgeFeePercentageBPS is the fee taken on every HTLC create, in
	// basis points (100 = 1%).
	BridgeFeePercentageBPS uint16 `yaml:"bridge_fee_percentage_bps"`

	// MinSwapAmount and MaxSwapAmount bound the original_amount accepted
	// by CreateHTLC, in the host coin's smallest unit.
	MinSwapAmount uint64 `yaml:"min_swap_amount"`
	MaxSwapAmount uint64 `yaml:"max_swap_amount"`

	// LedgerCanisterID records the native ledger's id for queries; the
	// HTLC engine transfers through its configured Ledger whatever this
	// value is.
	LedgerCanisterID string `yaml:"ledger_canister_id"`

	// TimelockMinDelta and TimelockMaxDelta bound timelock relative to
	// now at creation: now+TimelockMinDelta < timelock <= now+TimelockMaxDelta.
	TimelockMinDelta uint64 `yaml:"timelock_min_delta_secs"`
	TimelockMaxDelta uint64 `yaml:"timelock_max_delta_secs"`

	// MessageFreshnessWindow bounds how old an inbound cross-chain
	// message's timestamp may be, in seconds.
	MessageFreshnessWindow uint64 `yaml:"message_freshness_window_secs"`

	// ChainFusionEnabled toggles outbound EVM transaction emission.
	ChainFusionEnabled bool `yaml:"chain_fusion_enabled"`

	// EthereumContractAddress is the destination contract address for
	// outbound chain-fusion transactions.
	EthereumContractAddress string `yaml:"ethereum_contract_address"`

	// AuthorizedEthereumSenders is the allow-list consulted by
	// bridge.Dispatcher.IsAuthorizedSender (empty means allow all). No
	// message-processing or HTLC-creation path calls that check, so the
	// list does not restrict which senders are accepted.
	AuthorizedEthereumSenders []string `yaml:"authorized_ethereum_senders,omitempty"`

	// TransferFee is the fixed per-transfer fee charged by the native
	// ledger, in smallest units.
	TransferFee uint64 `yaml:"transfer_fee"`

	// TransferMemo tags every outbound native-ledger transfer.
	TransferMemo string `yaml:"transfer_memo"`
}

// DefaultBridgeConfig returns the default Bridge HTLC engine configuration,
// matching the host chain's default parameters.
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		BridgeFeePercentageBPS: 10,                            // 0.1%
		MinSwapAmount:          1_000_000_000_000_000,         // 10^15
		MaxSwapAmount:          1_000_000_000_000_000_000,     // 10^18
		LedgerCanisterID:       "ryjl3-tyaaa-aaaaa-aaaba-cai",
		TimelockMinDelta:       3600,
		TimelockMaxDelta:       86400,
		MessageFreshnessWindow: 3600,
		ChainFusionEnabled:     false,
		TransferFee:            10_000,
		TransferMemo:           "hostbridge coordinator swap",
	}
}

// FusionConfig holds a default fee schedule and transfer parameters for
// the Fusion order engine. It is loaded from YAML but not read by
// internal/fusion: each order carries its own FeeConfig, and no default
// is filled in from this struct.
type FusionConfig struct {
	ProtocolFeeBPS    uint16 `yaml:"protocol_fee_bps"`
	IntegratorFeeBPS  uint16 `yaml:"integrator_fee_bps"`
	SurplusBPS        uint16 `yaml:"surplus_bps"`
	MaxCancelPremium  uint64 `yaml:"max_cancel_premium"`
	TransferFee       uint64 `yaml:"transfer_fee"`
	TransferMemo      string `yaml:"transfer_memo"`
}

// DefaultFusionConfig returns the default Fusion order engine configuration.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		ProtocolFeeBPS:   10,
		IntegratorFeeBPS: 0,
		SurplusBPS:       0,
		MaxCancelPremium: 0,
		TransferFee:      10_000,
		TransferMemo:     "hostbridge coordinator fusion fill",
	}
}

// StorageConfig points at the coordinator's SQLite data directory.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig controls the daemon's log level and format.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// RPCConfig controls the JSON-RPC listener.
type RPCConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// P2PConfig controls the libp2p order-book announcer.
type P2PConfig struct {
	ListenAddrs    []string `yaml:"listen_addrs"`
	BootstrapPeers []string `yaml:"bootstrap_peers"`
	KeyFile        string   `yaml:"key_file"`
}

// Daemon is the top-level configuration loaded from YAML, with CLI-flag
// overrides applied on top by cmd/coordinatord.
type Daemon struct {
	Bridge  BridgeConfig `yaml:"bridge"`
	Fusion  FusionConfig `yaml:"fusion"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	RPC     RPCConfig     `yaml:"rpc"`
	P2P     P2PConfig     `yaml:"p2p"`

	// ControllerPrincipal is the only identity permitted to call the
	// admin surface (§6.3 admin updates).
	ControllerPrincipal string `yaml:"controller_principal"`
}

// DefaultDaemonConfig returns a complete default configuration.
func DefaultDaemonConfig() *Daemon {
	return &Daemon{
		Bridge: DefaultBridgeConfig(),
		Fusion: DefaultFusionConfig(),
		Storage: StorageConfig{
			DataDir: "~/.coordinatord",
		},
		Logging: LoggingConfig{Level: "info"},
		RPC:     RPCConfig{ListenAddr: "127.0.0.1:7780"},
		P2P: P2PConfig{
			ListenAddrs: []string{"/ip4/0.0.0.0/tcp/0"},
			KeyFile:     "identity.key",
		},
	}
}

// ConfigFileName is the default config file name within the data directory.
const ConfigFileName = "config.yaml"

// LoadConfig loads the daemon configuration from a YAML file. If the file
// doesn't exist, it creates one with default values at configPath.
func LoadConfig(configPath string) (*Daemon, error) {
	configPath = expandPath(configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultDaemonConfig()
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultDaemonConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Daemon) Save(path string) error {
	path = expandPath(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# coordinatord configuration\n# generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if len(path) > 1 && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
