// Package main provides coordinatord - the cross-chain swap coordinator
// daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hostbridge/coordinator/internal/bridge"
	"github.com/hostbridge/coordinator/internal/config"
	"github.com/hostbridge/coordinator/internal/coordinator"
	"github.com/hostbridge/coordinator/internal/identity"
	"github.com/hostbridge/coordinator/internal/ledger"
	"github.com/hostbridge/coordinator/internal/p2p"
	"github.com/hostbridge/coordinator/internal/rpc"
	"github.com/hostbridge/coordinator/internal/storage"
	"github.com/hostbridge/coordinator/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir        = flag.String("data-dir", "~/.coordinatord", "Data directory")
		configFile     = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		apiAddr        = flag.String("api", "", "JSON-RPC API address, overrides config")
		ethereumRPC    = flag.String("ethereum-rpc", "", "Ethereum JSON-RPC URL for outbound transaction submission (unset disables chain-fusion submission)")
		bootstrapPeers = flag.String("bootstrap", "", "Bootstrap peers (comma-separated multiaddrs), overrides config")
		controller     = flag.String("controller", "", "Controller principal permitted to call admin methods, overrides config")
		logLevel       = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion    = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("coordinatord %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	effectiveDataDir := expandPath(*dataDir)

	var cfgPath string
	if *configFile != "" {
		cfgPath = *configFile
	} else {
		cfgPath = filepath.Join(effectiveDataDir, config.ConfigFileName)
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	if *apiAddr != "" {
		cfg.RPC.ListenAddr = *apiAddr
	}
	if *bootstrapPeers != "" {
		cfg.P2P.BootstrapPeers = parseBootstrapPeers(*bootstrapPeers)
	}
	if *controller != "" {
		cfg.ControllerPrincipal = *controller
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "log-level" {
			cfg.Logging.Level = *logLevel
		}
	})
	cfg.Storage.DataDir = effectiveDataDir

	log = logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	log.Info("Config loaded", "path", cfgPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.New(config.StorageConfig{DataDir: effectiveDataDir})
	if err != nil {
		log.Fatal("Failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("Storage initialized", "path", effectiveDataDir)

	keypair, err := identity.LoadOrCreate(filepath.Join(effectiveDataDir, "operator.key"))
	if err != nil {
		log.Fatal("Failed to load operator identity", "error", err)
	}
	log.Info("Operator identity loaded", "principal", keypair.Principal())

	// The native ledger is an external collaborator in the host runtime;
	// a fake in-process ledger stands in until a real ICRC client ships.
	led := ledger.NewFake(cfg.Bridge.TransferFee)
	led.Credit(ledger.CoordinatorAccount().Owner, cfg.Bridge.MaxSwapAmount*1000)

	var submitter bridge.EVMSubmitter
	if *ethereumRPC != "" {
		s, err := bridge.DialRPCSubmitter(ctx, *ethereumRPC)
		if err != nil {
			log.Fatal("Failed to dial Ethereum RPC", "url", *ethereumRPC, "error", err)
		}
		defer s.Close()
		submitter = s
		log.Info("Ethereum RPC submitter connected", "url", *ethereumRPC)
	} else {
		log.Warn("No Ethereum RPC configured; chain-fusion submission is disabled")
	}

	clock := func() uint64 { return uint64(time.Now().Unix()) }

	disp := bridge.New(cfg.Bridge, submitter, clock)

	announcer, err := p2p.New(ctx, cfg.P2P)
	if err != nil {
		log.Fatal("Failed to start p2p announcer", "error", err)
	}
	defer announcer.Close()
	log.Info("p2p announcer started", "peer_count", announcer.PeerCount())

	coord, err := coordinator.New(cfg, led, disp, store, announcer, clock, version)
	if err != nil {
		log.Fatal("Failed to construct coordinator", "error", err)
	}

	rpcServer := rpc.NewServer(coord)
	if err := rpcServer.Start(cfg.RPC.ListenAddr); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	printBanner(log, cfg, announcer)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	log.Info("Shutting down...")

	cancel()

	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}

	log.Info("Goodbye!")
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func printBanner(log *logging.Logger, cfg *config.Daemon, announcer *p2p.Announcer) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  hostbridge coordinator")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  API: http://%s", cfg.RPC.ListenAddr)
	log.Infof("  WS:  ws://%s/ws", cfg.RPC.ListenAddr)
	log.Info("")
	log.Infof("  Chain fusion enabled: %v", cfg.Bridge.ChainFusionEnabled)
	log.Infof("  Peers: %d", announcer.PeerCount())
	log.Infof("  Data dir: %s", cfg.Storage.DataDir)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}

func parseBootstrapPeers(s string) []string {
	if s == "" {
		return nil
	}
	var peers []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}
