// Command latticenode runs the block-lattice node core: ledger, block
// processor, confirmation-height cementation, bootstrap client/server,
// and the network/channel layer, wired together the way cmd/geth wires
// go-ethereum's node.Node (spec §4 COMPONENT DESIGN).
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/latticenode/node/internal/active"
	"github.com/latticenode/node/internal/blockproc"
	bsclient "github.com/latticenode/node/internal/bootstrap/client"
	bsserver "github.com/latticenode/node/internal/bootstrap/server"
	"github.com/latticenode/node/internal/confheight"
	"github.com/latticenode/node/internal/kvstore"
	"github.com/latticenode/node/internal/latticelog"
	"github.com/latticenode/node/internal/latticemetrics"
	"github.com/latticenode/node/internal/latticetypes"
	"github.com/latticenode/node/internal/ledger"
	"github.com/latticenode/node/internal/netp"
	"github.com/latticenode/node/internal/nodeconfig"
	"github.com/latticenode/node/internal/powwork"
	"github.com/latticenode/node/internal/unchecked"
)

var (
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "data directory for the node's database and identity key",
		Value: defaultDataDir(),
	}
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "path to a node.toml config file, applied over built-in defaults",
	}
	networkFlag = &cli.StringFlag{
		Name:  "network",
		Usage: "network preset: live, beta, or test",
		Value: string(nodeconfig.NetworkLive),
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log verbosity: 0=crit .. 5=trace",
		Value: int(latticelog.LvlInfo),
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "append rotating logs to this path in addition to stderr",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "address to serve Prometheus /metrics on (empty disables)",
	}
	peersFlag = &cli.StringSliceFlag{
		Name:  "peer",
		Usage: "address of a peer to bootstrap from and maintain a realtime channel to (repeatable)",
	}
)

func defaultDataDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return ".latticenode"
	}
	return filepath.Join(home, ".latticenode")
}

func main() {
	app := &cli.App{
		Name:  "latticenode",
		Usage: "block-lattice ledger node",
		Flags: []cli.Flag{dataDirFlag, configFlag, networkFlag, verbosityFlag, logFileFlag, metricsAddrFlag, peersFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	latticelog.SetLevel(latticelog.Lvl(c.Int(verbosityFlag.Name)))
	if path := c.String(logFileFlag.Name); path != "" {
		latticelog.SetHandler(latticelog.MultiHandler{Handlers: []latticelog.Handler{
			latticelog.DefaultHandler(),
			latticelog.NewFileHandler(latticelog.FileHandlerOptions{Path: path}),
		}})
	}
	log := latticelog.New("pkg", "main")

	dataDir, err := homedir.Expand(c.String(dataDirFlag.Name))
	if err != nil {
		return fmt.Errorf("latticenode: expand datadir: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return fmt.Errorf("latticenode: create datadir: %w", err)
	}

	cfg := nodeconfig.Default()
	cfg.DataDir = dataDir
	cfg.Network = nodeconfig.Network(c.String(networkFlag.Name))
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := nodeconfig.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	nodeID, priv, err := loadOrCreateIdentity(dataDir)
	if err != nil {
		return fmt.Errorf("latticenode: node identity: %w", err)
	}
	log.Info("node identity", "account", nodeID.String())

	store, err := kvstore.Open(filepath.Join(dataDir, "db"), kvstore.Options{ReadCacheBytes: 64 * 1024 * 1024})
	if err != nil {
		return fmt.Errorf("latticenode: open store: %w", err)
	}
	defer store.Close()

	worker := powwork.New()
	epochs := ledger.Epochs{Signer: nodeID, Link1: latticetypes.BlakeHash([]byte("epoch_v1_link"))}
	ldgr := ledger.New(store, worker, epochs, cfg.WorkThreshold)

	if err := seedGenesisIfEmpty(store, ldgr, nodeID); err != nil {
		return fmt.Errorf("latticenode: genesis: %w", err)
	}
	if err := store.Update(kvstore.WriterBlockProcessor, func(tx kvstore.WriteTx) error {
		return ldgr.BuildWeightCache(tx)
	}); err != nil {
		return fmt.Errorf("latticenode: build weight cache: %w", err)
	}

	unc := unchecked.New()
	proc := blockproc.New(store, ldgr, unc, blockproc.Options{})
	proc.Start()
	defer proc.Stop()

	confh := confheight.New(store, ldgr)
	confh.Start()
	defer confh.Stop()

	activeIdx := active.New(confh)
	quit := make(chan struct{})
	defer close(quit)
	activeIdx.WatchForks(proc.Forks(), quit)

	tcpAddr := fmt.Sprintf(":%d", cfg.PeeringPort)
	udpAddr := fmt.Sprintf(":%d", cfg.PeeringPort)
	table := netp.NewTable(netp.Options{})
	netSrv, err := netp.NewServer(networkByte(cfg.Network), nodeID, priv, udpAddr, tcpAddr, table, proc)
	if err != nil {
		return fmt.Errorf("latticenode: network server: %w", err)
	}
	netSrv.Start()
	defer netSrv.Stop()

	bsLn, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.PeeringPort+1))
	if err != nil {
		return fmt.Errorf("latticenode: bootstrap listener: %w", err)
	}
	bsSrv := bsserver.New(bsLn, store, ldgr, proc, cfg.TCPIncomingConnectionsMax, cfg.IdleTimeout)
	bsSrv.Start()
	defer bsSrv.Stop()

	peers := c.StringSlice(peersFlag.Name)
	if len(peers) > 0 {
		attempt := bsclient.New(bsclient.ModeLegacy, peers, netSrv, store, ldgr, proc, bsclient.Options{
			BootstrapConnections:    cfg.BootstrapConnections,
			BootstrapConnectionsMax: cfg.BootstrapConnectionsMax,
			BandwidthLimitBytesSec:  cfg.BandwidthLimit,
			LazyMaxPullBlocks:       cfg.LazyMaxPullBlocks,
			LazyMaxStopped:          cfg.LazyMaxStopped,
		})
		go func() {
			ctx, cancel := context.WithCancel(context.Background())
			go func() { <-quit; cancel() }()
			if err := attempt.Run(ctx); err != nil {
				log.Warn("bootstrap attempt ended", "err", err)
			}
		}()
	}

	if addr := c.String(metricsAddrFlag.Name); addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(latticemetrics.NewPrometheusCollector("latticenode"))
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", "err", err)
			}
		}()
		defer srv.Close()
	}

	go keepaliveLoop(netSrv, quit)

	log.Info("node started", "peering_port", cfg.PeeringPort, "network", cfg.Network)
	waitForSignal()
	log.Info("shutting down")
	return nil
}

func keepaliveLoop(s *netp.Server, quit <-chan struct{}) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Broadcast()
		case <-quit:
			return
		}
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}

func networkByte(n nodeconfig.Network) byte {
	switch n {
	case nodeconfig.NetworkBeta:
		return 'B'
	case nodeconfig.NetworkTest:
		return 'T'
	default:
		return 'L'
	}
}

// loadOrCreateIdentity reads the node's ed25519 keypair from
// <datadir>/node_id.key, generating and persisting one on first run.
func loadOrCreateIdentity(dataDir string) (latticetypes.Account, ed25519.PrivateKey, error) {
	path := filepath.Join(dataDir, "node_id.key")
	raw, err := os.ReadFile(path)
	if err == nil && len(raw) == ed25519.PrivateKeySize {
		priv := ed25519.PrivateKey(raw)
		var account latticetypes.Account
		copy(account[:], priv.Public().(ed25519.PublicKey))
		return account, priv, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return latticetypes.Account{}, nil, err
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return latticetypes.Account{}, nil, err
	}
	if err := os.WriteFile(path, priv, 0o600); err != nil {
		return latticetypes.Account{}, nil, err
	}
	var account latticetypes.Account
	copy(account[:], priv.Public().(ed25519.PublicKey))
	return account, priv, nil
}

// seedGenesisIfEmpty assigns the whole raw supply to the node's own
// identity on a brand-new data directory, matching the teacher's
// single-node devnet convenience (a real deployment instead loads the
// network's well-known genesis account).
func seedGenesisIfEmpty(store *kvstore.Store, l *ledger.Ledger, nodeID latticetypes.Account) error {
	return store.Update(kvstore.WriterBlockProcessor, func(tx kvstore.WriteTx) error {
		return ledger.InitGenesis(tx, l, ledger.GenesisSpec{
			Account:        nodeID,
			Representative: nodeID,
			Balance:        latticetypes.MaxAmount,
		})
	})
}
