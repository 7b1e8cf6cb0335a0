package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/urfave/cli.v1"

	"github.com/geanlabs/xchain/config"
	"github.com/geanlabs/xchain/internal/genesis"
	"github.com/geanlabs/xchain/node"
)

var (
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "Node configuration file (YAML)",
	}
	genesisFlag = cli.StringFlag{
		Name:  "genesis",
		Usage: "Genesis file (JSON)",
		Value: "genesis.json",
	}
	dataDirFlag = cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the state database and node key",
	}
	listenFlag = cli.StringFlag{
		Name:  "listen",
		Usage: "Comma-separated libp2p listen multiaddrs",
	}
	bootnodesFlag = cli.StringFlag{
		Name:  "bootnodes",
		Usage: "Bootnode list file (nodes.yaml)",
	}
	validatorsFlag = cli.StringFlag{
		Name:  "validators",
		Usage: "Comma-separated base58 validator addresses to act as",
	}
	metricsFlag = cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Prometheus metrics listen address (empty disables)",
	}
	inMemoryFlag = cli.BoolFlag{
		Name:  "inmemory",
		Usage: "Keep state in memory only",
	}
	logLevelFlag = cli.StringFlag{
		Name:  "log.level",
		Usage: "Log level (debug, info, warn, error)",
		Value: "info",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "xchaind"
	app.Usage = "cross-chain indexing node"
	app.Flags = []cli.Flag{
		configFlag,
		genesisFlag,
		dataDirFlag,
		listenFlag,
		bootnodesFlag,
		validatorsFlag,
		metricsFlag,
		inMemoryFlag,
		logLevelFlag,
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	logger := newLogger(ctx.String(logLevelFlag.Name))

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	gen, err := genesis.LoadFromFile(ctx.String(genesisFlag.Name))
	if err != nil {
		return err
	}
	validators, err := cfg.ValidatorAddresses()
	if err != nil {
		return err
	}
	var bootnodes []string
	if cfg.Bootnodes != "" {
		if bootnodes, err = config.LoadBootnodes(cfg.Bootnodes); err != nil {
			return err
		}
	}

	n, err := node.New(context.Background(), &node.Config{
		Genesis:      gen,
		Validators:   validators,
		Network:      cfg.Network,
		DataDir:      cfg.DataDir,
		InMemory:     cfg.InMemory,
		ListenAddrs:  cfg.ListenAddrs,
		NodeKeyPath:  cfg.NodeKey,
		Bootnodes:    bootnodes,
		MetricsAddr:  cfg.MetricsAddr,
		SyncInterval: cfg.SyncInterval,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	n.Start()

	logger.Info("xchain indexing node running",
		"chain_id", gen.ChainID,
		"height", n.CurrentHeight(),
		"peers", n.PeerCount(),
	)

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	n.Stop()
	return nil
}

// loadConfig reads the config file, if any, then applies flag overrides.
func loadConfig(ctx *cli.Context) (*config.NodeConfig, error) {
	cfg := config.Default()
	if path := ctx.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if ctx.IsSet(dataDirFlag.Name) {
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if ctx.IsSet(listenFlag.Name) {
		cfg.ListenAddrs = splitList(ctx.String(listenFlag.Name))
	}
	if ctx.IsSet(bootnodesFlag.Name) {
		cfg.Bootnodes = ctx.String(bootnodesFlag.Name)
	}
	if ctx.IsSet(validatorsFlag.Name) {
		cfg.Validators = splitList(ctx.String(validatorsFlag.Name))
	}
	if ctx.IsSet(metricsFlag.Name) {
		cfg.MetricsAddr = ctx.String(metricsFlag.Name)
	}
	if ctx.IsSet(inMemoryFlag.Name) {
		cfg.InMemory = ctx.Bool(inMemoryFlag.Name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}
