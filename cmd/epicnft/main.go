// epicnft serves the mint page for the MyEpicNFT collection.
//
// It talks to a wallet-managed JSON-RPC endpoint for accounts and signing,
// pairs remote wallets over WalletConnect, and logs users in with their
// Unstoppable domain.
//
// Usage:
//
//	epicnft [--port 3000] [--provider http://127.0.0.1:1248] [--loglevel info]
//	epicnft info
//	epicnft mint
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	cli "gopkg.in/urfave/cli.v1"

	"epicnft/internal/config"
	"epicnft/internal/connector"
	"epicnft/internal/contracts"
	"epicnft/internal/mint"
	"epicnft/internal/provider"
	"epicnft/internal/server"
	"epicnft/internal/wallet"
)

var (
	app = cli.NewApp()

	portFlag = cli.IntFlag{
		Name:  "port",
		Usage: "HTTP listen port (overrides API_HTTP_PORT)",
	}
	providerFlag = cli.StringFlag{
		Name:  "provider",
		Usage: `Injected wallet JSON-RPC endpoint, or "none" (overrides INJECTED_PROVIDER_URL)`,
	}
	logLevelFlag = cli.StringFlag{
		Name:  "loglevel",
		Usage: "Log level: trace, debug, info, warn, error (overrides LOG_LEVEL)",
	}
)

func init() {
	app.Name = "epicnft"
	app.Usage = "Mint page for the MyEpicNFT collection"
	app.Version = "0.1.0"
	app.Action = serve
	app.Flags = []cli.Flag{
		portFlag,
		providerFlag,
		logLevelFlag,
	}
	app.Commands = []cli.Command{
		{
			Name:   "info",
			Usage:  "Print contract and connector configuration",
			Action: infoCmd,
		},
		{
			Name:   "mint",
			Usage:  "Mint one NFT through the injected wallet and print the transaction link",
			Action: mintCmd,
		},
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(ctx *cli.Context) (*config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if ctx.GlobalIsSet(portFlag.Name) {
		cfg.Service.HTTPPort = ctx.GlobalInt(portFlag.Name)
	}
	if ctx.GlobalIsSet(providerFlag.Name) {
		cfg.Chain.InjectedURL = ctx.GlobalString(providerFlag.Name)
	}
	if ctx.GlobalIsSet(logLevelFlag.Name) {
		cfg.Service.LogLevel = strings.ToLower(ctx.GlobalString(logLevelFlag.Name))
	}

	lvl, err := parseLevel(cfg.Service.LogLevel)
	if err != nil {
		return nil, err
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
	return cfg, nil
}

// parseLevel accepts the slog level names plus geth's trace and crit.
func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "trace":
		return log.LevelTrace, nil
	case "crit":
		return log.LevelCrit, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// dialInjected connects the injected provider. An empty or "none" URL means absent.
func dialInjected(ctx context.Context, url string) (*provider.Handle, error) {
	if url == "" || strings.EqualFold(url, "none") {
		log.Warn("No injected provider configured")
		return nil, nil
	}
	raw, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial injected provider: %w", err)
	}
	return provider.MakeHandle(raw), nil
}

type application struct {
	handle   *provider.Handle
	registry *connector.Registry
	board    *server.Board
	wallet   *wallet.Workflow
	minter   *mint.Minter
}

func build(ctx context.Context, cfg *config.AppConfig, alerter mint.Alerter) (*application, error) {
	handle, err := dialInjected(ctx, cfg.Chain.InjectedURL)
	if err != nil {
		return nil, err
	}

	board := server.NewBoard()
	display := func(uri string) {
		log.Info("WalletConnect pairing", "uri", uri)
		board.ShowPairing(uri)
	}
	registry, err := connector.NewRegistry(cfg, handle, display)
	if err != nil {
		return nil, err
	}

	parsed, err := contracts.LoadABI(cfg.Contract.ArtifactPath)
	if err != nil {
		return nil, err
	}

	var watcher wallet.ChainWatcher
	if handle != nil {
		watcher = handle
	}
	if alerter == nil {
		alerter = board
	}

	return &application{
		handle:   handle,
		registry: registry,
		board:    board,
		wallet:   wallet.New(registry.Injected, registry.Identity, watcher, nil),
		minter:   mint.New(handle, cfg, parsed, alerter, nil),
	}, nil
}

func (a *application) close() {
	a.wallet.Reset()
	for _, c := range a.registry.All() {
		c.Deactivate()
	}
	if a.handle != nil {
		a.handle.Close()
	}
}

func serve(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	a, err := build(context.Background(), cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	deps := server.Deps{
		Wallet: a.wallet,
		Minter: a.minter,
		Login:  a.registry.Identity,
		Board:  a.board,
		QRCode: a.registry.WalletConnect.QRCode(),
	}
	if a.handle != nil {
		deps.Health = a.handle.Ping
	}
	srv := server.NewServer(cfg, deps)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server stopped", "err", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func infoCmd(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	registry, err := connector.NewRegistry(cfg, nil, nil)
	if err != nil {
		return err
	}

	fmt.Printf("contract:    %s\n", cfg.Contract.Address)
	fmt.Printf("collection:  %s\n", cfg.Contract.CollectionURL())
	fmt.Printf("chain id:    %d\n", cfg.Chain.ChainID)
	fmt.Printf("provider:    %s\n", cfg.Chain.InjectedURL)
	fmt.Printf("polling:     %s\n", provider.DefaultPollingInterval)
	for _, c := range registry.All() {
		fmt.Printf("connector:   %-14s chains %v\n", c.Kind(), c.SupportedChainIDs())
	}
	if rpcURL, err := registry.WalletConnect.RPCURL(cfg.Chain.ChainID); err == nil {
		fmt.Printf("wc rpc:      %s\n", rpcURL)
	} else {
		fmt.Printf("wc rpc:      unavailable (%v)\n", err)
	}
	fmt.Printf("uauth:       client %q redirect %s scope %q\n", cfg.Identity.ClientID, cfg.Identity.RedirectURI, cfg.Identity.Scope)
	return nil
}

type stdoutAlerter struct{}

func (stdoutAlerter) Alert(msg string) { fmt.Println(msg) }

func mintCmd(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := build(runCtx, cfg, stdoutAlerter{})
	if err != nil {
		return err
	}
	defer a.close()

	if out := a.minter.AskContractToMintNft(runCtx); !out.OK() {
		return fmt.Errorf("mint did not complete: %s", out.Reason)
	}
	return nil
}
