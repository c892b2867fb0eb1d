package main

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	cli "gopkg.in/urfave/cli.v1"

	"epicnft/internal/config"
)

// runLoadConfig parses args with the real flag set and returns what loadConfig built.
func runLoadConfig(t *testing.T, args ...string) (*config.AppConfig, error) {
	t.Helper()
	prev := log.Root()
	t.Cleanup(func() { log.SetDefault(prev) })

	var (
		cfg     *config.AppConfig
		loadErr error
	)
	runner := cli.NewApp()
	runner.Flags = app.Flags
	runner.Action = func(ctx *cli.Context) error {
		cfg, loadErr = loadConfig(ctx)
		return nil
	}
	if err := runner.Run(append([]string{"epicnft"}, args...)); err != nil {
		t.Fatalf("run: %v", err)
	}
	return cfg, loadErr
}

func TestLoadConfigFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("API_HTTP_PORT", "4000")
	t.Setenv("INJECTED_PROVIDER_URL", "http://127.0.0.1:1248")
	t.Setenv("LOG_LEVEL", "info")

	cfg, err := runLoadConfig(t, "--port", "3100", "--provider", "none", "--loglevel", "TRACE")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Service.HTTPPort != 3100 {
		t.Fatalf("expected port flag to win, got %d", cfg.Service.HTTPPort)
	}
	if cfg.Chain.InjectedURL != "none" {
		t.Fatalf("expected provider flag to win, got %s", cfg.Chain.InjectedURL)
	}
	if cfg.Service.LogLevel != "trace" {
		t.Fatalf("unexpected log level %s", cfg.Service.LogLevel)
	}
	if cfg.Chain.ChainID != config.RinkebyChainID {
		t.Fatalf("unexpected chain %d", cfg.Chain.ChainID)
	}
}

func TestLoadConfigRejectsUnknownLevel(t *testing.T) {
	if _, err := runLoadConfig(t, "--loglevel", "chatty"); err == nil {
		t.Fatalf("expected unknown log level to fail")
	}
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]int{
		"trace": int(log.LevelTrace),
		"debug": int(log.LevelDebug),
		"info":  int(log.LevelInfo),
		"WARN":  int(log.LevelWarn),
		"error": int(log.LevelError),
		"crit":  int(log.LevelCrit),
	} {
		got, err := parseLevel(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if int(got) != want {
			t.Fatalf("%s: expected %d got %d", name, want, got)
		}
	}
}

func TestMintWithoutProviderFails(t *testing.T) {
	prev := log.Root()
	t.Cleanup(func() { log.SetDefault(prev) })

	err := app.Run([]string{"epicnft", "--provider", "none", "--loglevel", "error", "mint"})
	if err == nil || !strings.Contains(err.Error(), "no_provider") {
		t.Fatalf("expected no provider failure, got %v", err)
	}
}
