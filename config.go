package explorer

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-explorer/flags"
	"github.com/ethereum-optimism/infra/op-explorer/results"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
)

// FileConfig is the optional TOML configuration file.
//
//	[store]
//	backend = "redis"
//	url = "redis://localhost:6379/0"
//	ttl = "168h"
//
//	[api]
//	allow_all_origins = true
//
//	[enrich]
//	concurrency = 16
type FileConfig struct {
	Store  results.Config `toml:"store"`
	API    APIConfig      `toml:"api"`
	Enrich EnrichConfig   `toml:"enrich"`
}

type APIConfig struct {
	AllowAllOrigins bool          `toml:"allow_all_origins"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
}

type EnrichConfig struct {
	Concurrency int     `toml:"concurrency"`
	RateLimit   float64 `toml:"rate_limit"`
}

// Config holds the application configuration
type Config struct {
	Dir           string
	Solution      string
	InventoryFile string
	BuildCommand  []string
	OpenCommand   []string
	GoBinary      string
	TestArgs      []string
	TestTimeout   time.Duration
	Cover         bool
	AutoCover     bool
	Watch         bool
	WatchDebounce time.Duration
	// RebuildInterval is the period of scheduled rebuilds. Zero disables them.
	RebuildInterval time.Duration
	RunOnce         bool
	// Target is the tree path run in run-once mode. Empty runs the solution.
	Target     string
	RunTimeout time.Duration
	LogFile    string
	LogLimit   int

	// Listen addresses. Empty disables the server.
	APIAddr     string
	HealthzAddr string
	MetricsAddr string

	Store  results.Config
	API    APIConfig
	Enrich EnrichConfig

	Log log.Logger
}

// NewConfig creates a new Config from cli context. Values from --config are
// used where the matching flag was not set explicitly.
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	dir := ctx.String(flags.Dir.Name)
	if dir == "" {
		return nil, errors.New("solution directory is required")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for solution directory '%s': %w", dir, err)
	}
	if info, err := os.Stat(absDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("solution directory '%s' does not exist", absDir)
	}

	var inventoryFile string
	if p := ctx.String(flags.Inventory.Name); p != "" {
		inventoryFile, err = filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for inventory '%s': %w", p, err)
		}
	}

	fileCfg, err := loadFileConfig(ctx)
	if err != nil {
		return nil, err
	}
	if err := fileCfg.Store.Validate(); err != nil {
		return nil, fmt.Errorf("invalid result store config: %w", err)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}
	var metricsAddr string
	if metricsCfg.Enabled {
		metricsAddr = net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort))
	}
	rpcCfg := oprpc.ReadCLIConfig(ctx)

	return &Config{
		Dir:             absDir,
		Solution:        ctx.String(flags.Solution.Name),
		InventoryFile:   inventoryFile,
		BuildCommand:    strings.Fields(ctx.String(flags.BuildCommand.Name)),
		OpenCommand:     strings.Fields(ctx.String(flags.OpenCommand.Name)),
		GoBinary:        ctx.String(flags.GoBinary.Name),
		TestArgs:        strings.Fields(ctx.String(flags.TestArgs.Name)),
		TestTimeout:     ctx.Duration(flags.TestTimeout.Name),
		Cover:           ctx.Bool(flags.Cover.Name),
		AutoCover:       ctx.Bool(flags.AutoCover.Name),
		Watch:           ctx.Bool(flags.Watch.Name),
		WatchDebounce:   ctx.Duration(flags.WatchDebounce.Name),
		RebuildInterval: ctx.Duration(flags.RebuildInterval.Name),
		RunOnce:         ctx.Bool(flags.RunOnce.Name),
		Target:          ctx.String(flags.Target.Name),
		RunTimeout:      ctx.Duration(flags.RunTimeout.Name),
		LogFile:         ctx.String(flags.LogFile.Name),
		LogLimit:        ctx.Int(flags.LogLimit.Name),
		APIAddr:         net.JoinHostPort(rpcCfg.ListenAddr, strconv.Itoa(rpcCfg.ListenPort)),
		HealthzAddr:     ctx.String(flags.HealthzAddr.Name),
		MetricsAddr:     metricsAddr,
		Store:           fileCfg.Store,
		API:             fileCfg.API,
		Enrich:          fileCfg.Enrich,
		Log:             log,
	}, nil
}

// loadFileConfig starts from the flag values, lays the TOML file over them and
// finally reapplies the flags that were set explicitly.
func loadFileConfig(ctx *cli.Context) (FileConfig, error) {
	cfg := FileConfig{}
	applyFlags := func(onlySet bool) {
		set := func(name string) bool { return !onlySet || ctx.IsSet(name) }
		if set(flags.StoreBackend.Name) {
			cfg.Store.Backend = ctx.String(flags.StoreBackend.Name)
		}
		if set(flags.StorePath.Name) {
			cfg.Store.Path = ctx.String(flags.StorePath.Name)
		}
		if set(flags.StoreURL.Name) {
			cfg.Store.URL = ctx.String(flags.StoreURL.Name)
		}
		if set(flags.StoreKeyPrefix.Name) {
			cfg.Store.KeyPrefix = ctx.String(flags.StoreKeyPrefix.Name)
		}
		if set(flags.StoreTTL.Name) {
			cfg.Store.TTL = ctx.Duration(flags.StoreTTL.Name)
		}
		if set(flags.StoreCacheSize.Name) {
			cfg.Store.CacheSize = ctx.Int(flags.StoreCacheSize.Name)
		}
		if set(flags.APIAllowAllOrigins.Name) {
			cfg.API.AllowAllOrigins = ctx.Bool(flags.APIAllowAllOrigins.Name)
		}
		if set(flags.APIRequestTimeout.Name) {
			cfg.API.RequestTimeout = ctx.Duration(flags.APIRequestTimeout.Name)
		}
		if set(flags.EnrichConcurrency.Name) {
			cfg.Enrich.Concurrency = ctx.Int(flags.EnrichConcurrency.Name)
		}
		if set(flags.EnrichRateLimit.Name) {
			cfg.Enrich.RateLimit = ctx.Float64(flags.EnrichRateLimit.Name)
		}
	}

	applyFlags(false)
	path := ctx.String(flags.ConfigFile.Name)
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("unknown keys in config file '%s': %v", path, undecoded)
	}
	applyFlags(true)
	return cfg, nil
}
