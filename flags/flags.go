package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
)

const EnvVarPrefix = "OP_EXPLORER"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

var (
	Dir = &cli.StringFlag{
		Name:    "dir",
		Value:   "",
		EnvVars: prefixEnvVars("DIR"),
		Usage:   "Path to the solution directory (a Go module unless --inventory is set)",
	}
	Solution = &cli.StringFlag{
		Name:    "solution",
		EnvVars: prefixEnvVars("SOLUTION"),
		Usage:   "Solution name. Defaults to the module path, or the directory name with --inventory",
	}
	Inventory = &cli.StringFlag{
		Name:    "inventory",
		EnvVars: prefixEnvVars("INVENTORY"),
		Usage:   "Read the test inventory from a YAML file instead of scanning the Go module",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		EnvVars: prefixEnvVars("CONFIG"),
		Usage:   "Optional TOML file with result store, API and enrichment settings. Flags override it",
	}
	BuildCommand = &cli.StringFlag{
		Name:    "build-cmd",
		EnvVars: prefixEnvVars("BUILD_CMD"),
		Usage:   "Command that builds the solution (eg. 'go build ./...'). Empty means builds succeed immediately",
	}
	OpenCommand = &cli.StringFlag{
		Name:    "open-cmd",
		EnvVars: prefixEnvVars("OPEN_CMD"),
		Usage:   "Command started to open a source location, with {file} and {line} substituted (eg. 'code -g {file}:{line}')",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: prefixEnvVars("GO_BINARY"),
		Usage:   "Path to the Go binary to use for running tests",
	}
	TestArgs = &cli.StringFlag{
		Name:    "test-args",
		EnvVars: prefixEnvVars("TEST_ARGS"),
		Usage:   "Extra arguments passed to go test (eg. '-race -count=1')",
	}
	TestTimeout = &cli.DurationFlag{
		Name:    "test-timeout",
		Value:   10 * time.Minute,
		EnvVars: prefixEnvVars("TEST_TIMEOUT"),
		Usage:   "Timeout for a single test run. 0 disables the timeout",
	}
	Cover = &cli.BoolFlag{
		Name:    "cover",
		EnvVars: prefixEnvVars("COVER"),
		Usage:   "Collect coverage while running tests",
	}
	AutoCover = &cli.BoolFlag{
		Name:    "auto-cover",
		EnvVars: prefixEnvVars("AUTO_COVER"),
		Usage:   "Run the selected tests after every successful rebuild",
	}
	Watch = &cli.BoolFlag{
		Name:    "watch",
		EnvVars: prefixEnvVars("WATCH"),
		Usage:   "Rebuild when Go sources in the solution directory change",
	}
	WatchDebounce = &cli.DurationFlag{
		Name:    "watch-debounce",
		Value:   500 * time.Millisecond,
		EnvVars: prefixEnvVars("WATCH_DEBOUNCE"),
		Usage:   "Quiet period after the last source change before rebuilding",
	}
	RebuildInterval = &cli.DurationFlag{
		Name:    "rebuild-interval",
		Value:   0,
		EnvVars: prefixEnvVars("REBUILD_INTERVAL"),
		Usage:   "Interval between periodic rebuilds (e.g. '10m'). 0 disables periodic rebuilds",
	}
	RunOnce = &cli.BoolFlag{
		Name:    "run-once",
		EnvVars: prefixEnvVars("RUN_ONCE"),
		Usage:   "Build, run the tests below --target once, print a summary and exit",
	}
	Target = &cli.StringFlag{
		Name:    "target",
		EnvVars: prefixEnvVars("TARGET"),
		Usage:   "Dotted tree path of the node to run in run-once mode. Empty runs the whole solution",
	}
	RunTimeout = &cli.DurationFlag{
		Name:    "run-timeout",
		Value:   30 * time.Minute,
		EnvVars: prefixEnvVars("RUN_TIMEOUT"),
		Usage:   "How long run-once mode waits for discovery, the build and the run together",
	}
	LogFile = &cli.StringFlag{
		Name:    "log-file",
		EnvVars: prefixEnvVars("LOG_FILE"),
		Usage:   "File that mirrors the test log",
	}
	LogLimit = &cli.IntFlag{
		Name:    "log-limit",
		Value:   1 << 20,
		EnvVars: prefixEnvVars("LOG_LIMIT"),
		Usage:   "Bytes of test log kept in memory for the API",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   "0.0.0.0:8080",
		EnvVars: prefixEnvVars("HEALTHZ_ADDR"),
		Usage:   "Listen address of the health check server. Empty disables it",
	}
	StoreBackend = &cli.StringFlag{
		Name:    "store.backend",
		Value:   "memory",
		EnvVars: prefixEnvVars("STORE_BACKEND"),
		Usage:   "Result store backend: memory, leveldb, redis or postgres",
	}
	StorePath = &cli.StringFlag{
		Name:    "store.path",
		EnvVars: prefixEnvVars("STORE_PATH"),
		Usage:   "LevelDB directory of the result store",
	}
	StoreURL = &cli.StringFlag{
		Name:    "store.url",
		EnvVars: prefixEnvVars("STORE_URL"),
		Usage:   "Redis or Postgres connection URL of the result store",
	}
	StoreKeyPrefix = &cli.StringFlag{
		Name:    "store.key-prefix",
		EnvVars: prefixEnvVars("STORE_KEY_PREFIX"),
		Usage:   "Key prefix for results kept in Redis",
	}
	StoreTTL = &cli.DurationFlag{
		Name:    "store.ttl",
		EnvVars: prefixEnvVars("STORE_TTL"),
		Usage:   "Expiry of results kept in Redis. 0 keeps them forever",
	}
	StoreCacheSize = &cli.IntFlag{
		Name:    "store.cache-size",
		EnvVars: prefixEnvVars("STORE_CACHE_SIZE"),
		Usage:   "Number of results cached in memory in front of the store",
	}
	APIAllowAllOrigins = &cli.BoolFlag{
		Name:    "api.allow-all-origins",
		EnvVars: prefixEnvVars("API_ALLOW_ALL_ORIGINS"),
		Usage:   "Allow cross origin requests to the API from any origin",
	}
	APIRequestTimeout = &cli.DurationFlag{
		Name:    "api.request-timeout",
		Value:   10 * time.Second,
		EnvVars: prefixEnvVars("API_REQUEST_TIMEOUT"),
		Usage:   "Timeout for a single API request",
	}
	EnrichConcurrency = &cli.IntFlag{
		Name:    "enrich.concurrency",
		Value:   8,
		EnvVars: prefixEnvVars("ENRICH_CONCURRENCY"),
		Usage:   "Maximum stored result lookups in flight",
	}
	EnrichRateLimit = &cli.Float64Flag{
		Name:    "enrich.rate-limit",
		Value:   0,
		EnvVars: prefixEnvVars("ENRICH_RATE_LIMIT"),
		Usage:   "Maximum stored result lookups per second. 0 disables the limit",
	}
)

var requiredFlags = []cli.Flag{
	Dir,
}

var optionalFlags = []cli.Flag{
	Solution,
	Inventory,
	ConfigFile,
	BuildCommand,
	OpenCommand,
	GoBinary,
	TestArgs,
	TestTimeout,
	Cover,
	AutoCover,
	Watch,
	WatchDebounce,
	RebuildInterval,
	RunOnce,
	Target,
	RunTimeout,
	LogFile,
	LogLimit,
	HealthzAddr,
	StoreBackend,
	StorePath,
	StoreURL,
	StoreKeyPrefix,
	StoreTTL,
	StoreCacheSize,
	APIAllowAllOrigins,
	APIRequestTimeout,
	EnrichConcurrency,
	EnrichRateLimit,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oprpc.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
