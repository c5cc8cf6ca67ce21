package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"token-aggregator/internal/adapters/registry"
	sqliteadapter "token-aggregator/internal/adapters/store/sqlite"
	"token-aggregator/internal/app"
	"token-aggregator/internal/domain/model"
	"token-aggregator/internal/platform/logging"
	"token-aggregator/internal/services/aggregate"

	"go.uber.org/zap/zapcore"
)

// CLI 入口。所有子命令错误都统一输出到 stderr 并返回非 0 状态码。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run 是一级命令路由；-h 打印完帮助后按成功返回。
func run(ctx context.Context, args []string, stdout io.Writer) error {
	err := route(ctx, args, stdout)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	return err
}

// route 分发子命令；不带参数时执行完整聚合。
func route(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return runAggregate(ctx, nil, stdout)
	}

	switch args[0] {
	case "run":
		return runAggregate(ctx, args[1:], stdout)
	case "providers":
		return runProviders(ctx, args[1:], stdout)
	case "snapshot":
		return runSnapshot(ctx, args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		if strings.HasPrefix(args[0], "-") {
			return runAggregate(ctx, args, stdout)
		}
		printUsage(stdout)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// runAggregate 执行完整流程：定价索引 -> 并发抓取 -> 合并 -> 写文件。
func runAggregate(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := app.LoadConfig(".env")
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stdout)
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "output directory for token lists")
	fs.StringVar(&cfg.RegistryDir, "registry", cfg.RegistryDir, "directory with chains.yaml/providers.yaml (default: embedded)")
	fs.StringVar(&cfg.CoinGeckoBaseURL, "coingecko-url", cfg.CoinGeckoBaseURL, "coingecko api base url")
	fs.StringVar(&cfg.CoinGeckoAPIKey, "coingecko-key", cfg.CoinGeckoAPIKey, "coingecko api key")
	fs.IntVar(&cfg.MinProviders, "min-providers", cfg.MinProviders, "providers required for a token to be trusted")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "attempts per request before giving up (0 = unbounded)")
	fs.DurationVar(&cfg.HTTPTimeout, "http-timeout", cfg.HTTPTimeout, "timeout of a single http request")
	fs.DurationVar(&cfg.RetryUnit, "retry-unit", cfg.RetryUnit, "unit of an integer Retry-After value")
	fs.DurationVar(&cfg.ProviderTimeout, "provider-timeout", cfg.ProviderTimeout, "time budget of one provider")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "fail the run when any provider fails")
	fs.BoolVar(&cfg.ValidateAddresses, "validate-addresses", cfg.ValidateAddresses, "drop addresses malformed for the chain family")
	fs.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "write a sqlite snapshot of the run")
	fs.StringVar(&cfg.ReportPath, "report", cfg.ReportPath, "write a pdf run report")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	fs.StringVar(&cfg.LogOutput, "log-output", cfg.LogOutput, "comma separated log outputs (default stdout)")
	asJSON := fs.Bool("json", false, "print the run summary as json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewWithOptions(logging.Options{
		Level:       cfg.LogLevel,
		Debug:       logging.ParseLevel(cfg.LogLevel) == zapcore.DebugLevel,
		OutputPaths: cfg.LogOutputs(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	res, err := aggregate.Run(ctx, aggregate.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	if *asJSON {
		return printJSON(stdout, res)
	}
	fmt.Fprintf(stdout, "collected trusted tokens: chains=%d tokens=%d dir=%s\n",
		len(res.TrustedChains), res.TrustedTokens, res.OutputDir)
	for _, f := range res.Failures {
		fmt.Fprintf(stdout, "skipped provider %s: %s\n", f.Provider, f.Error)
	}
	return nil
}

// runProviders 校验并打印注册表。
func runProviders(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("providers", flag.ContinueOnError)
	fs.SetOutput(stdout)
	dir := fs.String("registry", "", "directory with chains.yaml/providers.yaml (default: embedded)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	reg, err := registry.NewLoader(*dir).Load(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, "registry validation passed")
	fmt.Fprintf(stdout, "chains: total=%d sha256=%s\n", len(reg.Chains), reg.ChainsSHA256)
	fmt.Fprintf(stdout, "providers: total=%d active=%d sha256=%s\n", len(reg.Providers), len(reg.ActiveProviders()), reg.ProvidersSHA256)

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCHAINS\tKEY\tFLAGS\tSTATUS")
	for _, p := range reg.Providers {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", p.Name, len(p.Chains), urlKey(p), providerFlags(p), providerStatus(p))
	}
	return tw.Flush()
}

// runSnapshot 读取 SQLite 快照并打印运行摘要。
func runSnapshot(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	fs.SetOutput(stdout)
	dbPath := fs.String("db", "", "sqlite snapshot path")
	chain := fs.String("chain", "", "list trusted tokens of this chain id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*dbPath) == "" {
		return fmt.Errorf("--db is required")
	}
	if _, err := os.Stat(*dbPath); err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}

	db, err := sqliteadapter.Open(ctx, *dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	store := sqliteadapter.NewStore(db)

	if *chain != "" {
		toks, err := store.ListTrustedTokens(ctx, model.ChainID(*chain))
		if err != nil {
			return err
		}
		return printJSON(stdout, toks)
	}

	meta, err := store.GetRunMeta(ctx)
	if err != nil {
		return err
	}
	if meta == nil {
		return fmt.Errorf("snapshot is empty: %s", *dbPath)
	}
	fetches, err := store.CountProviderFetches(ctx)
	if err != nil {
		return err
	}
	return printJSON(stdout, snapshotView{
		ProviderFetches: fetches,
		Summary:         meta.Summary,
	})
}

// snapshotView 是 snapshot 子命令的输出。
type snapshotView struct {
	ProviderFetches int              `json:"provider_fetches"`
	Summary         model.RunSummary `json:"summary"`
}

func urlKey(p model.Provider) string {
	if p.ByChainID {
		return "chain-id"
	}
	return "slug"
}

func providerFlags(p model.Provider) string {
	var flags []string
	if p.SetChainID {
		flags = append(flags, "set_chain_id")
	}
	if p.TokensToList {
		flags = append(flags, "tokens_to_list")
	}
	if !p.DecoratePricing() {
		flags = append(flags, "no_pricing_ids")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func providerStatus(p model.Provider) string {
	if !p.Disabled {
		return "active"
	}
	if p.Note != "" {
		return "disabled (" + p.Note + ")"
	}
	return "disabled"
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  tokenlists                       run the full aggregation with config from env/.env")
	fmt.Fprintln(w, "  tokenlists run [flags]           same, flags override config (see tokenlists run -h)")
	fmt.Fprintln(w, "  tokenlists providers [--registry DIR]")
	fmt.Fprintln(w, "  tokenlists snapshot --db PATH [--chain CHAIN_ID]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  chain 42161 is written to arbitrum.json (older releases wrote farms.json);")
	fmt.Fprintln(w, "  set REGISTRY_DIR to a copy of chains.yaml to change output file names.")
}

func printJSON(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}
