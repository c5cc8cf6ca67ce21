package aggregate

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"token-aggregator/internal/adapters/coingecko"
	"token-aggregator/internal/adapters/httpfetch"
	"token-aggregator/internal/adapters/registry"
	"token-aggregator/internal/adapters/sink"
	sqliteadapter "token-aggregator/internal/adapters/store/sqlite"
	"token-aggregator/internal/app"
	"token-aggregator/internal/domain/model"
	"token-aggregator/internal/platform/id"
	"token-aggregator/internal/services/pricing"
	"token-aggregator/internal/services/reconcile"
	"token-aggregator/internal/services/runreport"
	"token-aggregator/internal/services/tokenlist"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options 定义一次聚合运行的输入。
type Options struct {
	Config app.Config

	// 以下字段为空时按 Config 构建，测试中可以替换。
	Registry   *registry.Registry
	Pricing    pricing.CoinLister
	HTTPClient *http.Client
	Sleep      func(ctx context.Context, d time.Duration) error
	Logger     *zap.Logger
}

// Failure 记录一个被隔离的 provider。
type Failure struct {
	Provider string `json:"provider"`
	Error    string `json:"error"`
}

// Result 是一次运行的摘要输出。
type Result struct {
	model.RunSummary
	OutputDir    string    `json:"output_dir"`
	Failures     []Failure `json:"failures,omitempty"`
	SQLitePath   string    `json:"sqlite_path,omitempty"`
	ReportPath   string    `json:"report_path,omitempty"`
	ReportSHA256 string    `json:"report_sha256,omitempty"`

	Trusted model.Merged `json:"-"`
}

// Run 执行完整流程：
// 1) 加载链表与 provider 表
// 2) 构建 CoinGecko ID 索引（失败即终止）
// 3) 所有 provider 并发抓取，各自按链顺序串行
// 4) 按配置顺序合并，过滤出可信代币
// 5) 写出 JSON 文件，可选导出 SQLite 快照与 PDF 摘要
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := withDefaults(opts.Config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	started := time.Now()
	runID := id.New("run")
	logger = logger.With(zap.String("run_id", runID))
	logger.Debug("run config",
		zap.String("output_dir", cfg.OutputDir),
		zap.String("registry_dir", cfg.RegistryDir),
		zap.String("coingecko_base_url", cfg.CoinGeckoBaseURL),
		zap.String("coingecko_api_key", cfg.MaskedAPIKey()),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Int("min_providers", cfg.MinProviders),
		zap.Bool("strict", cfg.Strict),
	)

	reg := opts.Registry
	if reg == nil {
		var err error
		reg, err = registry.NewLoader(cfg.RegistryDir).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load registry: %w", err)
		}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}

	lister := opts.Pricing
	if lister == nil {
		cg := coingecko.NewClient(cfg.CoinGeckoBaseURL, cfg.CoinGeckoAPIKey)
		cg.HTTPClient = httpClient
		lister = cg
	}
	idx, err := pricing.Build(ctx, lister, reg.PlatformChains())
	if err != nil {
		return nil, fmt.Errorf("build pricing index: %w", err)
	}
	logger.Info("pricing index built", zap.Int("entries", idx.Len()))

	fetch := httpfetch.New(cfg.HTTPTimeout)
	fetch.HTTPClient = httpClient
	fetch.MaxAttempts = cfg.MaxAttempts
	fetch.RetryUnit = cfg.RetryUnit
	fetch.Sleep = opts.Sleep

	var accept tokenlist.AddressCheck
	if cfg.ValidateAddresses {
		accept = tokenlist.FamilyCheck(reg.Families())
	}
	newFetcher := func(p model.Provider) *tokenlist.Fetcher {
		f := tokenlist.New(p, fetch, idx, logger)
		f.Accept = accept
		return f
	}

	providers := reg.ActiveProviders()
	results, summaries, err := fetchAll(ctx, providers, newFetcher, cfg.ProviderTimeout, cfg.Strict, logger)
	if err != nil {
		return nil, err
	}

	trusted := reconcile.Trust(reconcile.Merge(results), cfg.MinProviders)
	counts, total := reconcile.Stats(trusted)
	for i := range counts {
		counts[i].Name = reg.ChainName(counts[i].Chain)
	}

	files, err := sink.NewJSONWriter(cfg.OutputDir, reg).Write(ctx, trusted)
	if err != nil {
		return nil, fmt.Errorf("write token lists: %w", err)
	}

	res := &Result{
		RunSummary: model.RunSummary{
			RunID:          runID,
			StartedAt:      started.Unix(),
			MinProviders:   cfg.MinProviders,
			PricingEntries: idx.Len(),
			Providers:      summaries,
			TrustedChains:  counts,
			TrustedTokens:  total,
			Files:          files,
		},
		OutputDir: cfg.OutputDir,
		Trusted:   trusted,
	}
	for _, s := range summaries {
		if s.Error != "" {
			res.Failures = append(res.Failures, Failure{Provider: s.Name, Error: s.Error})
			res.Warnings = append(res.Warnings, fmt.Sprintf("provider %s skipped: %s", s.Name, s.Error))
		}
	}
	res.FinishedAt = time.Now().Unix()

	// 报告先于快照生成，快照里的摘要才包含报告告警。
	if cfg.ReportPath != "" {
		rep, err := runreport.Generate(ctx, res.RunSummary, runreport.Options{Path: cfg.ReportPath})
		if err != nil {
			return nil, fmt.Errorf("generate run report: %w", err)
		}
		res.ReportPath = rep.PDFPath
		res.ReportSHA256 = rep.PDFSHA256
		res.Warnings = append(res.Warnings, rep.Warnings...)
	}
	if cfg.SQLitePath != "" {
		if err := sqliteadapter.SaveSnapshot(ctx, cfg.SQLitePath, res.RunSummary, trusted); err != nil {
			return nil, fmt.Errorf("export sqlite snapshot: %w", err)
		}
		res.SQLitePath = cfg.SQLitePath
	}

	logger.Info("collected trusted tokens",
		zap.Int("chains", len(counts)),
		zap.Int("tokens", total),
		zap.Int("providers", len(providers)),
		zap.Int("failed_providers", len(res.Failures)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

// fetchAll 为每个 provider 启动一个 goroutine，结果写入各自的下标，Wait 之后按配置顺序返回。
// 非 strict 模式下失败或超时的 provider 只记录错误，不影响其他 provider。
func fetchAll(
	ctx context.Context,
	providers []model.Provider,
	newFetcher func(model.Provider) *tokenlist.Fetcher,
	timeout time.Duration,
	strict bool,
	logger *zap.Logger,
) ([]model.ProviderResult, []model.ProviderSummary, error) {
	results := make([]*model.ProviderResult, len(providers))
	summaries := make([]model.ProviderSummary, len(providers))
	errs := make([]error, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			started := time.Now()
			res, err := newFetcher(p).Fetch(pctx)
			summaries[i] = summarize(p.Name, res, err, time.Since(started))
			if err != nil {
				errs[i] = fmt.Errorf("provider %s: %w", p.Name, err)
				logger.Warn("provider failed, contributing nothing",
					zap.String("provider", p.Name),
					zap.Error(err),
				)
				if strict {
					return errs[i]
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}
	waitErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if strict && waitErr != nil {
		return nil, nil, fmt.Errorf("strict mode: %w", multierr.Combine(errs...))
	}

	ordered := make([]model.ProviderResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			ordered = append(ordered, *r)
		}
	}
	return ordered, summaries, nil
}

func summarize(name string, res *model.ProviderResult, err error, elapsed time.Duration) model.ProviderSummary {
	s := model.ProviderSummary{Name: name, ElapsedMS: elapsed.Milliseconds()}
	if err != nil {
		s.Error = err.Error()
		return s
	}
	for _, ct := range res.Chains {
		s.Chains = append(s.Chains, model.ChainSummary{
			Chain:   ct.Chain,
			Slug:    ct.Slug,
			Tokens:  len(ct.Tokens),
			Dropped: ct.Dropped,
		})
		s.Tokens += len(ct.Tokens)
	}
	return s
}

// withDefaults 补齐零值字段；MaxAttempts 为 0 表示不设上限，保持原样。
func withDefaults(cfg app.Config) app.Config {
	d := app.DefaultConfig()
	if cfg.OutputDir == "" {
		cfg.OutputDir = d.OutputDir
	}
	if cfg.CoinGeckoBaseURL == "" {
		cfg.CoinGeckoBaseURL = d.CoinGeckoBaseURL
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = d.HTTPTimeout
	}
	if cfg.RetryUnit <= 0 {
		cfg.RetryUnit = d.RetryUnit
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = d.ProviderTimeout
	}
	if cfg.MinProviders <= 0 {
		cfg.MinProviders = d.MinProviders
	}
	return cfg
}
