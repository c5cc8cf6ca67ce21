package tokenlist

import (
	"context"
	"fmt"
	"time"

	"token-aggregator/internal/adapters/httpfetch"
	"token-aggregator/internal/domain/model"
	"token-aggregator/internal/services/pricing"

	"go.uber.org/zap"
)

// Getter 是带重试的 GET，通常由 httpfetch.Client 提供。
type Getter interface {
	Get(ctx context.Context, rawURL string, onRetry func(httpfetch.RetryEvent)) ([]byte, error)
}

// Fetcher 按 provider 描述符抓取并归一化各条链的代币列表。
// 所有 provider 共用同一套流程，差异只体现在描述符的参数上。
type Fetcher struct {
	Provider model.Provider
	Getter   Getter
	Pricing  pricing.Index

	// Accept 为空时只丢弃空地址。
	Accept AddressCheck
	Logger *zap.Logger
}

func New(p model.Provider, getter Getter, idx pricing.Index, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{Provider: p, Getter: getter, Pricing: idx, Logger: logger}
}

// Fetch 按描述符中的链顺序逐条抓取。任何一条链失败都会中止整个 provider，
// 已抓到的链也不返回。
func (f *Fetcher) Fetch(ctx context.Context) (*model.ProviderResult, error) {
	logger := f.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", f.Provider.Name))

	res := &model.ProviderResult{
		Provider: f.Provider.Name,
		Chains:   make([]model.ChainTokens, 0, len(f.Provider.Chains)),
	}
	for _, chain := range f.Provider.Chains {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ct, err := f.fetchChain(ctx, chain, logger)
		if err != nil {
			return nil, fmt.Errorf("%s chain %s (%s): %w", f.Provider.Name, chain.ID, chain.Slug, err)
		}
		res.Chains = append(res.Chains, ct)
	}
	return res, nil
}

func (f *Fetcher) fetchChain(ctx context.Context, chain model.ProviderChain, logger *zap.Logger) (model.ChainTokens, error) {
	started := time.Now()
	url := f.Provider.RequestURL(chain)

	body, err := f.Getter.Get(ctx, url, func(ev httpfetch.RetryEvent) {
		logger.Warn("provider unavailable, waiting",
			zap.String("chain", string(chain.ID)),
			zap.String("slug", chain.Slug),
			zap.Int("status", ev.Status),
			zap.Int("attempt", ev.Attempt),
			zap.Duration("wait", ev.Wait),
		)
	})
	if err != nil {
		return model.ChainTokens{}, err
	}

	ct, err := f.Normalize(chain, body)
	if err != nil {
		return model.ChainTokens{}, err
	}

	logger.Info("tokenlist fetched",
		zap.String("chain", string(chain.ID)),
		zap.String("slug", chain.Slug),
		zap.Int("tokens", len(ct.Tokens)),
		zap.Int("dropped", ct.Dropped),
		zap.Duration("elapsed", time.Since(started)),
	)
	return ct, nil
}

// Normalize 把一条链的原始响应体转成 ChainTokens。
func (f *Fetcher) Normalize(chain model.ProviderChain, body []byte) (model.ChainTokens, error) {
	container, err := extractCollection(body)
	if err != nil {
		return model.ChainTokens{}, err
	}
	raws, err := decodeCollection(container, f.Provider.TokensToList)
	if err != nil {
		return model.ChainTokens{}, err
	}

	out := model.ChainTokens{
		Chain:  chain.ID,
		Slug:   chain.Slug,
		Tokens: make([]model.Token, 0, len(raws)),
	}
	decorate := f.Provider.DecoratePricing()
	for _, raw := range raws {
		t, ok := toToken(raw)
		if !ok {
			out.Dropped++
			continue
		}
		if f.Provider.SetChainID {
			t.ChainID = string(chain.ID)
		}
		if t.Address == "" {
			out.Dropped++
			continue
		}
		if f.Accept != nil && !f.Accept(chain.ID, t.Address) {
			out.Dropped++
			continue
		}
		if decorate {
			if id, ok := f.Pricing.Lookup(chain.ID, t.Address); ok {
				t.CoingeckoID = id
			}
		}
		out.Tokens = append(out.Tokens, t)
	}
	return out, nil
}
