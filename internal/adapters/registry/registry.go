package registry

import (
	"strings"

	"token-aggregator/internal/domain/model"
)

// Registry 是校验通过的链表与 provider 表，加载后只读。
type Registry struct {
	Chains          []model.Chain
	Providers       []model.Provider
	ChainsSHA256    string
	ProvidersSHA256 string

	byID       map[model.ChainID]model.Chain
	byPlatform map[string]model.ChainID
}

// New 校验两份 bundle 并建立索引。
func New(chains ChainBundle, providers ProviderBundle) (*Registry, error) {
	for i := range chains.Chains {
		c := &chains.Chains[i]
		c.ID = model.ChainID(strings.TrimSpace(string(c.ID)))
		c.Name = strings.TrimSpace(c.Name)
		c.Platform = strings.TrimSpace(c.Platform)
	}
	if err := validateChains(chains); err != nil {
		return nil, err
	}

	r := &Registry{
		Chains:     chains.Chains,
		byID:       make(map[model.ChainID]model.Chain, len(chains.Chains)),
		byPlatform: make(map[string]model.ChainID, len(chains.Chains)),
	}
	for _, c := range chains.Chains {
		r.byID[c.ID] = c
		if c.Platform != "" {
			r.byPlatform[c.Platform] = c.ID
		}
	}

	for i := range providers.Providers {
		p := &providers.Providers[i]
		p.Name = strings.TrimSpace(p.Name)
		p.URL = strings.TrimSpace(p.URL)
		for j := range p.Chains {
			p.Chains[j].ID = model.ChainID(strings.TrimSpace(string(p.Chains[j].ID)))
			p.Chains[j].Slug = strings.TrimSpace(p.Chains[j].Slug)
		}
	}
	if err := validateProviders(providers, r.byID); err != nil {
		return nil, err
	}
	r.Providers = providers.Providers
	return r, nil
}

// ChainName 返回输出文件用的链名；没有登记名称时用链 ID。
func (r *Registry) ChainName(id model.ChainID) string {
	if c, ok := r.byID[id]; ok && c.Name != "" {
		return c.Name
	}
	return string(id)
}

// PlatformChains 返回 CoinGecko platform -> 链 ID 的反向表。
func (r *Registry) PlatformChains() map[string]model.ChainID {
	out := make(map[string]model.ChainID, len(r.byPlatform))
	for k, v := range r.byPlatform {
		out[k] = v
	}
	return out
}

// Families 返回链 ID -> 地址族，供地址格式校验使用。
func (r *Registry) Families() map[model.ChainID]model.AddressFamily {
	out := make(map[model.ChainID]model.AddressFamily, len(r.byID))
	for id, c := range r.byID {
		if c.Family != "" {
			out[id] = c.Family
		}
	}
	return out
}

// ActiveProviders 按配置顺序返回未禁用的 provider。
func (r *Registry) ActiveProviders() []model.Provider {
	out := make([]model.Provider, 0, len(r.Providers))
	for _, p := range r.Providers {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	return out
}
