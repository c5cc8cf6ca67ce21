package model

import "strings"

// AddressFamily 表示链的地址编码族，用于可选的地址格式校验。
type AddressFamily string

const (
	// FamilyEVM 表示 0x 前缀的 20 字节十六进制地址。
	FamilyEVM AddressFamily = "evm"
	// FamilySolana 表示 base58 编码的 32 字节公钥地址。
	FamilySolana AddressFamily = "solana"
)

// Chain 是链注册表中的一条记录。
type Chain struct {
	ID       ChainID       `yaml:"id" json:"id"`
	Name     string        `yaml:"name" json:"name,omitempty"`         // 输出文件名
	Platform string        `yaml:"platform" json:"platform,omitempty"` // CoinGecko platform slug
	Family   AddressFamily `yaml:"family" json:"family,omitempty"`
}

// ProviderChain 把链 ID 绑定到 provider 自己的链 slug。
type ProviderChain struct {
	ID   ChainID `yaml:"id"`
	Slug string  `yaml:"slug"`
}

// ChainPlaceholder 是 URL 模板中的占位符。
const ChainPlaceholder = "{chain}"

// Provider 描述一个代币列表来源。
//
// 各 provider 之间只在这些参数上有差异，抓取流程完全相同。
type Provider struct {
	Name         string          `yaml:"name"`
	URL          string          `yaml:"url"`
	Chains       []ProviderChain `yaml:"chains"`
	ByChainID    bool            `yaml:"by_chain_id"`    // URL 用链 ID 而不是 slug 填充
	SetChainID   bool            `yaml:"set_chain_id"`   // 给每个条目注入当前链 ID
	TokensToList bool            `yaml:"tokens_to_list"` // 以地址为键的对象转为列表
	PricingIDs   *bool           `yaml:"pricing_ids"`    // 未配置时默认开启
	Disabled     bool            `yaml:"disabled"`
	Note         string          `yaml:"note"`
}

// DecoratePricing 返回是否需要附加 CoinGecko ID。
func (p Provider) DecoratePricing() bool {
	return p.PricingIDs == nil || *p.PricingIDs
}

// RequestURL 按 by_chain_id 选择链 ID 或 slug 填充 URL 模板。
func (p Provider) RequestURL(c ProviderChain) string {
	v := c.Slug
	if p.ByChainID {
		v = string(c.ID)
	}
	return strings.ReplaceAll(p.URL, ChainPlaceholder, v)
}
