package model

import "strings"

// ChainID 是链的稳定数字字符串标识，例如 "1" 表示以太坊主网。
type ChainID string

// Address 是合约地址的规范形式（小写）。
type Address string

// NormalizeAddress 返回用于合并去重的地址键：去掉首尾空白并转为小写。
func NormalizeAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

// Token 是各 provider 原始条目归一化之后的代币记录。
//
// JSON 字段名与历史输出保持一致（chainId / logoURI / coingeckoId / listedIn），
// 下游消费方不需要感知这次重写。
type Token struct {
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	Decimals    *int     `json:"decimals,omitempty"` // 无法识别时为 nil，输出中省略
	ChainID     string   `json:"chainId,omitempty"`
	LogoURI     string   `json:"logoURI,omitempty"`
	CoingeckoID string   `json:"coingeckoId,omitempty"`
	ListedIn    []string `json:"listedIn,omitempty"`
}

// Key 返回合并用的地址键。
func (t Token) Key() Address {
	return NormalizeAddress(t.Address)
}

// DecimalsOf 返回指向 n 的指针，用于构造 Token.Decimals。
func DecimalsOf(n int) *int {
	return &n
}

// ChainTokens 是某个 provider 在一条链上的归一化结果。
type ChainTokens struct {
	Chain   ChainID
	Slug    string
	Tokens  []Token
	Dropped int // 因地址为空或格式不合法被丢弃的条目数
}

// ProviderResult 是单个 provider 一次完整抓取的结果，Chains 按描述符中的链顺序排列。
type ProviderResult struct {
	Provider string
	Chains   []ChainTokens
}

// Merged 是合并后的视图：chain -> 小写地址 -> 代币记录。
type Merged map[ChainID]map[Address]*Token
