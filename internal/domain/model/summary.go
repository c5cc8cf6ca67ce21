package model

// ChainSummary 记录某个 provider 在一条链上的抓取统计。
type ChainSummary struct {
	Chain   ChainID `json:"chain"`
	Slug    string  `json:"slug"`
	Tokens  int     `json:"tokens"`
	Dropped int     `json:"dropped"`
}

// ProviderSummary 记录单个 provider 的抓取结果；Error 非空时该 provider 不参与合并。
type ProviderSummary struct {
	Name      string         `json:"name"`
	Chains    []ChainSummary `json:"chains,omitempty"`
	Tokens    int            `json:"tokens"`
	Error     string         `json:"error,omitempty"`
	ElapsedMS int64          `json:"elapsed_ms"`
}

// ChainCount 是可信列表中某条链的代币数量。
type ChainCount struct {
	Chain  ChainID `json:"chain"`
	Name   string  `json:"name"`
	Tokens int     `json:"tokens"`
}

// OutputFile 是一次运行写出的文件。
type OutputFile struct {
	Chain  ChainID `json:"chain,omitempty"` // 空表示汇总文件 all.json
	Path   string  `json:"path"`
	SHA256 string  `json:"sha256"`
	Tokens int     `json:"tokens"`
}

// RunSummary 是一次聚合运行的摘要，供 CLI 输出、SQLite 快照和 PDF 报告共用。
type RunSummary struct {
	RunID          string            `json:"run_id"`
	StartedAt      int64             `json:"started_at"`
	FinishedAt     int64             `json:"finished_at"`
	MinProviders   int               `json:"min_providers"`
	PricingEntries int               `json:"pricing_entries"`
	Providers      []ProviderSummary `json:"providers"`
	TrustedChains  []ChainCount      `json:"trusted_chains"`
	TrustedTokens  int               `json:"trusted_tokens"`
	Files          []OutputFile      `json:"files,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
}

// FailedProviders 返回抓取失败的 provider 名称（按配置顺序）。
func (s RunSummary) FailedProviders() []string {
	var out []string
	for _, p := range s.Providers {
		if p.Error != "" {
			out = append(out, p.Name)
		}
	}
	return out
}
