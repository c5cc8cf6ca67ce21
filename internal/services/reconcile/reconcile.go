package reconcile

import "token-aggregator/internal/domain/model"

// DefaultMinProviders 是进入可信列表所需的最少独立 provider 数。
const DefaultMinProviders = 2

// Merge 按传入顺序（即配置顺序）合并各 provider 的结果。
//
// 同一 (链, 小写地址) 只保留一条记录：首次出现的条目决定除 listedIn 以外的所有字段，
// 之后出现的 provider 只追加到 listedIn，且不重复追加。
func Merge(results []model.ProviderResult) model.Merged {
	merged := make(model.Merged)
	for _, res := range results {
		for _, ct := range res.Chains {
			byAddr := merged[ct.Chain]
			if byAddr == nil {
				byAddr = make(map[model.Address]*model.Token)
				merged[ct.Chain] = byAddr
			}
			for _, tok := range ct.Tokens {
				key := tok.Key()
				if key == "" {
					continue
				}
				if existing, ok := byAddr[key]; ok {
					if !contains(existing.ListedIn, res.Provider) {
						existing.ListedIn = append(existing.ListedIn, res.Provider)
					}
					continue
				}
				t := tok
				if tok.Decimals != nil {
					t.Decimals = model.DecimalsOf(*tok.Decimals)
				}
				t.Address = string(key)
				t.ListedIn = []string{res.Provider}
				byAddr[key] = &t
			}
		}
	}
	for chain, byAddr := range merged {
		if len(byAddr) == 0 {
			delete(merged, chain)
		}
	}
	return merged
}

// Trust 保留 listedIn 数量不少于 minProviders 的记录，并去掉因此变空的链。
// minProviders 小于 2 时按 2 处理，单一来源的代币永远不可信。返回的是新视图，不修改 merged。
func Trust(merged model.Merged, minProviders int) model.Merged {
	if minProviders < DefaultMinProviders {
		minProviders = DefaultMinProviders
	}
	trusted := make(model.Merged)
	for chain, byAddr := range merged {
		kept := make(map[model.Address]*model.Token)
		for addr, tok := range byAddr {
			if len(tok.ListedIn) >= minProviders {
				kept[addr] = tok
			}
		}
		if len(kept) > 0 {
			trusted[chain] = kept
		}
	}
	return trusted
}

// Stats 返回按链 ID 排序的代币数量，以及总数。
func Stats(m model.Merged) ([]model.ChainCount, int) {
	chains := m.ChainIDs()
	out := make([]model.ChainCount, 0, len(chains))
	total := 0
	for _, c := range chains {
		n := len(m[c])
		out = append(out, model.ChainCount{Chain: c, Tokens: n})
		total += n
	}
	return out, total
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
