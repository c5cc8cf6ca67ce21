package pricing

import (
	"context"
	"fmt"
	"strings"

	"token-aggregator/internal/adapters/coingecko"
	"token-aggregator/internal/domain/model"
)

// CoinLister 提供 CoinGecko 币种列表。
type CoinLister interface {
	ListCoins(ctx context.Context) ([]coingecko.Coin, error)
}

// Index 是 chain -> 小写地址 -> CoinGecko ID 的只读映射。
type Index map[model.ChainID]map[model.Address]string

// Build 拉取一次币种列表并建立索引；任何错误都直接返回，由调用方终止本次运行。
// platforms 是 CoinGecko platform slug -> 链 ID 的反向表。
func Build(ctx context.Context, lister CoinLister, platforms map[string]model.ChainID) (Index, error) {
	coins, err := lister.ListCoins(ctx)
	if err != nil {
		return nil, fmt.Errorf("list coingecko coins: %w", err)
	}
	return FromCoins(coins, platforms), nil
}

// FromCoins 建立索引。未登记的 platform、空 platform 或空地址直接跳过；
// 同一地址出现在多个币种下时保留后出现的。
func FromCoins(coins []coingecko.Coin, platforms map[string]model.ChainID) Index {
	idx := make(Index)
	for _, coin := range coins {
		id := strings.TrimSpace(coin.ID)
		if id == "" {
			continue
		}
		for platform, address := range coin.Platforms {
			if platform == "" || strings.TrimSpace(address) == "" {
				continue
			}
			chain, ok := platforms[platform]
			if !ok {
				continue
			}
			byAddr := idx[chain]
			if byAddr == nil {
				byAddr = make(map[model.Address]string)
				idx[chain] = byAddr
			}
			byAddr[model.NormalizeAddress(address)] = id
		}
	}
	return idx
}

// Lookup 按链和地址查找 CoinGecko ID，地址大小写不敏感。
func (ix Index) Lookup(chain model.ChainID, address string) (string, bool) {
	id, ok := ix[chain][model.NormalizeAddress(address)]
	return id, ok
}

// Len 返回索引中的地址条目总数。
func (ix Index) Len() int {
	n := 0
	for _, m := range ix {
		n += len(m)
	}
	return n
}
