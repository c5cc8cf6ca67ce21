package tokenlist

import (
	"token-aggregator/internal/domain/model"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

// AddressCheck 判断地址在给定链上是否格式合法。
type AddressCheck func(chain model.ChainID, address string) bool

// FamilyCheck 按链的地址族校验格式；未登记地址族的链一律放行。
func FamilyCheck(families map[model.ChainID]model.AddressFamily) AddressCheck {
	return func(chain model.ChainID, address string) bool {
		return ValidAddress(families[chain], address)
	}
}

// ValidAddress 只校验地址字符串的形状，不做任何链上检查。
func ValidAddress(family model.AddressFamily, address string) bool {
	switch family {
	case model.FamilyEVM:
		return common.IsHexAddress(address)
	case model.FamilySolana:
		return len(base58.Decode(address)) == 32
	default:
		return address != ""
	}
}
