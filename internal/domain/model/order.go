package model

import "sort"

// ChainIDs 返回链 ID 列表：数字 ID 按数值升序，非数字 ID 按字典序排在后面。
func (m Merged) ChainIDs() []ChainID {
	out := make([]ChainID, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return LessChainID(out[i], out[j]) })
	return out
}

// Tokens 返回某条链下按地址升序排列的代币。
func (m Merged) Tokens(chain ChainID) []*Token {
	byAddr := m[chain]
	keys := make([]Address, 0, len(byAddr))
	for k := range byAddr {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]*Token, 0, len(keys))
	for _, k := range keys {
		out = append(out, byAddr[k])
	}
	return out
}

// LessChainID 是 ChainIDs 使用的排序规则。
func LessChainID(a, b ChainID) bool {
	an, aok := digits(string(a))
	bn, bok := digits(string(b))
	switch {
	case aok && bok:
		if len(an) != len(bn) {
			return len(an) < len(bn)
		}
		return an < bn
	case aok != bok:
		return aok
	default:
		return a < b
	}
}

// digits 去掉前导零后返回数字串；非纯数字返回 false。
func digits(s string) (string, bool) {
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	for len(s) > 1 && s[0] == '0' {
		s = s[1:]
	}
	return s, true
}
