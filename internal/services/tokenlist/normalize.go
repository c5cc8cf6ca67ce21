package tokenlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"token-aggregator/internal/domain/model"

	"github.com/shopspring/decimal"
)

// ErrKeyedCollection 表示代币集合是以地址为键的对象，但描述符没有打开 tokens_to_list。
var ErrKeyedCollection = errors.New("keyed token collection requires tokens_to_list")

type rawToken map[string]json.RawMessage

// logoKeys 按优先级列出各家对图标字段的不同叫法。
var logoKeys = []string{"logoURI", "logoUri", "logo_uri", "icon", "logo"}

// extractCollection 选出代币集合：优先 tokens 字段，其次 data 字段，否则整个响应体。
func extractCollection(body []byte) (json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty response body")
	}
	if body[0] != '{' {
		return body, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if v, ok := obj["tokens"]; ok {
		return v, nil
	}
	if v, ok := obj["data"]; ok {
		return v, nil
	}
	return body, nil
}

// decodeCollection 把集合展开成条目列表。键控对象按键排序后取值。
func decodeCollection(container json.RawMessage, keyed bool) ([]rawToken, error) {
	container = bytes.TrimSpace(container)
	if len(container) == 0 {
		return nil, errors.New("empty token collection")
	}

	switch container[0] {
	case '[':
		var list []rawToken
		if err := json.Unmarshal(container, &list); err != nil {
			return nil, fmt.Errorf("decode token list: %w", err)
		}
		return list, nil
	case '{':
		if !keyed {
			return nil, ErrKeyedCollection
		}
		var byKey map[string]rawToken
		if err := json.Unmarshal(container, &byKey); err != nil {
			return nil, fmt.Errorf("decode keyed tokens: %w", err)
		}
		keys := make([]string, 0, len(byKey))
		for k := range byKey {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		list := make([]rawToken, 0, len(keys))
		for _, k := range keys {
			list = append(list, byKey[k])
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unexpected token collection: %s", truncate(string(container), 64))
	}
}

// toToken 把原始条目转成 Token；null 条目返回 false。
func toToken(raw rawToken) (model.Token, bool) {
	if raw == nil {
		return model.Token{}, false
	}
	t := model.Token{
		Symbol:  scalarString(raw["symbol"]),
		Name:    scalarString(raw["name"]),
		Address: strings.TrimSpace(scalarString(raw["address"])),
		ChainID: scalarString(raw["chainId"]),
	}
	t.Decimals = decimals(raw["decimals"])
	for _, k := range logoKeys {
		if v := scalarString(raw[k]); v != "" {
			t.LogoURI = v
			break
		}
	}
	return t, true
}

// scalarString 接受 JSON 字符串或数字，其余类型返回空串。
func scalarString(v json.RawMessage) string {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return ""
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		d, err := decimal.NewFromString(string(v))
		if err != nil {
			return ""
		}
		return d.String()
	default:
		return ""
	}
}

// decimals 把数字或数字字符串规整为 0..255 的整数；缺失、小数、负数、越界或无法解析时返回 nil。
func decimals(v json.RawMessage) *int {
	s := scalarString(v)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.Sign() < 0 || !d.Equal(d.Truncate(0)) {
		return nil
	}
	n := d.IntPart()
	if n > 255 {
		return nil
	}
	return model.DecimalsOf(int(n))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
