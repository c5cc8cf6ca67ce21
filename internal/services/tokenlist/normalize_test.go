package tokenlist

import (
	"errors"
	"testing"

	"token-aggregator/internal/domain/model"
	"token-aggregator/internal/services/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestNormalizeContainerShapes(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"tokens field": `{"name":"list","tokens":[{"symbol":"A","name":"Alpha","address":"0xaaa","decimals":18}]}`,
		"data field":   `{"code":200,"data":[{"symbol":"A","name":"Alpha","address":"0xaaa","decimals":18}]}`,
		"bare list":    `[{"symbol":"A","name":"Alpha","address":"0xaaa","decimals":18}]`,
	}
	f := &Fetcher{Provider: model.Provider{Name: "p"}}
	for name, body := range cases {
		ct, err := f.Normalize(model.ProviderChain{ID: "1", Slug: "mainnet"}, []byte(body))
		require.NoError(t, err, name)
		require.Len(t, ct.Tokens, 1, name)
		assert.Equal(t, model.Token{Symbol: "A", Name: "Alpha", Address: "0xaaa", Decimals: model.DecimalsOf(18)}, ct.Tokens[0], name)
		assert.Equal(t, model.ChainID("1"), ct.Chain)
	}
}

func TestNormalizeKeyedCollection(t *testing.T) {
	t.Parallel()

	body := []byte(`{"tokens":{
		"0xbbb":{"symbol":"B","name":"Beta","address":"0xbbb","decimals":6},
		"0xaaa":{"symbol":"A","name":"Alpha","address":"0xaaa","decimals":"18","logoURI":"https://x/a.png"}
	}}`)
	chain := model.ProviderChain{ID: "56", Slug: "bsc"}

	keyed := &Fetcher{Provider: model.Provider{Name: "1inch", TokensToList: true, SetChainID: true}}
	ct, err := keyed.Normalize(chain, body)
	require.NoError(t, err)
	require.Len(t, ct.Tokens, 2)
	assert.Equal(t, "0xaaa", ct.Tokens[0].Address, "values ordered by key")
	assert.Equal(t, "0xbbb", ct.Tokens[1].Address)
	assert.Equal(t, model.DecimalsOf(18), ct.Tokens[0].Decimals)
	assert.Equal(t, "https://x/a.png", ct.Tokens[0].LogoURI)
	for _, tok := range ct.Tokens {
		assert.Equal(t, "56", tok.ChainID)
	}

	plain := &Fetcher{Provider: model.Provider{Name: "plain"}}
	_, err = plain.Normalize(chain, body)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrKeyedCollection))
}

func TestNormalizeSetChainIDOverridesField(t *testing.T) {
	t.Parallel()

	body := []byte(`[{"symbol":"A","address":"0xaaa","chainId":1}]`)
	chain := model.ProviderChain{ID: "137", Slug: "polygon"}

	ct, err := (&Fetcher{Provider: model.Provider{SetChainID: true}}).Normalize(chain, body)
	require.NoError(t, err)
	assert.Equal(t, "137", ct.Tokens[0].ChainID)

	ct, err = (&Fetcher{Provider: model.Provider{}}).Normalize(chain, body)
	require.NoError(t, err)
	assert.Equal(t, "1", ct.Tokens[0].ChainID, "numeric chainId kept as string")
}

func TestNormalizeDropsEmptyAddresses(t *testing.T) {
	t.Parallel()

	body := []byte(`{"tokens":[
		{"symbol":"A","address":"0xaaa"},
		{"symbol":"B","address":""},
		{"symbol":"C"},
		{"symbol":"D","address":"   "},
		{"symbol":"E","address":null},
		null
	]}`)
	ct, err := (&Fetcher{}).Normalize(model.ProviderChain{ID: "1"}, body)
	require.NoError(t, err)
	require.Len(t, ct.Tokens, 1)
	assert.Equal(t, "A", ct.Tokens[0].Symbol)
	assert.Equal(t, 5, ct.Dropped)
}

func TestNormalizeAttachesPricingIDs(t *testing.T) {
	t.Parallel()

	idx := pricing.Index{"1": {"0xaaa": "alpha-coin"}}
	body := []byte(`[{"symbol":"A","address":"0xAAA"},{"symbol":"B","address":"0xbbb"}]`)
	chain := model.ProviderChain{ID: "1", Slug: "ethereum"}

	ct, err := (&Fetcher{Pricing: idx}).Normalize(chain, body)
	require.NoError(t, err)
	assert.Equal(t, "alpha-coin", ct.Tokens[0].CoingeckoID)
	assert.Empty(t, ct.Tokens[1].CoingeckoID, "missing pricing id leaves the field absent")

	off := &Fetcher{Provider: model.Provider{PricingIDs: boolPtr(false)}, Pricing: idx}
	ct, err = off.Normalize(chain, body)
	require.NoError(t, err)
	assert.Empty(t, ct.Tokens[0].CoingeckoID)
}

func TestNormalizeAddressCheck(t *testing.T) {
	t.Parallel()

	families := map[model.ChainID]model.AddressFamily{"1": model.FamilyEVM, "101": model.FamilySolana}
	f := &Fetcher{Accept: FamilyCheck(families)}

	ct, err := f.Normalize(model.ProviderChain{ID: "1"}, []byte(`[
		{"symbol":"USDT","address":"0xdAC17F958D2ee523a2206206994597C13D831ec7"},
		{"symbol":"BAD","address":"0xaaa"}
	]`))
	require.NoError(t, err)
	require.Len(t, ct.Tokens, 1)
	assert.Equal(t, "USDT", ct.Tokens[0].Symbol)
	assert.Equal(t, 1, ct.Dropped)

	ct, err = f.Normalize(model.ProviderChain{ID: "101"}, []byte(`[
		{"symbol":"USDC","address":"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"},
		{"symbol":"BAD","address":"0x0000000000000000000000000000000000000000"}
	]`))
	require.NoError(t, err)
	require.Len(t, ct.Tokens, 1)
	assert.Equal(t, "USDC", ct.Tokens[0].Symbol)
}

func TestNormalizeMalformedBodies(t *testing.T) {
	t.Parallel()

	f := &Fetcher{}
	for _, body := range []string{``, `not json`, `{"tokens":`, `"string"`, `{"tokens":42}`} {
		_, err := f.Normalize(model.ProviderChain{ID: "1"}, []byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestDecimals(t *testing.T) {
	t.Parallel()

	known := map[string]int{
		`18`:    18,
		`"6"`:   6,
		`0`:     0,
		`8.0`:   8,
		`"1e1"`: 10,
		`255`:   255,
	}
	for in, want := range known {
		got := decimals([]byte(in))
		require.NotNil(t, got, "input %s", in)
		assert.Equal(t, want, *got, "input %s", in)
	}

	for _, in := range []string{``, `1.5`, `-1`, `"abc"`, `null`, `true`, `"300"`, `100000`} {
		assert.Nil(t, decimals([]byte(in)), "input %q", in)
	}
}

func TestNormalizeOmitsUnknownDecimals(t *testing.T) {
	t.Parallel()

	body := []byte(`[
		{"symbol":"A","address":"0xaaa"},
		{"symbol":"B","address":"0xbbb","decimals":"300"},
		{"symbol":"C","address":"0xccc","decimals":0}
	]`)
	f := &Fetcher{Provider: model.Provider{Name: "p"}}
	ct, err := f.Normalize(model.ProviderChain{ID: "1"}, body)
	require.NoError(t, err)
	require.Len(t, ct.Tokens, 3)
	assert.Nil(t, ct.Tokens[0].Decimals)
	assert.Nil(t, ct.Tokens[1].Decimals)
	assert.Equal(t, model.DecimalsOf(0), ct.Tokens[2].Decimals)
}

func TestValidAddress(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidAddress(model.FamilyEVM, "0xdAC17F958D2ee523a2206206994597C13D831ec7"))
	assert.False(t, ValidAddress(model.FamilyEVM, "0xaaa"))
	assert.True(t, ValidAddress(model.FamilySolana, "So11111111111111111111111111111111111111112"))
	assert.False(t, ValidAddress(model.FamilySolana, "0OIl"))
	assert.True(t, ValidAddress("", "anything"))
	assert.False(t, ValidAddress("", ""))
}
