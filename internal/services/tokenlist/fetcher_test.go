package tokenlist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"token-aggregator/internal/adapters/httpfetch"
	"token-aggregator/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestFetchUsesSlugOrChainID(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.RequestURI())
		mu.Unlock()
		_, _ = w.Write([]byte(`[{"symbol":"A","address":"0xaaa"}]`))
	}))
	defer srv.Close()

	client := httpfetch.New(5 * time.Second)
	client.Sleep = noSleep

	bySlug := model.Provider{
		Name:   "uniswap",
		URL:    srv.URL + "/tokens/{chain}.json",
		Chains: []model.ProviderChain{{ID: "1", Slug: "mainnet"}, {ID: "137", Slug: "polygon"}},
	}
	res, err := New(bySlug, client, nil, nil).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Chains, 2)
	assert.Equal(t, "uniswap", res.Provider)
	assert.Equal(t, model.ChainID("1"), res.Chains[0].Chain)
	assert.Equal(t, model.ChainID("137"), res.Chains[1].Chain)

	byID := model.Provider{
		Name:      "openocean",
		URL:       srv.URL + "/tokenList?chainId={chain}",
		ByChainID: true,
		Chains:    []model.ProviderChain{{ID: "56", Slug: "binance-smart-chain"}},
	}
	_, err = New(byID, client, nil, nil).Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"/tokens/mainnet.json", "/tokens/polygon.json", "/tokenList?chainId=56"}, paths)
}

func TestFetchLogsRetriesAndProgress(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"tokens":[{"symbol":"A","address":"0xaaa"},{"symbol":"B","address":""}]}`))
	}))
	defer srv.Close()

	var waits []time.Duration
	client := httpfetch.New(5 * time.Second)
	client.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	core, logs := observer.New(zapcore.InfoLevel)
	p := model.Provider{Name: "sushiswap", URL: srv.URL + "/{chain}.json", Chains: []model.ProviderChain{{ID: "1", Slug: "mainnet"}}}
	res, err := New(p, client, nil, zap.New(core)).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Chains, 1)
	assert.Len(t, res.Chains[0].Tokens, 1)
	assert.Equal(t, 1, res.Chains[0].Dropped)
	assert.Equal(t, []time.Duration{2 * time.Second}, waits)

	require.Equal(t, 1, logs.FilterMessage("provider unavailable, waiting").Len())
	fetched := logs.FilterMessage("tokenlist fetched").All()
	require.Len(t, fetched, 1)
	fields := fetched[0].ContextMap()
	assert.Equal(t, "sushiswap", fields["provider"])
	assert.Equal(t, "1", fields["chain"])
	assert.EqualValues(t, 1, fields["tokens"])
}

func TestFetchAbortsProviderOnChainFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bsc") {
			_, _ = w.Write([]byte(`<html>oops</html>`))
			return
		}
		_, _ = w.Write([]byte(`[{"symbol":"A","address":"0xaaa"}]`))
	}))
	defer srv.Close()

	p := model.Provider{
		Name:   "elkfinance",
		URL:    srv.URL + "/{chain}.tokenlist.json",
		Chains: []model.ProviderChain{{ID: "1", Slug: "ethereum"}, {ID: "56", Slug: "bsc"}},
	}
	res, err := New(p, httpfetch.New(5*time.Second), nil, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "elkfinance chain 56 (bsc)")
}

func TestFetchReportsUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := httpfetch.New(5 * time.Second)
	client.Sleep = noSleep
	client.MaxAttempts = 2

	p := model.Provider{Name: "1sol", URL: srv.URL + "/solana.tokenlist.json", Chains: []model.ProviderChain{{ID: "101", Slug: "solana"}}}
	_, err := New(p, client, nil, nil).Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, httpfetch.ErrUnavailable))
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := model.Provider{Name: "x", URL: "http://127.0.0.1:1/{chain}", Chains: []model.ProviderChain{{ID: "1", Slug: "a"}}}
	_, err := New(p, httpfetch.New(time.Second), nil, nil).Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
