package runreport

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"token-aggregator/internal/domain/model"
	"token-aggregator/internal/platform/hash"
)

func TestGenerateWritesPDF(t *testing.T) {
	t.Parallel()

	summary := model.RunSummary{
		RunID:          "run_1_abc",
		StartedAt:      1700000000,
		FinishedAt:     1700000042,
		MinProviders:   2,
		PricingEntries: 12345,
		Providers: []model.ProviderSummary{
			{Name: "coingecko", Tokens: 10, Chains: []model.ChainSummary{{Chain: "1", Slug: "ethereum", Tokens: 10}}, ElapsedMS: 900},
			{Name: "1inch", Error: "endpoint unavailable after 20 attempts", ElapsedMS: 20000},
		},
		TrustedChains: []model.ChainCount{{Chain: "1", Name: "ethereum", Tokens: 4}},
		TrustedTokens: 4,
		Files:         []model.OutputFile{{Chain: "1", Path: "tokenlists/ethereum.json", SHA256: "ab", Tokens: 4}},
		Warnings:      []string{"provider 1inch failed: Ünavailable"},
	}

	path := filepath.Join(t.TempDir(), "reports", "run.pdf")
	res, err := Generate(context.Background(), summary, Options{Path: path})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.PDFPath != path {
		t.Fatalf("unexpected path %s", res.PDFPath)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte("%PDF")) {
		t.Fatalf("not a pdf: %q", raw[:8])
	}
	sum, _, err := hash.File(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if sum != res.PDFSHA256 {
		t.Fatalf("sha mismatch")
	}
}

func TestGenerateEmptySummary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.pdf")
	if _, err := Generate(context.Background(), model.RunSummary{}, Options{Path: path}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
}

func TestGenerateRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Generate(context.Background(), model.RunSummary{}, Options{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSafeText(t *testing.T) {
	t.Parallel()

	if got := safeText(" a\tb\nÜ ", false); got != "a b ?" {
		t.Fatalf("safeText ascii = %q", got)
	}
	if got := safeText("Ü", true); got != "Ü" {
		t.Fatalf("safeText utf8 = %q", got)
	}
}

func TestGenerateReturnsOnlyOwnWarnings(t *testing.T) {
	t.Parallel()

	summary := model.RunSummary{RunID: "run_w", Warnings: []string{"provider gamma skipped: unavailable"}}
	res, err := Generate(context.Background(), summary, Options{Path: filepath.Join(t.TempDir(), "w.pdf")})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	for _, w := range res.Warnings {
		if w != FontWarning {
			t.Fatalf("unexpected warning %q", w)
		}
	}
	if len(res.Warnings) > 1 {
		t.Fatalf("font warning repeated: %v", res.Warnings)
	}
}
