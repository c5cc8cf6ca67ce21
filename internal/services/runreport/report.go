package runreport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"token-aggregator/internal/domain/model"
	"token-aggregator/internal/platform/hash"

	"github.com/phpdave11/gofpdf"
)

// 运行摘要 PDF：给人看的一页纸，数据全部来自 RunSummary，不回读输出文件。

type Options struct {
	Path string
}

type Result struct {
	PDFPath     string   `json:"pdf_path"`
	PDFSHA256   string   `json:"pdf_sha256"`
	Warnings    []string `json:"warnings,omitempty"`
	GeneratedAt int64    `json:"generated_at"`
}

// FontWarning 在找不到 UTF-8 字体时写入报告并返回给调用方。
const FontWarning = "pdf utf8 font not available; non-ascii text may be replaced with '?'"

// FontEnv 指定 UTF-8 字体文件路径，优先于系统字体探测。
const FontEnv = "TOKENLISTS_PDF_FONT"

// Generate 把运行摘要写成 PDF。
func Generate(ctx context.Context, summary model.RunSummary, opts Options) (*Result, error) {
	pdfPath := strings.TrimSpace(opts.Path)
	if pdfPath == "" {
		return nil, fmt.Errorf("report path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(pdfPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir report dir: %w", err)
		}
	}

	now := time.Now().Unix()
	pdf, warnings := buildPDF(summary, now)
	if err := pdf.OutputFileAndClose(pdfPath); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	sum, _, err := hash.File(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("sha256 pdf: %w", err)
	}
	return &Result{
		PDFPath:     pdfPath,
		PDFSHA256:   sum,
		Warnings:    warnings,
		GeneratedAt: now,
	}, nil
}

// buildPDF 返回文档以及报告自身产生的告警（不含 summary 里已有的告警）。
func buildPDF(s model.RunSummary, generatedAt int64) (*gofpdf.Fpdf, []string) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	pdf.SetTitle("Trusted Token Lists - Run Report", false)

	fontFamily, utf8OK := initPDFUnicodeFont(pdf)

	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(0, 9, "Trusted Token Lists - Run Report", "", 1, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at: %s", fmtTime(generatedAt)), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "1. Run")
	kv(pdf, fontFamily, utf8OK, "Run ID", s.RunID)
	kv(pdf, fontFamily, utf8OK, "Started At", fmtTime(s.StartedAt))
	kv(pdf, fontFamily, utf8OK, "Finished At", fmtTime(s.FinishedAt))
	if s.FinishedAt >= s.StartedAt && s.StartedAt > 0 {
		kv(pdf, fontFamily, utf8OK, "Duration", (time.Duration(s.FinishedAt-s.StartedAt) * time.Second).String())
	}
	kv(pdf, fontFamily, utf8OK, "Min Providers", fmt.Sprintf("%d", s.MinProviders))
	kv(pdf, fontFamily, utf8OK, "Pricing IDs", fmt.Sprintf("%d", s.PricingEntries))
	kv(pdf, fontFamily, utf8OK, "Trusted", fmt.Sprintf("%d tokens on %d chains", s.TrustedTokens, len(s.TrustedChains)))
	if failed := s.FailedProviders(); len(failed) > 0 {
		kv(pdf, fontFamily, utf8OK, "Failed", strings.Join(failed, ", "))
	}
	pdf.Ln(2)

	var own []string
	if !utf8OK {
		own = append(own, FontWarning)
	}
	warnings := append(append([]string{}, s.Warnings...), own...)
	if len(warnings) > 0 {
		sectionTitle(pdf, fontFamily, "Warnings")
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(120, 80, 0)
		for _, w := range warnings {
			pdf.MultiCell(0, 4.5, "- "+safeText(w, utf8OK), "", "L", false)
		}
		pdf.Ln(2)
	}

	sectionTitle(pdf, fontFamily, "2. Providers")
	if len(s.Providers) == 0 {
		emptyLine(pdf, fontFamily)
	}
	for _, p := range s.Providers {
		status := "ok"
		if p.Error != "" {
			status = "failed"
		}
		pdf.SetFont(fontFamily, "B", 10)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 5, fmt.Sprintf("%s | %s | chains=%d | tokens=%d | %dms",
			safeText(p.Name, utf8OK), status, len(p.Chains), p.Tokens, p.ElapsedMS), "", "L", false)
		if p.Error != "" {
			pdf.SetFont(fontFamily, "", 9)
			pdf.SetTextColor(150, 30, 30)
			pdf.MultiCell(0, 4.5, "error: "+safeText(p.Error, utf8OK), "", "L", false)
		}
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "3. Trusted Chains")
	if len(s.TrustedChains) == 0 {
		emptyLine(pdf, fontFamily)
	} else {
		pdf.SetFont(fontFamily, "B", 9)
		pdf.SetTextColor(20, 20, 20)
		pdf.CellFormat(60, 5, "Chain", "B", 0, "L", false, 0, "")
		pdf.CellFormat(50, 5, "Chain ID", "B", 0, "L", false, 0, "")
		pdf.CellFormat(30, 5, "Tokens", "B", 1, "R", false, 0, "")
		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(40, 40, 40)
		for _, c := range s.TrustedChains {
			pdf.CellFormat(60, 4.8, safeText(firstNonEmpty(c.Name, string(c.Chain)), utf8OK), "", 0, "L", false, 0, "")
			pdf.CellFormat(50, 4.8, safeText(string(c.Chain), utf8OK), "", 0, "L", false, 0, "")
			pdf.CellFormat(30, 4.8, fmt.Sprintf("%d", c.Tokens), "", 1, "R", false, 0, "")
		}
	}
	pdf.Ln(2)

	sectionTitle(pdf, fontFamily, "4. Output Files")
	if len(s.Files) == 0 {
		emptyLine(pdf, fontFamily)
	}
	for _, f := range s.Files {
		pdf.SetFont(fontFamily, "B", 9)
		pdf.SetTextColor(20, 20, 20)
		pdf.MultiCell(0, 4.8, fmt.Sprintf("%s (%d tokens)", safeText(f.Path, utf8OK), f.Tokens), "", "L", false)
		pdf.SetFont(fontFamily, "", 8)
		pdf.SetTextColor(70, 70, 70)
		pdf.MultiCell(0, 4.2, "sha256: "+f.SHA256, "", "L", false)
	}

	return pdf, own
}

func emptyLine(pdf *gofpdf.Fpdf, fontFamily string) {
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.MultiCell(0, 5, "(empty)", "", "L", false)
}

func sectionTitle(pdf *gofpdf.Fpdf, fontFamily string, title string) {
	pdf.SetFont(fontFamily, "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 7, title, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pdf.GetX(), pdf.GetY(), 196, pdf.GetY())
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, fontFamily string, utf8OK bool, key string, value string) {
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(30, 30, 30)
	pdf.CellFormat(36, 5.2, key+":", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(20, 20, 20)
	pdf.MultiCell(0, 5.2, safeText(value, utf8OK), "", "L", false)
}

func fmtTime(ts int64) string {
	if ts <= 0 {
		return "-"
	}
	return time.Unix(ts, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

// safeText 在没有 UTF-8 字体时把非 ASCII 字符替换为 '?'，保证 PDF 总能生成。
func safeText(s string, utf8OK bool) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s)
	s = strings.TrimSpace(s)
	if utf8OK {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r >= 32 && r <= 126 {
			return r
		}
		return '?'
	}, s)
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

// initPDFUnicodeFont 依次尝试 FontEnv 和常见系统字体，都失败时回退到 Helvetica。
func initPDFUnicodeFont(pdf *gofpdf.Fpdf) (family string, utf8OK bool) {
	const familyName = "unicode"
	var candidates []string
	if v := strings.TrimSpace(os.Getenv(FontEnv)); v != "" {
		candidates = append(candidates, v)
	}
	switch runtime.GOOS {
	case "darwin":
		candidates = append(candidates,
			"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
			"/Library/Fonts/Arial Unicode.ttf",
		)
	case "windows":
		candidates = append(candidates,
			`C:\Windows\Fonts\arialuni.ttf`,
			`C:\Windows\Fonts\arial.ttf`,
		)
	default:
		candidates = append(candidates,
			"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/dejavu/DejaVuSans.ttf",
			"/usr/share/fonts/TTF/DejaVuSans.ttf",
		)
	}

	for _, p := range candidates {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		pdf.AddUTF8Font(familyName, "", p)
		if pdf.Err() {
			pdf.ClearError()
			continue
		}
		// 只有一个字体文件时也注册 B 样式，SetFont(..., "B", ...) 才不会报错。
		pdf.AddUTF8Font(familyName, "B", p)
		if pdf.Err() {
			pdf.ClearError()
		}
		return familyName, true
	}
	return "Helvetica", false
}
