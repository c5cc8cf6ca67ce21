package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"token-aggregator/internal/domain/model"

	_ "modernc.org/sqlite"
)

// Open 打开（必要时创建）快照库并执行迁移。
func Open(ctx context.Context, dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// 单连接 + busy_timeout，避免 "database is locked"。
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := NewMigrator(db).Up(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Store 封装快照表的读写。
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// RunMeta 是 run_meta 表的一行。
type RunMeta struct {
	RunID          string
	StartedAt      int64
	FinishedAt     int64
	MinProviders   int
	PricingEntries int
	TrustedChains  int
	TrustedTokens  int
	Summary        model.RunSummary
}

// ReplaceSnapshot 在一个事务里清空三张快照表并写入本次运行的结果。
func (s *Store) ReplaceSnapshot(ctx context.Context, summary model.RunSummary, trusted model.Merged) (err error) {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx replace snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"trusted_tokens", "provider_fetches", "run_meta"} {
		if _, err = tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO run_meta(
			run_id, started_at, finished_at, min_providers, pricing_entries,
			trusted_chains, trusted_tokens, summary_json
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`,
		summary.RunID,
		summary.StartedAt,
		summary.FinishedAt,
		summary.MinProviders,
		summary.PricingEntries,
		len(summary.TrustedChains),
		summary.TrustedTokens,
		string(summaryJSON),
	); err != nil {
		return fmt.Errorf("insert run_meta: %w", err)
	}

	if err = insertProviderFetches(ctx, tx, summary.Providers); err != nil {
		return err
	}
	if err = insertTrustedTokens(ctx, tx, trusted); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func insertProviderFetches(ctx context.Context, tx *sql.Tx, providers []model.ProviderSummary) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO provider_fetches(
			provider, position, chain_id, slug, token_count, dropped_count, error, elapsed_ms
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert provider_fetches: %w", err)
	}
	defer stmt.Close()

	for i, p := range providers {
		// 失败的 provider 只写一行，chain_id 为空。
		if p.Error != "" || len(p.Chains) == 0 {
			if _, err := stmt.ExecContext(ctx, p.Name, i, "", "", 0, 0, p.Error, p.ElapsedMS); err != nil {
				return fmt.Errorf("insert provider fetch %s: %w", p.Name, err)
			}
			continue
		}
		for _, c := range p.Chains {
			if _, err := stmt.ExecContext(ctx,
				p.Name, i, string(c.Chain), c.Slug, c.Tokens, c.Dropped, "", p.ElapsedMS,
			); err != nil {
				return fmt.Errorf("insert provider fetch %s/%s: %w", p.Name, c.Chain, err)
			}
		}
	}
	return nil
}

func insertTrustedTokens(ctx context.Context, tx *sql.Tx, trusted model.Merged) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trusted_tokens(
			chain_id, address, symbol, name, decimals, token_chain_id,
			logo_uri, coingecko_id, listed_in, provider_count
		)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert trusted_tokens: %w", err)
	}
	defer stmt.Close()

	for _, chain := range trusted.ChainIDs() {
		for _, t := range trusted.Tokens(chain) {
			addr := model.NormalizeAddress(t.Address)
			listedIn, err := json.Marshal(t.ListedIn)
			if err != nil {
				return fmt.Errorf("marshal listed_in: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				string(chain),
				string(addr),
				t.Symbol,
				t.Name,
				nullableInt(t.Decimals),
				t.ChainID,
				t.LogoURI,
				t.CoingeckoID,
				string(listedIn),
				len(t.ListedIn),
			); err != nil {
				return fmt.Errorf("insert trusted token %s/%s: %w", chain, addr, err)
			}
		}
	}
	return nil
}

// GetRunMeta 返回当前快照对应的运行；库为空时返回 nil。
func (s *Store) GetRunMeta(ctx context.Context) (*RunMeta, error) {
	var (
		m           RunMeta
		summaryJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, started_at, finished_at, min_providers, pricing_entries,
			trusted_chains, trusted_tokens, summary_json
		FROM run_meta
		LIMIT 1
	`).Scan(
		&m.RunID, &m.StartedAt, &m.FinishedAt, &m.MinProviders, &m.PricingEntries,
		&m.TrustedChains, &m.TrustedTokens, &summaryJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query run_meta: %w", err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &m.Summary); err != nil {
		return nil, fmt.Errorf("decode run summary: %w", err)
	}
	return &m, nil
}

// ListTrustedTokens 按地址排序返回某条链的可信代币；chain 为空时返回全部。
func (s *Store) ListTrustedTokens(ctx context.Context, chain model.ChainID) ([]model.Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chain_id, address, symbol, name, decimals, token_chain_id,
			logo_uri, coingecko_id, listed_in
		FROM trusted_tokens
		WHERE ? = '' OR chain_id = ?
		ORDER BY chain_id ASC, address ASC
	`, string(chain), string(chain))
	if err != nil {
		return nil, fmt.Errorf("query trusted_tokens: %w", err)
	}
	defer rows.Close()

	var out []model.Token
	for rows.Next() {
		var (
			t        model.Token
			chainID  string
			decimals sql.NullInt64
			listedIn string
		)
		if err := rows.Scan(&chainID, &t.Address, &t.Symbol, &t.Name, &decimals, &t.ChainID,
			&t.LogoURI, &t.CoingeckoID, &listedIn); err != nil {
			return nil, fmt.Errorf("scan trusted_tokens: %w", err)
		}
		if decimals.Valid {
			t.Decimals = model.DecimalsOf(int(decimals.Int64))
		}
		if err := json.Unmarshal([]byte(listedIn), &t.ListedIn); err != nil {
			return nil, fmt.Errorf("decode listed_in %s/%s: %w", chainID, t.Address, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountProviderFetches 返回 provider_fetches 的行数。
func (s *Store) CountProviderFetches(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM provider_fetches`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count provider_fetches: %w", err)
	}
	return n, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// SaveSnapshot 打开 dbPath 并覆盖写入快照。
func SaveSnapshot(ctx context.Context, dbPath string, summary model.RunSummary, trusted model.Merged) error {
	db, err := Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	return NewStore(db).ReplaceSnapshot(ctx, summary, trusted)
}
