package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/folio/portfolio-engine/internal/model"
)

//go:embed schema.sql
var schema string

const pgUniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Money is stored as BIGINT cents, quantities and percentages as NUMERIC.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) CreateAsset(ctx context.Context, a *model.Asset) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO assets (id, user_id, ticker, name, category, target_percentage,
		                     current_price, price_updated_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9)`,
		a.ID, a.UserID, a.Ticker, a.Name, a.Category, a.TargetPercentage.String(),
		a.CurrentPrice, a.PriceUpdatedAt, a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("%w: ticker %s", ErrDuplicate, a.Ticker)
		}
		return fmt.Errorf("create asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAsset(ctx context.Context, id string) (*model.Asset, error) {
	var a model.Asset
	var target string

	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, ticker, name, category, target_percentage::TEXT,
		        current_price, price_updated_at, created_at
		 FROM assets WHERE id = $1`, id).
		Scan(&a.ID, &a.UserID, &a.Ticker, &a.Name, &a.Category, &target,
			&a.CurrentPrice, &a.PriceUpdatedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}

	if a.TargetPercentage, err = decimal.NewFromString(target); err != nil {
		return nil, fmt.Errorf("parse target_percentage: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, userID string) ([]model.AssetPosition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.id, a.user_id, a.ticker, a.name, a.category, a.target_percentage::TEXT,
		        a.current_price, a.price_updated_at, a.created_at,
		        h.quantity::TEXT, h.updated_at
		 FROM assets a
		 LEFT JOIN holdings h ON h.asset_id = a.id
		 WHERE a.user_id = $1
		 ORDER BY a.ticker`, userID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	positions := make([]model.AssetPosition, 0)
	for rows.Next() {
		var p model.AssetPosition
		var target string
		var qty *string
		var updatedAt *time.Time

		if err := rows.Scan(&p.Asset.ID, &p.Asset.UserID, &p.Asset.Ticker, &p.Asset.Name,
			&p.Asset.Category, &target, &p.Asset.CurrentPrice, &p.Asset.PriceUpdatedAt,
			&p.Asset.CreatedAt, &qty, &updatedAt); err != nil {
			return nil, err
		}
		if p.Asset.TargetPercentage, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("parse target_percentage: %w", err)
		}
		if qty != nil {
			q, err := decimal.NewFromString(*qty)
			if err != nil {
				return nil, fmt.Errorf("parse quantity: %w", err)
			}
			p.Holding = &model.Holding{AssetID: p.Asset.ID, UserID: p.Asset.UserID, Quantity: q}
			if updatedAt != nil {
				p.Holding.UpdatedAt = *updatedAt
			}
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func (s *PostgresStore) UpdateAssetTarget(ctx context.Context, userID, id string, target decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE assets SET target_percentage = $3::NUMERIC WHERE id = $1 AND user_id = $2`,
		id, userID, target.String())
	if err != nil {
		return fmt.Errorf("update target %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAsset relies on ON DELETE CASCADE for holdings and transactions.
func (s *PostgresStore) DeleteAsset(ctx context.Context, userID, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM assets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete asset %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, userID, assetID string) ([]model.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, asset_id, type, date, quantity::TEXT,
		        price_cents, commission_cents, total_cents, created_at
		 FROM transactions
		 WHERE user_id = $1 AND ($2 = '' OR asset_id = $2)
		 ORDER BY date DESC, created_at DESC`, userID, assetID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (*model.PortfolioSnapshot, error) {
	var snap model.PortfolioSnapshot
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, day, total_value, created_at
		 FROM portfolio_snapshots WHERE id = $1`, id).
		Scan(&snap.ID, &snap.UserID, &snap.Date, &snap.TotalValueCents, &snap.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("snapshot %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}

	items, err := loadSnapshotAssets(ctx, s.pool, []string{snap.ID})
	if err != nil {
		return nil, err
	}
	snap.Assets = items[snap.ID]
	return &snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, userID string, from, to *time.Time) ([]model.PortfolioSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, day, total_value, created_at
		 FROM portfolio_snapshots
		 WHERE user_id = $1
		   AND ($2::DATE IS NULL OR day >= $2::DATE)
		   AND ($3::DATE IS NULL OR day <= $3::DATE)
		 ORDER BY day DESC`, userID, dayParam(from), dayParam(to))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]model.PortfolioSnapshot, 0)
	var ids []string
	for rows.Next() {
		var snap model.PortfolioSnapshot
		if err := rows.Scan(&snap.ID, &snap.UserID, &snap.Date, &snap.TotalValueCents, &snap.CreatedAt); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
		ids = append(ids, snap.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return snapshots, nil
	}

	items, err := loadSnapshotAssets(ctx, s.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range snapshots {
		snapshots[i].Assets = items[snapshots[i].ID]
	}
	return snapshots, nil
}

// WithTx runs fn in a READ COMMITTED transaction. Row locks taken by
// LockHolding serialize concurrent writers on the same asset.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) LockHolding(ctx context.Context, assetID string) (*model.Holding, error) {
	var userID string
	var qty *string
	var updatedAt *time.Time

	// Lock the asset row, not the holding row: a holding may not exist yet
	// and two first buys must still serialize.
	err := t.tx.QueryRow(ctx,
		`SELECT a.user_id, h.quantity::TEXT, h.updated_at
		 FROM assets a
		 LEFT JOIN holdings h ON h.asset_id = a.id
		 WHERE a.id = $1
		 FOR UPDATE OF a`, assetID).
		Scan(&userID, &qty, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
		}
		return nil, fmt.Errorf("lock holding %s: %w", assetID, err)
	}
	if qty == nil {
		return nil, nil
	}

	q, err := decimal.NewFromString(*qty)
	if err != nil {
		return nil, fmt.Errorf("parse quantity: %w", err)
	}
	h := &model.Holding{AssetID: assetID, UserID: userID, Quantity: q}
	if updatedAt != nil {
		h.UpdatedAt = *updatedAt
	}
	return h, nil
}

func (t *postgresTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, asset_id, type, date, quantity,
		                           price_cents, commission_cents, total_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8, $9, $10)`,
		tr.ID, tr.UserID, tr.AssetID, string(tr.Type), tr.Date, tr.Quantity.String(),
		tr.PriceCents, tr.CommissionCents, tr.TotalCents, tr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func (t *postgresTx) UpsertHolding(ctx context.Context, h *model.Holding) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO holdings (asset_id, user_id, quantity, updated_at)
		 VALUES ($1, $2, $3::NUMERIC, $4)
		 ON CONFLICT (asset_id) DO UPDATE
		 SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`,
		h.AssetID, h.UserID, h.Quantity.String(), h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert holding %s: %w", h.AssetID, err)
	}
	return nil
}

func (t *postgresTx) SetAssetPrice(ctx context.Context, userID, assetID string, priceCents int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE assets SET current_price = $3, price_updated_at = $4
		 WHERE id = $1 AND user_id = $2`,
		assetID, userID, priceCents, at)
	if err != nil {
		return fmt.Errorf("set price %s: %w", assetID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset %s: %w", assetID, ErrNotFound)
	}
	return nil
}

func (t *postgresTx) UpsertSnapshot(ctx context.Context, snap *model.PortfolioSnapshot) (bool, error) {
	var created bool
	err := t.tx.QueryRow(ctx,
		`INSERT INTO portfolio_snapshots (id, user_id, day, total_value, created_at)
		 VALUES ($1, $2, $3::DATE, $4, $5)
		 ON CONFLICT (user_id, day) DO UPDATE SET total_value = EXCLUDED.total_value
		 RETURNING id, created_at, (xmax = 0)`,
		snap.ID, snap.UserID, snap.Date.Format(time.DateOnly), snap.TotalValueCents, snap.CreatedAt).
		Scan(&snap.ID, &snap.CreatedAt, &created)
	if err != nil {
		return false, fmt.Errorf("upsert snapshot: %w", err)
	}
	return created, nil
}

func (t *postgresTx) ReplaceSnapshotAssets(ctx context.Context, snapshotID string, assets []model.SnapshotAsset) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM snapshot_assets WHERE snapshot_id = $1`, snapshotID); err != nil {
		return fmt.Errorf("delete snapshot assets: %w", err)
	}
	if len(assets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range assets {
		batch.Queue(
			`INSERT INTO snapshot_assets (id, snapshot_id, asset_id, ticker, name, category,
			                              quantity, price_cents, value_cents, percentage, target_percentage)
			 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8, $9, $10::NUMERIC, $11::NUMERIC)`,
			a.ID, snapshotID, a.AssetID, a.Ticker, a.Name, a.Category,
			a.Quantity.String(), a.PriceCents, a.ValueCents,
			a.Percentage.String(), a.TargetPercentage.String(),
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert snapshot assets: %w", err)
	}
	return nil
}

func loadSnapshotAssets(ctx context.Context, q querier, snapshotIDs []string) (map[string][]model.SnapshotAsset, error) {
	rows, err := q.Query(ctx,
		`SELECT id, snapshot_id, asset_id, ticker, name, category, quantity::TEXT,
		        price_cents, value_cents, percentage::TEXT, target_percentage::TEXT
		 FROM snapshot_assets
		 WHERE snapshot_id = ANY($1)
		 ORDER BY value_cents DESC, ticker`, snapshotIDs)
	if err != nil {
		return nil, fmt.Errorf("load snapshot assets: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]model.SnapshotAsset, len(snapshotIDs))
	for rows.Next() {
		var a model.SnapshotAsset
		var qty, pct, target string
		if err := rows.Scan(&a.ID, &a.SnapshotID, &a.AssetID, &a.Ticker, &a.Name, &a.Category,
			&qty, &a.PriceCents, &a.ValueCents, &pct, &target); err != nil {
			return nil, err
		}
		if a.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}
		if a.Percentage, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("parse percentage: %w", err)
		}
		if a.TargetPercentage, err = decimal.NewFromString(target); err != nil {
			return nil, fmt.Errorf("parse target_percentage: %w", err)
		}
		result[a.SnapshotID] = append(result[a.SnapshotID], a)
	}
	return result, rows.Err()
}

func scanTransactions(rows pgx.Rows) ([]model.Transaction, error) {
	transactions := make([]model.Transaction, 0)
	for rows.Next() {
		var tr model.Transaction
		var qty, typ string

		if err := rows.Scan(&tr.ID, &tr.UserID, &tr.AssetID, &typ, &tr.Date, &qty,
			&tr.PriceCents, &tr.CommissionCents, &tr.TotalCents, &tr.CreatedAt); err != nil {
			return nil, err
		}
		tr.Type = model.TransactionType(typ)

		q, err := decimal.NewFromString(qty)
		if err != nil {
			return nil, fmt.Errorf("parse quantity: %w", err)
		}
		tr.Quantity = q
		transactions = append(transactions, tr)
	}
	return transactions, rows.Err()
}

func dayParam(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.DateOnly)
	return &s
}
