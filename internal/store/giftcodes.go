package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MrBns/wos-ally-manager/internal/domain"
)

// CreateGiftcode stores a new code. A code that already exists yields
// ErrConflict. ID and CreatedAt are filled when empty.
func (r *SQLiteRepo) CreateGiftcode(ctx context.Context, g *domain.Giftcode) error {
	if g == nil {
		return errors.New("nil gift code")
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = nowUTC()
	}
	var expires sql.NullInt64
	if g.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: g.ExpiresAt.UTC().Unix(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO giftcodes (id, code, added_by, expires_at, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Code, g.AddedBy, expires, boolToInt(g.IsActive), g.CreatedAt.UTC().Unix(),
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

const giftcodeColumns = `id, code, added_by, expires_at, is_active, created_at`

func scanGiftcode(row interface{ Scan(...any) error }) (*domain.Giftcode, error) {
	var (
		g         domain.Giftcode
		expires   sql.NullInt64
		active    int
		createdAt int64
	)
	if err := row.Scan(&g.ID, &g.Code, &g.AddedBy, &expires, &active, &createdAt); err != nil {
		return nil, err
	}
	if expires.Valid {
		t := unixUTC(expires.Int64)
		g.ExpiresAt = &t
	}
	g.IsActive = active != 0
	g.CreatedAt = unixUTC(createdAt)
	return &g, nil
}

// GetGiftcode returns a code by id or ErrNotFound.
func (r *SQLiteRepo) GetGiftcode(ctx context.Context, id string) (*domain.Giftcode, error) {
	g, err := scanGiftcode(r.db.QueryRowContext(ctx,
		`SELECT `+giftcodeColumns+` FROM giftcodes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

// ListGiftcodes returns every code, oldest first.
func (r *SQLiteRepo) ListGiftcodes(ctx context.Context) ([]domain.Giftcode, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+giftcodeColumns+` FROM giftcodes ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Giftcode
	for rows.Next() {
		g, err := scanGiftcode(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *g)
	}
	return res, rows.Err()
}

// SetGiftcodeActive toggles a code; ErrNotFound if it does not exist.
func (r *SQLiteRepo) SetGiftcodeActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE giftcodes SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// InsertRedemption records one claim attempt. ID and RedeemedAt are filled
// when empty.
func (r *SQLiteRepo) InsertRedemption(ctx context.Context, red *domain.Redemption) error {
	if red == nil {
		return errors.New("nil redemption")
	}
	if red.ID == "" {
		red.ID = uuid.NewString()
	}
	if red.RedeemedAt.IsZero() {
		red.RedeemedAt = nowUTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO giftcode_redemptions (id, giftcode_id, user_id, status, redeemed_at)
		VALUES (?, ?, ?, ?, ?)`,
		red.ID, red.GiftcodeID, red.UserID, string(red.Status), red.RedeemedAt.UTC().Unix(),
	)
	return err
}

// ListRedemptions returns the claim attempts of a code in the order they ran.
func (r *SQLiteRepo) ListRedemptions(ctx context.Context, giftcodeID string) ([]domain.Redemption, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, giftcode_id, user_id, status, redeemed_at
		FROM giftcode_redemptions
		WHERE giftcode_id = ?
		ORDER BY redeemed_at, rowid`, giftcodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Redemption
	for rows.Next() {
		var (
			red        domain.Redemption
			status     string
			redeemedAt int64
		)
		if err := rows.Scan(&red.ID, &red.GiftcodeID, &red.UserID, &status, &redeemedAt); err != nil {
			return nil, err
		}
		red.Status = domain.RedemptionStatus(status)
		red.RedeemedAt = unixUTC(redeemedAt)
		res = append(res, red)
	}
	return res, rows.Err()
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
