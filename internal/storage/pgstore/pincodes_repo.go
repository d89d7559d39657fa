package pgstore

import (
	"context"

	"github.com/BearBump/CourierHub/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) GetPincode(ctx context.Context, pincode string) (*models.Pincode, error) {
	var p models.Pincode
	err := s.db.QueryRow(ctx, `SELECT pincode, office, district, state FROM pincodes WHERE pincode = $1`, pincode).
		Scan(&p.Pincode, &p.Office, &p.District, &p.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "pincode %s", pincode)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select pincode")
	}
	return &p, nil
}

func (s *Storage) SearchPincodes(ctx context.Context, prefix string, limit int) ([]models.Pincode, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
SELECT pincode, office, district, state
FROM pincodes
WHERE pincode LIKE $1 || '%' ESCAPE '\'
ORDER BY pincode
LIMIT $2
`, escapeLike(prefix), limit)
	if err != nil {
		return nil, errors.Wrap(err, "search pincodes")
	}
	defer rows.Close()

	out := []models.Pincode{}
	for rows.Next() {
		var p models.Pincode
		if err := rows.Scan(&p.Pincode, &p.Office, &p.District, &p.State); err != nil {
			return nil, errors.Wrap(err, "scan pincode")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// UpsertPincodes загружает справочник пачкой (одна транзакция).
func (s *Storage) UpsertPincodes(ctx context.Context, items []models.Pincode) error {
	if len(items) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range items {
		batch.Queue(`
INSERT INTO pincodes (pincode, office, district, state)
VALUES ($1, $2, $3, $4)
ON CONFLICT (pincode) DO UPDATE SET office = EXCLUDED.office, district = EXCLUDED.district, state = EXCLUDED.state
`, p.Pincode, p.Office, p.District, p.State)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return errors.Wrap(err, "upsert pincodes")
	}
	return errors.Wrap(tx.Commit(ctx), "commit tx")
}
