package pgstore

import (
	"context"

	"github.com/BearBump/CourierHub/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Денежные и весовые значения читаются как text и разбираются shopspring/decimal без потери точности.

func (s *Storage) GetServicePrice(ctx context.Context, clientID int64, code string) (*models.ServicePrice, error) {
	var (
		sp    models.ServicePrice
		price string
	)
	err := s.db.QueryRow(ctx, `
SELECT id, client_id, code, base_price::text
FROM courier_services
WHERE client_id = $1 AND LOWER(code) = LOWER($2)
ORDER BY id
LIMIT 1
`, clientID, code).Scan(&sp.ID, &sp.ClientID, &sp.Code, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "service %s for client %d", code, clientID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select service price")
	}
	if sp.BasePrice, err = decimal.NewFromString(price); err != nil {
		return nil, errors.Wrap(err, "parse base price")
	}
	return &sp, nil
}

func (s *Storage) MatchingWeightSlabs(ctx context.Context, clientID int64, weight decimal.Decimal) ([]models.Slab, error) {
	return s.matchingSlabs(ctx, `
SELECT id, client_id, min_weight::text, max_weight::text, price::text
FROM courier_weight_slabs
WHERE client_id = $1 AND min_weight <= $2::text::numeric AND max_weight >= $2::text::numeric
`, clientID, weight)
}

func (s *Storage) MatchingDistanceSlabs(ctx context.Context, clientID int64, km decimal.Decimal) ([]models.Slab, error) {
	return s.matchingSlabs(ctx, `
SELECT id, client_id, min_km::text, max_km::text, price::text
FROM courier_distance_slabs
WHERE client_id = $1 AND min_km <= $2::text::numeric AND max_km >= $2::text::numeric
`, clientID, km)
}

func (s *Storage) matchingSlabs(ctx context.Context, q string, clientID int64, v decimal.Decimal) ([]models.Slab, error) {
	rows, err := s.db.Query(ctx, q, clientID, v.String())
	if err != nil {
		return nil, errors.Wrap(err, "select slabs")
	}
	defer rows.Close()

	var out []models.Slab
	for rows.Next() {
		var (
			sl            models.Slab
			mn, mx, price string
		)
		if err := rows.Scan(&sl.ID, &sl.ClientID, &mn, &mx, &price); err != nil {
			return nil, errors.Wrap(err, "scan slab")
		}
		if sl.Min, err = decimal.NewFromString(mn); err != nil {
			return nil, errors.Wrap(err, "parse slab min")
		}
		if sl.Max, err = decimal.NewFromString(mx); err != nil {
			return nil, errors.Wrap(err, "parse slab max")
		}
		if sl.Price, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrap(err, "parse slab price")
		}
		out = append(out, sl)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetSurcharge(ctx context.Context, clientID int64, loadType string) (*models.Surcharge, error) {
	var (
		sc    models.Surcharge
		price string
	)
	err := s.db.QueryRow(ctx, `
SELECT id, client_id, load_type, price::text
FROM courier_surcharges
WHERE client_id = $1 AND UPPER(load_type) = UPPER($2)
LIMIT 1
`, clientID, loadType).Scan(&sc.ID, &sc.ClientID, &sc.LoadType, &price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "surcharge %s for client %d", loadType, clientID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select surcharge")
	}
	if sc.Price, err = decimal.NewFromString(price); err != nil {
		return nil, errors.Wrap(err, "parse surcharge")
	}
	return &sc, nil
}

// ImportRates заменяет тарифы всех клиентов, упомянутых в cfg, одной транзакцией.
func (s *Storage) ImportRates(ctx context.Context, cfg models.RateConfig) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	clients := map[int64]struct{}{}
	for _, sp := range cfg.Services {
		clients[sp.ClientID] = struct{}{}
	}
	for _, sl := range cfg.WeightSlabs {
		clients[sl.ClientID] = struct{}{}
	}
	for _, sl := range cfg.DistanceSlabs {
		clients[sl.ClientID] = struct{}{}
	}
	for _, sc := range cfg.Surcharges {
		clients[sc.ClientID] = struct{}{}
	}

	for id := range clients {
		for _, table := range []string{"courier_services", "courier_weight_slabs", "courier_distance_slabs", "courier_surcharges"} {
			if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE client_id = $1`, id); err != nil {
				return errors.Wrapf(err, "clear %s", table)
			}
		}
	}

	for _, sp := range cfg.Services {
		if _, err := tx.Exec(ctx, `INSERT INTO courier_services (client_id, code, base_price) VALUES ($1, $2, $3::text::numeric)`,
			sp.ClientID, sp.Code, sp.BasePrice.String()); err != nil {
			return errors.Wrap(err, "insert service")
		}
	}
	for _, sl := range cfg.WeightSlabs {
		if _, err := tx.Exec(ctx, `INSERT INTO courier_weight_slabs (client_id, min_weight, max_weight, price) VALUES ($1, $2::text::numeric, $3::text::numeric, $4::text::numeric)`,
			sl.ClientID, sl.Min.String(), sl.Max.String(), sl.Price.String()); err != nil {
			return errors.Wrap(err, "insert weight slab")
		}
	}
	for _, sl := range cfg.DistanceSlabs {
		if _, err := tx.Exec(ctx, `INSERT INTO courier_distance_slabs (client_id, min_km, max_km, price) VALUES ($1, $2::text::numeric, $3::text::numeric, $4::text::numeric)`,
			sl.ClientID, sl.Min.String(), sl.Max.String(), sl.Price.String()); err != nil {
			return errors.Wrap(err, "insert distance slab")
		}
	}
	for _, sc := range cfg.Surcharges {
		if _, err := tx.Exec(ctx, `INSERT INTO courier_surcharges (client_id, load_type, price) VALUES ($1, $2, $3::text::numeric)`,
			sc.ClientID, sc.LoadType, sc.Price.String()); err != nil {
			return errors.Wrap(err, "insert surcharge")
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}
