package pgstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/CourierHub/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const consignmentColumns = `
  id, awb, client_id,
  last_status, origin, destination,
  booked_on::text, last_updated_on, providers,
  last_checked_at, next_check_at, check_fail_count, last_error,
  created_at, updated_at`

func scanConsignment(row pgx.Row) (*models.Consignment, error) {
	var c models.Consignment
	if err := row.Scan(
		&c.ID, &c.AWB, &c.ClientID,
		&c.LastStatus, &c.Origin, &c.Destination,
		&c.BookedOn, &c.LastUpdatedOn, &c.Providers,
		&c.LastCheckedAt, &c.NextCheckAt, &c.CheckFailCount, &c.LastError,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if c.Providers == nil {
		c.Providers = []string{}
	}
	return &c, nil
}

func scanConsignments(rows pgx.Rows) ([]*models.Consignment, error) {
	defer rows.Close()

	out := []*models.Consignment{}
	for rows.Next() {
		c, err := scanConsignment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan consignment")
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) GetConsignmentStatus(ctx context.Context, awb string) (*string, bool, error) {
	var status *string
	err := s.db.QueryRow(ctx, `SELECT last_status FROM consignments WHERE awb = $1`, awb).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "select consignment status")
	}
	return status, true, nil
}

// UpsertConsignment создаёт накладную или обновляет её: NULL во входных данных не затирает
// сохранённое значение, провайдер добавляется в множество providers.
func (s *Storage) UpsertConsignment(ctx context.Context, in models.ConsignmentUpsert) (*models.Consignment, error) {
	row := s.db.QueryRow(ctx, `
INSERT INTO consignments (
  awb, client_id, last_status, origin, destination, booked_on, last_updated_on, providers
)
VALUES (
  $1, $2, $3, $4, $5, $6::text::date, $7,
  CASE WHEN $8::text = '' THEN '{}'::text[] ELSE ARRAY[$8::text] END
)
ON CONFLICT (awb) DO UPDATE SET
  client_id       = EXCLUDED.client_id,
  last_status     = COALESCE(EXCLUDED.last_status, consignments.last_status),
  origin          = COALESCE(EXCLUDED.origin, consignments.origin),
  destination     = COALESCE(EXCLUDED.destination, consignments.destination),
  booked_on       = COALESCE(EXCLUDED.booked_on, consignments.booked_on),
  last_updated_on = COALESCE(EXCLUDED.last_updated_on, consignments.last_updated_on),
  providers       = CASE
                      WHEN $8::text = '' OR $8::text = ANY(consignments.providers) THEN consignments.providers
                      ELSE array_append(consignments.providers, $8::text)
                    END,
  updated_at      = now()
RETURNING`+consignmentColumns,
		in.AWB, in.ClientID, in.Status, in.Origin, in.Destination, in.BookedOn, in.LastUpdatedOn, in.Provider)

	c, err := scanConsignment(row)
	if err != nil {
		return nil, errors.Wrap(err, "upsert consignment")
	}
	return c, nil
}

func (s *Storage) GetConsignment(ctx context.Context, awb string) (*models.Consignment, error) {
	c, err := scanConsignment(s.db.QueryRow(ctx, `SELECT`+consignmentColumns+` FROM consignments WHERE awb = $1`, awb))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "consignment %s", awb)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select consignment")
	}
	return c, nil
}

// ListConsignments возвращает страницу накладных клиента (новые по booked_on сверху) и общее число строк.
func (s *Storage) ListConsignments(ctx context.Context, f models.ConsignmentFilter) ([]*models.Consignment, int, error) {
	where, args := consignmentWhere(f)

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM consignments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "count consignments")
	}

	q := `SELECT` + consignmentColumns + ` FROM consignments WHERE ` + where +
		` ORDER BY booked_on DESC NULLS LAST, awb`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "select consignments")
	}
	out, err := scanConsignments(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike экранирует метасимволы LIKE; в запросе нужен ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func consignmentWhere(f models.ConsignmentFilter) (string, []any) {
	args := []any{f.ClientID}
	conds := []string{"client_id = $1"}

	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		conds = append(conds, "awb ILIKE $"+strconv.Itoa(len(args))+` ESCAPE '\'`)
	}

	switch strings.ToLower(f.StatusGroup) {
	case models.StatusGroupDelivered:
		conds = append(conds, "LOWER(last_status) LIKE '%deliver%'")
	case models.StatusGroupRTO:
		conds = append(conds, "LOWER(last_status) LIKE '%rto%'")
	case models.StatusGroupPending:
		conds = append(conds, "LOWER(COALESCE(last_status, '')) NOT LIKE '%deliver%' AND LOWER(COALESCE(last_status, '')) NOT LIKE '%rto%'")
	case models.StatusGroupInTransit:
		conds = append(conds, "LOWER(last_status) LIKE '%transit%'")
	case models.StatusGroupOutForDelivery:
		conds = append(conds, "LOWER(last_status) LIKE '%out for delivery%'")
	case models.StatusGroupAttempted:
		conds = append(conds, "LOWER(last_status) LIKE '%attempt%'")
	case models.StatusGroupHeld:
		conds = append(conds, "LOWER(last_status) LIKE '%held%'")
	}

	if f.From != "" {
		args = append(args, f.From)
		conds = append(conds, "booked_on >= $"+strconv.Itoa(len(args))+"::text::date")
	}
	if f.To != "" {
		args = append(args, f.To)
		conds = append(conds, "booked_on <= $"+strconv.Itoa(len(args))+"::text::date")
	}
	return strings.Join(conds, " AND "), args
}

// ClaimDueConsignments выбирает пачку накладных, готовых к проверке, и "бронирует" их,
// чтобы они не попадали в повторную выборку, пока воркер их обрабатывает.
// Использует SELECT ... FOR UPDATE SKIP LOCKED.
func (s *Storage) ClaimDueConsignments(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.Consignment, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT`+consignmentColumns+`
FROM consignments
WHERE next_check_at <= $1
  AND cardinality(providers) > 0
ORDER BY next_check_at ASC
LIMIT $2
FOR UPDATE SKIP LOCKED
`, now.UTC(), limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due consignments")
	}
	picked, err := scanConsignments(rows)
	if err != nil {
		return nil, err
	}

	leaseUntil := now.UTC().Add(lease)
	for _, c := range picked {
		if _, err := tx.Exec(ctx, `UPDATE consignments SET next_check_at = $2, updated_at = now() WHERE id = $1`, c.ID, leaseUntil); err != nil {
			return nil, errors.Wrap(err, "lease consignment")
		}
		c.NextCheckAt = leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}
	return picked, nil
}

// ScheduleUpdate: итог одной проверки воркером.
type ScheduleUpdate struct {
	AWB         string
	CheckedAt   time.Time
	NextCheckAt time.Time
	Error       *string
}

func (s *Storage) ApplySchedule(ctx context.Context, upd ScheduleUpdate) error {
	if upd.Error != nil && *upd.Error != "" {
		_, err := s.db.Exec(ctx, `
UPDATE consignments
SET
  last_checked_at = $2,
  check_fail_count = check_fail_count + 1,
  last_error = $3,
  next_check_at = $4,
  updated_at = now()
WHERE awb = $1
`, upd.AWB, upd.CheckedAt.UTC(), *upd.Error, upd.NextCheckAt.UTC())
		return errors.Wrap(err, "update schedule (error)")
	}

	_, err := s.db.Exec(ctx, `
UPDATE consignments
SET
  last_checked_at = $2,
  check_fail_count = 0,
  last_error = NULL,
  next_check_at = $3,
  updated_at = now()
WHERE awb = $1
`, upd.AWB, upd.CheckedAt.UTC(), upd.NextCheckAt.UTC())
	return errors.Wrap(err, "update schedule (ok)")
}

// RefreshConsignment ставит накладную в начало очереди воркера.
func (s *Storage) RefreshConsignment(ctx context.Context, awb string) error {
	tag, err := s.db.Exec(ctx, `UPDATE consignments SET next_check_at = now(), updated_at = now() WHERE awb = $1`, awb)
	if err != nil {
		return errors.Wrap(err, "refresh consignment")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(models.ErrNotFound, "consignment %s", awb)
	}
	return nil
}
