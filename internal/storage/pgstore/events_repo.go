package pgstore

import (
	"context"

	"github.com/BearBump/CourierHub/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// InsertEventIfAbsent полагается на уникальный индекс uq_tracking_events_dedup.
func (s *Storage) InsertEventIfAbsent(ctx context.Context, ev *models.TrackingEvent) (bool, error) {
	tag, err := s.db.Exec(ctx, `
INSERT INTO tracking_events (
  consignment_id, action, action_date, action_time, origin, destination, remarks
)
VALUES ($1, $2, $3::text::date, $4::text::time, $5, $6, $7)
ON CONFLICT DO NOTHING
`, ev.ConsignmentID, ev.Action, ev.ActionDate, ev.ActionTime, ev.Origin, ev.Destination, ev.Remarks)
	if err != nil {
		return false, errors.Wrap(err, "insert tracking event")
	}
	return tag.RowsAffected() == 1, nil
}

// ListEvents returns the timeline of a consignment, newest first.
func (s *Storage) ListEvents(ctx context.Context, consignmentID uuid.UUID) ([]*models.TrackingEvent, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  id, consignment_id, action,
  action_date::text, action_time::text,
  origin, destination, remarks, created_at
FROM tracking_events
WHERE consignment_id = $1
ORDER BY action_date DESC NULLS LAST, action_time DESC NULLS LAST, created_at DESC
`, consignmentID)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	return scanEvents(rows)
}

// ListEventsFor загружает таймлайны сразу для нескольких накладных (для списка).
func (s *Storage) ListEventsFor(ctx context.Context, consignmentIDs []uuid.UUID) (map[uuid.UUID][]*models.TrackingEvent, error) {
	out := make(map[uuid.UUID][]*models.TrackingEvent, len(consignmentIDs))
	if len(consignmentIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT
  id, consignment_id, action,
  action_date::text, action_time::text,
  origin, destination, remarks, created_at
FROM tracking_events
WHERE consignment_id = ANY($1)
ORDER BY consignment_id, action_date DESC NULLS LAST, action_time DESC NULLS LAST, created_at DESC
`, consignmentIDs)
	if err != nil {
		return nil, errors.Wrap(err, "select events")
	}
	evs, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for _, e := range evs {
		out[e.ConsignmentID] = append(out[e.ConsignmentID], e)
	}
	return out, nil
}

func scanEvents(rows pgx.Rows) ([]*models.TrackingEvent, error) {
	defer rows.Close()

	out := []*models.TrackingEvent{}
	for rows.Next() {
		var e models.TrackingEvent
		if err := rows.Scan(
			&e.ID, &e.ConsignmentID, &e.Action,
			&e.ActionDate, &e.ActionTime,
			&e.Origin, &e.Destination, &e.Remarks, &e.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		out = append(out, &e)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) AppendStatusHistory(ctx context.Context, h *models.StatusHistory) error {
	err := s.db.QueryRow(ctx, `
INSERT INTO tracking_history (consignment_id, awb, old_status, new_status, changed_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`, h.ConsignmentID, h.AWB, h.OldStatus, h.NewStatus, h.ChangedAt.UTC()).Scan(&h.ID)
	return errors.Wrap(err, "insert status history")
}

func (s *Storage) ListStatusHistory(ctx context.Context, awb string) ([]*models.StatusHistory, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, consignment_id, awb, old_status, new_status, changed_at
FROM tracking_history
WHERE awb = $1
ORDER BY changed_at ASC, id
`, awb)
	if err != nil {
		return nil, errors.Wrap(err, "select status history")
	}
	defer rows.Close()

	out := []*models.StatusHistory{}
	for rows.Next() {
		var h models.StatusHistory
		if err := rows.Scan(&h.ID, &h.ConsignmentID, &h.AWB, &h.OldStatus, &h.NewStatus, &h.ChangedAt); err != nil {
			return nil, errors.Wrap(err, "scan status history")
		}
		out = append(out, &h)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
