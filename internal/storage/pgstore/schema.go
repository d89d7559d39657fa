package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

// initSchema идемпотентна. Требуется PostgreSQL 15+ (NULLS NOT DISTINCT).
func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS consignments (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  awb TEXT NOT NULL UNIQUE,
  client_id BIGINT NOT NULL,
  last_status TEXT NULL,
  origin TEXT NULL,
  destination TEXT NULL,
  booked_on DATE NULL,
  last_updated_on TIMESTAMPTZ NULL,
  providers TEXT[] NOT NULL DEFAULT '{}',
  last_checked_at TIMESTAMPTZ NULL,
  next_check_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  check_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_consignments_client_booked ON consignments(client_id, booked_on DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_consignments_next_check_at ON consignments(next_check_at)`,
		`
CREATE TABLE IF NOT EXISTS tracking_events (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  consignment_id UUID NOT NULL REFERENCES consignments(id) ON DELETE CASCADE,
  action TEXT NOT NULL DEFAULT '',
  action_date DATE NULL,
  action_time TIME NULL,
  origin TEXT NULL,
  destination TEXT NULL,
  remarks TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		// Одно событие на (накладная, действие, дата, время); NULL считается равным NULL.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_tracking_events_dedup
  ON tracking_events(consignment_id, action, action_date, action_time) NULLS NOT DISTINCT`,
		`
CREATE TABLE IF NOT EXISTS tracking_history (
  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  consignment_id UUID NOT NULL REFERENCES consignments(id) ON DELETE CASCADE,
  awb TEXT NOT NULL,
  old_status TEXT NULL,
  new_status TEXT NULL,
  changed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`CREATE INDEX IF NOT EXISTS idx_tracking_history_awb ON tracking_history(awb, changed_at)`,
		`
CREATE TABLE IF NOT EXISTS courier_services (
  id BIGSERIAL PRIMARY KEY,
  client_id BIGINT NOT NULL DEFAULT 0,
  code TEXT NOT NULL,
  base_price NUMERIC(12,2) NOT NULL,
  UNIQUE (client_id, code)
)`,
		`
CREATE TABLE IF NOT EXISTS courier_weight_slabs (
  id BIGSERIAL PRIMARY KEY,
  client_id BIGINT NOT NULL DEFAULT 0,
  min_weight NUMERIC(10,3) NOT NULL,
  max_weight NUMERIC(10,3) NOT NULL,
  price NUMERIC(12,2) NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_weight_slabs_client ON courier_weight_slabs(client_id)`,
		`
CREATE TABLE IF NOT EXISTS courier_distance_slabs (
  id BIGSERIAL PRIMARY KEY,
  client_id BIGINT NOT NULL DEFAULT 0,
  min_km NUMERIC(10,2) NOT NULL,
  max_km NUMERIC(10,2) NOT NULL,
  price NUMERIC(12,2) NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_distance_slabs_client ON courier_distance_slabs(client_id)`,
		`
CREATE TABLE IF NOT EXISTS courier_surcharges (
  id BIGSERIAL PRIMARY KEY,
  client_id BIGINT NOT NULL DEFAULT 0,
  load_type TEXT NOT NULL,
  price NUMERIC(12,2) NOT NULL,
  UNIQUE (client_id, load_type)
)`,
		`
CREATE TABLE IF NOT EXISTS provider_credentials (
  client_id BIGINT NOT NULL,
  provider TEXT NOT NULL,
  env_key TEXT NOT NULL,
  sealed_value TEXT NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (client_id, provider, env_key)
)`,
		`
CREATE TABLE IF NOT EXISTS pincodes (
  pincode TEXT PRIMARY KEY,
  office TEXT NOT NULL DEFAULT '',
  district TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT ''
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
