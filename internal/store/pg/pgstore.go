// Package pg is the durable Repository implementation. One sql.Tx backs each
// atomic unit, so a workflow record write, the asset compare-and-set and the
// audit insert commit together or roll back together.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"toolvault.org/internal/asset"
	"toolvault.org/internal/audit"
	"toolvault.org/internal/lifecycle"
)

type Store struct {
	db *sql.DB
}

var _ lifecycle.Repository = (*Store)(nil)

// Open connects with tuned pool defaults; adjust under load tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection. Used by tests and cmd wiring.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const assetColumns = `id, code, name, description, location, status, version, created_at, updated_at`

func scanAsset(row interface{ Scan(...any) error }) (asset.Asset, error) {
	var a asset.Asset
	var status string
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.Location, &status, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return asset.Asset{}, asset.ErrNotFound
	}
	if err != nil {
		return asset.Asset{}, err
	}
	a.Status = asset.Status(status)
	return a, nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (asset.Asset, error) {
	row := s.db.QueryRowContext(ctx, `select `+assetColumns+` from assets where id=$1`, id)
	return scanAsset(row)
}

func (s *Store) ListAssets(ctx context.Context) ([]asset.Asset, error) {
	rows, err := s.db.QueryContext(ctx, `select `+assetColumns+` from assets order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []asset.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const movementColumns = `id, type, asset_id, status, responsible, notes, cancel_reason, created_by, approved_by, completed_by, cancelled_by, created_at, updated_at`

func scanMovement(row interface{ Scan(...any) error }) (lifecycle.Movement, error) {
	var m lifecycle.Movement
	var typ, status string
	err := row.Scan(&m.ID, &typ, &m.AssetID, &status, &m.Responsible, &m.Notes, &m.CancelReason,
		&m.CreatedBy, &m.ApprovedBy, &m.CompletedBy, &m.CancelledBy, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.Movement{}, asset.ErrNotFound
	}
	if err != nil {
		return lifecycle.Movement{}, err
	}
	m.Type = lifecycle.MovementType(typ)
	m.Status = lifecycle.MovementStatus(status)
	return m, nil
}

func (s *Store) GetMovement(ctx context.Context, id string) (lifecycle.Movement, error) {
	row := s.db.QueryRowContext(ctx, `select `+movementColumns+` from movements where id=$1`, id)
	return scanMovement(row)
}

func (s *Store) OpenMovementsForAsset(ctx context.Context, assetID string) ([]lifecycle.Movement, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+movementColumns+` from movements
		where asset_id=$1 and status in ('pending','approved')
		order by id
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lifecycle.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const calibrationColumns = `id, asset_id, status, provider, send_date, estimated_return_date, return_date, result, next_calibration_date, certificate, created_by, created_at, updated_at`

func scanCalibration(row interface{ Scan(...any) error }) (lifecycle.CalibrationRecord, error) {
	var c lifecycle.CalibrationRecord
	var status, result string
	var returnDate, nextDate sql.NullTime
	err := row.Scan(&c.ID, &c.AssetID, &status, &c.Provider, &c.SendDate, &c.EstimatedReturnDate,
		&returnDate, &result, &nextDate, &c.Certificate, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.CalibrationRecord{}, asset.ErrNotFound
	}
	if err != nil {
		return lifecycle.CalibrationRecord{}, err
	}
	c.Status = lifecycle.CalibrationStatus(status)
	c.Result = lifecycle.CalibrationResult(result)
	if returnDate.Valid {
		t := returnDate.Time
		c.ReturnDate = &t
	}
	if nextDate.Valid {
		t := nextDate.Time
		c.NextCalibrationDate = &t
	}
	return c, nil
}

func (s *Store) GetCalibration(ctx context.Context, id string) (lifecycle.CalibrationRecord, error) {
	row := s.db.QueryRowContext(ctx, `select `+calibrationColumns+` from calibrations where id=$1`, id)
	return scanCalibration(row)
}

func (s *Store) OpenCalibrationForAsset(ctx context.Context, assetID string) (lifecycle.CalibrationRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+calibrationColumns+` from calibrations
		where asset_id=$1 and status in ('sent','in_process')
		limit 1
	`, assetID)
	c, err := scanCalibration(row)
	if errors.Is(err, asset.ErrNotFound) {
		return lifecycle.CalibrationRecord{}, false, nil
	}
	if err != nil {
		return lifecycle.CalibrationRecord{}, false, err
	}
	return c, true, nil
}

func (s *Store) LatestCompletedCalibrations(ctx context.Context) ([]lifecycle.CalibrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct on (asset_id) `+calibrationColumns+`
		from calibrations
		where status='completed' and return_date is not null
		order by asset_id, return_date desc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lifecycle.CalibrationRecord
	for rows.Next() {
		c, err := scanCalibration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const quarantineColumns = `id, asset_id, status, reason, prior_status, entry_date, release_date, created_by, resolved_by, created_at, updated_at`

func scanQuarantine(row interface{ Scan(...any) error }) (lifecycle.QuarantineRecord, error) {
	var q lifecycle.QuarantineRecord
	var status, prior string
	var release sql.NullTime
	err := row.Scan(&q.ID, &q.AssetID, &status, &q.Reason, &prior, &q.EntryDate, &release,
		&q.CreatedBy, &q.ResolvedBy, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.QuarantineRecord{}, asset.ErrNotFound
	}
	if err != nil {
		return lifecycle.QuarantineRecord{}, err
	}
	q.Status = lifecycle.QuarantineStatus(status)
	q.PriorStatus = asset.Status(prior)
	if release.Valid {
		t := release.Time
		q.ReleaseDate = &t
	}
	return q, nil
}

func (s *Store) GetQuarantine(ctx context.Context, id string) (lifecycle.QuarantineRecord, error) {
	row := s.db.QueryRowContext(ctx, `select `+quarantineColumns+` from quarantines where id=$1`, id)
	return scanQuarantine(row)
}

func (s *Store) UnresolvedQuarantineForAsset(ctx context.Context, assetID string) (lifecycle.QuarantineRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+quarantineColumns+` from quarantines
		where asset_id=$1 and status in ('active','escalated')
		limit 1
	`, assetID)
	q, err := scanQuarantine(row)
	if errors.Is(err, asset.ErrNotFound) {
		return lifecycle.QuarantineRecord{}, false, nil
	}
	if err != nil {
		return lifecycle.QuarantineRecord{}, false, err
	}
	return q, true, nil
}

const decommissionColumns = `id, asset_id, status, reason, requested_by, approved_by, completed_by, created_at, updated_at`

func scanDecommission(row interface{ Scan(...any) error }) (lifecycle.DecommissionRequest, error) {
	var d lifecycle.DecommissionRequest
	var status string
	err := row.Scan(&d.ID, &d.AssetID, &status, &d.Reason, &d.RequestedBy, &d.ApprovedBy, &d.CompletedBy, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lifecycle.DecommissionRequest{}, asset.ErrNotFound
	}
	if err != nil {
		return lifecycle.DecommissionRequest{}, err
	}
	d.Status = lifecycle.DecommissionStatus(status)
	return d, nil
}

func (s *Store) GetDecommission(ctx context.Context, id string) (lifecycle.DecommissionRequest, error) {
	row := s.db.QueryRowContext(ctx, `select `+decommissionColumns+` from decommissions where id=$1`, id)
	return scanDecommission(row)
}

func (s *Store) OpenDecommissionForAsset(ctx context.Context, assetID string) (lifecycle.DecommissionRequest, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+decommissionColumns+` from decommissions
		where asset_id=$1 and status in ('pending','approved')
		limit 1
	`, assetID)
	d, err := scanDecommission(row)
	if errors.Is(err, asset.ErrNotFound) {
		return lifecycle.DecommissionRequest{}, false, nil
	}
	if err != nil {
		return lifecycle.DecommissionRequest{}, false, err
	}
	return d, true, nil
}

func (s *Store) AuditTrail(ctx context.Context, assetID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, ts, actor, action, entity_type, entity_id, asset_id, previous_value, new_value
		from audit_trail where asset_id=$1 order by id
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Actor, &e.Action, &e.EntityType, &e.EntityID,
			&e.AssetID, &e.PreviousValue, &e.NewValue); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Atomic runs fn inside one database transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx lifecycle.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

var _ lifecycle.Tx = (*pgTx)(nil)

func (t *pgTx) RegisterAsset(a asset.Asset) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into assets (`+assetColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.ID, a.Code, a.Name, a.Description, a.Location, string(a.Status), a.Version, a.CreatedAt, a.UpdatedAt)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
		return asset.ErrCodeTaken
	}
	return err
}

func (t *pgTx) CompareAndSetStatus(assetID string, expectedVersion uint64, newStatus asset.Status) error {
	var status string
	err := t.tx.QueryRowContext(t.ctx, `select status from assets where id=$1 for update`, assetID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return asset.ErrNotFound
	}
	if err != nil {
		return err
	}
	if asset.Status(status).Terminal() {
		return asset.ErrRetired
	}

	res, err := t.tx.ExecContext(t.ctx, `
		update assets set status=$2, version=version+1, updated_at=now()
		where id=$1 and version=$3
	`, assetID, string(newStatus), expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return asset.ErrVersionConflict
	}
	return nil
}

func (t *pgTx) PutMovement(m lifecycle.Movement) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into movements (`+movementColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		on conflict (id) do update set
			status=excluded.status,
			cancel_reason=excluded.cancel_reason,
			approved_by=excluded.approved_by,
			completed_by=excluded.completed_by,
			cancelled_by=excluded.cancelled_by,
			updated_at=excluded.updated_at
	`, m.ID, string(m.Type), m.AssetID, string(m.Status), m.Responsible, m.Notes, m.CancelReason,
		m.CreatedBy, m.ApprovedBy, m.CompletedBy, m.CancelledBy, m.CreatedAt, m.UpdatedAt)
	return err
}

func (t *pgTx) PutCalibration(c lifecycle.CalibrationRecord) error {
	var returnDate, nextDate sql.NullTime
	if c.ReturnDate != nil {
		returnDate = sql.NullTime{Time: *c.ReturnDate, Valid: true}
	}
	if c.NextCalibrationDate != nil {
		nextDate = sql.NullTime{Time: *c.NextCalibrationDate, Valid: true}
	}
	_, err := t.tx.ExecContext(t.ctx, `
		insert into calibrations (`+calibrationColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		on conflict (id) do update set
			status=excluded.status,
			return_date=excluded.return_date,
			result=excluded.result,
			next_calibration_date=excluded.next_calibration_date,
			certificate=excluded.certificate,
			updated_at=excluded.updated_at
	`, c.ID, c.AssetID, string(c.Status), c.Provider, c.SendDate, c.EstimatedReturnDate,
		returnDate, string(c.Result), nextDate, c.Certificate, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	return err
}

func (t *pgTx) PutQuarantine(q lifecycle.QuarantineRecord) error {
	var release sql.NullTime
	if q.ReleaseDate != nil {
		release = sql.NullTime{Time: *q.ReleaseDate, Valid: true}
	}
	_, err := t.tx.ExecContext(t.ctx, `
		insert into quarantines (`+quarantineColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		on conflict (id) do update set
			status=excluded.status,
			release_date=excluded.release_date,
			resolved_by=excluded.resolved_by,
			updated_at=excluded.updated_at
	`, q.ID, q.AssetID, string(q.Status), q.Reason, string(q.PriorStatus), q.EntryDate,
		release, q.CreatedBy, q.ResolvedBy, q.CreatedAt, q.UpdatedAt)
	return err
}

func (t *pgTx) PutDecommission(d lifecycle.DecommissionRequest) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into decommissions (`+decommissionColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		on conflict (id) do update set
			status=excluded.status,
			approved_by=excluded.approved_by,
			completed_by=excluded.completed_by,
			updated_at=excluded.updated_at
	`, d.ID, d.AssetID, string(d.Status), d.Reason, d.RequestedBy, d.ApprovedBy, d.CompletedBy, d.CreatedAt, d.UpdatedAt)
	return err
}

func (t *pgTx) AppendAudit(e audit.Entry) error {
	_, err := t.tx.ExecContext(t.ctx, `
		insert into audit_trail (id, ts, actor, action, entity_type, entity_id, asset_id, previous_value, new_value)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.Timestamp, e.Actor, e.Action, e.EntityType, e.EntityID, e.AssetID, e.PreviousValue, e.NewValue)
	return err
}
