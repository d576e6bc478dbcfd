// Package sqlite implements storage.SceneStore on SQLite via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scanloom/scanloom/internal/storage"
	"github.com/scanloom/scanloom/pkg/math3"
	"github.com/scanloom/scanloom/pkg/types"
)

// Schema creates all entity tables. Points are stored as JSON arrays; they
// are small (a handful of vertices) and only ever read whole.
const Schema = `
CREATE TABLE IF NOT EXISTS measurements (
	id         TEXT PRIMARY KEY,
	scan_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	points     TEXT NOT NULL,
	value      REAL NOT NULL,
	unit       TEXT NOT NULL DEFAULT '',
	label      TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_measurements_scan ON measurements(scan_id);

CREATE TABLE IF NOT EXISTS annotations (
	id         TEXT PRIMARY KEY,
	scan_id    TEXT NOT NULL,
	type       TEXT NOT NULL,
	pos_x      REAL NOT NULL,
	pos_y      REAL NOT NULL,
	pos_z      REAL NOT NULL,
	content    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'open',
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_annotations_scan ON annotations(scan_id);

CREATE TABLE IF NOT EXISTS replies (
	id            TEXT PRIMARY KEY,
	annotation_id TEXT NOT NULL REFERENCES annotations(id) ON DELETE CASCADE,
	content       TEXT NOT NULL DEFAULT '',
	created_by    TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL,
	position      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_replies_annotation ON replies(annotation_id);

CREATE TABLE IF NOT EXISTS saved_views (
	id         TEXT PRIMARY KEY,
	scan_id    TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	cam_px     REAL NOT NULL, cam_py REAL NOT NULL, cam_pz REAL NOT NULL,
	cam_tx     REAL NOT NULL, cam_ty REAL NOT NULL, cam_tz REAL NOT NULL,
	cam_fov    REAL NOT NULL,
	sort_order INTEGER NOT NULL,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_saved_views_scan ON saved_views(scan_id, sort_order);
`

// SceneStore implements storage.SceneStore using SQLite.
type SceneStore struct {
	db *sql.DB
}

// NewSceneStore opens a SQLite database, configures WAL mode, and creates
// the schema.
func NewSceneStore(dsn string) (*SceneStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single open connection
	// serialises writes and avoids SQLITE_BUSY errors under concurrent load;
	// WAL mode lets readers proceed without blocking the writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SceneStore{db: db}, nil
}

// GetDB exposes the underlying connection for maintenance tooling.
func (s *SceneStore) GetDB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *SceneStore) Close() error {
	return s.db.Close()
}

func marshalPoints(points []math3.Vector3) (string, error) {
	b, err := json.Marshal(points)
	if err != nil {
		return "", fmt.Errorf("failed to marshal points: %w", err)
	}
	return string(b), nil
}

func unmarshalPoints(raw string) ([]math3.Vector3, error) {
	var points []math3.Vector3
	if err := json.Unmarshal([]byte(raw), &points); err != nil {
		return nil, fmt.Errorf("failed to unmarshal points: %w", err)
	}
	return points, nil
}

// CreateMeasurement inserts a measurement.
func (s *SceneStore) CreateMeasurement(ctx context.Context, m *types.Measurement) error {
	if m == nil || m.ID == "" {
		return fmt.Errorf("%w: measurement ID is required", storage.ErrInvalidInput)
	}
	points, err := marshalPoints(m.Points)
	if err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO measurements (id, scan_id, type, points, value, unit, label, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			points = excluded.points,
			value = excluded.value,
			unit = excluded.unit,
			label = excluded.label`,
		m.ID, m.ScanID, string(m.Type), points, m.Value, m.Unit, m.Label, m.CreatedBy, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert measurement: %w", err)
	}
	return nil
}

func scanMeasurement(row interface{ Scan(...interface{}) error }) (*types.Measurement, error) {
	var m types.Measurement
	var mtype, points string
	err := row.Scan(&m.ID, &m.ScanID, &mtype, &points, &m.Value, &m.Unit, &m.Label, &m.CreatedBy, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	m.Type = types.MeasurementType(mtype)
	m.Points, err = unmarshalPoints(points)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

const measurementCols = `id, scan_id, type, points, value, unit, label, created_by, created_at`

// GetMeasurement retrieves a measurement by ID.
func (s *SceneStore) GetMeasurement(ctx context.Context, id string) (*types.Measurement, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+measurementCols+` FROM measurements WHERE id = ?`, id)
	m, err := scanMeasurement(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get measurement: %w", err)
	}
	return m, nil
}

// ListMeasurements retrieves all measurements for a scan, ordered by
// creation time.
func (s *SceneStore) ListMeasurements(ctx context.Context, scanID string) ([]*types.Measurement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+measurementCols+` FROM measurements WHERE scan_id = ? ORDER BY created_at, id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	defer rows.Close()

	var out []*types.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpdateMeasurement replaces an existing measurement.
func (s *SceneStore) UpdateMeasurement(ctx context.Context, m *types.Measurement) error {
	points, err := marshalPoints(m.Points)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE measurements
		SET points = ?, value = ?, unit = ?, label = ?
		WHERE id = ?`,
		points, m.Value, m.Unit, m.Label, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update measurement: %w", err)
	}
	return requireRow(res)
}

// DeleteMeasurement removes a measurement by ID.
func (s *SceneStore) DeleteMeasurement(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM measurements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete measurement: %w", err)
	}
	return requireRow(res)
}

// requireRow maps a zero-row result to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// CreateAnnotation inserts an annotation without replies.
func (s *SceneStore) CreateAnnotation(ctx context.Context, a *types.Annotation) error {
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: annotation ID is required", storage.ErrInvalidInput)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations (id, scan_id, type, pos_x, pos_y, pos_z, content, status, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pos_x = excluded.pos_x, pos_y = excluded.pos_y, pos_z = excluded.pos_z,
			content = excluded.content, status = excluded.status`,
		a.ID, a.ScanID, string(a.Type), a.Position.X, a.Position.Y, a.Position.Z,
		a.Content, string(a.Status), a.CreatedBy, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert annotation: %w", err)
	}
	if len(a.Replies) > 0 {
		return s.syncReplies(ctx, a)
	}
	return nil
}

const annotationCols = `id, scan_id, type, pos_x, pos_y, pos_z, content, status, created_by, created_at`

func scanAnnotation(row interface{ Scan(...interface{}) error }) (*types.Annotation, error) {
	var a types.Annotation
	var atype, status string
	err := row.Scan(&a.ID, &a.ScanID, &atype,
		&a.Position.X, &a.Position.Y, &a.Position.Z,
		&a.Content, &status, &a.CreatedBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Type = types.AnnotationType(atype)
	a.Status = types.AnnotationStatus(status)
	return &a, nil
}

// GetAnnotation retrieves an annotation with its full reply thread.
func (s *SceneStore) GetAnnotation(ctx context.Context, id string) (*types.Annotation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+annotationCols+` FROM annotations WHERE id = ?`, id)
	a, err := scanAnnotation(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}
	if err := s.loadReplies(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnnotations retrieves all annotations for a scan with reply threads.
func (s *SceneStore) ListAnnotations(ctx context.Context, scanID string) ([]*types.Annotation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+annotationCols+` FROM annotations WHERE scan_id = ? ORDER BY created_at, id`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	var out []*types.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, a := range out {
		if err := s.loadReplies(ctx, a); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SceneStore) loadReplies(ctx context.Context, a *types.Annotation) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content, created_by, created_at
		FROM replies WHERE annotation_id = ? ORDER BY position`, a.ID)
	if err != nil {
		return fmt.Errorf("failed to load replies: %w", err)
	}
	defer rows.Close()

	a.Replies = nil
	for rows.Next() {
		var r types.Reply
		if err := rows.Scan(&r.ID, &r.Content, &r.CreatedBy, &r.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan reply: %w", err)
		}
		a.Replies = append(a.Replies, r)
	}
	return rows.Err()
}

// syncReplies rewrites the reply thread to match the entity. Threads are a
// few messages at most, so delete-and-reinsert is simpler than diffing.
func (s *SceneStore) syncReplies(ctx context.Context, a *types.Annotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reply sync: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM replies WHERE annotation_id = ?`, a.ID); err != nil {
		return fmt.Errorf("failed to clear replies: %w", err)
	}
	for i, r := range a.Replies {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO replies (id, annotation_id, content, created_by, created_at, position)
			VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, a.ID, r.Content, r.CreatedBy, r.CreatedAt, i); err != nil {
			return fmt.Errorf("failed to insert reply: %w", err)
		}
	}
	return tx.Commit()
}

// UpdateAnnotation replaces an annotation's fields and resyncs its thread.
func (s *SceneStore) UpdateAnnotation(ctx context.Context, a *types.Annotation) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE annotations
		SET pos_x = ?, pos_y = ?, pos_z = ?, content = ?, status = ?
		WHERE id = ?`,
		a.Position.X, a.Position.Y, a.Position.Z, a.Content, string(a.Status), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update annotation: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return s.syncReplies(ctx, a)
}

// DeleteAnnotation removes an annotation; its replies cascade.
func (s *SceneStore) DeleteAnnotation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	return requireRow(res)
}

// NearestAnnotations returns up to limit annotations closest to p. SQLite
// has no vector index, so distances are computed client-side; annotation
// counts per scan are small enough that a full scan is fine.
func (s *SceneStore) NearestAnnotations(ctx context.Context, scanID string, p math3.Vector3, limit int) ([]*types.Annotation, error) {
	if limit <= 0 {
		return nil, nil
	}
	all, err := s.ListAnnotations(ctx, scanID)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Position.Sub(p).LengthSquared() < all[j].Position.Sub(p).LengthSquared()
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// CreateSavedView inserts a saved view.
func (s *SceneStore) CreateSavedView(ctx context.Context, v *types.SavedView) error {
	if v == nil || v.ID == "" {
		return fmt.Errorf("%w: saved view ID is required", storage.ErrInvalidInput)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO saved_views (id, scan_id, name, cam_px, cam_py, cam_pz, cam_tx, cam_ty, cam_tz, cam_fov, sort_order, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cam_px = excluded.cam_px, cam_py = excluded.cam_py, cam_pz = excluded.cam_pz,
			cam_tx = excluded.cam_tx, cam_ty = excluded.cam_ty, cam_tz = excluded.cam_tz,
			cam_fov = excluded.cam_fov,
			sort_order = excluded.sort_order`,
		v.ID, v.ScanID, v.Name,
		v.Camera.Position.X, v.Camera.Position.Y, v.Camera.Position.Z,
		v.Camera.Target.X, v.Camera.Target.Y, v.Camera.Target.Z,
		v.Camera.FOV, v.SortOrder, v.CreatedBy, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert saved view: %w", err)
	}
	return nil
}

const savedViewCols = `id, scan_id, name, cam_px, cam_py, cam_pz, cam_tx, cam_ty, cam_tz, cam_fov, sort_order, created_by, created_at`

func scanSavedView(row interface{ Scan(...interface{}) error }) (*types.SavedView, error) {
	var v types.SavedView
	err := row.Scan(&v.ID, &v.ScanID, &v.Name,
		&v.Camera.Position.X, &v.Camera.Position.Y, &v.Camera.Position.Z,
		&v.Camera.Target.X, &v.Camera.Target.Y, &v.Camera.Target.Z,
		&v.Camera.FOV, &v.SortOrder, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetSavedView retrieves a saved view by ID.
func (s *SceneStore) GetSavedView(ctx context.Context, id string) (*types.SavedView, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+savedViewCols+` FROM saved_views WHERE id = ?`, id)
	v, err := scanSavedView(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saved view: %w", err)
	}
	return v, nil
}

// ListSavedViews retrieves all saved views for a scan in sort order.
func (s *SceneStore) ListSavedViews(ctx context.Context, scanID string) ([]*types.SavedView, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+savedViewCols+` FROM saved_views WHERE scan_id = ? ORDER BY sort_order`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved views: %w", err)
	}
	defer rows.Close()

	var out []*types.SavedView
	for rows.Next() {
		v, err := scanSavedView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan saved view: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateSavedView replaces an existing saved view.
func (s *SceneStore) UpdateSavedView(ctx context.Context, v *types.SavedView) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE saved_views
		SET name = ?, cam_px = ?, cam_py = ?, cam_pz = ?, cam_tx = ?, cam_ty = ?, cam_tz = ?, cam_fov = ?, sort_order = ?
		WHERE id = ?`,
		v.Name,
		v.Camera.Position.X, v.Camera.Position.Y, v.Camera.Position.Z,
		v.Camera.Target.X, v.Camera.Target.Y, v.Camera.Target.Z,
		v.Camera.FOV, v.SortOrder, v.ID)
	if err != nil {
		return fmt.Errorf("failed to update saved view: %w", err)
	}
	return requireRow(res)
}

// DeleteSavedView removes a saved view by ID.
func (s *SceneStore) DeleteSavedView(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM saved_views WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete saved view: %w", err)
	}
	return requireRow(res)
}
