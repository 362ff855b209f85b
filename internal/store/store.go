// Package store persists jobs, extracted vertices and planned waypoints
// in SQLite. The rest of the system talks to it only in plain waypoint
// lists and status strings.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"moldmap/internal/geom"
)

// Job statuses.
const (
	StatusCreated   = "created"
	StatusPlanning  = "planning"
	StatusMapping   = "mapping"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Job is one mapping job record.
type Job struct {
	ID        string
	Name      string
	Filename  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	filename TEXT,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL DEFAULT 'created',
	planner_params TEXT
);
CREATE TABLE IF NOT EXISTS job_geometry (
	job_id TEXT NOT NULL REFERENCES jobs(id),
	vertex_index INTEGER NOT NULL,
	x REAL NOT NULL, y REAL NOT NULL, z REAL NOT NULL,
	PRIMARY KEY (job_id, vertex_index)
);
CREATE TABLE IF NOT EXISTS waypoints (
	job_id TEXT NOT NULL REFERENCES jobs(id),
	idx INTEGER NOT NULL,
	x REAL NOT NULL, y REAL NOT NULL, z REAL NOT NULL,
	visited INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (job_id, idx)
);
`

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// CreateJob inserts a new job in status "created" and returns it.
func (s *Store) CreateJob(ctx context.Context, name, filename string) (Job, error) {
	now := time.Now().UTC()
	j := Job{
		ID:        uuid.NewString(),
		Name:      name,
		Filename:  filename,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, name, filename, created_at, updated_at, status) VALUES (?, ?, ?, ?, ?, ?)`,
		j.ID, j.Name, j.Filename, j.CreatedAt, j.UpdatedAt, j.Status,
	)
	if err != nil {
		return Job{}, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	var j Job
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(filename, ''), created_at, updated_at, status FROM jobs WHERE id = ?`, id,
	).Scan(&j.ID, &j.Name, &j.Filename, &j.CreatedAt, &j.UpdatedAt, &j.Status)
	if err == sql.ErrNoRows {
		return Job{}, fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// ListJobs returns all jobs, newest first.
func (s *Store) ListJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(filename, ''), created_at, updated_at, status FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Name, &j.Filename, &j.CreatedAt, &j.UpdatedAt, &j.Status); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// DeleteJob removes a job and its geometry and waypoints.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM waypoints WHERE job_id = ?`,
		`DELETE FROM job_geometry WHERE job_id = ?`,
		`DELETE FROM jobs WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
	}
	return tx.Commit()
}

// SetStatus updates a job's status string.
func (s *Store) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// SavePlannerParams stores a flat planner parameter map as JSON.
func (s *Store) SavePlannerParams(ctx context.Context, id string, params map[string]any) error {
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode planner params: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET planner_params = ?, updated_at = ? WHERE id = ?`,
		string(b), time.Now().UTC(), id); err != nil {
		return fmt.Errorf("save planner params: %w", err)
	}
	return nil
}

// LoadPlannerParams retrieves the flat planner parameter map, empty when
// none was stored.
func (s *Store) LoadPlannerParams(ctx context.Context, id string) (map[string]any, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT planner_params FROM jobs WHERE id = ?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load planner params: %w", err)
	}
	params := map[string]any{}
	if raw.Valid && raw.String != "" {
		if err := json.Unmarshal([]byte(raw.String), &params); err != nil {
			return nil, fmt.Errorf("decode planner params: %w", err)
		}
	}
	return params, nil
}

// SaveVertices replaces the stored geometry vertices for a job. Vertex
// order is preserved through the index column.
func (s *Store) SaveVertices(ctx context.Context, id string, vertices []geom.Point3) error {
	return s.replacePoints(ctx, `job_geometry`, `vertex_index`, id, vertices, nil)
}

// LoadVertices returns the stored geometry vertices in index order.
func (s *Store) LoadVertices(ctx context.Context, id string) ([]geom.Point3, error) {
	return s.loadPoints(ctx,
		`SELECT x, y, z FROM job_geometry WHERE job_id = ? ORDER BY vertex_index`, id)
}

// SaveWaypoints replaces the planned waypoints for a job, all unvisited.
func (s *Store) SaveWaypoints(ctx context.Context, id string, waypoints []geom.Point3) error {
	visited := make([]bool, len(waypoints))
	return s.replacePoints(ctx, `waypoints`, `idx`, id, waypoints, visited)
}

// LoadWaypoints returns the planned waypoints in path order.
func (s *Store) LoadWaypoints(ctx context.Context, id string) ([]geom.Point3, error) {
	return s.loadPoints(ctx,
		`SELECT x, y, z FROM waypoints WHERE job_id = ? ORDER BY idx`, id)
}

// MarkVisited flags one waypoint as visited.
func (s *Store) MarkVisited(ctx context.Context, id string, idx int) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE waypoints SET visited = 1 WHERE job_id = ? AND idx = ?`, id, idx); err != nil {
		return fmt.Errorf("mark visited: %w", err)
	}
	return nil
}

// VisitedCount returns how many waypoints of a job are flagged visited.
func (s *Store) VisitedCount(ctx context.Context, id string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM waypoints WHERE job_id = ? AND visited = 1`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("visited count: %w", err)
	}
	return n, nil
}

func (s *Store) replacePoints(ctx context.Context, table, indexCol, id string, pts []geom.Point3, visited []bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save %s: %w", table, err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE job_id = ?`, id); err != nil {
		return fmt.Errorf("save %s: %w", table, err)
	}
	for i, p := range pts {
		var args []any
		var q string
		if visited != nil {
			q = `INSERT INTO ` + table + ` (job_id, ` + indexCol + `, x, y, z, visited) VALUES (?, ?, ?, ?, ?, ?)`
			args = []any{id, i, p.X, p.Y, p.Z, visited[i]}
		} else {
			q = `INSERT INTO ` + table + ` (job_id, ` + indexCol + `, x, y, z) VALUES (?, ?, ?, ?, ?)`
			args = []any{id, i, p.X, p.Y, p.Z}
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("save %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *Store) loadPoints(ctx context.Context, query, id string) ([]geom.Point3, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("load points: %w", err)
	}
	defer rows.Close()
	var pts []geom.Point3
	for rows.Next() {
		var x, y, z float64
		if err := rows.Scan(&x, &y, &z); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		pts = append(pts, geom.Pt(x, y, z))
	}
	return pts, rows.Err()
}
