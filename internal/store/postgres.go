// Package store implements services.Store on PostgreSQL and keeps revoked
// tokens in Redis.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"fieldwork-backend-go/internal/models"
	"fieldwork-backend-go/internal/services"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidText         = "22P02"
)

type PostgresStore struct {
	db *sqlx.DB
}

var _ services.Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// mapError translates driver errors into the service sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return services.ErrRecordNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", services.ErrDuplicate, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", services.ErrRecordNotFound, pgErr.ConstraintName)
		case pgInvalidText:
			return services.ErrRecordNotFound
		}
	}
	return err
}

// conditions collects WHERE terms written with ? placeholders; queries are
// rebound to the driver's bindvar style before use.
type conditions struct {
	terms []string
	args  []any
}

func (c *conditions) add(term string, args ...any) {
	c.terms = append(c.terms, term)
	c.args = append(c.args, args...)
}

func (c *conditions) clause() string {
	if len(c.terms) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(c.terms, " AND ") + " "
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return services.ErrRecordNotFound
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, username, display_name, password_hash, role, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
`, u.ID, u.Username, u.DisplayName, u.PasswordHash, u.Role, u.CreatedAt)
	return mapError(err)
}

const userColumns = `id, username, display_name, password_hash, role, created_at, updated_at, last_login_at`

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return user, mapError(err)
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE lower(username) = lower($1)`, username)
	return user, mapError(err)
}

func (s *PostgresStore) ListUsers(ctx context.Context, page services.Page) ([]models.User, int, error) {
	users := []models.User{}
	if err := s.db.SelectContext(ctx, &users, `
SELECT `+userColumns+`
FROM users
ORDER BY created_at, id
LIMIT $1 OFFSET $2
`, page.Limit(), page.Offset()); err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *PostgresStore) SetUserRole(ctx context.Context, id string, role models.Role, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`, role, at, id)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func (s *PostgresStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, at, id)
	return err
}

// projectSelect takes the viewer id as its first bind parameter.
const projectSelect = `
SELECT p.id, p.owner_id, u.username AS owner_username, u.display_name AS owner_display_name,
       p.title, p.description, p.location, p.latitude, p.longitude, p.start_date, p.end_date,
       p.status, p.status_changed_at, p.status_changed_by, p.created_at, p.updated_at,
       (SELECT COUNT(*) FROM likes l WHERE l.project_id = p.id) AS likes_count,
       (SELECT COUNT(*) FROM comments c WHERE c.project_id = p.id) AS comments_count,
       (SELECT COUNT(*) FROM files f WHERE f.project_id = p.id) AS files_count,
       EXISTS (SELECT 1 FROM likes l WHERE l.project_id = p.id AND l.user_id::text = ?) AS is_liked
FROM projects p
JOIN users u ON u.id = p.owner_id
`

func (s *PostgresStore) CreateProject(ctx context.Context, p *models.Project) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO projects (
  id, owner_id, title, description, location, latitude, longitude,
  start_date, end_date, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`, p.ID, p.OwnerID, p.Title, p.Description, p.Location, p.Latitude, p.Longitude,
		p.StartDate, p.EndDate, p.Status, p.CreatedAt, p.UpdatedAt)
	return mapError(err)
}

func (s *PostgresStore) GetProject(ctx context.Context, id, viewerID string) (models.Project, error) {
	var project models.Project
	err := s.db.GetContext(ctx, &project, s.db.Rebind(projectSelect+`WHERE p.id = ?`), viewerID, id)
	return project, mapError(err)
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter services.ProjectFilter) ([]models.Project, int, error) {
	var where conditions
	if filter.OwnerID != "" {
		where.add("p.owner_id = ?", filter.OwnerID)
	}
	if filter.Status != "" {
		where.add("p.status = ?", filter.Status)
	}

	var total int
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(`SELECT COUNT(*) FROM projects p `+where.clause()), where.args...); err != nil {
		return nil, 0, err
	}

	items := []models.Project{}
	query := s.db.Rebind(projectSelect + where.clause() + ` ORDER BY p.created_at DESC, p.id LIMIT ? OFFSET ?`)
	args := append([]any{filter.ViewerID}, where.args...)
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, p *models.Project) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE projects
SET title = $1, description = $2, location = $3, latitude = $4, longitude = $5,
    start_date = $6, end_date = $7, updated_at = $8
WHERE id = $9
`, p.Title, p.Description, p.Location, p.Latitude, p.Longitude, p.StartDate, p.EndDate, p.UpdatedAt, p.ID)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

// DeleteProject relies on ON DELETE CASCADE for files, comments and likes.
func (s *PostgresStore) DeleteProject(ctx context.Context, id string) ([]string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	keys := []string{}
	if err := tx.SelectContext(ctx, &keys, `SELECT file_path FROM files WHERE project_id = $1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *PostgresStore) SetProjectStatus(ctx context.Context, id string, change services.StatusChange) error {
	return s.setStatus(ctx, "projects", id, change)
}

func (s *PostgresStore) SetFileStatus(ctx context.Context, id string, change services.StatusChange) error {
	return s.setStatus(ctx, "files", id, change)
}

// setStatus is a compare-and-set on the current status.
func (s *PostgresStore) setStatus(ctx context.Context, table, id string, change services.StatusChange) error {
	touch := ""
	if table == "projects" {
		touch = ", updated_at = $2"
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE `+table+`
SET status = $1, status_changed_at = $2, status_changed_by = $3`+touch+`
WHERE id = $4 AND status = $5
`, change.To, change.At, change.By, id, change.From)
	if err != nil {
		return mapError(err)
	}
	if err := requireRow(res); err == nil {
		return nil
	} else if !errors.Is(err, services.ErrRecordNotFound) {
		return err
	}
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id); err != nil {
		return err
	}
	if exists {
		return services.ErrStale
	}
	return services.ErrRecordNotFound
}

// fileSelect takes the viewer id as its first bind parameter.
const fileSelect = `
SELECT f.id, f.project_id, p.owner_id AS project_owner_id, p.status AS project_status,
       f.title, f.description, f.file_type, f.category, f.file_path, f.original_filename,
       f.content_type, f.size_bytes, f.uploaded_by, f.status, f.status_changed_at,
       f.status_changed_by, f.created_at,
       (SELECT COUNT(*) FROM likes l WHERE l.file_id = f.id) AS likes_count,
       (SELECT COUNT(*) FROM comments c WHERE c.file_id = f.id) AS comments_count,
       EXISTS (SELECT 1 FROM likes l WHERE l.file_id = f.id AND l.user_id::text = ?) AS is_liked
FROM files f
JOIN projects p ON p.id = f.project_id
`

func (s *PostgresStore) CreateFile(ctx context.Context, f *models.File) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO files (
  id, project_id, title, description, file_type, category, file_path,
  original_filename, content_type, size_bytes, uploaded_by, status, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`, f.ID, f.ProjectID, f.Title, f.Description, f.FileType, f.Category, f.FilePath,
		f.OriginalFilename, f.ContentType, f.SizeBytes, f.UploadedBy, f.Status, f.CreatedAt)
	return mapError(err)
}

func (s *PostgresStore) GetFile(ctx context.Context, id, viewerID string) (models.File, error) {
	var file models.File
	err := s.db.GetContext(ctx, &file, s.db.Rebind(fileSelect+`WHERE f.id = ?`), viewerID, id)
	return file, mapError(err)
}

func (s *PostgresStore) ListFiles(ctx context.Context, filter services.FileFilter) ([]models.File, int, error) {
	var where conditions
	if filter.ProjectID != "" {
		where.add("f.project_id = ?", filter.ProjectID)
	}
	if filter.Restricted {
		where.add(`((f.status = 'approved' AND p.status = 'approved') OR f.uploaded_by::text = ? OR p.owner_id::text = ?)`,
			filter.ViewerID, filter.ViewerID)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM files f JOIN projects p ON p.id = f.project_id ` + where.clause()
	if err := s.db.GetContext(ctx, &total, s.db.Rebind(countQuery), where.args...); err != nil {
		return nil, 0, err
	}

	items := []models.File{}
	query := s.db.Rebind(fileSelect + where.clause() + ` ORDER BY f.created_at DESC, f.id LIMIT ? OFFSET ?`)
	args := append([]any{filter.ViewerID}, where.args...)
	args = append(args, filter.Page.Limit(), filter.Page.Offset())
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRow(res)
}

func (s *PostgresStore) CreateComment(ctx context.Context, c *models.Comment) error {
	var author struct {
		Username    string `db:"username"`
		DisplayName string `db:"display_name"`
	}
	err := s.db.GetContext(ctx, &author, `
WITH inserted AS (
  INSERT INTO comments (id, project_id, file_id, user_id, content, created_at)
  VALUES ($1,$2,$3,$4,$5,$6)
  RETURNING user_id
)
SELECT u.username, u.display_name
FROM inserted
JOIN users u ON u.id = inserted.user_id
`, c.ID, c.ProjectID, c.FileID, c.UserID, c.Content, c.CreatedAt)
	if err != nil {
		return mapError(err)
	}
	c.AuthorUsername = author.Username
	c.AuthorName = author.DisplayName
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, target models.Target, page services.Page) ([]models.Comment, int, error) {
	column, err := targetColumn(target)
	if err != nil {
		return nil, 0, err
	}
	items := []models.Comment{}
	if err := s.db.SelectContext(ctx, &items, `
SELECT c.id, c.project_id, c.file_id, c.user_id, u.username AS author_username,
       u.display_name AS author_display_name, c.content, c.created_at
FROM comments c
JOIN users u ON u.id = c.user_id
WHERE c.`+column+` = $1
ORDER BY c.created_at DESC, c.id
LIMIT $2 OFFSET $3
`, target.ID, page.Limit(), page.Offset()); err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM comments WHERE `+column+` = $1`, target.ID); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ToggleLike deletes the like if present, otherwise inserts it. The partial
// unique indexes turn a concurrent duplicate insert into a no-op.
func (s *PostgresStore) ToggleLike(ctx context.Context, userID string, target models.Target, at time.Time) (bool, int, error) {
	column, err := targetColumn(target)
	if err != nil {
		return false, 0, err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE user_id = $1 AND `+column+` = $2`, userID, target.ID)
	if err != nil {
		return false, 0, err
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	liked := removed == 0
	if liked {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO likes (id, user_id, `+column+`, created_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT DO NOTHING
`, uuid.NewString(), userID, target.ID, at); err != nil {
			return false, 0, mapError(err)
		}
	}
	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM likes WHERE `+column+` = $1`, target.ID); err != nil {
		return false, 0, err
	}
	if err := tx.Commit(); err != nil {
		return false, 0, err
	}
	return liked, count, nil
}

func targetColumn(target models.Target) (string, error) {
	switch target.Kind {
	case models.TargetProject:
		return "project_id", nil
	case models.TargetFile:
		return "file_id", nil
	default:
		return "", fmt.Errorf("unknown target kind %q", target.Kind)
	}
}

func (s *PostgresStore) CountPending(ctx context.Context) (int, int, error) {
	var counts struct {
		Projects int `db:"projects"`
		Files    int `db:"files"`
	}
	err := s.db.GetContext(ctx, &counts, `
SELECT (SELECT COUNT(*) FROM projects WHERE status = 'pending') AS projects,
       (SELECT COUNT(*) FROM files WHERE status = 'pending') AS files
`)
	return counts.Projects, counts.Files, err
}

func (s *PostgresStore) InsertMetricSample(ctx context.Context, m models.ServerMetricSample) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO server_metric_samples (
  id, captured_at, process_rss_bytes, system_memory_total_bytes, system_memory_used_bytes,
  disk_total_bytes, disk_used_bytes, process_cpu_load, system_cpu_load, pending_projects, pending_files
) VALUES (
  :id, :captured_at, :process_rss_bytes, :system_memory_total_bytes, :system_memory_used_bytes,
  :disk_total_bytes, :disk_used_bytes, :process_cpu_load, :system_cpu_load, :pending_projects, :pending_files
)
`, m)
	return mapError(err)
}

func (s *PostgresStore) LatestMetricSamples(ctx context.Context, limit int) ([]models.ServerMetricSample, error) {
	items := []models.ServerMetricSample{}
	err := s.db.SelectContext(ctx, &items, `
SELECT id, captured_at, process_rss_bytes, system_memory_total_bytes, system_memory_used_bytes,
       disk_total_bytes, disk_used_bytes, process_cpu_load, system_cpu_load, pending_projects, pending_files
FROM server_metric_samples
ORDER BY captured_at DESC
LIMIT $1
`, limit)
	return items, err
}
