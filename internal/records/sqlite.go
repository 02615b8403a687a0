package records

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS themes (
	website       TEXT PRIMARY KEY,
	current_theme TEXT NOT NULL,
	version       INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS theme_history (
	website  TEXT NOT NULL REFERENCES themes(website),
	seq      INTEGER NOT NULL,
	theme    TEXT NOT NULL,
	date_set INTEGER NOT NULL,
	PRIMARY KEY (website, seq)
);
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	phone         TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	status        TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
CREATE TABLE IF NOT EXISTS websites (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	bucket     TEXT NOT NULL UNIQUE,
	domain     TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// SQLite is a Store in a single SQLite file. One connection serializes
// writers so RecordSwap transactions never interleave.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, xerrors.Wrapf(err, "create directory for %s", path)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "open sqlite %s", path)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, xerrors.Wrap(err, "initialize sqlite schema")
		}
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return xerrors.WithKind(xerrors.Wrap(s.db.PingContext(ctx), "ping sqlite"), xerrors.KindUnavailable)
}

func (s *SQLite) Close(context.Context) error { return s.db.Close() }

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func (s *SQLite) RecordSwap(ctx context.Context, website, theme string, at time.Time) (ThemeRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ThemeRecord{}, xerrors.Wrap(err, "begin swap transaction")
	}
	defer tx.Rollback()

	var current string
	var version int64
	err = tx.QueryRowContext(ctx, `SELECT current_theme, version FROM themes WHERE website = ?`, website).Scan(&current, &version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		current = theme
		_, err = tx.ExecContext(ctx,
			`INSERT INTO themes (website, current_theme, version, updated_at) VALUES (?, ?, 1, ?)`,
			website, theme, nanos(at))
	case err == nil:
		_, err = tx.ExecContext(ctx,
			`UPDATE themes SET current_theme = ?, version = version + 1, updated_at = ? WHERE website = ?`,
			theme, nanos(at), website)
	}
	if err != nil {
		return ThemeRecord{}, xerrors.Wrapf(err, "update theme record for %s", website)
	}

	// current now holds the theme being replaced (or theme itself on the first swap)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO theme_history (website, seq, theme, date_set)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM theme_history WHERE website = ?), ?, ?)`,
		website, website, current, nanos(at)); err != nil {
		return ThemeRecord{}, xerrors.Wrapf(err, "append theme history for %s", website)
	}

	rec, err := loadTheme(ctx, tx, website)
	if err != nil {
		return ThemeRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return ThemeRecord{}, xerrors.Wrap(err, "commit swap transaction")
	}
	return rec, nil
}

func (s *SQLite) GetTheme(ctx context.Context, website string) (ThemeRecord, error) {
	return loadTheme(ctx, s.db, website)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadTheme(ctx context.Context, q querier, website string) (ThemeRecord, error) {
	rec := ThemeRecord{Website: website}
	var updated int64
	err := q.QueryRowContext(ctx, `SELECT current_theme, version, updated_at FROM themes WHERE website = ?`, website).
		Scan(&rec.CurrentTheme, &rec.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return ThemeRecord{}, xerrors.NotFound("no theme record for website %q", website)
	}
	if err != nil {
		return ThemeRecord{}, xerrors.Wrapf(err, "load theme record for %s", website)
	}
	rec.UpdatedAt = fromNanos(updated)

	rows, err := q.QueryContext(ctx, `SELECT theme, date_set FROM theme_history WHERE website = ? ORDER BY seq`, website)
	if err != nil {
		return ThemeRecord{}, xerrors.Wrapf(err, "load theme history for %s", website)
	}
	defer rows.Close()
	for rows.Next() {
		var h HistoryEntry
		var at int64
		if err := rows.Scan(&h.Theme, &at); err != nil {
			return ThemeRecord{}, xerrors.Wrap(err, "scan theme history")
		}
		h.DateSet = fromNanos(at)
		rec.History = append(rec.History, h)
	}
	return rec, xerrors.Wrap(rows.Err(), "iterate theme history")
}

const userColumns = `id, name, email, phone, password_hash, role, status, created_at, updated_at`

type scanner interface{ Scan(dest ...any) error }

func scanUser(sc scanner) (User, error) {
	var u User
	var created, updated int64
	if err := sc.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.Status, &created, &updated); err != nil {
		return User{}, err
	}
	u.CreatedAt, u.UpdatedAt = fromNanos(created), fromNanos(updated)
	return u, nil
}

func (s *SQLite) CreateUser(ctx context.Context, u User) (User, error) {
	u.Email = NormalizeEmail(u.Email)
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash, u.Role, u.Status, nanos(u.CreatedAt), nanos(u.UpdatedAt))
	if uniqueViolation(err) {
		return User{}, xerrors.Conflict("user %s already exists", u.Email)
	}
	if err != nil {
		return User{}, xerrors.Wrapf(err, "insert user %s", u.Email)
	}
	return u, nil
}

func (s *SQLite) userWhere(ctx context.Context, clause string, arg string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+clause, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, xerrors.NotFound("user %s not found", arg)
	}
	return u, xerrors.Wrap(err, "load user")
}

func (s *SQLite) UserByID(ctx context.Context, id string) (User, error) {
	return s.userWhere(ctx, "id = ?", id)
}

func (s *SQLite) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.userWhere(ctx, "email = ?", NormalizeEmail(email))
}

func (s *SQLite) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, email`)
	if err != nil {
		return nil, xerrors.Wrap(err, "list users")
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, xerrors.Wrap(err, "scan user")
		}
		out = append(out, u)
	}
	return out, xerrors.Wrap(rows.Err(), "iterate users")
}

func (s *SQLite) UpdateUser(ctx context.Context, id string, upd UserUpdate, at time.Time) (User, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			name  = CASE WHEN ? = '' THEN name  ELSE ? END,
			email = CASE WHEN ? = '' THEN email ELSE ? END,
			phone = CASE WHEN ? = '' THEN phone ELSE ? END,
			updated_at = ?
		 WHERE id = ?`,
		upd.Name, upd.Name,
		NormalizeEmail(upd.Email), NormalizeEmail(upd.Email),
		upd.Phone, upd.Phone,
		nanos(at), id)
	if uniqueViolation(err) {
		return User{}, xerrors.Conflict("user %s already exists", NormalizeEmail(upd.Email))
	}
	if err != nil {
		return User{}, xerrors.Wrapf(err, "update user %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return User{}, xerrors.NotFound("user %s not found", id)
	}
	return s.UserByID(ctx, id)
}

func (s *SQLite) SetPassword(ctx context.Context, id, hash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, nanos(at), id)
	if err != nil {
		return xerrors.Wrapf(err, "set password for %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerrors.NotFound("user %s not found", id)
	}
	return nil
}

func (s *SQLite) CountUsersByRole(ctx context.Context, role string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = ?`, role).Scan(&n)
	return n, xerrors.Wrap(err, "count users")
}

func (s *SQLite) CreateWebsite(ctx context.Context, w Website) (Website, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO websites (id, name, bucket, domain, status, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Bucket, w.Domain, w.Status, nanos(w.CreatedAt))
	if uniqueViolation(err) {
		return Website{}, xerrors.Conflict("website for bucket %s already exists", w.Bucket)
	}
	if err != nil {
		return Website{}, xerrors.Wrapf(err, "insert website %s", w.Bucket)
	}
	return w, nil
}

func scanWebsite(sc scanner) (Website, error) {
	var w Website
	var created int64
	if err := sc.Scan(&w.ID, &w.Name, &w.Bucket, &w.Domain, &w.Status, &created); err != nil {
		return Website{}, err
	}
	w.CreatedAt = fromNanos(created)
	return w, nil
}

func (s *SQLite) WebsiteByID(ctx context.Context, id string) (Website, error) {
	w, err := scanWebsite(s.db.QueryRowContext(ctx,
		`SELECT id, name, bucket, domain, status, created_at FROM websites WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Website{}, xerrors.NotFound("website %s not found", id)
	}
	return w, xerrors.Wrap(err, "load website")
}

func (s *SQLite) ListWebsites(ctx context.Context) ([]Website, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, bucket, domain, status, created_at FROM websites ORDER BY bucket`)
	if err != nil {
		return nil, xerrors.Wrap(err, "list websites")
	}
	defer rows.Close()
	out := []Website{}
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, xerrors.Wrap(err, "scan website")
		}
		out = append(out, w)
	}
	return out, xerrors.Wrap(rows.Err(), "iterate websites")
}

func (s *SQLite) DeleteWebsite(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM websites WHERE id = ?`, id)
	if err != nil {
		return xerrors.Wrapf(err, "delete website %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return xerrors.NotFound("website %s not found", id)
	}
	return nil
}

func uniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// primary code only, when extended codes are off
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}
