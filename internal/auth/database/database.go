package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	apierr "github.com/victorgomez09/supportportal/internal/auth"
	"github.com/victorgomez09/supportportal/internal/auth/models"
	"github.com/victorgomez09/supportportal/internal/auth/roles"
)

// Schema for the account store. Username and email uniqueness is enforced here so
// concurrent registrations cannot both commit the same value.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT UNIQUE NOT NULL,                      -- External identifier shown to clients.
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    username TEXT NOT NULL COLLATE NOCASE,
    email TEXT NOT NULL COLLATE NOCASE,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL,                                -- Authorities are derived from the role table.
    is_active INTEGER NOT NULL DEFAULT 1,
    is_locked INTEGER NOT NULL DEFAULT 0,
    join_date INTEGER NOT NULL,                        -- Unix nanoseconds.
    last_login_date INTEGER,
    last_login_date_display INTEGER,
    CONSTRAINT users_username_unique UNIQUE (username),
    CONSTRAINT users_email_unique UNIQUE (email)
);
`

const userColumns = `id, user_id, first_name, last_name, username, email, password_hash,
    role, is_active, is_locked, join_date, last_login_date, last_login_date_display`

// Options configures the SQLite store.
type Options struct {
	Path        string
	BusyTimeout time.Duration
}

// SQLiteDB is the account repository backed by SQLite.
type SQLiteDB struct {
	db        *sql.DB
	roles     *roles.Table
	writeLock sync.Mutex // sqlite allows a single writer
}

// NewSQLiteDB opens the database at opts.Path and applies the schema.
func NewSQLiteDB(ctx context.Context, opts Options, table *roles.Table) (*SQLiteDB, error) {
	if opts.Path == "" {
		return nil, errors.New("database path is required")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if table == nil {
		table = roles.Default()
	}

	sep := "?"
	if strings.Contains(opts.Path, "?") {
		sep = "&"
	}
	dsn := fmt.Sprintf("%s%s_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", opts.Path, sep, opts.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteDB{db: db, roles: table}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Migrate creates the schema if it does not exist.
func (s *SQLiteDB) Migrate(ctx context.Context) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *SQLiteDB) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", apierr.ErrStorageUnavailable, err)
	}
	return nil
}

// FindByUsername returns the identity owning username, compared case-insensitively.
func (s *SQLiteDB) FindByUsername(ctx context.Context, username string) (*models.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return s.scan(row)
}

// FindByEmail returns the identity owning email, compared case-insensitively.
func (s *SQLiteDB) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return s.scan(row)
}

// List returns every identity ordered by id.
func (s *SQLiteDB) List(ctx context.Context) ([]models.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	defer rows.Close()

	users := []models.Identity{}
	for rows.Next() {
		user, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list users", err)
	}

	return users, nil
}

// Create inserts identity and sets its ID. A duplicate username or email is
// reported as apierr.ErrUsernameTaken or apierr.ErrEmailTaken.
func (s *SQLiteDB) Create(ctx context.Context, identity *models.Identity) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res, err := s.db.ExecContext(ctx, `
        INSERT INTO users (
            user_id, first_name, last_name, username, email, password_hash,
            role, is_active, is_locked, join_date, last_login_date, last_login_date_display
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, identity.UserID, identity.FirstName, identity.LastName, identity.Username, identity.Email,
		identity.PasswordHash, string(identity.Role), identity.IsActive, identity.IsLocked,
		identity.JoinDate.UnixNano(), nullTime(identity.LastLoginDate), nullTime(identity.LastLoginDateDisplay))
	if err != nil {
		return translate("insert user", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("insert user", err)
	}
	identity.ID = id

	return nil
}

// Update writes every mutable column of identity, matched by ID. It backs
// administrative edits; single-field changes use the narrow writes below so a
// concurrent change to another column is never overwritten.
func (s *SQLiteDB) Update(ctx context.Context, identity *models.Identity) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res, err := s.db.ExecContext(ctx, `
        UPDATE users SET
            first_name = ?,
            last_name = ?,
            username = ?,
            email = ?,
            password_hash = ?,
            role = ?,
            is_active = ?,
            is_locked = ?,
            last_login_date = ?,
            last_login_date_display = ?
        WHERE id = ?
    `, identity.FirstName, identity.LastName, identity.Username, identity.Email, identity.PasswordHash,
		string(identity.Role), identity.IsActive, identity.IsLocked,
		nullTime(identity.LastLoginDate), nullTime(identity.LastLoginDateDisplay), identity.ID)
	if err != nil {
		return translate("update user", err)
	}

	return expectOne("update user", res)
}

// SetLocked changes only the lock flag of the identity with id.
func (s *SQLiteDB) SetLocked(ctx context.Context, id int64, locked bool) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE users SET is_locked = ? WHERE id = ?`, locked, id)
	if err != nil {
		return storageErr("lock user", err)
	}
	return expectOne("lock user", res)
}

// SetPasswordHash replaces only the password hash of the identity with id.
func (s *SQLiteDB) SetPasswordHash(ctx context.Context, id int64, hash string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	if err != nil {
		return storageErr("set password", err)
	}
	return expectOne("set password", res)
}

// RecordLogin shifts the previous login time into the display column and stamps
// at as the latest login. With unlock set the lock flag is cleared in the same
// statement; otherwise it is left as stored. The row as written is returned.
func (s *SQLiteDB) RecordLogin(ctx context.Context, id int64, at time.Time, unlock bool) (*models.Identity, error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	row := s.db.QueryRowContext(ctx, `
        UPDATE users SET
            last_login_date_display = last_login_date,
            last_login_date = ?,
            is_locked = CASE WHEN ? THEN 0 ELSE is_locked END
        WHERE id = ?
        RETURNING `+userColumns, at.UnixNano(), unlock, id)
	return s.scan(row)
}

// Delete removes the identity owning username.
func (s *SQLiteDB) Delete(ctx context.Context, username string) error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return storageErr("delete user", err)
	}

	return expectOne("delete user", res)
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteDB) scan(row scanner) (*models.Identity, error) {
	var (
		user             models.Identity
		role             string
		joinDate         int64
		lastLogin        sql.NullInt64
		lastLoginDisplay sql.NullInt64
	)

	err := row.Scan(
		&user.ID, &user.UserID, &user.FirstName, &user.LastName, &user.Username, &user.Email,
		&user.PasswordHash, &role, &user.IsActive, &user.IsLocked, &joinDate,
		&lastLogin, &lastLoginDisplay,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.ErrIdentityNotFound
		}
		return nil, storageErr("query user", err)
	}

	user.Role = models.Role(role)
	user.Authorities, err = s.roles.Authorities(user.Role)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", user.Username, err)
	}
	user.JoinDate = time.Unix(0, joinDate).UTC()
	user.LastLoginDate = fromNull(lastLogin)
	user.LastLoginDateDisplay = fromNull(lastLoginDisplay)

	return &user, nil
}

// translate maps unique constraint violations to the uniqueness errors and
// everything else to a storage failure.
func translate(op string, err error) error {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		msg := liteErr.Error()
		switch {
		case strings.Contains(msg, "users.username"):
			return fmt.Errorf("%s: %w", op, apierr.ErrUsernameTaken)
		case strings.Contains(msg, "users.email"):
			return fmt.Errorf("%s: %w", op, apierr.ErrEmailTaken)
		}
		// A user_id collision is retryable: the next attempt draws a new id.
		return storageErr(op, err)
	}
	return storageErr(op, err)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, apierr.ErrStorageUnavailable, err)
}

func expectOne(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, apierr.ErrIdentityNotFound)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNull(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}
