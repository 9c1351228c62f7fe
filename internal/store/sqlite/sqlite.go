package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/snuz/internal/store"
)

//go:embed schema.sql
var schema string

const dsnOptions = "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// ApplySchema creates the tables if they do not exist.
func ApplySchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// New opens the SQLite database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, ApplySchema)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema or seed data.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

const userColumns = `
	u.username, u.owns_a_group, u.score, u.average_minutes_slept, u.is_asleep,
	u.last_sleep_time, u.last_awake_time, u.current_snooze_counter, m.group_id, u.created_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*store.User, error) {
	var (
		user      store.User
		avg       sql.NullInt64
		lastSleep sql.NullTime
		lastAwake sql.NullTime
		groupID   sql.NullString
	)
	if err := row.Scan(
		&user.Username,
		&user.OwnsAGroup,
		&user.Score,
		&avg,
		&user.IsAsleep,
		&lastSleep,
		&lastAwake,
		&user.CurrentSnoozeCounter,
		&groupID,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}

	if avg.Valid {
		v := int(avg.Int64)
		user.AverageMinutesSlept = &v
	}
	user.LastSleepTime = timePtr(lastSleep)
	user.LastAwakeTime = timePtr(lastAwake)
	if groupID.Valid {
		user.GroupID = &groupID.String
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// CreateUser inserts a new user.
func (s *SQLiteStore) CreateUser(ctx context.Context, username string) (*store.User, error) {
	query := `
		INSERT INTO users (username, score)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, username, store.DefaultScore); err != nil {
		if isConstraint(err) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.GetUser(ctx, username)
}

// GetUser retrieves a user by username.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*store.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users u
		LEFT JOIN group_members m ON m.username = u.username
		WHERE u.username = ?
	`
	user, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// ListUsers lists all users ordered by username.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users u
		LEFT JOIN group_members m ON m.username = u.username
		ORDER BY u.username
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// UpdateUserSleep persists the sleep related fields of u.
func (s *SQLiteStore) UpdateUserSleep(ctx context.Context, u *store.User) error {
	query := `
		UPDATE users
		SET score = ?, average_minutes_slept = ?, is_asleep = ?,
			last_sleep_time = ?, last_awake_time = ?, current_snooze_counter = ?
		WHERE username = ?
	`
	var avg sql.NullInt64
	if u.AverageMinutesSlept != nil {
		avg = sql.NullInt64{Int64: int64(*u.AverageMinutesSlept), Valid: true}
	}
	result, err := s.db.ExecContext(ctx, query,
		u.Score,
		avg,
		u.IsAsleep,
		nullTime(u.LastSleepTime),
		nullTime(u.LastAwakeTime),
		u.CurrentSnoozeCounter,
		u.Username,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectOneRow(result, "user", u.Username)
}

// ==== GroupStore implementation ====

// CreateGroup inserts the group, its members and marks the owner.
func (s *SQLiteStore) CreateGroup(ctx context.Context, g *store.Group) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // Rollback is called on defer, error is not critical here
	}()

	query := `
		INSERT INTO sleep_groups (id, owner_username, to_sleep_time, to_wake_up_time, duration_days, days_remaining, start_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		g.ID,
		g.OwnerUsername,
		g.ToSleepTime.UTC(),
		g.ToWakeUpTime.UTC(),
		g.DurationDays,
		g.DaysRemaining,
		g.StartDate.UTC(),
	); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}

	memberQuery := `
		INSERT INTO group_members (username, group_id)
		VALUES (?, ?)
	`
	for _, member := range g.Members {
		if _, err := tx.ExecContext(ctx, memberQuery, member, g.ID); err != nil {
			if isConstraint(err) {
				return fmt.Errorf("member %q: %w", member, store.ErrAlreadyInGroup)
			}
			return fmt.Errorf("add member %q: %w", member, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE users SET owns_a_group = 1 WHERE username = ?`, g.OwnerUsername); err != nil {
		return fmt.Errorf("mark owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group and its members.
func (s *SQLiteStore) GetGroup(ctx context.Context, id string) (*store.Group, error) {
	query := `
		SELECT id, COALESCE(owner_username, ''), to_sleep_time, to_wake_up_time,
			duration_days, days_remaining, start_date, created_at
		FROM sleep_groups
		WHERE id = ?
	`
	var g store.Group
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&g.ID,
		&g.OwnerUsername,
		&g.ToSleepTime,
		&g.ToWakeUpTime,
		&g.DurationDays,
		&g.DaysRemaining,
		&g.StartDate,
		&g.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("group %q: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query group: %w", err)
	}
	g.ToSleepTime = g.ToSleepTime.UTC()
	g.ToWakeUpTime = g.ToWakeUpTime.UTC()
	g.StartDate = g.StartDate.UTC()
	g.CreatedAt = g.CreatedAt.UTC()

	members, err := s.listMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Members = members
	return &g, nil
}

func (s *SQLiteStore) listMembers(ctx context.Context, groupID string) ([]string, error) {
	query := `
		SELECT username
		FROM group_members
		WHERE group_id = ?
		ORDER BY joined_at, username
	`
	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("query members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, username)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return members, nil
}

// UpdateGroupSchedule persists the goals and the remaining day count.
func (s *SQLiteStore) UpdateGroupSchedule(ctx context.Context, g *store.Group) error {
	query := `
		UPDATE sleep_groups
		SET to_sleep_time = ?, to_wake_up_time = ?, days_remaining = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, g.ToSleepTime.UTC(), g.ToWakeUpTime.UTC(), g.DaysRemaining, g.ID)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return expectOneRow(result, "group", g.ID)
}

// DeleteGroup removes the group, releases its members and clears the owner flag.
func (s *SQLiteStore) DeleteGroup(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // Rollback is called on defer, error is not critical here
	}()

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET owns_a_group = 0
		WHERE username = (SELECT owner_username FROM sleep_groups WHERE id = ?)
	`, id); err != nil {
		return fmt.Errorf("clear owner: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, id); err != nil {
		return fmt.Errorf("delete members: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM sleep_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if err := expectOneRow(result, "group", id); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func expectOneRow(result sql.Result, kind, key string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", kind, key, store.ErrNotFound)
	}
	return nil
}

func isConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
