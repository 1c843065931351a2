package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"campusconnect.org/internal/auth"
)

// Store implements auth.Store on PostgreSQL through parameterized queries.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects to PostgreSQL and tunes the pool.
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

// NewStore wraps an existing handle (tests use this with sqlmock).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Users(context.Context) auth.UserStore { return &userStore{db: s.db} }
func (s *Store) RefreshTokens(context.Context) auth.RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}
func (s *Store) Devices(context.Context) auth.DeviceStore { return &deviceStore{db: s.db} }
func (s *Store) Audit(context.Context) auth.AuditStore    { return &auditStore{db: s.db} }

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

const userColumns = `id, email, full_name, password_hash, is_active, deleted_at, created_at, updated_at`

func (s *userStore) Find(ctx context.Context, id string) (*auth.Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1 and deleted_at is null`, id)
	return s.scanIdentity(ctx, row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1 and deleted_at is null`, email)
	return s.scanIdentity(ctx, row)
}

func (s *userStore) scanIdentity(ctx context.Context, row *sql.Row) (*auth.Identity, error) {
	var u auth.Identity
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Active, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select r.name from roles r
		join user_roles ur on ur.role_id = r.id
		where ur.user_id=$1
		order by r.name
	`, u.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		u.Roles = append(u.Roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &u, nil
}

// Refresh token store ------------------------------------------------------

type refreshTokenStore struct{ db *sql.DB }

const refreshColumns = `id, user_id, token_hash, expires_at, created_at, revoked, replaced_by`

func (s *refreshTokenStore) Create(ctx context.Context, rec *auth.RefreshTokenRecord) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens(id, user_id, token_hash, expires_at, created_at, revoked)
		values ($1,$2,$3,$4,$5,false)
	`, rec.ID, rec.UserID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt)
	return err
}

func (s *refreshTokenStore) FindByHash(ctx context.Context, hash string) (*auth.RefreshTokenRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+refreshColumns+` from refresh_tokens where token_hash=$1`, hash)
	return scanRefreshToken(row)
}

// Consume is the single conditional state transition the rotation invariant
// rests on: the update matches only an unrevoked, unexpired row, so out of
// N concurrent consumers exactly one sees rows affected.
func (s *refreshTokenStore) Consume(ctx context.Context, hash string, now time.Time, replacement *auth.RefreshTokenRecord) (*auth.RefreshTokenRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var consumed auth.RefreshTokenRecord
	err = tx.QueryRowContext(ctx, `
		update refresh_tokens
		set revoked=true, replaced_by=$2
		where token_hash=$1 and revoked=false and expires_at > $3
		returning `+refreshColumns+`
	`, hash, replacement.ID, now).Scan(
		&consumed.ID, &consumed.UserID, &consumed.TokenHash, &consumed.ExpiresAt,
		&consumed.CreatedAt, &consumed.Revoked, &consumed.ReplacedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens(id, user_id, token_hash, expires_at, created_at, revoked)
		values ($1,$2,$3,$4,$5,false)
	`, replacement.ID, replacement.UserID, replacement.TokenHash, replacement.ExpiresAt, replacement.CreatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &consumed, nil
}

func (s *refreshTokenStore) Revoke(ctx context.Context, hash string) error {
	// Idempotent: unknown and already-revoked hashes are both no-ops.
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where token_hash=$1`, hash)
	return err
}

// chainLimit bounds the walk so a corrupted ledger cannot loop forever.
const chainLimit = 1000

func (s *refreshTokenStore) RevokeChain(ctx context.Context, hash string) (int, error) {
	root, err := s.FindByHash(ctx, hash)
	if err != nil {
		return 0, err
	}

	revoked := 0
	id := root.ID
	for i := 0; i < chainLimit; i++ {
		res, err := s.db.ExecContext(ctx,
			`update refresh_tokens set revoked=true where id=$1 and revoked=false`, id)
		if err != nil {
			return revoked, err
		}
		if n, err := res.RowsAffected(); err == nil {
			revoked += int(n)
		}

		var next sql.NullString
		err = s.db.QueryRowContext(ctx,
			`select replaced_by from refresh_tokens where id=$1`, id).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) || err == nil && !next.Valid {
			return revoked, nil
		}
		if err != nil {
			return revoked, err
		}
		id = next.String
	}
	return revoked, nil
}

func scanRefreshToken(row *sql.Row) (*auth.RefreshTokenRecord, error) {
	var rec auth.RefreshTokenRecord
	err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt, &rec.CreatedAt, &rec.Revoked, &rec.ReplacedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Device store -------------------------------------------------------------

type deviceStore struct{ db *sql.DB }

func (s *deviceStore) Create(ctx context.Context, d *auth.Device) error {
	_, err := s.db.ExecContext(ctx, `
		insert into devices(id, device_code, name, location, api_key_hash, allowed_ip, is_active, created_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),$7,$8)
	`, d.ID, d.Code, d.Name, d.Location, d.APIKeyHash, d.AllowedIP, d.Active, d.CreatedAt)
	return err
}

func (s *deviceStore) Find(ctx context.Context, id string) (*auth.Device, error) {
	row := s.db.QueryRowContext(ctx, `
		select id, device_code, name, location, api_key_hash, coalesce(allowed_ip,''), is_active, last_seen_at, created_at
		from devices where id=$1
	`, id)
	var d auth.Device
	err := row.Scan(&d.ID, &d.Code, &d.Name, &d.Location, &d.APIKeyHash, &d.AllowedIP, &d.Active, &d.LastSeenAt, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *deviceStore) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update devices set last_seen_at=$2 where id=$1`, id, at)
	return err
}

// Audit store --------------------------------------------------------------

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *auth.AuditEntry) error {
	meta, _ := json.Marshal(entry.Metadata)
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs(id, occurred_at, actor_user_id, actor_roles, action, entity_type, entity_id, metadata, ip_address, user_agent)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.ID, entry.OccurredAt, entry.ActorID, strings.Join(entry.ActorRoles, ","),
		entry.Action, entry.EntityType, entry.EntityID, meta, entry.IPAddress, entry.UserAgent)
	return err
}

func (s *auditStore) List(ctx context.Context, limit, offset int) ([]*auth.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, occurred_at, actor_user_id, actor_roles, action, entity_type, entity_id, metadata, ip_address, user_agent
		from audit_logs
		order by occurred_at desc
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*auth.AuditEntry
	for rows.Next() {
		var (
			entry auth.AuditEntry
			roles string
			meta  []byte
		)
		if err := rows.Scan(&entry.ID, &entry.OccurredAt, &entry.ActorID, &roles, &entry.Action,
			&entry.EntityType, &entry.EntityID, &meta, &entry.IPAddress, &entry.UserAgent); err != nil {
			return nil, err
		}
		if roles != "" {
			entry.ActorRoles = strings.Split(roles, ",")
		}
		_ = json.Unmarshal(meta, &entry.Metadata)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
