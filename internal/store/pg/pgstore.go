package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"selco.dev/staffauth/internal/auth"
	"selco.dev/staffauth/internal/ids"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

var (
	_ auth.AccountStore = (*Store)(nil)
	_ auth.AuditStore   = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db), nil
}

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const accountColumns = `id, email, password_hash, class, status, name, department, job_title, national_id, created_at, updated_at`

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Account, error) {
	row := s.db.QueryRowContext(ctx, `select `+accountColumns+` from accounts where email=$1`, email)
	var acc auth.Account
	err := row.Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.Class, &acc.Status,
		&acc.Profile.Name, &acc.Profile.Department, &acc.Profile.JobTitle, &acc.Profile.NationalID,
		&acc.CreatedAt, &acc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *Store) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from accounts where email=$1)`, email).Scan(&exists)
	return exists, err
}

// Save inserts new accounts and updates existing ones. The unique index on
// email decides concurrent registrations.
func (s *Store) Save(ctx context.Context, acc *auth.Account) error {
	if acc.ID == "" {
		acc.ID = ids.New()
		_, err := s.db.ExecContext(ctx,
			`insert into accounts(`+accountColumns+`) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			acc.ID, acc.Email, acc.PasswordHash, acc.Class, acc.Status,
			acc.Profile.Name, acc.Profile.Department, acc.Profile.JobTitle, acc.Profile.NationalID,
			acc.CreatedAt, acc.UpdatedAt,
		)
		if isUniqueViolation(err) {
			acc.ID = ""
			return auth.ErrAlreadyExists
		}
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update accounts
		set email=$2, password_hash=$3, class=$4, status=$5, name=$6, department=$7,
		    job_title=$8, national_id=$9, updated_at=$10
		where id=$1`,
		acc.ID, acc.Email, acc.PasswordHash, acc.Class, acc.Status,
		acc.Profile.Name, acc.Profile.Department, acc.Profile.JobTitle, acc.Profile.NationalID,
		acc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *Store) Append(ctx context.Context, entry *auth.AccessLogEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into access_log(id, actor_id, email, action, success, reason, ip, user_agent, occurred_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		entry.ID, nullable(entry.ActorID), entry.Email, entry.Action, entry.Success,
		string(entry.Reason), entry.IP, entry.UserAgent, entry.OccurredAt,
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
