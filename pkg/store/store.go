package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pershin-daniil/MeetingBoard/pkg/metrics"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations
var migrations embed.FS

const retries = 3

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

var (
	ErrNotFound   = errors.New("resource doesn't exist")
	ErrConstraint = errors.New("constraint violation")
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// ConstraintError is returned when a write violates a schema constraint.
type ConstraintError struct {
	Unique bool
	Err    error
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violation: %v", e.Err)
}

func (e *ConstraintError) Unwrap() error {
	return e.Err
}

func (e *ConstraintError) Is(target error) bool {
	return target == ErrConstraint
}

type Store struct {
	log    *logrus.Entry
	db     *sqlx.DB
	driver string
}

func New(ctx context.Context, log *logrus.Logger, driver, dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error
	for i := 0; i < retries; i++ {
		if db, err = sqlx.ConnectContext(ctx, driver, dsn); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("err connecting to %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// a single writer keeps the per-request file consistent
		db.SetMaxOpenConns(1)
	}
	return &Store{
		log:    log.WithField("component", "store"),
		db:     db,
		driver: driver,
	}, nil
}

// SQLiteDSN builds a modernc DSN for the database file at path.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(DELETE)&_time_format=sqlite"
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Migrate(direction migrate.MigrationDirection) error {
	dir, dialect := "migrations/sqlite", "sqlite3"
	if s.driver == DriverPostgres {
		dir, dialect = "migrations/postgres", "postgres"
	}
	assetDir := func() func(string) ([]string, error) {
		return func(path string) ([]string, error) {
			dirEntry, er := migrations.ReadDir(path)
			if er != nil {
				return nil, er
			}
			entries := make([]string, 0, len(dirEntry))
			for _, e := range dirEntry {
				entries = append(entries, e.Name())
			}
			return entries, nil
		}
	}()
	asset := migrate.AssetMigrationSource{
		Asset:    migrations.ReadFile,
		AssetDir: assetDir,
		Dir:      dir,
	}
	if _, err := migrate.Exec(s.db.DB, dialect, asset, direction); err != nil {
		return fmt.Errorf("err applying migrations: %w", err)
	}
	return nil
}

// TxFunc is a unit of work run inside one transaction.
type TxFunc func(ctx context.Context, tx *Tx) error

// InTx runs fn inside a single transaction. The transaction is rolled back
// when fn fails and committed otherwise.
func (s *Store) InTx(ctx context.Context, fn TxFunc) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("err beginning transaction: %w", err)
	}
	tx := &Tx{log: s.log, tx: sqlTx}
	if err = fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.Warnf("err during rollback: %v", rbErr)
		}
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("err committing transaction: %w", err))
	}
	return nil
}

// View and Mutate let a database server be used directly as the session
// provider; every call gets its own transaction.
func (s *Store) View(ctx context.Context, fn TxFunc) error {
	return s.InTx(ctx, fn)
}

func (s *Store) Mutate(ctx context.Context, fn TxFunc) error {
	return s.InTx(ctx, fn)
}

// Tx is the per-request unit of work handed to the service layer.
type Tx struct {
	log *logrus.Entry
	tx  *sqlx.Tx
}

func (t *Tx) observe(method string, start time.Time, err error) {
	metrics.StoreDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, ErrNotFound) {
		metrics.StoreErrCount.WithLabelValues(method).Inc()
	}
}

func (t *Tx) q(query string) string {
	return t.tx.Rebind(query)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code&0xff == sqlite3.SQLITE_CONSTRAINT {
			unique := code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
				strings.Contains(liteErr.Error(), "UNIQUE")
			return &ConstraintError{Unique: unique, Err: err}
		}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return &ConstraintError{Unique: pgErr.Code == "23505", Err: err}
	}
	return err
}
