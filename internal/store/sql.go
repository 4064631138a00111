package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
	"github.com/pressly/goose/v3"

	"github.com/atlet99/requisition-sync/internal/requisition"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
	DriverMemory   = "memory"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const selectColumns = `id, title, description, department, location, employment_type, status,
	salary, requirements, benefits, custom_fields, headcount_plan_id, created_at, updated_at`

// row is the requisitions table layout
type row struct {
	ID              string         `db:"id"`
	Title           string         `db:"title"`
	Description     string         `db:"description"`
	Department      string         `db:"department"`
	Location        string         `db:"location"`
	EmploymentType  string         `db:"employment_type"`
	Status          string         `db:"status"`
	Salary          sql.NullString `db:"salary"`
	Requirements    sql.NullString `db:"requirements"`
	Benefits        sql.NullString `db:"benefits"`
	CustomFields    sql.NullString `db:"custom_fields"`
	HeadcountPlanID string         `db:"headcount_plan_id"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

// SQLStore keeps requisitions in SQLite or PostgreSQL through one sqlx code path.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	logger *slog.Logger
}

// OpenSQL connects to driver/dsn. SQLite connections get WAL, a busy
// timeout and a single writer.
func OpenSQL(ctx context.Context, driver, dsn string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	logger.Info("Connected to requisition store", "driver", driver)
	return NewSQLStore(db, driver, logger), nil
}

// NewSQLStore wraps an open connection
func NewSQLStore(db *sqlx.DB, driver string, logger *slog.Logger) *SQLStore {
	return &SQLStore{db: db, driver: driver, logger: logger}
}

func applyPragmas(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Migrate applies the embedded goose migrations
func (s *SQLStore) Migrate(ctx context.Context) error {
	dialect := goose.DialectSQLite3
	if s.driver == DriverPostgres {
		dialect = goose.DialectPostgres
	}

	migrations, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, s.db.DB, migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	for _, result := range results {
		s.logger.Info("Applied store migration",
			"version", result.Source.Version,
			"duration_ms", result.Duration.Milliseconds())
	}
	return nil
}

// Put upserts the full record
func (s *SQLStore) Put(ctx context.Context, r *requisition.Requisition) error {
	values := []any{r.ID, r.Title, r.Description, r.Department, r.Location, r.EmploymentType, r.Status}
	for _, v := range []any{r.Salary, r.Requirements, r.Benefits, r.CustomFields} {
		encoded, err := encodeJSON(v)
		if err != nil {
			return err
		}
		values = append(values, encoded)
	}
	values = append(values, r.HeadcountPlanID, r.CreatedAt, r.UpdatedAt)

	query := s.db.Rebind(`INSERT INTO requisitions (` + selectColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		department = excluded.department,
		location = excluded.location,
		employment_type = excluded.employment_type,
		status = excluded.status,
		salary = excluded.salary,
		requirements = excluded.requirements,
		benefits = excluded.benefits,
		custom_fields = excluded.custom_fields,
		headcount_plan_id = excluded.headcount_plan_id,
		created_at = excluded.created_at,
		updated_at = excluded.updated_at`)

	if _, err := s.db.ExecContext(ctx, query, values...); err != nil {
		return fmt.Errorf("failed to put requisition %s: %w", r.ID, err)
	}
	return nil
}

// Get loads one record
func (s *SQLStore) Get(ctx context.Context, id string) (*requisition.Requisition, error) {
	var rec row
	query := s.db.Rebind(`SELECT ` + selectColumns + ` FROM requisitions WHERE id = ?`)
	if err := s.db.GetContext(ctx, &rec, query, id); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get requisition %s: %w", id, err)
	}
	return rec.toRequisition()
}

// UpdateFields writes a targeted SET for the supplied fields only
func (s *SQLStore) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		column, ok := columns[name]
		if !ok {
			return fmt.Errorf("field %s cannot be updated", name)
		}
		value, err := columnValue(column, fields[name])
		if err != nil {
			return err
		}
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	args = append(args, id)

	query := s.db.Rebind(`UPDATE requisitions SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update requisition %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetHeadcountPlanID records the linked plan
func (s *SQLStore) SetHeadcountPlanID(ctx context.Context, id, planID, updatedAt string) error {
	return s.UpdateFields(ctx, id, map[string]any{
		requisition.FieldHeadcountPlanID: planID,
		requisition.FieldUpdatedAt:       updatedAt,
	})
}

// UpdateStatus sets the status and stamps updatedAt
func (s *SQLStore) UpdateStatus(ctx context.Context, id, status, updatedAt string) error {
	return s.UpdateFields(ctx, id, map[string]any{
		requisition.FieldStatus:    status,
		requisition.FieldUpdatedAt: updatedAt,
	})
}

// Delete removes a record
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM requisitions WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete requisition %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping checks the connection
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (r *row) toRequisition() (*requisition.Requisition, error) {
	req := &requisition.Requisition{
		ID:              r.ID,
		Title:           r.Title,
		Description:     r.Description,
		Department:      r.Department,
		Location:        r.Location,
		EmploymentType:  r.EmploymentType,
		Status:          r.Status,
		HeadcountPlanID: r.HeadcountPlanID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}

	decode := func(col sql.NullString, dst any) error {
		if !col.Valid || col.String == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(col.String), dst); err != nil {
			return fmt.Errorf("failed to decode stored requisition %s: %w", r.ID, err)
		}
		return nil
	}

	if err := decode(r.Salary, &req.Salary); err != nil {
		return nil, err
	}
	if err := decode(r.Requirements, &req.Requirements); err != nil {
		return nil, err
	}
	if err := decode(r.Benefits, &req.Benefits); err != nil {
		return nil, err
	}
	if err := decode(r.CustomFields, &req.CustomFields); err != nil {
		return nil, err
	}
	return req, nil
}
