package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

const sqliteDateLayout = "2006-01-02"

// SQLite implements Querier on a single-file database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY and keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// DB exposes the underlying handle for inspection.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) queryID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (s *SQLite) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLite) GetRouteByName(ctx context.Context, name string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM routes WHERE name = ?`, name)
}

func (s *SQLite) InsertRoute(ctx context.Context, name string) (int64, error) {
	return s.insertID(ctx, `INSERT INTO routes (name) VALUES (?)`, name)
}

func (s *SQLite) GetPopulationByKey(ctx context.Context, arg GetPopulationByKeyParams) (int64, error) {
	return s.queryID(ctx,
		`SELECT id FROM populations WHERE name = ? AND municipality = ? AND state = ?`,
		arg.Name, arg.Municipality, arg.State)
}

func (s *SQLite) InsertPopulation(ctx context.Context, arg InsertPopulationParams) (int64, error) {
	return s.insertID(ctx,
		`INSERT INTO populations (name, municipality, state, route_id) VALUES (?, ?, ?, ?)`,
		arg.Name, arg.Municipality, arg.State, sqlInt8(arg.RouteID))
}

func (s *SQLite) GetCoordinatorByKey(ctx context.Context, arg GetCoordinatorByKeyParams) (int64, error) {
	return s.queryID(ctx,
		`SELECT id FROM coordinators WHERE name = ? AND population_id = ?`,
		arg.Name, arg.PopulationID)
}

func (s *SQLite) InsertCoordinator(ctx context.Context, arg InsertCoordinatorParams) (int64, error) {
	return s.insertID(ctx,
		`INSERT INTO coordinators (name, population_id, phone, address, birthdate) VALUES (?, ?, ?, ?, ?)`,
		arg.Name, arg.PopulationID, sqlText(arg.Phone), sqlText(arg.Address), sqlDate(arg.Birthdate))
}

func (s *SQLite) GetClientByNationalID(ctx context.Context, nationalID string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM clients WHERE national_id = ?`, nationalID)
}

func (s *SQLite) GetClientByName(ctx context.Context, arg GetClientByNameParams) (int64, error) {
	return s.queryID(ctx,
		`SELECT id FROM clients WHERE name = ? AND population_id = ? AND national_id IS NULL`,
		arg.Name, arg.PopulationID)
}

func (s *SQLite) InsertClient(ctx context.Context, arg InsertClientParams) (int64, error) {
	return s.insertID(ctx,
		`INSERT INTO clients (name, national_id, address, population_id) VALUES (?, ?, ?, ?)`,
		arg.Name, sqlText(arg.NationalID), sqlText(arg.Address), arg.PopulationID)
}

func (s *SQLite) SetClientGuarantor(ctx context.Context, arg SetClientGuarantorParams) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET guarantor_id = ? WHERE id = ?`, arg.GuarantorID, arg.ClientID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) GetGuarantorByNationalID(ctx context.Context, nationalID string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM guarantors WHERE national_id = ?`, nationalID)
}

func (s *SQLite) GetGuarantorByName(ctx context.Context, name string) (int64, error) {
	return s.queryID(ctx, `SELECT id FROM guarantors WHERE name = ? AND national_id IS NULL`, name)
}

func (s *SQLite) InsertGuarantor(ctx context.Context, arg InsertGuarantorParams) (int64, error) {
	return s.insertID(ctx,
		`INSERT INTO guarantors (name, national_id, address) VALUES (?, ?, ?)`,
		arg.Name, sqlText(arg.NationalID), sqlText(arg.Address))
}

func (s *SQLite) GetCreditByKey(ctx context.Context, arg GetCreditByKeyParams) (GetCreditByKeyRow, error) {
	var (
		row                 GetCreditByKeyRow
		client, coordinator sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, client_id, coordinator_id FROM credits WHERE population_id = ? AND external_key = ?`,
		arg.PopulationID, arg.ExternalKey).Scan(&row.ID, &client, &coordinator)
	if errors.Is(err, sql.ErrNoRows) {
		return GetCreditByKeyRow{}, ErrNotFound
	}
	if err != nil {
		return GetCreditByKeyRow{}, err
	}
	row.ClientID = pgtype.Int8{Int64: client.Int64, Valid: client.Valid}
	row.CoordinatorID = pgtype.Int8{Int64: coordinator.Int64, Valid: coordinator.Valid}
	return row, nil
}

func (s *SQLite) InsertCredit(ctx context.Context, arg InsertCreditParams) (int64, error) {
	return s.insertID(ctx, `
		INSERT INTO credits (
			client_id, coordinator_id, population_id, route_id, external_key,
			term_weeks, principal, weekly_quota, total_due, overdue_balance,
			weeks_overdue, penalty, collection_day, notes, disbursement_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sqlInt8(arg.ClientID),
		sqlInt8(arg.CoordinatorID),
		arg.PopulationID,
		sqlInt8(arg.RouteID),
		arg.ExternalKey,
		arg.TermWeeks,
		arg.Principal.StringFixed(2),
		arg.WeeklyQuota.StringFixed(2),
		sqlDecimal(arg.TotalDue),
		sqlDecimal(arg.OverdueBalance),
		sqlInt4(arg.WeeksOverdue),
		sqlText(arg.Penalty),
		sqlText(arg.CollectionDay),
		sqlText(arg.Notes),
		sqlDate(arg.DisbursementDate),
	)
}

func (s *SQLite) GetPaymentByKey(ctx context.Context, arg GetPaymentByKeyParams) (GetPaymentByKeyRow, error) {
	var (
		row    GetPaymentByKeyRow
		amount string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, amount FROM payments WHERE credit_id = ? AND paid_on = ?`,
		arg.CreditID, arg.PaidOn.Format(sqliteDateLayout)).Scan(&row.ID, &amount)
	if errors.Is(err, sql.ErrNoRows) {
		return GetPaymentByKeyRow{}, ErrNotFound
	}
	if err != nil {
		return GetPaymentByKeyRow{}, err
	}
	if row.Amount, err = decimal.NewFromString(amount); err != nil {
		return GetPaymentByKeyRow{}, fmt.Errorf("payment %d amount %q: %w", row.ID, amount, err)
	}
	return row, nil
}

func (s *SQLite) InsertPayment(ctx context.Context, arg InsertPaymentParams) (int64, error) {
	return s.insertID(ctx,
		`INSERT INTO payments (credit_id, paid_on, amount) VALUES (?, ?, ?)`,
		arg.CreditID, arg.PaidOn.Format(sqliteDateLayout), arg.Amount.StringFixed(2))
}

func (s *SQLite) InsertImportRun(ctx context.Context, arg InsertImportRunParams) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO import_runs (id, session_id, file_name, started_at) VALUES (?, ?, ?, ?)`,
		uuid.UUID(arg.ID.Bytes).String(), arg.SessionID, arg.FileName,
		arg.StartedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *SQLite) FinishImportRun(ctx context.Context, arg FinishImportRunParams) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE import_runs SET finished_at = ?, global_ok = ?, report_text = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), arg.GlobalOK, arg.ReportText,
		uuid.UUID(arg.ID.Bytes).String())
	return err
}

const sqliteImportRunColumns = `id, session_id, file_name, started_at, finished_at, global_ok, report_text`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteImportRun(row rowScanner) (ImportRun, error) {
	var (
		r                ImportRun
		id, started      string
		finished, report sql.NullString
		ok               sql.NullBool
	)
	if err := row.Scan(&id, &r.SessionID, &r.FileName, &started, &finished, &ok, &report); err != nil {
		return ImportRun{}, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return ImportRun{}, fmt.Errorf("import run id %q: %w", id, err)
	}
	r.ID = pgtype.UUID{Bytes: parsed, Valid: true}
	if r.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return ImportRun{}, fmt.Errorf("import run started_at %q: %w", started, err)
	}
	if finished.Valid {
		t, err := time.Parse(time.RFC3339, finished.String)
		if err != nil {
			return ImportRun{}, fmt.Errorf("import run finished_at %q: %w", finished.String, err)
		}
		r.FinishedAt = pgtype.Timestamptz{Time: t, Valid: true}
	}
	r.GlobalOK = pgtype.Bool{Bool: ok.Bool, Valid: ok.Valid}
	r.ReportText = pgtype.Text{String: report.String, Valid: report.Valid}
	return r, nil
}

func (s *SQLite) ListImportRuns(ctx context.Context, arg ListImportRunsParams) ([]ImportRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteImportRunColumns+` FROM import_runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		r, err := scanSQLiteImportRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *SQLite) CountImportRuns(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM import_runs`).Scan(&n)
	return n, err
}

func (s *SQLite) GetImportRun(ctx context.Context, id pgtype.UUID) (ImportRun, error) {
	r, err := scanSQLiteImportRun(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteImportRunColumns+` FROM import_runs WHERE id = ?`,
		uuid.UUID(id.Bytes).String()))
	if errors.Is(err, sql.ErrNoRows) {
		return ImportRun{}, ErrNotFound
	}
	return r, err
}

// Counts returns the number of rows per entity table.
func (s *SQLite) Counts(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, table := range []string{"routes", "populations", "coordinators", "clients", "guarantors", "credits", "payments", "import_runs"} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// Nullable pgtype values are converted to plain driver values so the
// stored representation does not depend on pgtype's Valuer output.

func sqlText(v pgtype.Text) any {
	if !v.Valid {
		return nil
	}
	return v.String
}

func sqlInt8(v pgtype.Int8) any {
	if !v.Valid {
		return nil
	}
	return v.Int64
}

func sqlInt4(v pgtype.Int4) any {
	if !v.Valid {
		return nil
	}
	return int64(v.Int32)
}

func sqlDate(v pgtype.Date) any {
	if !v.Valid {
		return nil
	}
	return v.Time.Format(sqliteDateLayout)
}

func sqlDecimal(v decimal.NullDecimal) any {
	if !v.Valid {
		return nil
	}
	return v.Decimal.StringFixed(2)
}
