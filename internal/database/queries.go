package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

//go:embed schema.sql
var postgresSchema string

// Queries implements Querier on PostgreSQL.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to a pool or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Migrate creates the import tables if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// scanID reads a single id column, translating pgx.ErrNoRows to ErrNotFound.
func scanID(row pgx.Row) (int64, error) {
	var id int64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (q *Queries) Ping(ctx context.Context) error {
	_, err := q.db.Exec(ctx, "SELECT 1")
	return err
}

const getRouteByName = `SELECT id FROM routes WHERE name = $1`

func (q *Queries) GetRouteByName(ctx context.Context, name string) (int64, error) {
	return scanID(q.db.QueryRow(ctx, getRouteByName, name))
}

const insertRoute = `INSERT INTO routes (name) VALUES ($1) RETURNING id`

func (q *Queries) InsertRoute(ctx context.Context, name string) (int64, error) {
	return scanID(q.db.QueryRow(ctx, insertRoute, name))
}

const getPopulationByKey = `
SELECT id FROM populations
WHERE name = $1 AND municipality = $2 AND state = $3`

func (q *Queries) GetPopulationByKey(ctx context.Context, arg GetPopulationByKeyParams) (int64, error) {
	return scanID(q.db.QueryRow(ctx, getPopulationByKey, arg.Name, arg.Municipality, arg.State))
}

const insertPopulation = `
INSERT INTO populations (name, municipality, state, route_id)
VALUES ($1, $2, $3, $4)
RETURNING id`

func (q *Queries) InsertPopulation(ctx context.Context, arg InsertPopulationParams) (int64, error) {
	return scanID(q.db.QueryRow(ctx, insertPopulation, arg.Name, arg.Municipality, arg.State, arg.RouteID))
}

const getCoordinatorByKey = `SELECT id FROM coordinators WHERE name = $1 AND population_id = $2`

func (q *Queries) GetCoordinatorByKey(ctx context.Context, arg GetCoordinatorByKeyParams) (int64, error) {
	return scanID(q.db.QueryRow(ctx, getCoordinatorByKey, arg.Name, arg.PopulationID))
}

const insertCoordinator = `
INSERT INTO coordinators (name, population_id, phone, address, birthdate)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

func (q *Queries) InsertCoordinator(ctx context.Context, arg InsertCoordinatorParams) (int64, error) {
	return scanID(q.db.QueryRow(ctx, insertCoordinator,
		arg.Name, arg.PopulationID, arg.Phone, arg.Address, arg.Birthdate))
}

const getClientByNationalID = `SELECT id FROM clients WHERE national_id = $1`

func (q *Queries) GetClientByNationalID(ctx context.Context, nationalID string) (int64, error) {
	return scanID(q.db.QueryRow(ctx, getClientByNationalID, nationalID))
}

const getClientByName = `
SELECT id FROM clients
WHERE name = $1 AND population_id = $2 AND national_id IS NULL`

func (q *Queries) GetClientByName(ctx context.Context, arg GetClientByNameParams) (int64, error) {
	return scanID(q.db.QueryRow(ctx, getClientByName, arg.Name, arg.PopulationID))
}

const insertClient = `
INSERT INTO clients (name, national_id, address, population_id)
VALUES ($1, $2, $3, $4)
RETURNING id`

func (q *Queries) InsertClient(ctx context.Context, arg InsertClientParams) (int64, error) {
	return scanID(q.db.QueryRow(ctx, insertClient, arg.Name, arg.NationalID, arg.Address, arg.PopulationID))
}

const setClientGuarantor = `UPDATE clients SET guarantor_id = $2 WHERE id = $1`

func (q *Queries) SetClientGuarantor(ctx context.Context, arg SetClientGuarantorParams) error {
	tag, err := q.db.Exec(ctx, setClientGuarantor, arg.ClientID, arg.GuarantorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const getGuarantorByNationalID = `SELECT id FROM guarantors WHERE national_id = $1`

func (q *Queries) GetGuarantorByNationalID(ctx context.Context, nationalID string) (int64, error) {
	return scanID(q.db.QueryRow(ctx, getGuarantorByNationalID, nationalID))
}

const getGuarantorByName = `SELECT id FROM guarantors WHERE name = $1 AND national_id IS NULL`

func (q *Queries) GetGuarantorByName(ctx context.Context, name string) (int64, error) {
	return scanID(q.db.QueryRow(ctx, getGuarantorByName, name))
}

const insertGuarantor = `
INSERT INTO guarantors (name, national_id, address)
VALUES ($1, $2, $3)
RETURNING id`

func (q *Queries) InsertGuarantor(ctx context.Context, arg InsertGuarantorParams) (int64, error) {
	return scanID(q.db.QueryRow(ctx, insertGuarantor, arg.Name, arg.NationalID, arg.Address))
}

const getCreditByKey = `
SELECT id, client_id, coordinator_id
FROM credits
WHERE population_id = $1 AND external_key = $2`

func (q *Queries) GetCreditByKey(ctx context.Context, arg GetCreditByKeyParams) (GetCreditByKeyRow, error) {
	var row GetCreditByKeyRow
	err := q.db.QueryRow(ctx, getCreditByKey, arg.PopulationID, arg.ExternalKey).
		Scan(&row.ID, &row.ClientID, &row.CoordinatorID)
	if errors.Is(err, pgx.ErrNoRows) {
		return GetCreditByKeyRow{}, ErrNotFound
	}
	return row, err
}

const insertCredit = `
INSERT INTO credits (
    client_id, coordinator_id, population_id, route_id, external_key,
    term_weeks, principal, weekly_quota, total_due, overdue_balance,
    weeks_overdue, penalty, collection_day, notes, disbursement_date
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING id`

func (q *Queries) InsertCredit(ctx context.Context, arg InsertCreditParams) (int64, error) {
	return scanID(q.db.QueryRow(ctx, insertCredit,
		arg.ClientID,
		arg.CoordinatorID,
		arg.PopulationID,
		arg.RouteID,
		arg.ExternalKey,
		arg.TermWeeks,
		arg.Principal,
		arg.WeeklyQuota,
		arg.TotalDue,
		arg.OverdueBalance,
		arg.WeeksOverdue,
		arg.Penalty,
		arg.CollectionDay,
		arg.Notes,
		arg.DisbursementDate,
	))
}

const getPaymentByKey = `SELECT id, amount FROM payments WHERE credit_id = $1 AND paid_on = $2`

func (q *Queries) GetPaymentByKey(ctx context.Context, arg GetPaymentByKeyParams) (GetPaymentByKeyRow, error) {
	var row GetPaymentByKeyRow
	err := q.db.QueryRow(ctx, getPaymentByKey, arg.CreditID, arg.PaidOn).Scan(&row.ID, &row.Amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return GetPaymentByKeyRow{}, ErrNotFound
	}
	return row, err
}

const insertPayment = `
INSERT INTO payments (credit_id, paid_on, amount)
VALUES ($1, $2, $3)
RETURNING id`

func (q *Queries) InsertPayment(ctx context.Context, arg InsertPaymentParams) (int64, error) {
	return scanID(q.db.QueryRow(ctx, insertPayment, arg.CreditID, arg.PaidOn, arg.Amount))
}

const insertImportRun = `
INSERT INTO import_runs (id, session_id, file_name, started_at)
VALUES ($1, $2, $3, $4)`

func (q *Queries) InsertImportRun(ctx context.Context, arg InsertImportRunParams) error {
	_, err := q.db.Exec(ctx, insertImportRun, arg.ID, arg.SessionID, arg.FileName, arg.StartedAt)
	return err
}

const finishImportRun = `
UPDATE import_runs
SET finished_at = now(), global_ok = $2, report_text = $3
WHERE id = $1`

func (q *Queries) FinishImportRun(ctx context.Context, arg FinishImportRunParams) error {
	_, err := q.db.Exec(ctx, finishImportRun, arg.ID, arg.GlobalOK, arg.ReportText)
	return err
}

const importRunColumns = `id, session_id, file_name, started_at, finished_at, global_ok, report_text`

func scanImportRun(row pgx.Row) (ImportRun, error) {
	var r ImportRun
	err := row.Scan(&r.ID, &r.SessionID, &r.FileName, &r.StartedAt, &r.FinishedAt, &r.GlobalOK, &r.ReportText)
	return r, err
}

const listImportRuns = `
SELECT ` + importRunColumns + `
FROM import_runs
ORDER BY started_at DESC
LIMIT $1 OFFSET $2`

func (q *Queries) ListImportRuns(ctx context.Context, arg ListImportRunsParams) ([]ImportRun, error) {
	rows, err := q.db.Query(ctx, listImportRuns, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		r, err := scanImportRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

const countImportRuns = `SELECT COUNT(*) FROM import_runs`

func (q *Queries) CountImportRuns(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countImportRuns).Scan(&n)
	return n, err
}

const getImportRun = `SELECT ` + importRunColumns + ` FROM import_runs WHERE id = $1`

func (q *Queries) GetImportRun(ctx context.Context, id pgtype.UUID) (ImportRun, error) {
	r, err := scanImportRun(q.db.QueryRow(ctx, getImportRun, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportRun{}, ErrNotFound
	}
	return r, err
}
