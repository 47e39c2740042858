// Package database provides the storage backends used by the import engine.
//
// Three implementations satisfy [Querier]:
//
//   - [Queries]: PostgreSQL through pgx (production)
//   - [SQLite]: a single-file database through modernc.org/sqlite (CLI, small deploys)
//   - [Memory]: an in-process store with fault injection (tests, dry runs)
//
// Every Get* lookup returns [ErrNotFound] when no row matches, so callers can
// implement lookup-before-insert without knowing the driver.
package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Querier is the storage contract of the import engine: filtered lookup,
// insert and update per entity table.
type Querier interface {
	Ping(ctx context.Context) error

	GetRouteByName(ctx context.Context, name string) (int64, error)
	InsertRoute(ctx context.Context, name string) (int64, error)

	GetPopulationByKey(ctx context.Context, arg GetPopulationByKeyParams) (int64, error)
	InsertPopulation(ctx context.Context, arg InsertPopulationParams) (int64, error)

	GetCoordinatorByKey(ctx context.Context, arg GetCoordinatorByKeyParams) (int64, error)
	InsertCoordinator(ctx context.Context, arg InsertCoordinatorParams) (int64, error)

	GetClientByNationalID(ctx context.Context, nationalID string) (int64, error)
	GetClientByName(ctx context.Context, arg GetClientByNameParams) (int64, error)
	InsertClient(ctx context.Context, arg InsertClientParams) (int64, error)
	SetClientGuarantor(ctx context.Context, arg SetClientGuarantorParams) error

	GetGuarantorByNationalID(ctx context.Context, nationalID string) (int64, error)
	GetGuarantorByName(ctx context.Context, name string) (int64, error)
	InsertGuarantor(ctx context.Context, arg InsertGuarantorParams) (int64, error)

	GetCreditByKey(ctx context.Context, arg GetCreditByKeyParams) (GetCreditByKeyRow, error)
	InsertCredit(ctx context.Context, arg InsertCreditParams) (int64, error)

	GetPaymentByKey(ctx context.Context, arg GetPaymentByKeyParams) (GetPaymentByKeyRow, error)
	InsertPayment(ctx context.Context, arg InsertPaymentParams) (int64, error)

	InsertImportRun(ctx context.Context, arg InsertImportRunParams) error
	FinishImportRun(ctx context.Context, arg FinishImportRunParams) error
	ListImportRuns(ctx context.Context, arg ListImportRunsParams) ([]ImportRun, error)
	CountImportRuns(ctx context.Context) (int64, error)
	GetImportRun(ctx context.Context, id pgtype.UUID) (ImportRun, error)
}

var (
	_ Querier = (*Queries)(nil)
	_ Querier = (*SQLite)(nil)
	_ Querier = (*Memory)(nil)
)
