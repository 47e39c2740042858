package database

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// ErrUniqueViolation is returned by Memory when an insert collides with a
// natural key. It mirrors the unique indexes of the SQL schemas.
var ErrUniqueViolation = errors.New("unique constraint violated")

// Memory is an in-process Querier. It enforces the same natural keys as the
// SQL schemas and supports fault injection through FailOn.
type Memory struct {
	mu sync.Mutex

	// FailOn, when set, is consulted before every operation with the method
	// name (e.g. "InsertCredit"). A non-nil result is returned unchanged.
	FailOn func(op string) error

	nextID int64
	calls  map[string]int

	routes       map[int64]Route
	populations  map[int64]Population
	coordinators map[int64]Coordinator
	clients      map[int64]Client
	guarantors   map[int64]Guarantor
	credits      map[int64]Credit
	payments     map[int64]Payment
	runs         map[pgtype.UUID]ImportRun
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		calls:        make(map[string]int),
		routes:       make(map[int64]Route),
		populations:  make(map[int64]Population),
		coordinators: make(map[int64]Coordinator),
		clients:      make(map[int64]Client),
		guarantors:   make(map[int64]Guarantor),
		credits:      make(map[int64]Credit),
		payments:     make(map[int64]Payment),
		runs:         make(map[pgtype.UUID]ImportRun),
	}
}

// enter locks the store, records the call and applies fault injection.
// On success the caller must unlock.
// FailOn runs unlocked so an injected panic leaves the store usable.
func (m *Memory) enter(op string) error {
	m.mu.Lock()
	m.calls[op]++
	fail := m.FailOn
	m.mu.Unlock()

	if fail != nil {
		if err := fail(op); err != nil {
			return err
		}
	}
	m.mu.Lock()
	return nil
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) Ping(_ context.Context) error {
	if err := m.enter("Ping"); err != nil {
		return err
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetRouteByName(_ context.Context, name string) (int64, error) {
	if err := m.enter("GetRouteByName"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, r := range m.routes {
		if r.Name == name {
			return r.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *Memory) InsertRoute(_ context.Context, name string) (int64, error) {
	if err := m.enter("InsertRoute"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, r := range m.routes {
		if r.Name == name {
			return 0, fmt.Errorf("routes(name=%q): %w", name, ErrUniqueViolation)
		}
	}
	r := Route{ID: m.id(), Name: name}
	m.routes[r.ID] = r
	return r.ID, nil
}

func (m *Memory) GetPopulationByKey(_ context.Context, arg GetPopulationByKeyParams) (int64, error) {
	if err := m.enter("GetPopulationByKey"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, p := range m.populations {
		if p.Name == arg.Name && p.Municipality == arg.Municipality && p.State == arg.State {
			return p.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *Memory) InsertPopulation(_ context.Context, arg InsertPopulationParams) (int64, error) {
	if err := m.enter("InsertPopulation"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, p := range m.populations {
		if p.Name == arg.Name && p.Municipality == arg.Municipality && p.State == arg.State {
			return 0, fmt.Errorf("populations(name=%q): %w", arg.Name, ErrUniqueViolation)
		}
	}
	p := Population{
		ID:           m.id(),
		Name:         arg.Name,
		Municipality: arg.Municipality,
		State:        arg.State,
		RouteID:      arg.RouteID,
	}
	m.populations[p.ID] = p
	return p.ID, nil
}

func (m *Memory) GetCoordinatorByKey(_ context.Context, arg GetCoordinatorByKeyParams) (int64, error) {
	if err := m.enter("GetCoordinatorByKey"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, c := range m.coordinators {
		if c.Name == arg.Name && c.PopulationID == arg.PopulationID {
			return c.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *Memory) InsertCoordinator(_ context.Context, arg InsertCoordinatorParams) (int64, error) {
	if err := m.enter("InsertCoordinator"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	if _, ok := m.populations[arg.PopulationID]; !ok {
		return 0, fmt.Errorf("coordinators: population %d does not exist", arg.PopulationID)
	}
	for _, c := range m.coordinators {
		if c.Name == arg.Name && c.PopulationID == arg.PopulationID {
			return 0, fmt.Errorf("coordinators(name=%q): %w", arg.Name, ErrUniqueViolation)
		}
	}
	c := Coordinator{
		ID:           m.id(),
		Name:         arg.Name,
		PopulationID: arg.PopulationID,
		Phone:        arg.Phone,
		Address:      arg.Address,
		Birthdate:    arg.Birthdate,
	}
	m.coordinators[c.ID] = c
	return c.ID, nil
}

func (m *Memory) GetClientByNationalID(_ context.Context, nationalID string) (int64, error) {
	if err := m.enter("GetClientByNationalID"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if c.NationalID.Valid && c.NationalID.String == nationalID {
			return c.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *Memory) GetClientByName(_ context.Context, arg GetClientByNameParams) (int64, error) {
	if err := m.enter("GetClientByName"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if !c.NationalID.Valid && c.Name == arg.Name && c.PopulationID == arg.PopulationID {
			return c.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *Memory) InsertClient(_ context.Context, arg InsertClientParams) (int64, error) {
	if err := m.enter("InsertClient"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	if _, ok := m.populations[arg.PopulationID]; !ok {
		return 0, fmt.Errorf("clients: population %d does not exist", arg.PopulationID)
	}
	for _, c := range m.clients {
		if arg.NationalID.Valid && c.NationalID.Valid && c.NationalID.String == arg.NationalID.String {
			return 0, fmt.Errorf("clients(national_id=%q): %w", arg.NationalID.String, ErrUniqueViolation)
		}
		if !arg.NationalID.Valid && !c.NationalID.Valid && c.Name == arg.Name && c.PopulationID == arg.PopulationID {
			return 0, fmt.Errorf("clients(name=%q): %w", arg.Name, ErrUniqueViolation)
		}
	}
	c := Client{
		ID:           m.id(),
		Name:         arg.Name,
		NationalID:   arg.NationalID,
		Address:      arg.Address,
		PopulationID: arg.PopulationID,
	}
	m.clients[c.ID] = c
	return c.ID, nil
}

func (m *Memory) SetClientGuarantor(_ context.Context, arg SetClientGuarantorParams) error {
	if err := m.enter("SetClientGuarantor"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	c, ok := m.clients[arg.ClientID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m.guarantors[arg.GuarantorID]; !ok {
		return fmt.Errorf("clients: guarantor %d does not exist", arg.GuarantorID)
	}
	c.GuarantorID = pgtype.Int8{Int64: arg.GuarantorID, Valid: true}
	m.clients[c.ID] = c
	return nil
}

func (m *Memory) GetGuarantorByNationalID(_ context.Context, nationalID string) (int64, error) {
	if err := m.enter("GetGuarantorByNationalID"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, g := range m.guarantors {
		if g.NationalID.Valid && g.NationalID.String == nationalID {
			return g.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *Memory) GetGuarantorByName(_ context.Context, name string) (int64, error) {
	if err := m.enter("GetGuarantorByName"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, g := range m.guarantors {
		if !g.NationalID.Valid && g.Name == name {
			return g.ID, nil
		}
	}
	return 0, ErrNotFound
}

func (m *Memory) InsertGuarantor(_ context.Context, arg InsertGuarantorParams) (int64, error) {
	if err := m.enter("InsertGuarantor"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	for _, g := range m.guarantors {
		if arg.NationalID.Valid && g.NationalID.Valid && g.NationalID.String == arg.NationalID.String {
			return 0, fmt.Errorf("guarantors(national_id=%q): %w", arg.NationalID.String, ErrUniqueViolation)
		}
		if !arg.NationalID.Valid && !g.NationalID.Valid && g.Name == arg.Name {
			return 0, fmt.Errorf("guarantors(name=%q): %w", arg.Name, ErrUniqueViolation)
		}
	}
	g := Guarantor{
		ID:         m.id(),
		Name:       arg.Name,
		NationalID: arg.NationalID,
		Address:    arg.Address,
	}
	m.guarantors[g.ID] = g
	return g.ID, nil
}

func (m *Memory) GetCreditByKey(_ context.Context, arg GetCreditByKeyParams) (GetCreditByKeyRow, error) {
	if err := m.enter("GetCreditByKey"); err != nil {
		return GetCreditByKeyRow{}, err
	}
	defer m.mu.Unlock()
	for _, c := range m.credits {
		if c.PopulationID == arg.PopulationID && c.ExternalKey == arg.ExternalKey {
			return GetCreditByKeyRow{ID: c.ID, ClientID: c.ClientID, CoordinatorID: c.CoordinatorID}, nil
		}
	}
	return GetCreditByKeyRow{}, ErrNotFound
}

func (m *Memory) InsertCredit(_ context.Context, arg InsertCreditParams) (int64, error) {
	if err := m.enter("InsertCredit"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	if arg.ClientID.Valid == arg.CoordinatorID.Valid {
		return 0, fmt.Errorf("credits: exactly one of client_id and coordinator_id must be set")
	}
	for _, c := range m.credits {
		if c.PopulationID == arg.PopulationID && c.ExternalKey == arg.ExternalKey {
			return 0, fmt.Errorf("credits(external_key=%q): %w", arg.ExternalKey, ErrUniqueViolation)
		}
	}
	c := Credit{
		ID:               m.id(),
		ClientID:         arg.ClientID,
		CoordinatorID:    arg.CoordinatorID,
		PopulationID:     arg.PopulationID,
		RouteID:          arg.RouteID,
		ExternalKey:      arg.ExternalKey,
		TermWeeks:        arg.TermWeeks,
		Principal:        arg.Principal,
		WeeklyQuota:      arg.WeeklyQuota,
		TotalDue:         arg.TotalDue,
		OverdueBalance:   arg.OverdueBalance,
		WeeksOverdue:     arg.WeeksOverdue,
		Penalty:          arg.Penalty,
		CollectionDay:    arg.CollectionDay,
		Notes:            arg.Notes,
		DisbursementDate: arg.DisbursementDate,
	}
	m.credits[c.ID] = c
	return c.ID, nil
}

func (m *Memory) GetPaymentByKey(_ context.Context, arg GetPaymentByKeyParams) (GetPaymentByKeyRow, error) {
	if err := m.enter("GetPaymentByKey"); err != nil {
		return GetPaymentByKeyRow{}, err
	}
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.CreditID == arg.CreditID && sameDay(p.PaidOn, arg.PaidOn) {
			return GetPaymentByKeyRow{ID: p.ID, Amount: p.Amount}, nil
		}
	}
	return GetPaymentByKeyRow{}, ErrNotFound
}

func (m *Memory) InsertPayment(_ context.Context, arg InsertPaymentParams) (int64, error) {
	if err := m.enter("InsertPayment"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	if _, ok := m.credits[arg.CreditID]; !ok {
		return 0, fmt.Errorf("payments: credit %d does not exist", arg.CreditID)
	}
	if !arg.Amount.IsPositive() {
		return 0, fmt.Errorf("payments: amount must be positive")
	}
	for _, p := range m.payments {
		if p.CreditID == arg.CreditID && sameDay(p.PaidOn, arg.PaidOn) {
			return 0, fmt.Errorf("payments(credit_id=%d): %w", arg.CreditID, ErrUniqueViolation)
		}
	}
	p := Payment{ID: m.id(), CreditID: arg.CreditID, PaidOn: arg.PaidOn, Amount: arg.Amount}
	m.payments[p.ID] = p
	return p.ID, nil
}

func (m *Memory) InsertImportRun(_ context.Context, arg InsertImportRunParams) error {
	if err := m.enter("InsertImportRun"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, ok := m.runs[arg.ID]; ok {
		return fmt.Errorf("import_runs: %w", ErrUniqueViolation)
	}
	m.runs[arg.ID] = ImportRun{
		ID:        arg.ID,
		SessionID: arg.SessionID,
		FileName:  arg.FileName,
		StartedAt: arg.StartedAt,
	}
	return nil
}

func (m *Memory) FinishImportRun(_ context.Context, arg FinishImportRunParams) error {
	if err := m.enter("FinishImportRun"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	run, ok := m.runs[arg.ID]
	if !ok {
		return ErrNotFound
	}
	run.FinishedAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	run.GlobalOK = pgtype.Bool{Bool: arg.GlobalOK, Valid: true}
	run.ReportText = pgtype.Text{String: arg.ReportText, Valid: true}
	m.runs[arg.ID] = run
	return nil
}

func (m *Memory) ListImportRuns(_ context.Context, arg ListImportRunsParams) ([]ImportRun, error) {
	if err := m.enter("ListImportRuns"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	runs := m.sortedRuns()
	slices.Reverse(runs)

	start := min(int(max(arg.Offset, 0)), len(runs))
	end := len(runs)
	if arg.Limit > 0 {
		end = min(start+int(arg.Limit), len(runs))
	}
	return runs[start:end], nil
}

func (m *Memory) CountImportRuns(_ context.Context) (int64, error) {
	if err := m.enter("CountImportRuns"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return int64(len(m.runs)), nil
}

func (m *Memory) GetImportRun(_ context.Context, id pgtype.UUID) (ImportRun, error) {
	if err := m.enter("GetImportRun"); err != nil {
		return ImportRun{}, err
	}
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ImportRun{}, ErrNotFound
	}
	return run, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Calls reports how many times op was invoked, including failed calls.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Accessors return snapshots ordered by id.

func (m *Memory) Routes() []Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByID(m.routes, func(r Route) int64 { return r.ID })
}

func (m *Memory) Populations() []Population {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByID(m.populations, func(p Population) int64 { return p.ID })
}

func (m *Memory) Coordinators() []Coordinator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByID(m.coordinators, func(c Coordinator) int64 { return c.ID })
}

func (m *Memory) Clients() []Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByID(m.clients, func(c Client) int64 { return c.ID })
}

func (m *Memory) Guarantors() []Guarantor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByID(m.guarantors, func(g Guarantor) int64 { return g.ID })
}

func (m *Memory) Credits() []Credit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByID(m.credits, func(c Credit) int64 { return c.ID })
}

func (m *Memory) Payments() []Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByID(m.payments, func(p Payment) int64 { return p.ID })
}

// ImportRuns returns every run, oldest first.
func (m *Memory) ImportRuns() []ImportRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedRuns()
}

func (m *Memory) sortedRuns() []ImportRun {
	out := make([]ImportRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func sortedByID[T any](src map[int64]T, id func(T) int64) []T {
	out := make([]T, 0, len(src))
	for _, v := range src {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}
