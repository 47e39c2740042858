package core

// resolver.go implements find-or-create per entity type.
//
// Every Ensure* call normalizes its natural key, consults the per-run memo,
// then looks the key up in the store and inserts only on ErrNotFound. The
// SQL schemas back this with unique indexes. Calls are strictly sequential
// within a commit, so lookup-before-insert is enough to keep keys unique.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/carteras/internal/database"
)

type populationKey struct {
	name, municipality, state string
}

type coordinatorKey struct {
	name         string
	populationID int64
}

type creditKey struct {
	populationID int64
	externalKey  string
}

// creditSubject is the borrower a credit key was first resolved for.
type creditSubject struct {
	id                  int64
	client, coordinator pgtype.Int8
}

func (c creditSubject) matches(client, coordinator pgtype.Int8) bool {
	return sameInt8(c.client, client) && sameInt8(c.coordinator, coordinator)
}

func sameInt8(a, b pgtype.Int8) bool {
	return a.Valid == b.Valid && (!a.Valid || a.Int64 == b.Int64)
}

// Conflicts between a staged row and what its natural key already holds.
var (
	ErrCreditConflict  = errors.New("credit key already belongs to another borrower")
	ErrPaymentConflict = errors.New("payment already recorded with a different amount")
)

// ResolveContext memoizes resolved ids for one import session. It is not
// safe for concurrent use; each session owns its own.
type ResolveContext struct {
	routes       map[string]int64
	populations  map[populationKey]int64
	coordinators map[coordinatorKey]int64
	clients      map[string]int64
	guarantors   map[string]int64
	credits      map[creditKey]creditSubject
}

// NewResolveContext returns an empty memo.
func NewResolveContext() *ResolveContext {
	return &ResolveContext{
		routes:       make(map[string]int64),
		populations:  make(map[populationKey]int64),
		coordinators: make(map[coordinatorKey]int64),
		clients:      make(map[string]int64),
		guarantors:   make(map[string]int64),
		credits:      make(map[creditKey]creditSubject),
	}
}

// Resolver performs idempotent find-or-create against a store.
type Resolver struct {
	store database.Querier
	retry RetryPolicy
}

// NewResolver creates a resolver. The retry policy applies to entity
// ensures only; credit and payment creation run once.
func NewResolver(store database.Querier, retry RetryPolicy) *Resolver {
	return &Resolver{store: store, retry: retry}
}

// errRequired builds the error for an empty natural-key field.
func errRequired(field string) error {
	return fmt.Errorf("required field is empty: %s", field)
}

// findOrCreate runs lookup, and insert on ErrNotFound.
func findOrCreate(ctx context.Context, lookup, insert func(context.Context) (int64, error)) (int64, error) {
	id, err := lookup(ctx)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return 0, fmt.Errorf("lookup: %w", err)
	}
	id, err = insert(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	return id, nil
}

// EnsureRoute returns the id of the route with this name, creating it if needed.
func (r *Resolver) EnsureRoute(ctx context.Context, rc *ResolveContext, name string) (int64, error) {
	name = NormalizeKey(name)
	if name == "" {
		return 0, errRequired("route name")
	}
	if id, ok := rc.routes[name]; ok {
		return id, nil
	}

	id, err := Retry(ctx, r.retry, "ensure_route", func(ctx context.Context) (int64, error) {
		return findOrCreate(ctx,
			func(ctx context.Context) (int64, error) { return r.store.GetRouteByName(ctx, name) },
			func(ctx context.Context) (int64, error) { return r.store.InsertRoute(ctx, name) },
		)
	})
	if err != nil {
		return 0, fmt.Errorf("ensure route %q: %w", name, err)
	}
	rc.routes[name] = id
	return id, nil
}

// PopulationInput holds the fields of a population to ensure.
type PopulationInput struct {
	Name         string
	Municipality string
	State        string
	RouteID      pgtype.Int8
}

// EnsurePopulation resolves a population by (name, municipality, state).
// The route link is only written on creation.
func (r *Resolver) EnsurePopulation(ctx context.Context, rc *ResolveContext, in PopulationInput) (int64, error) {
	key := populationKey{
		name:         NormalizeKey(in.Name),
		municipality: NormalizeKey(in.Municipality),
		state:        NormalizeKey(in.State),
	}
	if key.name == "" {
		return 0, errRequired("population name")
	}
	if id, ok := rc.populations[key]; ok {
		return id, nil
	}

	id, err := Retry(ctx, r.retry, "ensure_population", func(ctx context.Context) (int64, error) {
		return findOrCreate(ctx,
			func(ctx context.Context) (int64, error) {
				return r.store.GetPopulationByKey(ctx, database.GetPopulationByKeyParams{
					Name:         key.name,
					Municipality: key.municipality,
					State:        key.state,
				})
			},
			func(ctx context.Context) (int64, error) {
				return r.store.InsertPopulation(ctx, database.InsertPopulationParams{
					Name:         key.name,
					Municipality: key.municipality,
					State:        key.state,
					RouteID:      in.RouteID,
				})
			},
		)
	})
	if err != nil {
		return 0, fmt.Errorf("ensure population %q: %w", key.name, err)
	}
	rc.populations[key] = id
	return id, nil
}

// CoordinatorInput holds the fields of a coordinator to ensure.
type CoordinatorInput struct {
	Name         string
	PopulationID int64
	Phone        string
	Address      string
	Birthdate    string // YYYY-MM-DD or empty
}

// EnsureCoordinator resolves a coordinator by (name, population).
func (r *Resolver) EnsureCoordinator(ctx context.Context, rc *ResolveContext, in CoordinatorInput) (int64, error) {
	key := coordinatorKey{name: NormalizeKey(in.Name), populationID: in.PopulationID}
	if key.name == "" {
		return 0, errRequired("coordinator name")
	}
	if id, ok := rc.coordinators[key]; ok {
		return id, nil
	}

	id, err := Retry(ctx, r.retry, "ensure_coordinator", func(ctx context.Context) (int64, error) {
		return findOrCreate(ctx,
			func(ctx context.Context) (int64, error) {
				return r.store.GetCoordinatorByKey(ctx, database.GetCoordinatorByKeyParams{
					Name:         key.name,
					PopulationID: key.populationID,
				})
			},
			func(ctx context.Context) (int64, error) {
				return r.store.InsertCoordinator(ctx, database.InsertCoordinatorParams{
					Name:         key.name,
					PopulationID: key.populationID,
					Phone:        ToPgText(in.Phone),
					Address:      ToPgText(in.Address),
					Birthdate:    isoToPgDate(in.Birthdate),
				})
			},
		)
	})
	if err != nil {
		return 0, fmt.Errorf("ensure coordinator %q: %w", key.name, err)
	}
	rc.coordinators[key] = id
	return id, nil
}

// ClientInput holds the fields of a client to ensure.
type ClientInput struct {
	Name         string
	NationalID   string
	Address      string
	PopulationID int64
}

// EnsureClient resolves a client by national id when present, otherwise by
// (name, population).
func (r *Resolver) EnsureClient(ctx context.Context, rc *ResolveContext, in ClientInput) (int64, error) {
	name := NormalizeKey(in.Name)
	nationalID := NormalizeKey(in.NationalID)
	if name == "" {
		return 0, errRequired("client name")
	}

	memoKey := fmt.Sprintf("N:%s#%d", name, in.PopulationID)
	lookup := func(ctx context.Context) (int64, error) {
		return r.store.GetClientByName(ctx, database.GetClientByNameParams{Name: name, PopulationID: in.PopulationID})
	}
	if nationalID != "" {
		memoKey = "ID:" + nationalID
		lookup = func(ctx context.Context) (int64, error) {
			return r.store.GetClientByNationalID(ctx, nationalID)
		}
	}
	if id, ok := rc.clients[memoKey]; ok {
		return id, nil
	}

	id, err := Retry(ctx, r.retry, "ensure_client", func(ctx context.Context) (int64, error) {
		return findOrCreate(ctx, lookup, func(ctx context.Context) (int64, error) {
			return r.store.InsertClient(ctx, database.InsertClientParams{
				Name:         name,
				NationalID:   ToPgText(nationalID),
				Address:      ToPgText(in.Address),
				PopulationID: in.PopulationID,
			})
		})
	})
	if err != nil {
		return 0, fmt.Errorf("ensure client %q: %w", name, err)
	}
	rc.clients[memoKey] = id
	return id, nil
}

// GuarantorInput holds the fields of a guarantor to ensure.
type GuarantorInput struct {
	Name       string
	NationalID string
	Address    string
}

// EnsureGuarantor resolves a guarantor by national id when present,
// otherwise by name.
func (r *Resolver) EnsureGuarantor(ctx context.Context, rc *ResolveContext, in GuarantorInput) (int64, error) {
	name := NormalizeKey(in.Name)
	nationalID := NormalizeKey(in.NationalID)
	if name == "" {
		return 0, errRequired("guarantor name")
	}

	memoKey := "N:" + name
	lookup := func(ctx context.Context) (int64, error) { return r.store.GetGuarantorByName(ctx, name) }
	if nationalID != "" {
		memoKey = "ID:" + nationalID
		lookup = func(ctx context.Context) (int64, error) {
			return r.store.GetGuarantorByNationalID(ctx, nationalID)
		}
	}
	if id, ok := rc.guarantors[memoKey]; ok {
		return id, nil
	}

	id, err := Retry(ctx, r.retry, "ensure_guarantor", func(ctx context.Context) (int64, error) {
		return findOrCreate(ctx, lookup, func(ctx context.Context) (int64, error) {
			return r.store.InsertGuarantor(ctx, database.InsertGuarantorParams{
				Name:       name,
				NationalID: ToPgText(nationalID),
				Address:    ToPgText(in.Address),
			})
		})
	})
	if err != nil {
		return 0, fmt.Errorf("ensure guarantor %q: %w", name, err)
	}
	rc.guarantors[memoKey] = id
	return id, nil
}

// LinkGuarantor points a client at its guarantor. The update is idempotent
// and therefore retried like the ensures.
func (r *Resolver) LinkGuarantor(ctx context.Context, clientID, guarantorID int64) error {
	_, err := Retry(ctx, r.retry, "link_guarantor", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.store.SetClientGuarantor(ctx, database.SetClientGuarantorParams{
			ClientID:    clientID,
			GuarantorID: guarantorID,
		})
	})
	if err != nil {
		return fmt.Errorf("link guarantor %d to client %d: %w", guarantorID, clientID, err)
	}
	return nil
}

// EnsureCredit resolves a credit by (population, external key). A key that
// already holds a credit for a different borrower fails with
// ErrCreditConflict. Not retried: a lost insert acknowledgement is only safe
// to repeat through the lookup, which the next commit attempt performs.
func (r *Resolver) EnsureCredit(ctx context.Context, rc *ResolveContext, arg database.InsertCreditParams) (int64, error) {
	if arg.ExternalKey == "" {
		return 0, errRequired("credit key")
	}
	if arg.ClientID.Valid == arg.CoordinatorID.Valid {
		return 0, fmt.Errorf("credit %q: exactly one subject must be set", arg.ExternalKey)
	}
	key := creditKey{populationID: arg.PopulationID, externalKey: arg.ExternalKey}
	if got, ok := rc.credits[key]; ok {
		if !got.matches(arg.ClientID, arg.CoordinatorID) {
			return 0, fmt.Errorf("folio %s: %w", arg.ExternalKey, ErrCreditConflict)
		}
		return got.id, nil
	}

	found, err := r.store.GetCreditByKey(ctx, database.GetCreditByKeyParams{
		PopulationID: key.populationID,
		ExternalKey:  key.externalKey,
	})
	switch {
	case err == nil:
		got := creditSubject{id: found.ID, client: found.ClientID, coordinator: found.CoordinatorID}
		if !got.matches(arg.ClientID, arg.CoordinatorID) {
			return 0, fmt.Errorf("folio %s: %w", arg.ExternalKey, ErrCreditConflict)
		}
		rc.credits[key] = got
		return got.id, nil
	case !errors.Is(err, database.ErrNotFound):
		return 0, fmt.Errorf("ensure credit %q: lookup: %w", arg.ExternalKey, err)
	}

	id, err := r.store.InsertCredit(ctx, arg)
	if err != nil {
		return 0, fmt.Errorf("ensure credit %q: insert: %w", arg.ExternalKey, err)
	}
	rc.credits[key] = creditSubject{id: id, client: arg.ClientID, coordinator: arg.CoordinatorID}
	return id, nil
}

// EnsurePayment records a payment once per (credit, date). A date already
// paid with another amount fails with ErrPaymentConflict. Not retried.
func (r *Resolver) EnsurePayment(ctx context.Context, creditID int64, paidOn time.Time, amount decimal.Decimal) (int64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("invalid number: payment amount must be positive")
	}
	day := paidOn.Format(isoDate)

	found, err := r.store.GetPaymentByKey(ctx, database.GetPaymentByKeyParams{CreditID: creditID, PaidOn: paidOn})
	switch {
	case err == nil:
		if !found.Amount.Equal(amount) {
			return 0, fmt.Errorf("payment %s: %w (stored %s, sheet %s)",
				day, ErrPaymentConflict, found.Amount.StringFixed(2), amount.StringFixed(2))
		}
		return found.ID, nil
	case !errors.Is(err, database.ErrNotFound):
		return 0, fmt.Errorf("ensure payment %s: lookup: %w", day, err)
	}

	id, err := r.store.InsertPayment(ctx, database.InsertPaymentParams{CreditID: creditID, PaidOn: paidOn, Amount: amount})
	if err != nil {
		return 0, fmt.Errorf("ensure payment %s: insert: %w", day, err)
	}
	return id, nil
}

// isoToPgDate parses a canonical YYYY-MM-DD string.
func isoToPgDate(s string) pgtype.Date {
	if s == "" {
		return pgtype.Date{Valid: false}
	}
	t, err := time.Parse(isoDate, s)
	if err != nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}
