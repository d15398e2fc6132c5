//go:build integration

package enqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lattice-systems/txoutbox/internal/domain"
	"github.com/lattice-systems/txoutbox/internal/domainevent"
	"github.com/lattice-systems/txoutbox/internal/unitofwork"
	"github.com/lattice-systems/txoutbox/postgres"
)

func startDB(t *testing.T, ctx context.Context) *sql.DB {
	t.Helper()

	port := nat.Port("5432/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_DB":       "outbox",
		},
		WaitingFor: wait.ForSQL(port, "pgx", func(host string, p nat.Port) string {
			return fmt.Sprintf("postgres://postgres:secret@%s:%s/outbox?sslmode=disable", host, p.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/outbox?sslmode=disable", host, mapped.Port())
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.ExecContext(ctx, domain.Schema); err != nil {
		t.Fatalf("create domain schema: %v", err)
	}

	outboxSchema, err := postgres.Schema("outbox")
	if err != nil {
		t.Fatalf("build outbox schema: %v", err)
	}
	if _, err := db.ExecContext(ctx, outboxSchema); err != nil {
		t.Fatalf("create outbox schema: %v", err)
	}

	return db
}

func newCoordinator(t *testing.T, db *sql.DB, opts ...Option) *Coordinator {
	t.Helper()

	store, err := postgres.NewStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	registry := domainevent.NewRegistry()
	domain.RegisterAll(registry)

	return New(db, store, registry, opts...)
}

func TestCoordinatorRegisterCustomerThenPlaceOrderIntegration(t *testing.T) {
	ctx := context.Background()
	db := startDB(t, ctx)
	c := newCoordinator(t, db)

	customerID := uuid.New()
	if _, err := c.Execute(ctx, RegisterCustomer{CustomerID: customerID, Email: "a@example.com"}); err != nil {
		t.Fatalf("RegisterCustomer: %v", err)
	}

	orderID := uuid.New()
	result, err := c.Execute(ctx, PlaceOrder{OrderID: orderID, CustomerID: customerID, TotalCents: 1000})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if len(result.EventIDs) != 1 {
		t.Fatalf("len(EventIDs) = %d, want 1", len(result.EventIDs))
	}

	var count int
	row := db.QueryRowContext(ctx, "SELECT count(*) FROM outbox WHERE aggregate_id = $1 AND event_type = 'order.placed'", orderID.String())
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count outbox rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestCoordinatorPlaceOrderUnknownCustomerIsDomainRuleErrorIntegration(t *testing.T) {
	ctx := context.Background()
	db := startDB(t, ctx)
	c := newCoordinator(t, db)

	_, err := c.Execute(ctx, PlaceOrder{OrderID: uuid.New(), CustomerID: uuid.New(), TotalCents: 500})

	var domainErr *DomainRuleError
	if !errors.As(err, &domainErr) {
		t.Fatalf("err = %v, want *DomainRuleError", err)
	}
}

func TestCoordinatorCancelPaidOrderIsDomainRuleErrorIntegration(t *testing.T) {
	ctx := context.Background()
	db := startDB(t, ctx)
	c := newCoordinator(t, db)

	customerID := uuid.New()
	if _, err := c.Execute(ctx, RegisterCustomer{CustomerID: customerID, Email: "b@example.com"}); err != nil {
		t.Fatalf("RegisterCustomer: %v", err)
	}

	orderID := uuid.New()
	if _, err := c.Execute(ctx, PlaceOrder{OrderID: orderID, CustomerID: customerID, TotalCents: 1000}); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if _, err := c.Execute(ctx, RecordPayment{OrderID: orderID, AmountCents: 1000}); err != nil {
		t.Fatalf("RecordPayment: %v", err)
	}

	_, err := c.Execute(ctx, CancelOrder{OrderID: orderID})

	var domainErr *DomainRuleError
	if !errors.As(err, &domainErr) {
		t.Fatalf("err = %v, want *DomainRuleError", err)
	}
}

func TestCoordinatorIdempotentEmitSkipsDuplicateIntegration(t *testing.T) {
	ctx := context.Background()
	db := startDB(t, ctx)
	c := newCoordinator(t, db, WithIdempotentEmit(true))

	customerID := uuid.New()
	if _, err := c.Execute(ctx, RegisterCustomer{CustomerID: customerID, Email: "c@example.com"}); err != nil {
		t.Fatalf("RegisterCustomer: %v", err)
	}

	orderID := uuid.New()
	pending := pendingEvent{
		aggregateType: "order",
		aggregateID:   orderID.String(),
		event: &domain.OrderPlaced{
			OrderID:    orderID,
			CustomerID: customerID,
			TotalCents: 1000,
		},
	}

	firstUOW, err := unitofwork.New(db)
	if err != nil {
		t.Fatalf("new unit of work: %v", err)
	}
	if err := firstUOW.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := c.emitOne(ctx, firstUOW, pending); err != nil {
		firstUOW.Rollback()
		t.Fatalf("first emitOne: %v", err)
	}
	if err := firstUOW.Save(ctx); err != nil {
		firstUOW.Rollback()
		t.Fatalf("first save: %v", err)
	}
	if err := firstUOW.Commit(ctx); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	// A retried command opens a fresh unit of work; emitOne must see the
	// already-committed record and skip the duplicate insert.
	secondUOW, err := unitofwork.New(db)
	if err != nil {
		t.Fatalf("new unit of work: %v", err)
	}
	if err := secondUOW.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer secondUOW.Rollback()

	secondID, err := c.emitOne(ctx, secondUOW, pending)
	if err != nil {
		t.Fatalf("second emitOne: %v", err)
	}
	if !secondID.IsZero() {
		t.Fatalf("second emitOne returned id %v, want zero (duplicate should be skipped)", secondID)
	}

	if err := secondUOW.Save(ctx); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if err := secondUOW.Commit(ctx); err != nil {
		t.Fatalf("second commit: %v", err)
	}

	var count int
	row := db.QueryRowContext(ctx, "SELECT count(*) FROM outbox WHERE aggregate_id = $1", orderID.String())
	if err := row.Scan(&count); err != nil {
		t.Fatalf("count outbox rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}
