//go:build integration

package unitofwork

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func startPostgres(t *testing.T, ctx context.Context) *sql.DB {
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

	if _, err := db.ExecContext(ctx, "CREATE TABLE widgets (id SERIAL PRIMARY KEY, name TEXT NOT NULL)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	return db
}

func TestUnitOfWorkSaveCommitIntegration(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t, ctx)

	uow, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := uow.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO widgets (name) VALUES ($1)", "gear")

		return err
	})
	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO widgets (name) VALUES ($1)", "bolt")

		return err
	})

	if err := uow.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := uow.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM widgets").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestUnitOfWorkSaveRollsBackFailedMutationToSavepoint(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t, ctx)

	uow, err := New(db, WithRetryCount(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := uow.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO widgets (name) VALUES ($1)", "gear")

		return err
	})
	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO widgets (name) VALUES (NULL)")

		return err
	})

	if err := uow.Save(ctx); err == nil {
		t.Fatal("expected Save to fail on NOT NULL violation")
	}

	// the outer transaction survives a failed Save because the failing
	// attempt is rolled back to SAVEPOINT outbox_uow, not the whole tx.
	if _, err := uow.Tx().ExecContext(ctx, "INSERT INTO widgets (name) VALUES ($1)", "bolt"); err != nil {
		t.Fatalf("insert after failed save: %v", err)
	}
	if err := uow.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM widgets").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1 (only the post-failure insert survives)", count)
	}
}

func TestUnitOfWorkRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	db := startPostgres(t, ctx)

	uow, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := uow.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	uow.Enqueue(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO widgets (name) VALUES ($1)", "gear")

		return err
	})
	if err := uow.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}

	uow.Rollback()

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM widgets").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d, want 0 after rollback", count)
	}
}
