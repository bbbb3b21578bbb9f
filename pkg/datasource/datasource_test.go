package datasource

import (
	"context"
	"database/sql"
	"testing"

	"github.com/sharding-system/pkg/classifier"
	"github.com/sharding-system/pkg/models"
	"github.com/sharding-system/pkg/txmanager"
	"github.com/sharding-system/pkg/validator"

	dberrors "github.com/sharding-system/internal/errors"

	"github.com/DATA-DOG/go-sqlmock"
)

type fakeRouter struct {
	db         *sql.DB
	endpointID string
}

func (f *fakeRouter) Choose(_ context.Context, _ bool) (*sql.DB, string, error) {
	return f.db, f.endpointID, nil
}

func newTestDataSource(t *testing.T) (*DataSource, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	r := &fakeRouter{db: db, endpointID: "shard1-master"}
	c := classifier.New([]models.EntityClass{{TableName: "tickets", IsSharded: true, TenantColumnName: "account_id"}})
	v := validator.New(c, models.PolicyStrict, nil, nil)
	tx := txmanager.New(r)

	return New(r, v, tx), mock, db
}

func TestGetConnectionRoutesAndExecutesValidQuery(t *testing.T) {
	ds, mock, _ := newTestDataSource(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE tickets").WillReturnResult(sqlmock.NewResult(0, 1))

	conn, err := ds.GetConnection(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.EndpointID() != "shard1-master" {
		t.Fatalf("expected shard1-master, got %s", conn.EndpointID())
	}

	_, err = conn.Exec(ctx, "UPDATE tickets SET subject = 'x' WHERE account_id = 1001")
	if err != nil {
		t.Fatalf("unexpected error executing valid statement: %v", err)
	}
}

func TestConnExecRejectsMissingTenantPredicate(t *testing.T) {
	ds, _, _ := newTestDataSource(t)
	ctx := context.Background()

	conn, err := ds.GetConnection(ctx, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = conn.Exec(ctx, "UPDATE tickets SET subject = 'x' WHERE id = 1")
	if !dberrors.Is(err, dberrors.KindTenantFilterMissing) {
		t.Fatalf("expected TenantFilterMissing, got %v", err)
	}
}

func TestBeginEndTransactionDelegatesToManager(t *testing.T) {
	ds, mock, _ := newTestDataSource(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectCommit()

	tx, err := ds.Begin(ctx, "req-1", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	ds.EndTransaction("req-1")
}
