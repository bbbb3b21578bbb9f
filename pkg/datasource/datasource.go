// Package datasource implements RoutingDataSource: the connection-
// acquisition contract application code uses in place of a plain
// *sql.DB (spec.md §4.7). Every acquisition delegates to ConnectionRouter;
// statements issued through the returned handle flow through
// QueryValidator first, and transactions opened on it are registered with
// RoutingTransactionManager. Grounded on the teacher's
// pkg/proxy/proxy.go getOrCreatePool/ExecuteQuery delegation chain,
// reshaped around database/sql conventions instead of a wire-protocol
// proxy — this spec's router is a library contract, not a network proxy.
package datasource

import (
	"context"
	"database/sql"

	"github.com/sharding-system/pkg/txmanager"
	"github.com/sharding-system/pkg/validator"
)

// Router is the subset of *router.Router this package depends on.
type Router interface {
	Choose(ctx context.Context, sharded bool) (*sql.DB, string, error)
}

// DataSource is the RoutingDataSource.
type DataSource struct {
	router    Router
	validator *validator.Validator
	txManager *txmanager.Manager
}

// New constructs a DataSource.
func New(r Router, v *validator.Validator, tx *txmanager.Manager) *DataSource {
	return &DataSource{router: r, validator: v, txManager: tx}
}

// Conn is a resolved, validated handle to one physical endpoint.
type Conn struct {
	db         *sql.DB
	endpointID string
	validator  *validator.Validator
}

// EndpointID reports which physical endpoint this connection was routed
// to, primarily for logging and tests.
func (c *Conn) EndpointID() string { return c.endpointID }

// Exec validates query against the configured policy and executes it.
func (c *Conn) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := c.validator.Validate(query); err != nil {
		return nil, err
	}
	return c.db.ExecContext(ctx, query, args...)
}

// Query validates query against the configured policy and runs it.
func (c *Conn) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if err := c.validator.Validate(query); err != nil {
		return nil, err
	}
	return c.db.QueryContext(ctx, query, args...)
}

// GetConnection resolves the current tenant context (via the ambient
// context carried on ctx) to a physical endpoint. sharded must reflect
// whether the caller's next statement targets a sharded table; callers
// typically derive this from EntityClassifier before calling in.
func (ds *DataSource) GetConnection(ctx context.Context, sharded bool) (*Conn, error) {
	db, endpointID, err := ds.router.Choose(ctx, sharded)
	if err != nil {
		return nil, err
	}
	return &Conn{db: db, endpointID: endpointID, validator: ds.validator}, nil
}

// Begin starts a transaction under txKey, routing exactly as GetConnection
// would and registering the result with RoutingTransactionManager so that
// a later Commit/Rollback under the same key reuses the same endpoint.
func (ds *DataSource) Begin(ctx context.Context, txKey string, sharded bool) (*txmanager.Tx, error) {
	return ds.txManager.Begin(ctx, txKey, sharded)
}

// EndTransaction clears the per-call transaction reference for txKey.
// Callers must invoke this after the outermost Commit/Rollback completes.
func (ds *DataSource) EndTransaction(txKey string) {
	ds.txManager.End(txKey)
}
