package directory

import "strings"

// DetectDialect sniffs the SQL dialect from a DSN/connection string, per
// spec.md §6 ("dialect-specific DDL for MySQL/PostgreSQL auto-detected
// from JDBC URL"). Grounded on the teacher's buildDSNFromShard dialect
// check in internal/server/manager.go.
func DetectDialect(dsn string) string {
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.Contains(lower, "@tcp(") || strings.HasSuffix(lower, ".sock") || !strings.Contains(dsn, "://"):
		return "mysql"
	default:
		return "postgres"
	}
}

const postgresCreateTable = `
CREATE TABLE IF NOT EXISTS tenant_shard_mapping (
	tenant_id     BIGINT PRIMARY KEY,
	shard_id      VARCHAR(255) NOT NULL,
	region        VARCHAR(255),
	shard_status  VARCHAR(50) NOT NULL DEFAULT 'ACTIVE',
	created_at    TIMESTAMP NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_tenant_shard_mapping_shard_id ON tenant_shard_mapping (shard_id);
CREATE INDEX IF NOT EXISTS idx_tenant_shard_mapping_status ON tenant_shard_mapping (shard_status);
CREATE INDEX IF NOT EXISTS idx_tenant_shard_mapping_region ON tenant_shard_mapping (region);
`

const mysqlCreateTable = `
CREATE TABLE IF NOT EXISTS tenant_shard_mapping (
	tenant_id     BIGINT PRIMARY KEY,
	shard_id      VARCHAR(255) NOT NULL,
	region        VARCHAR(255),
	shard_status  VARCHAR(50) NOT NULL DEFAULT 'ACTIVE',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	INDEX idx_tenant_shard_mapping_shard_id (shard_id),
	INDEX idx_tenant_shard_mapping_status (shard_status),
	INDEX idx_tenant_shard_mapping_region (region)
);
`

// createTableSQL returns the dialect-specific DDL statements, one per
// element (some dialects, like Postgres, need a statement per index since
// sqlx.Exec runs one statement at a time against lib/pq).
func createTableSQL(dialect string) []string {
	if dialect == "mysql" {
		return []string{mysqlCreateTable}
	}
	stmts := make([]string, 0, 4)
	for _, s := range strings.Split(postgresCreateTable, ";") {
		s = strings.TrimSpace(s)
		if s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
