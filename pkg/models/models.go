// Package models holds the data types shared across the router's packages:
// the directory record, shard configuration, and health snapshots.
package models

import "time"

// ShardStatus is the lifecycle state of a configured shard or a tenant's
// mapping to one.
type ShardStatus string

const (
	ShardActive   ShardStatus = "ACTIVE"
	ShardReadOnly ShardStatus = "READ_ONLY"
	ShardDisabled ShardStatus = "DISABLED"
)

// ReplicaSelectionPolicy picks which replica serves a read-only request.
type ReplicaSelectionPolicy string

const (
	ReplicaRoundRobin     ReplicaSelectionPolicy = "ROUND_ROBIN"
	ReplicaRandom         ReplicaSelectionPolicy = "RANDOM"
	ReplicaFirstAvailable ReplicaSelectionPolicy = "FIRST_AVAILABLE"
)

// Endpoint identifies one physical database connection target.
type Endpoint struct {
	ID     string `json:"id"`
	Driver string `json:"driver"` // "postgres" or "mysql"
	DSN    string `json:"-"`
}

// ShardDescriptor is the configuration-time, immutable-after-startup
// description of one shard: one master plus zero or more replicas.
type ShardDescriptor struct {
	ID       string      `json:"id"`
	Master   Endpoint    `json:"master"`
	Replicas []Endpoint  `json:"replicas"`
	Region   string      `json:"region,omitempty"`
	Latest   bool        `json:"latest"`
	Status   ShardStatus `json:"status"`
}

// TenantShardMapping is the persisted row in tenant_shard_mapping.
type TenantShardMapping struct {
	TenantID  int64       `db:"tenant_id" json:"tenant_id"`
	ShardID   string      `db:"shard_id" json:"shard_id"`
	Region    string      `db:"region" json:"region,omitempty"`
	Status    ShardStatus `db:"shard_status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// EntityClass records whether a table is sharded and, if so, the column
// that carries the tenant identifier.
type EntityClass struct {
	TableName        string `json:"table_name"`
	IsSharded        bool   `json:"is_sharded"`
	TenantColumnName string `json:"tenant_column_name"`
}

// ValidationPolicy is the enforcement level applied by the QueryValidator.
type ValidationPolicy string

const (
	PolicyStrict   ValidationPolicy = "STRICT"
	PolicyWarn     ValidationPolicy = "WARN"
	PolicyLog      ValidationPolicy = "LOG"
	PolicyDisabled ValidationPolicy = "DISABLED"
)

// ShardHealth is a point-in-time health snapshot for one shard's endpoints.
type ShardHealth struct {
	ShardID      string    `json:"shard_id"`
	MasterUp     bool      `json:"master_up"`
	ReplicasUp   []string  `json:"replicas_up"`
	ReplicasDown []string  `json:"replicas_down"`
	LastCheck    time.Time `json:"last_check"`
}

// IterationSummary is returned by TenantIterator.ProcessAllTenants.
type IterationSummary struct {
	Succeeded int                `json:"succeeded"`
	Failed    []TenantIterFailure `json:"failed"`
}

// TenantIterFailure records one tenant's failure during a batch run.
type TenantIterFailure struct {
	TenantID int64  `json:"tenant_id"`
	Error    string `json:"error"`
}
