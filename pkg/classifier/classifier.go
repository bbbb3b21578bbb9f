// Package classifier implements EntityClassifier: a startup-time registry
// answering "is table T sharded, and if so, which column carries the
// tenant id?" (spec.md §4.8). Grounded on the teacher's
// pkg/proxy/config.go ShardingRule/ClientAppConfig table-level rule
// registry, simplified to a flat table-name lookup since this spec has no
// notion of per-client-app sharding rules.
package classifier

import "github.com/sharding-system/pkg/models"

// Classifier is the EntityClassifier.
type Classifier struct {
	classes map[string]models.EntityClass
}

// New builds a Classifier from a list of table metadata supplied by the
// host application at startup. Tables not present in classes default to
// non-sharded when queried.
func New(classes []models.EntityClass) *Classifier {
	c := &Classifier{classes: make(map[string]models.EntityClass, len(classes))}
	for _, cl := range classes {
		c.classes[cl.TableName] = cl
	}
	return c
}

// Classify returns the EntityClass for tableName. Unknown tables are
// reported as non-sharded, per spec.md §4.8 ("unknown tables default to
// non-sharded").
func (c *Classifier) Classify(tableName string) models.EntityClass {
	if cl, ok := c.classes[tableName]; ok {
		return cl
	}
	return models.EntityClass{TableName: tableName, IsSharded: false}
}

// IsSharded is a convenience wrapper over Classify.
func (c *Classifier) IsSharded(tableName string) bool {
	return c.Classify(tableName).IsSharded
}

// TenantColumn returns the tenant column name for a sharded table, or ""
// if the table is unknown or not sharded.
func (c *Classifier) TenantColumn(tableName string) string {
	cl := c.Classify(tableName)
	if !cl.IsSharded {
		return ""
	}
	return cl.TenantColumnName
}
