package config

import (
	"fmt"
	"sort"

	"github.com/sharding-system/pkg/directory"
	"github.com/sharding-system/pkg/models"
)

// GlobalEndpointID is the fixed poolset key for the non-sharded global
// database, so pkg/router can resolve it without a shard lookup.
const GlobalEndpointID = "global"

// GlobalEndpoint builds the models.Endpoint for the global database.
func (c *Config) GlobalEndpoint() models.Endpoint {
	driver := c.GlobalDB.Driver
	if driver == "" {
		driver = directory.DetectDialect(c.GlobalDB.URL)
	}
	return models.Endpoint{ID: GlobalEndpointID, Driver: driver, DSN: c.GlobalDB.URL}
}

// ShardDescriptors builds the []models.ShardDescriptor the ShardRegistry
// is constructed from, in a stable order (shard ids sorted) so that
// round-robin replica indices are reproducible across a process restart
// with an unchanged config.
func (c *Config) ShardDescriptors() []models.ShardDescriptor {
	ids := make([]string, 0, len(c.Shards))
	for id := range c.Shards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]models.ShardDescriptor, 0, len(ids))
	for _, id := range ids {
		shard := c.Shards[id]
		driver := directory.DetectDialect(shard.Master.URL)

		desc := models.ShardDescriptor{
			ID:     id,
			Master: models.Endpoint{ID: masterEndpointID(id), Driver: driver, DSN: shard.Master.URL},
			Region: shard.Region,
			Latest: shard.Latest,
			Status: shard.Status,
		}

		replicaIDs := make([]string, 0, len(shard.Replicas))
		for rid := range shard.Replicas {
			replicaIDs = append(replicaIDs, rid)
		}
		sort.Strings(replicaIDs)
		for _, rid := range replicaIDs {
			replica := shard.Replicas[rid]
			desc.Replicas = append(desc.Replicas, models.Endpoint{
				ID:     replicaEndpointID(id, rid),
				Driver: directory.DetectDialect(replica.URL),
				DSN:    replica.URL,
			})
		}

		out = append(out, desc)
	}
	return out
}

func masterEndpointID(shardID string) string {
	return fmt.Sprintf("%s-master", shardID)
}

func replicaEndpointID(shardID, replicaID string) string {
	return fmt.Sprintf("%s-replica-%s", shardID, replicaID)
}
