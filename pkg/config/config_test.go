package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, doc map[string]interface{}) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "router.json")
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func baseDoc() map[string]interface{} {
	return map[string]interface{}{
		"global-db": map[string]interface{}{"url": "postgres://global/db"},
		"shards": map[string]interface{}{
			"shard1": map[string]interface{}{
				"master": map[string]interface{}{"url": "postgres://shard1-master/db"},
				"region": "us-east",
				"latest": true,
			},
			"shard2": map[string]interface{}{
				"master": map[string]interface{}{"url": "postgres://shard2-master/db"},
				"region": "us-west",
				"latest": false,
			},
		},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, baseDoc())

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, CacheLocal, cfg.Cache.Type)
	assert.Equal(t, 3600, cfg.Cache.TTLSeconds)
	assert.Equal(t, 60, cfg.Cache.NegativeTTLSeconds)
	assert.Equal(t, "STRICT", string(cfg.Validation.Strictness))
	assert.Equal(t, "ROUND_ROBIN", string(cfg.Replica.Selection))
	assert.Equal(t, "postgres", cfg.GlobalDB.Driver)
	assert.Equal(t, []string{"/signup", "/health", "/docs", "/metrics"}, cfg.Server.ExcludedPaths)
}

func TestLoadConfig_RejectsMultipleLatestShards(t *testing.T) {
	doc := baseDoc()
	shards := doc["shards"].(map[string]interface{})
	shard2 := shards["shard2"].(map[string]interface{})
	shard2["latest"] = true
	path := writeConfig(t, doc)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one shard must have latest=true")
}

func TestLoadConfig_RejectsNoLatestShard(t *testing.T) {
	doc := baseDoc()
	shards := doc["shards"].(map[string]interface{})
	shard1 := shards["shard1"].(map[string]interface{})
	shard1["latest"] = false
	path := writeConfig(t, doc)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one shard must have latest=true")
}

func TestLoadConfig_RejectsMissingGlobalDB(t *testing.T) {
	doc := baseDoc()
	delete(doc, "global-db")
	path := writeConfig(t, doc)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "global-db.url is required")
}

func TestLoadConfig_RejectsDistributedCacheWithoutEndpoint(t *testing.T) {
	doc := baseDoc()
	doc["cache"] = map[string]interface{}{"type": "DISTRIBUTED"}
	path := writeConfig(t, doc)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.distributed-endpoint is required")
}

func TestShardDescriptors_StableOrderAndEndpointIDs(t *testing.T) {
	doc := baseDoc()
	shards := doc["shards"].(map[string]interface{})
	shard1 := shards["shard1"].(map[string]interface{})
	shard1["replicas"] = map[string]interface{}{
		"r1": map[string]interface{}{"url": "postgres://shard1-r1/db"},
	}
	path := writeConfig(t, doc)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	descs := cfg.ShardDescriptors()
	require.Len(t, descs, 2)
	assert.Equal(t, "shard1", descs[0].ID)
	assert.Equal(t, "shard1-master", descs[0].Master.ID)
	require.Len(t, descs[0].Replicas, 1)
	assert.Equal(t, "shard1-replica-r1", descs[0].Replicas[0].ID)
	assert.Equal(t, "shard2", descs[1].ID)
}

func TestGlobalEndpoint_DetectsDialect(t *testing.T) {
	path := writeConfig(t, baseDoc())
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	ep := cfg.GlobalEndpoint()
	assert.Equal(t, GlobalEndpointID, ep.ID)
	assert.Equal(t, "postgres", ep.Driver)
}
