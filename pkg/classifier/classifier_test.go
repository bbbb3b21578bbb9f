package classifier

import (
	"testing"

	"github.com/sharding-system/pkg/models"
)

func TestClassifyKnownSharded(t *testing.T) {
	c := New([]models.EntityClass{
		{TableName: "tickets", IsSharded: true, TenantColumnName: "account_id"},
	})

	cl := c.Classify("tickets")
	if !cl.IsSharded || cl.TenantColumnName != "account_id" {
		t.Fatalf("unexpected classification: %+v", cl)
	}
	if c.TenantColumn("tickets") != "account_id" {
		t.Fatalf("expected account_id, got %s", c.TenantColumn("tickets"))
	}
}

func TestClassifyUnknownDefaultsNonSharded(t *testing.T) {
	c := New(nil)

	cl := c.Classify("widgets")
	if cl.IsSharded {
		t.Fatal("expected unknown table to default to non-sharded")
	}
	if c.TenantColumn("widgets") != "" {
		t.Fatal("expected empty tenant column for non-sharded table")
	}
}

func TestIsSharded(t *testing.T) {
	c := New([]models.EntityClass{{TableName: "tickets", IsSharded: true, TenantColumnName: "account_id"}})
	if !c.IsSharded("tickets") {
		t.Fatal("expected tickets to be sharded")
	}
	if c.IsSharded("global_settings") {
		t.Fatal("expected global_settings to be non-sharded")
	}
}
