package validator

import (
	"testing"

	dberrors "github.com/sharding-system/internal/errors"
	"github.com/sharding-system/pkg/classifier"
	"github.com/sharding-system/pkg/models"
)

func testClassifier() *classifier.Classifier {
	return classifier.New([]models.EntityClass{
		{TableName: "tickets", IsSharded: true, TenantColumnName: "account_id"},
	})
}

func TestValidateStrictRejectsMissingPredicate(t *testing.T) {
	v := New(testClassifier(), models.PolicyStrict, nil, nil)
	err := v.Validate("SELECT * FROM tickets WHERE subject = 'x'")
	if !dberrors.Is(err, dberrors.KindTenantFilterMissing) {
		t.Fatalf("expected TenantFilterMissing, got %v", err)
	}
}

func TestValidateStrictAllowsPresentPredicate(t *testing.T) {
	v := New(testClassifier(), models.PolicyStrict, nil, nil)
	err := v.Validate("SELECT * FROM tickets WHERE account_id = 1001 AND subject = 'x'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAllowsNonShardedTable(t *testing.T) {
	v := New(testClassifier(), models.PolicyStrict, nil, nil)
	err := v.Validate("SELECT * FROM global_settings WHERE key = 'x'")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateWarnAllowsButCounts(t *testing.T) {
	violations := 0
	v := New(testClassifier(), models.PolicyWarn, nil, func(string) { violations++ })
	err := v.Validate("UPDATE tickets SET subject = 'y' WHERE id = 5")
	if err != nil {
		t.Fatalf("expected WARN to allow the statement, got %v", err)
	}
	if violations != 1 {
		t.Fatalf("expected 1 violation recorded, got %d", violations)
	}
}

func TestValidateDisabledSkipsEverything(t *testing.T) {
	v := New(testClassifier(), models.PolicyDisabled, nil, nil)
	err := v.Validate("DELETE FROM tickets")
	if err != nil {
		t.Fatalf("expected DISABLED to allow anything, got %v", err)
	}
}

func TestValidateInsertRequiresTenantColumnWithValue(t *testing.T) {
	v := New(testClassifier(), models.PolicyStrict, nil, nil)

	err := v.Validate("INSERT INTO tickets (id, subject) VALUES (1, 'help')")
	if !dberrors.Is(err, dberrors.KindTenantFilterMissing) {
		t.Fatalf("expected TenantFilterMissing, got %v", err)
	}

	err = v.Validate("INSERT INTO tickets (id, account_id, subject) VALUES (1, 1001, 'help')")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDDLPassesThrough(t *testing.T) {
	v := New(testClassifier(), models.PolicyStrict, nil, nil)
	err := v.Validate("CREATE TABLE tickets (id INT)")
	if err != nil {
		t.Fatalf("expected DDL to pass through unchecked, got %v", err)
	}
}
