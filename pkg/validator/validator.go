// Package validator implements QueryValidator: a lightweight regex-based
// inspection of outgoing SQL statements that identifies the referenced
// table and whether a tenant-column predicate is present, enforcing the
// configured policy (spec.md §4.8). Grounded near-verbatim on the
// teacher's pkg/proxy/sql_parser.go SQLParser, adapted from shard-key
// extraction (routing) to tenant-predicate presence checking (validation).
package validator

import (
	"fmt"
	"regexp"
	"strings"

	dberrors "github.com/sharding-system/internal/errors"
	"github.com/sharding-system/pkg/classifier"
	"github.com/sharding-system/pkg/models"

	"go.uber.org/zap"
)

var (
	selectTablePattern = regexp.MustCompile(`(?i)^\s*SELECT\s+.+\s+FROM\s+(\w+)`)
	insertTablePattern = regexp.MustCompile(`(?i)^\s*INSERT\s+INTO\s+(\w+)`)
	updateTablePattern = regexp.MustCompile(`(?i)^\s*UPDATE\s+(\w+)`)
	deleteTablePattern = regexp.MustCompile(`(?i)^\s*DELETE\s+FROM\s+(\w+)`)
	wherePattern       = regexp.MustCompile(`(?i)\s+WHERE\s+(.+?)(?:\s+ORDER|\s+LIMIT|\s+GROUP|\s*;?\s*$)`)
	valuePattern       = regexp.MustCompile(`(\w+)\s*=\s*['"]?([^'"=\s,]+)['"]?`)
	insertColumnsAndValuesPattern = regexp.MustCompile(`(?i)INSERT\s+INTO\s+\w+\s*\(([^)]+)\)\s*VALUES\s*\(([^)]+)\)`)
)

// Validator is the QueryValidator.
type Validator struct {
	classifier  *classifier.Classifier
	policy      models.ValidationPolicy
	logger      *zap.Logger
	onViolation func(table string)
}

// New constructs a Validator. onViolation, if non-nil, is invoked once per
// policy violation regardless of whether the policy allows the statement
// through (WARN/LOG) or rejects it (STRICT) — callers typically wire it to
// a metrics counter.
func New(c *classifier.Classifier, policy models.ValidationPolicy, logger *zap.Logger, onViolation func(table string)) *Validator {
	if policy == "" {
		policy = models.PolicyStrict
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{classifier: c, policy: policy, logger: logger, onViolation: onViolation}
}

// Validate inspects a SQL statement and enforces the configured policy. It
// returns nil for non-sharded tables, unrecognized statements (DDL and the
// like, which this validator does not attempt to parse), and any statement
// that does carry a tenant predicate.
func (v *Validator) Validate(sql string) error {
	if v.policy == models.PolicyDisabled {
		return nil
	}

	stmt := strings.TrimSpace(sql)
	upper := strings.ToUpper(stmt)

	switch {
	case strings.HasPrefix(upper, "SELECT"):
		table := firstSubmatch(selectTablePattern, stmt)
		return v.checkPredicate(stmt, table)
	case strings.HasPrefix(upper, "UPDATE"):
		table := firstSubmatch(updateTablePattern, stmt)
		return v.checkPredicate(stmt, table)
	case strings.HasPrefix(upper, "DELETE"):
		table := firstSubmatch(deleteTablePattern, stmt)
		return v.checkPredicate(stmt, table)
	case strings.HasPrefix(upper, "INSERT"):
		table := firstSubmatch(insertTablePattern, stmt)
		return v.checkInsert(stmt, table)
	default:
		// DDL and anything else this validator doesn't recognize passes
		// through unchecked; the classifier only governs DML.
		return nil
	}
}

func firstSubmatch(pattern *regexp.Regexp, stmt string) string {
	if m := pattern.FindStringSubmatch(stmt); len(m) > 1 {
		return strings.ToLower(m[1])
	}
	return ""
}

func (v *Validator) checkPredicate(stmt, table string) error {
	class := v.classifier.Classify(table)
	if !class.IsSharded {
		return nil
	}

	hasPredicate := false
	if m := wherePattern.FindStringSubmatch(stmt); len(m) > 1 {
		for _, pair := range valuePattern.FindAllStringSubmatch(m[1], -1) {
			if len(pair) > 1 && strings.EqualFold(pair[1], class.TenantColumnName) {
				hasPredicate = true
				break
			}
		}
	}

	return v.enforce(table, hasPredicate)
}

func (v *Validator) checkInsert(stmt, table string) error {
	class := v.classifier.Classify(table)
	if !class.IsSharded {
		return nil
	}

	hasPredicate := false
	if m := insertColumnsAndValuesPattern.FindStringSubmatch(stmt); len(m) > 2 {
		columns := strings.Split(m[1], ",")
		values := strings.Split(m[2], ",")
		if len(columns) == len(values) {
			for i, col := range columns {
				col = strings.ToLower(strings.Trim(strings.TrimSpace(col), `"'`))
				if col != strings.ToLower(class.TenantColumnName) {
					continue
				}
				value := strings.Trim(strings.TrimSpace(values[i]), `"'`)
				if value != "" && !strings.EqualFold(value, "null") {
					hasPredicate = true
				}
			}
		}
	}

	return v.enforce(table, hasPredicate)
}

func (v *Validator) enforce(table string, hasPredicate bool) error {
	if hasPredicate {
		return nil
	}

	if v.onViolation != nil {
		v.onViolation(table)
	}

	switch v.policy {
	case models.PolicyStrict:
		return dberrors.New(dberrors.KindTenantFilterMissing,
			fmt.Sprintf("statement against sharded table %q has no tenant predicate", table))
	case models.PolicyWarn:
		v.logger.Warn("validator: tenant predicate missing", zap.String("table", table))
		return nil
	case models.PolicyLog:
		v.logger.Info("validator: tenant predicate missing", zap.String("table", table))
		return nil
	default:
		return nil
	}
}
