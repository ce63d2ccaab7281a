// Package filter compiles audience filter documents into parameterized
// SQL predicates over the customer table.
//
// Every fragment the compiler emits is assembled from allow-listed
// identifiers and operators only; user-supplied values travel exclusively
// through bind arguments. Entries that fail validation are dropped rather
// than rejected, so one bad filter never voids a whole campaign.
package filter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/tamweel-digital/falcon/internal/domain"
)

// Shorthand filter keys mapped to customer columns.
var shorthandColumns = map[string]string{
	"employment_status": "employment_status",
	"employer_name":     "employer_name",
	"language":          "language",
}

// Shorthand status keys mapped to application tables.
var statusTables = map[string]string{
	"loan_status": "loan_application_details",
	"card_status": "card_application_details",
}

// Tables addressable through dotted keys. Legacy clients still send
// "Users"; it aliases the customer table.
var allowedTables = map[string]string{
	"users":                    "customers",
	"customers":                "customers",
	"loan_application_details": "loan_application_details",
	"card_application_details": "card_application_details",
}

// Columns addressable through dotted keys, per canonical table. The
// enum is the targeting surface: contact, consent and name columns are
// deliberately absent so filters cannot probe them.
var allowedColumns = map[string]map[string]bool{
	"customers": {
		"national_id":       true,
		"salary":            true,
		"employment_status": true,
		"employer_name":     true,
		"language":          true,
		"created_at":        true,
	},
	"loan_application_details": {
		"application_no":  true,
		"status":          true,
		"status_date":     true,
		"finance_amount":  true,
		"tenure":          true,
		"emi":             true,
		"total_repayment": true,
		"interest":        true,
	},
	"card_application_details": {
		"application_no": true,
		"status":         true,
		"status_date":    true,
		"card_type":      true,
		"card_limit":     true,
	},
}

var allowedOperators = map[string]bool{
	"=":       true,
	"!=":      true,
	">":       true,
	"<":       true,
	">=":      true,
	"<=":      true,
	"LIKE":    true,
	"IN":      true,
	"BETWEEN": true,
}

// Condition is one operator/value pair under a dotted filter key.
type Condition struct {
	Operator string          `json:"operator"`
	Value    json.RawMessage `json:"value"`
}

// Compiler turns filter documents into domain.CompiledPredicate values.
type Compiler struct {
	log *slog.Logger
}

// New creates a filter compiler.
func New(log *slog.Logger) *Compiler {
	if log == nil {
		log = slog.Default()
	}
	return &Compiler{log: log}
}

// Compile builds a predicate from raw filters. The operation joins
// top-level keys and defaults to AND; anything other than "OR" is AND.
// Keys are processed in sorted order so equal inputs always compile to
// the identical predicate.
func (c *Compiler) Compile(filters map[string]json.RawMessage, operation string) domain.CompiledPredicate {
	join := domain.JoinAnd
	if strings.EqualFold(strings.TrimSpace(operation), "OR") {
		join = domain.JoinOr
	}

	pred := domain.CompiledPredicate{Join: join}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		frag, args, ok := c.compileKey(key, filters[key])
		if !ok {
			continue
		}
		pred.Fragments = append(pred.Fragments, frag)
		pred.Args = append(pred.Args, args...)
	}

	return pred
}

func (c *Compiler) compileKey(key string, raw json.RawMessage) (string, []any, bool) {
	switch {
	case key == "salary_range":
		return c.compileSalaryRange(raw)
	case shorthandColumns[key] != "":
		return c.compileShorthand(key, shorthandColumns[key], raw)
	case statusTables[key] != "":
		return c.compileStatus(key, statusTables[key], raw)
	case strings.Contains(key, "."):
		return c.compileDotted(key, raw)
	default:
		c.drop(key, "unknown filter key")
		return "", nil, false
	}
}

// compileSalaryRange handles {"min": n, "max": m}; either bound may be
// omitted. Both absent drops the filter.
func (c *Compiler) compileSalaryRange(raw json.RawMessage) (string, []any, bool) {
	var bounds struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	}
	if err := json.Unmarshal(raw, &bounds); err != nil {
		c.drop("salary_range", "not an object with numeric bounds")
		return "", nil, false
	}

	var parts []string
	var args []any
	if bounds.Min != nil {
		parts = append(parts, "salary >= ?")
		args = append(args, *bounds.Min)
	}
	if bounds.Max != nil {
		parts = append(parts, "salary <= ?")
		args = append(args, *bounds.Max)
	}
	if len(parts) == 0 {
		c.drop("salary_range", "no bounds given")
		return "", nil, false
	}
	if len(parts) == 1 {
		return parts[0], args, true
	}
	return "(" + parts[0] + " AND " + parts[1] + ")", args, true
}

func (c *Compiler) compileShorthand(key, column string, raw json.RawMessage) (string, []any, bool) {
	val, ok := scalar(raw)
	if !ok {
		c.drop(key, "value is not a scalar")
		return "", nil, false
	}
	return column + " = ?", []any{val}, true
}

// compileStatus matches customers having any application with the given
// status, via a correlated subquery on the application table.
func (c *Compiler) compileStatus(key, table string, raw json.RawMessage) (string, []any, bool) {
	val, ok := scalar(raw)
	if !ok {
		c.drop(key, "value is not a scalar")
		return "", nil, false
	}
	frag := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s a WHERE a.national_id = customers.national_id AND a.status = ?)",
		table,
	)
	return frag, []any{val}, true
}

// compileDotted handles "table.column" keys carrying a condition list.
// Conditions under one key are OR'd together.
func (c *Compiler) compileDotted(key string, raw json.RawMessage) (string, []any, bool) {
	parts := strings.SplitN(key, ".", 2)
	table, ok := allowedTables[strings.ToLower(parts[0])]
	if !ok {
		c.drop(key, "table not allowed")
		return "", nil, false
	}

	column := strings.ToLower(parts[1])
	if !allowedColumns[table][column] {
		c.drop(key, "column not allowed")
		return "", nil, false
	}

	var conditions []Condition
	if err := json.Unmarshal(raw, &conditions); err != nil || len(conditions) == 0 {
		c.drop(key, "expected a non-empty condition list")
		return "", nil, false
	}

	qualified := column
	if table != "customers" {
		qualified = "a." + column
	}

	var frags []string
	var args []any
	for _, cond := range conditions {
		frag, condArgs, ok := c.compileCondition(key, qualified, cond)
		if !ok {
			continue
		}
		frags = append(frags, frag)
		args = append(args, condArgs...)
	}
	if len(frags) == 0 {
		return "", nil, false
	}

	inner := strings.Join(frags, " OR ")
	if len(frags) > 1 {
		inner = "(" + inner + ")"
	}

	if table == "customers" {
		return inner, args, true
	}

	frag := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s a WHERE a.national_id = customers.national_id AND %s)",
		table, inner,
	)
	return frag, args, true
}

func (c *Compiler) compileCondition(key, column string, cond Condition) (string, []any, bool) {
	op := strings.ToUpper(strings.TrimSpace(cond.Operator))
	if !allowedOperators[op] {
		c.drop(key, "operator not allowed: "+cond.Operator)
		return "", nil, false
	}

	switch op {
	case "BETWEEN":
		vals, ok := scalarList(cond.Value)
		if !ok || len(vals) != 2 {
			c.drop(key, "BETWEEN needs exactly two values")
			return "", nil, false
		}
		return column + " BETWEEN ? AND ?", vals, true

	case "IN":
		vals, ok := scalarList(cond.Value)
		if !ok || len(vals) == 0 {
			c.drop(key, "IN needs a non-empty value list")
			return "", nil, false
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
		return column + " IN (" + placeholders + ")", vals, true

	default:
		val, ok := scalar(cond.Value)
		if !ok {
			c.drop(key, "value is not a scalar")
			return "", nil, false
		}
		return column + " " + op + " ?", []any{val}, true
	}
}

func (c *Compiler) drop(key, reason string) {
	c.log.Debug("dropping filter entry", "key", key, "reason", reason)
}

// scalar decodes a JSON string, number, or bool.
func scalar(raw json.RawMessage) (any, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case string, float64, bool:
		return v, true
	}
	return nil, false
}

// scalarList decodes a JSON array of scalars.
func scalarList(raw json.RawMessage) ([]any, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	vals := make([]any, 0, len(items))
	for _, item := range items {
		v, ok := scalar(item)
		if !ok {
			return nil, false
		}
		vals = append(vals, v)
	}
	return vals, true
}
