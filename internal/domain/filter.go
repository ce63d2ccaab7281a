package domain

import "strings"

// JoinOp is the boolean operator joining top-level predicate groups.
type JoinOp string

const (
	JoinAnd JoinOp = "AND"
	JoinOr  JoinOp = "OR"
)

// CompiledPredicate is the output of the filter compiler: parameterized
// SQL fragments over the customer table plus their bind arguments, in
// matching order. Fragments never contain literal user input.
type CompiledPredicate struct {
	Fragments []string `json:"fragments"`
	Args      []any    `json:"args"`
	Join      JoinOp   `json:"join"`
}

// Empty reports whether no filter survived compilation.
func (p CompiledPredicate) Empty() bool {
	return len(p.Fragments) == 0
}

// WhereClause joins the fragments with the predicate's boolean operator.
// Returns the empty string for an empty predicate.
func (p CompiledPredicate) WhereClause() string {
	if p.Empty() {
		return ""
	}
	join := p.Join
	if join != JoinOr {
		join = JoinAnd
	}
	return strings.Join(p.Fragments, " "+string(join)+" ")
}
